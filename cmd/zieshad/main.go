// Ziesha Daemon - entry point for the Ziesha core node
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ziesha/core/internal/chain"
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/internal/mempool"
)

const (
	version = "0.1.0"
	banner  = `
  _____              _
 |__  /(_) ___  ___ | |__    __ _
   / / | |/ _ \/ __|| '_ \  / _' |
  / /_ | |  __/\__ \| | | || (_| |
 /____||_|\___||___/|_| |_| \__,_|

  Ziesha Daemon v%s
`
)

// Config holds node configuration
type Config struct {
	// Store selects the KV backend: "ram" or "postgres".
	Store string `yaml:"store"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
	} `yaml:"postgres"`

	// Testnet switches to the test chain configuration.
	Testnet bool `yaml:"testnet"`

	LogLevel string `yaml:"log_level"`
}

func defaultNodeConfig() *Config {
	cfg := &Config{Store: "ram", LogLevel: "info"}
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.User = "ziesha"
	cfg.Postgres.Database = "ziesha"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultNodeConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "Path to YAML node configuration")
	flag.Parse()

	fmt.Printf(banner, version)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config) error {
	var store kv.KvStore
	switch cfg.Store {
	case "postgres":
		logrus.Info("connecting to database")
		pgCfg := kv.DefaultPostgresConfig()
		pgCfg.Host = cfg.Postgres.Host
		pgCfg.Port = cfg.Postgres.Port
		pgCfg.User = cfg.Postgres.User
		pgCfg.Password = cfg.Postgres.Password
		pgCfg.Database = cfg.Postgres.Database
		pg, err := kv.NewPostgresKvStore(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
	default:
		store = kv.NewRamKvStore()
	}

	chainCfg := chain.GetBlockchainConfig()
	if cfg.Testnet {
		chainCfg = chain.GetTestBlockchainConfig()
	}

	logrus.Info("initializing chain")
	c, err := chain.NewKvStoreChain(store, chainCfg)
	if err != nil {
		return err
	}
	height, err := c.GetHeight()
	if err != nil {
		return err
	}
	power, err := c.GetPower()
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"height": height,
		"power":  power,
	}).Info("chain ready")

	pool := mempool.NewMempool(&mempool.Config{
		MaxSize:       10000,
		MpnContractId: chainCfg.Mpn.MpnContractId,
	})
	logrus.WithField("pending", pool.Size()).Info("mempool ready")

	logrus.Info("node started; networking and RPC are provided by the host layer")
	<-ctx.Done()
	logrus.Info("node stopped")
	return nil
}
