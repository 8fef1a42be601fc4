package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres store errors
var (
	ErrDBConnection = errors.New("database connection error")
)

// PostgresConfig holds database configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultPostgresConfig returns default database configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ziesha",
		Password: "",
		Database: "ziesha",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// PostgresKvStore is a durable KvStore backed by a single Postgres table.
// Key order comes from the primary-key index, so prefix scans are ordered
// without any client-side sorting.
type PostgresKvStore struct {
	pool         *pgxpool.Pool
	ctx          context.Context
	lastRollback []WriteOp
}

// NewPostgresKvStore connects to Postgres and ensures the backing table.
func NewPostgresKvStore(ctx context.Context, cfg *PostgresConfig) (*PostgresKvStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKvIo, err)
	}

	return &PostgresKvStore{pool: pool, ctx: ctx}, nil
}

// Close closes the database connection pool
func (s *PostgresKvStore) Close() {
	s.pool.Close()
}

// Get returns the blob stored under key, or nil if absent.
func (s *PostgresKvStore) Get(key StringKey) (Blob, error) {
	var v []byte
	err := s.pool.QueryRow(s.ctx, `SELECT v FROM kv WHERE k = $1`, string(key)).Scan(&v)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKvIo, err)
	}
	return v, nil
}

// Update applies ops atomically inside a single database transaction.
func (s *PostgresKvStore) Update(ops []WriteOp) error {
	inverse, err := inverseOf(s, ops)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(s.ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKvIo, err)
	}
	defer tx.Rollback(s.ctx)
	for _, op := range ops {
		if op.Remove {
			_, err = tx.Exec(s.ctx, `DELETE FROM kv WHERE k = $1`, string(op.Key))
		} else {
			_, err = tx.Exec(s.ctx,
				`INSERT INTO kv (k, v) VALUES ($1, $2)
				 ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`,
				string(op.Key), []byte(op.Value))
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrKvIo, err)
		}
	}
	if err := tx.Commit(s.ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrKvIo, err)
	}
	s.lastRollback = inverse
	return nil
}

// Pairs returns the pairs under prefix in ascending key order.
func (s *PostgresKvStore) Pairs(prefix StringKey) ([]Pair, error) {
	rows, err := s.pool.Query(s.ctx,
		`SELECT k, v FROM kv WHERE k >= $1 AND k < $1 || chr(255) ORDER BY k`,
		string(prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKvIo, err)
	}
	defer rows.Close()
	var pairs []Pair
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKvIo, err)
		}
		pairs = append(pairs, Pair{Key: StringKey(k), Blob: v})
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrKvIo, rows.Err())
	}
	return pairs, nil
}

// Checksum digests the full ordered content of the store.
func (s *PostgresKvStore) Checksum() ([32]byte, error) {
	pairs, err := s.Pairs("")
	if err != nil {
		return [32]byte{}, err
	}
	return checksumPairs(pairs), nil
}

// Rollback returns the inverse write-set of the most recent Update.
func (s *PostgresKvStore) Rollback() ([]WriteOp, error) {
	return s.lastRollback, nil
}
