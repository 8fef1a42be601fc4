// Package mempool implements the pending-transaction pool feeding the
// block drafter.
package mempool

import (
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ziesha/core/pkg/types"
)

// Mempool errors
var (
	ErrPoolFull        = errors.New("mempool is full")
	ErrTxAlreadyExists = errors.New("transaction already in mempool")
	ErrInsufficientFee = errors.New("insufficient transaction fee")
	ErrWrongFeeToken   = errors.New("fees must be paid in ziesha")
)

// Mempool manages pending transactions, ranked the way the selector wants
// them: MPN updates first, then fee density, then oldest nonce.
type Mempool struct {
	mu sync.RWMutex

	// Transactions indexed by hash
	txs map[types.Hash]*MempoolTx

	// Priority queue for transaction ordering
	queue []*MempoolTx

	mpnContractId types.ContractId
	maxSize       int
	minFee        types.Amount
}

// MempoolTx wraps a transaction with mempool metadata.
type MempoolTx struct {
	Tx       types.TransactionAndDelta
	IsMpn    bool
	Priority uint64 // fee per byte
	Size     int
}

// Config holds mempool configuration
type Config struct {
	MaxSize       int
	MinFee        types.Amount
	MpnContractId types.ContractId
}

// DefaultConfig returns default mempool configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSize: 10000,
		MinFee:  0,
	}
}

// NewMempool creates a new transaction mempool
func NewMempool(cfg *Config) *Mempool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Mempool{
		txs:           make(map[types.Hash]*MempoolTx),
		queue:         make([]*MempoolTx, 0),
		mpnContractId: cfg.MpnContractId,
		maxSize:       cfg.MaxSize,
		minFee:        cfg.MinFee,
	}
}

// Add adds a transaction to the mempool
func (m *Mempool) Add(txd types.TransactionAndDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := txd.Tx.Hash()
	if _, exists := m.txs[hash]; exists {
		return ErrTxAlreadyExists
	}
	if txd.Tx.Fee.TokenId != types.ZieshaTokenId {
		return ErrWrongFeeToken
	}
	if txd.Tx.Fee.Amount < m.minFee {
		return ErrInsufficientFee
	}
	if len(m.txs) >= m.maxSize {
		if !m.evictLowestPriority(txd.Tx.Fee.Amount) {
			return ErrPoolFull
		}
	}

	size := txd.Tx.Size()
	mpt := &MempoolTx{
		Tx:       txd,
		IsMpn:    txd.Tx.Data.UpdateContract != nil && txd.Tx.Data.UpdateContract.ContractId == m.mpnContractId,
		Priority: uint64(txd.Tx.Fee.Amount) / uint64(size),
		Size:     size,
	}

	m.txs[hash] = mpt
	m.insertIntoQueue(mpt)
	logrus.WithFields(logrus.Fields{
		"tx":  hash.String(),
		"mpn": mpt.IsMpn,
	}).Debug("transaction admitted to mempool")
	return nil
}

// Remove removes a transaction from the mempool
func (m *Mempool) Remove(hash types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(hash)
}

func (m *Mempool) remove(hash types.Hash) {
	if _, exists := m.txs[hash]; !exists {
		return
	}
	delete(m.txs, hash)
	for i, mpt := range m.queue {
		if mpt.Tx.Tx.Hash() == hash {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// Has checks if a transaction is in the mempool
func (m *Mempool) Has(hash types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.txs[hash]
	return exists
}

// Size returns the number of transactions in the mempool
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// Pending returns all pending transactions in priority order, the slice
// the chain's selector consumes.
func (m *Mempool) Pending() []types.TransactionAndDelta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.TransactionAndDelta, 0, len(m.queue))
	for _, mpt := range m.queue {
		out = append(out, mpt.Tx)
	}
	return out
}

// RemoveConfirmed drops transactions included in an accepted block.
func (m *Mempool) RemoveConfirmed(block *types.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range block.Body {
		m.remove(block.Body[i].Hash())
	}
}

// less orders queue entries: MPN first, higher fee density next, lower
// nonce last.
func less(a, b *MempoolTx) bool {
	if a.IsMpn != b.IsMpn {
		return a.IsMpn
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Tx.Tx.Nonce < b.Tx.Tx.Nonce
}

// insertIntoQueue inserts a transaction keeping the queue ordered.
func (m *Mempool) insertIntoQueue(mpt *MempoolTx) {
	idx := sort.Search(len(m.queue), func(i int) bool {
		return less(mpt, m.queue[i])
	})
	m.queue = append(m.queue, nil)
	copy(m.queue[idx+1:], m.queue[idx:])
	m.queue[idx] = mpt
}

// evictLowestPriority evicts the weakest entry if the newcomer pays more.
func (m *Mempool) evictLowestPriority(newFee types.Amount) bool {
	if len(m.queue) == 0 {
		return false
	}
	lowest := m.queue[len(m.queue)-1]
	if newFee > lowest.Tx.Tx.Fee.Amount {
		m.remove(lowest.Tx.Tx.Hash())
		return true
	}
	return false
}
