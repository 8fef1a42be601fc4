package kv

import (
	"sort"
	"strings"

	"github.com/ziesha/core/pkg/common"
)

// RamKvStore is an in-memory KvStore. It is the default backend for tests
// and for forked chains that must never touch disk.
type RamKvStore struct {
	data         map[StringKey]Blob
	lastRollback []WriteOp
}

// NewRamKvStore creates an empty in-memory store.
func NewRamKvStore() *RamKvStore {
	return &RamKvStore{data: make(map[StringKey]Blob)}
}

// Get returns the blob stored under key, or nil if absent.
func (s *RamKvStore) Get(key StringKey) (Blob, error) {
	if b, ok := s.data[key]; ok {
		return common.CopyBytes(b), nil
	}
	return nil, nil
}

// Update applies ops atomically and remembers their inverse.
func (s *RamKvStore) Update(ops []WriteOp) error {
	inverse, err := inverseOf(s, ops)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.Remove {
			delete(s.data, op.Key)
		} else {
			s.data[op.Key] = common.CopyBytes(op.Value)
		}
	}
	s.lastRollback = inverse
	return nil
}

// Pairs returns the pairs under prefix in ascending key order.
func (s *RamKvStore) Pairs(prefix StringKey) ([]Pair, error) {
	keys := make([]string, 0)
	for k := range s.data {
		if strings.HasPrefix(string(k), string(prefix)) {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{Key: StringKey(k), Blob: common.CopyBytes(s.data[StringKey(k)])})
	}
	return pairs, nil
}

// Checksum digests the full ordered content of the store.
func (s *RamKvStore) Checksum() ([32]byte, error) {
	pairs, err := s.Pairs("")
	if err != nil {
		return [32]byte{}, err
	}
	return checksumPairs(pairs), nil
}

// Rollback returns the inverse write-set of the most recent Update.
func (s *RamKvStore) Rollback() ([]WriteOp, error) {
	return s.lastRollback, nil
}
