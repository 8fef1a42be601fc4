// Package kv implements the ordered key-value abstraction backing the chain.
// A store maps string keys to binary blobs, applies batched writes
// atomically, and can report the inverse write-set of its last update so a
// single undo step is always possible.
package kv

import (
	"errors"

	"golang.org/x/crypto/sha3"
)

// KV errors
var (
	ErrKvIo       = errors.New("kv store io failure")
	ErrKvCorrupt  = errors.New("kv store corrupt")
	ErrKvReadOnly = errors.New("kv store is read-only")
)

// StringKey is a store key. Keys are compared lexically; numeric sort
// fields must be encoded so that lexical order matches numeric order.
type StringKey string

// Blob is an opaque stored value.
type Blob []byte

// WriteOp is a single mutation. Remove deletes Key; otherwise Value is
// stored under Key.
type WriteOp struct {
	Key    StringKey
	Value  Blob
	Remove bool
}

// Put creates a write operation that sets key to value.
func Put(key StringKey, value Blob) WriteOp {
	return WriteOp{Key: key, Value: value}
}

// Remove creates a write operation that deletes key.
func Remove(key StringKey) WriteOp {
	return WriteOp{Key: key, Remove: true}
}

// Pair is a key together with its stored blob.
type Pair struct {
	Key  StringKey
	Blob Blob
}

// KvStore is the ordered key-value store consumed by the chain. All chain
// mutation flows through Update; Rollback returns the inverse write-set of
// the most recent Update so the caller can undo it.
type KvStore interface {
	// Get returns the blob stored under key, or nil if absent.
	Get(key StringKey) (Blob, error)

	// Update applies ops atomically, in order.
	Update(ops []WriteOp) error

	// Pairs returns all (key, blob) pairs whose key starts with prefix,
	// in ascending key order.
	Pairs(prefix StringKey) ([]Pair, error)

	// Checksum returns a digest over the full ordered content of the store.
	Checksum() ([32]byte, error)

	// Rollback returns the inverse write-set of the most recent Update:
	// the operations that, applied in order, restore the pre-update state.
	Rollback() ([]WriteOp, error)
}

// inverseOf computes the write-set that undoes ops against the given store,
// reading the current values before they are overwritten.
func inverseOf(store KvStore, ops []WriteOp) ([]WriteOp, error) {
	// Later ops in a batch may touch the same key; only the first
	// occurrence carries the pre-batch value.
	seen := make(map[StringKey]struct{}, len(ops))
	inverse := make([]WriteOp, 0, len(ops))
	for _, op := range ops {
		if _, ok := seen[op.Key]; ok {
			continue
		}
		seen[op.Key] = struct{}{}
		prev, err := store.Get(op.Key)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			inverse = append(inverse, Remove(op.Key))
		} else {
			inverse = append(inverse, Put(op.Key, prev))
		}
	}
	return inverse, nil
}

// checksumPairs digests an ordered pair list.
func checksumPairs(pairs []Pair) [32]byte {
	h := sha3.New256()
	for _, p := range pairs {
		h.Write([]byte(p.Key))
		h.Write([]byte{0})
		h.Write(p.Blob)
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
