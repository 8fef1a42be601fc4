package kv

import (
	"sort"
	"strings"

	"github.com/ziesha/core/pkg/common"
)

// MirrorKvStore is an in-memory overlay over a parent store. Reads fall
// through to the parent; writes land in the overlay and never mutate the
// parent. The overlay can be materialized as an op-list and replayed
// against the parent, or simply dropped. Mirrors nest.
type MirrorKvStore struct {
	parent  KvStore
	overlay map[StringKey]Blob // nil blob marks a deletion
	order   []StringKey        // overlay keys in first-write order
}

// NewMirrorKvStore creates an overlay over parent.
func NewMirrorKvStore(parent KvStore) *MirrorKvStore {
	return &MirrorKvStore{
		parent:  parent,
		overlay: make(map[StringKey]Blob),
	}
}

// Get reads from the overlay first, then the parent.
func (s *MirrorKvStore) Get(key StringKey) (Blob, error) {
	if b, ok := s.overlay[key]; ok {
		return common.CopyBytes(b), nil
	}
	return s.parent.Get(key)
}

// Update records ops in the overlay.
func (s *MirrorKvStore) Update(ops []WriteOp) error {
	for _, op := range ops {
		if _, ok := s.overlay[op.Key]; !ok {
			s.order = append(s.order, op.Key)
		}
		if op.Remove {
			s.overlay[op.Key] = nil
		} else {
			s.overlay[op.Key] = common.CopyBytes(op.Value)
		}
	}
	return nil
}

// Pairs merges parent pairs with the overlay, in ascending key order.
func (s *MirrorKvStore) Pairs(prefix StringKey) ([]Pair, error) {
	parentPairs, err := s.parent.Pairs(prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[StringKey]Blob, len(parentPairs))
	for _, p := range parentPairs {
		merged[p.Key] = p.Blob
	}
	for k, v := range s.overlay {
		if !strings.HasPrefix(string(k), string(prefix)) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{Key: StringKey(k), Blob: merged[StringKey(k)]})
	}
	return pairs, nil
}

// Checksum digests the merged view of parent and overlay.
func (s *MirrorKvStore) Checksum() ([32]byte, error) {
	pairs, err := s.Pairs("")
	if err != nil {
		return [32]byte{}, err
	}
	return checksumPairs(pairs), nil
}

// ToOps materializes the overlay as a write-set that, applied to the
// parent, reproduces this mirror's view. Ops come out in first-write order.
func (s *MirrorKvStore) ToOps() []WriteOp {
	ops := make([]WriteOp, 0, len(s.order))
	for _, k := range s.order {
		if v := s.overlay[k]; v == nil {
			ops = append(ops, Remove(k))
		} else {
			ops = append(ops, Put(k, v))
		}
	}
	return ops
}

// Rollback returns the write-set that undoes the whole overlay relative to
// the parent store.
func (s *MirrorKvStore) Rollback() ([]WriteOp, error) {
	inverse := make([]WriteOp, 0, len(s.order))
	for _, k := range s.order {
		prev, err := s.parent.Get(k)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			inverse = append(inverse, Remove(k))
		} else {
			inverse = append(inverse, Put(k, prev))
		}
	}
	return inverse, nil
}
