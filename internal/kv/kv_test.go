package kv_test

import (
	"bytes"
	"testing"

	"github.com/ziesha/core/internal/kv"
)

// Two stores fed the same ops must agree byte-for-byte.
func TestRamStoreChecksumConsistency(t *testing.T) {
	a := kv.NewRamKvStore()
	b := kv.NewRamKvStore()

	ca, err := a.Checksum()
	if err != nil {
		t.Fatalf("checksum failed: %v", err)
	}
	cb, _ := b.Checksum()
	if ca != cb {
		t.Fatal("empty stores should have equal checksums")
	}

	ops := []kv.WriteOp{
		kv.Put("bc", kv.Blob{0, 1, 2, 3}),
		kv.Put("aa", kv.Blob{3, 2, 1, 0}),
		kv.Put("def", kv.Blob{}),
	}
	if err := a.Update(ops); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := b.Update(ops); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	ca, _ = a.Checksum()
	cb, _ = b.Checksum()
	if ca != cb {
		t.Fatal("stores should agree after identical updates")
	}

	newOps := []kv.WriteOp{
		kv.Remove("aa"),
		kv.Put("def", kv.Blob{1, 1, 1, 2}),
		kv.Put("ghi", kv.Blob{3, 3, 3, 3}),
	}
	if err := a.Update(newOps); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := b.Update(newOps); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	ca, _ = a.Checksum()
	cb, _ = b.Checksum()
	if ca != cb {
		t.Fatal("stores should agree after identical mixed updates")
	}
}

func TestRollbackOfLastUpdate(t *testing.T) {
	s := kv.NewRamKvStore()
	if err := s.Update([]kv.WriteOp{kv.Put("a", kv.Blob{1}), kv.Put("b", kv.Blob{2})}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	before, _ := s.Checksum()

	if err := s.Update([]kv.WriteOp{
		kv.Put("a", kv.Blob{9}),
		kv.Remove("b"),
		kv.Put("c", kv.Blob{3}),
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	inverse, err := s.Rollback()
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if err := s.Update(inverse); err != nil {
		t.Fatalf("applying inverse failed: %v", err)
	}
	after, _ := s.Checksum()
	if before != after {
		t.Fatal("inverse write-set should restore the pre-update state")
	}
}

func TestMirrorKvStore(t *testing.T) {
	ram := kv.NewRamKvStore()
	ops := []kv.WriteOp{
		kv.Put("bc", kv.Blob{0, 1, 2, 3}),
		kv.Put("aa", kv.Blob{3, 2, 1, 0}),
		kv.Put("def", kv.Blob{}),
	}
	if err := ram.Update(ops); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	prevChecksum, _ := ram.Checksum()

	mirror := kv.NewMirrorKvStore(ram)
	if err := mirror.Update([]kv.WriteOp{
		kv.Put("bc", kv.Blob{0, 1, 2, 4}),
		kv.Put("dd", kv.Blob{1, 1, 1}),
		kv.Remove("aa"),
	}); err != nil {
		t.Fatalf("mirror update failed: %v", err)
	}

	// Reads fall through for untouched keys and see overlay writes.
	v, err := mirror.Get("def")
	if err != nil || v == nil {
		t.Fatalf("mirror should fall through to parent: %v", err)
	}
	v, _ = mirror.Get("bc")
	if !bytes.Equal(v, []byte{0, 1, 2, 4}) {
		t.Fatal("mirror should serve overlay writes")
	}
	v, _ = mirror.Get("aa")
	if v != nil {
		t.Fatal("mirror should hide overlay-deleted keys")
	}

	// The parent stays untouched until the op-list is replayed.
	cur, _ := ram.Checksum()
	if cur != prevChecksum {
		t.Fatal("mirror writes must not mutate the parent")
	}
	mirrorChecksum, _ := mirror.Checksum()
	if err := ram.Update(mirror.ToOps()); err != nil {
		t.Fatalf("replaying mirror ops failed: %v", err)
	}
	cur, _ = ram.Checksum()
	if cur != mirrorChecksum {
		t.Fatal("replaying the op-list should reproduce the mirror's view")
	}
}

func TestMirrorRollback(t *testing.T) {
	ram := kv.NewRamKvStore()
	if err := ram.Update([]kv.WriteOp{kv.Put("k", kv.Blob{7})}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	before, _ := ram.Checksum()

	mirror := kv.NewMirrorKvStore(ram)
	if err := mirror.Update([]kv.WriteOp{
		kv.Put("k", kv.Blob{8}),
		kv.Put("new", kv.Blob{1}),
	}); err != nil {
		t.Fatalf("mirror update failed: %v", err)
	}
	inverse, err := mirror.Rollback()
	if err != nil {
		t.Fatalf("mirror rollback failed: %v", err)
	}

	if err := ram.Update(mirror.ToOps()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := ram.Update(inverse); err != nil {
		t.Fatalf("inverse failed: %v", err)
	}
	after, _ := ram.Checksum()
	if before != after {
		t.Fatal("mirror inverse should undo the committed overlay")
	}
}

func TestPairsPrefixOrder(t *testing.T) {
	s := kv.NewRamKvStore()
	if err := s.Update([]kv.WriteOp{
		kv.Put("x_2", kv.Blob{2}),
		kv.Put("x_1", kv.Blob{1}),
		kv.Put("y_1", kv.Blob{9}),
		kv.Put("x_3", kv.Blob{3}),
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	pairs, err := s.Pairs("x_")
	if err != nil {
		t.Fatalf("pairs failed: %v", err)
	}
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(pairs))
	}
	for i, want := range []kv.StringKey{"x_1", "x_2", "x_3"} {
		if pairs[i].Key != want {
			t.Errorf("pair %d: expected key %s, got %s", i, want, pairs[i].Key)
		}
	}
}
