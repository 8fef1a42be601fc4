package zk_test

import (
	"testing"

	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/internal/zk"
)

const testCid = "0000000000000000000000000000000000000000000000000000000000000000"

func newManager() *zk.StateManager {
	return zk.NewStateManager(kv.NewRamKvStore())
}

func TestStateManagerScalar(t *testing.T) {
	sm := newManager()
	model := zk.ScalarModel()

	if err := sm.SetData(testCid, &model, nil, zk.ZkScalarFromUint64(123)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := sm.GetData(testCid, nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Equal(zk.ZkScalarFromUint64(123)) {
		t.Fatal("get should return the value just set")
	}
	root, err := sm.Root(testCid)
	if err != nil {
		t.Fatalf("root failed: %v", err)
	}
	if !root.State.Equal(zk.ZkScalarFromUint64(123)) {
		t.Fatal("a scalar tree's root is its single slot")
	}
	if root.Size != 1 {
		t.Fatalf("expected size 1, got %d", root.Size)
	}
}

func TestStateManagerStruct(t *testing.T) {
	sm := newManager()
	model := zk.StructModel(zk.ScalarModel(), zk.ScalarModel())

	roots := make([]zk.ZkCompressedState, 0, 4)
	steps := []struct {
		field uint64
		value uint64
	}{
		{0, 123},
		{1, 234},
		{0, 345},
		{0, 123},
	}
	for _, s := range steps {
		if err := sm.SetData(testCid, &model, []uint64{s.field}, zk.ZkScalarFromUint64(s.value)); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		root, err := sm.Root(testCid)
		if err != nil {
			t.Fatalf("root failed: %v", err)
		}
		roots = append(roots, root)
	}

	// The root is a pure function of the slot contents: setting field 0
	// back to its old value must reproduce the old root.
	if !roots[3].State.Equal(roots[1].State) {
		t.Fatal("root should return to its earlier value")
	}
	if roots[0].State.Equal(roots[2].State) {
		t.Fatal("different slot contents should give different roots")
	}
}

func TestStateManagerList(t *testing.T) {
	sm := newManager()
	model := zk.ListModel(zk.StructModel(zk.ScalarModel(), zk.ScalarModel()), 3)

	if err := sm.SetData(testCid, &model, []uint64{33, 0}, zk.ZkScalarFromUint64(123)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := sm.SetData(testCid, &model, []uint64{33, 1}, zk.ZkScalarFromUint64(234)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Insertion order must not matter.
	other := newManager()
	if err := other.SetData(testCid, &model, []uint64{33, 1}, zk.ZkScalarFromUint64(234)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := other.SetData(testCid, &model, []uint64{33, 0}, zk.ZkScalarFromUint64(123)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	r1, _ := sm.Root(testCid)
	r2, _ := other.Root(testCid)
	if !r1.State.Equal(r2.State) || r1.Size != r2.Size {
		t.Fatal("roots must be independent of insertion order")
	}

	// Out-of-range leaves are rejected.
	if err := sm.SetData(testCid, &model, []uint64{64, 0}, zk.ZkScalarFromUint64(1)); err == nil {
		t.Fatal("leaf index beyond the list capacity should fail")
	}
}

func TestUpdateAndRollbackContract(t *testing.T) {
	sm := newManager()
	model := zk.ListModel(zk.ScalarModel(), 5)

	v200 := zk.ZkScalarFromUint64(200)
	if err := sm.UpdateContract(testCid, &model, zk.ZkDeltaPairs{"1": &v200}, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	rootAt1, _ := sm.Root(testCid)

	v234 := zk.ZkScalarFromUint64(234)
	if err := sm.UpdateContract(testCid, &model, zk.ZkDeltaPairs{"7": &v234}, 2); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	h, _ := sm.HeightOf(testCid)
	if h != 2 {
		t.Fatalf("expected height 2, got %d", h)
	}

	// The forward delta for a peer one step behind carries the slot's
	// current value.
	delta, err := sm.DeltaOf(testCid, 1)
	if err != nil {
		t.Fatalf("delta failed: %v", err)
	}
	if len(delta) != 1 || delta["7"] == nil || !delta["7"].Equal(v234) {
		t.Fatal("forward delta should carry the current slot value")
	}

	cs, err := sm.RollbackContract(testCid, &model)
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if cs == nil || !cs.State.Equal(rootAt1.State) {
		t.Fatal("rollback should reproduce the earlier root")
	}
	h, _ = sm.HeightOf(testCid)
	if h != 1 {
		t.Fatalf("expected height 1 after rollback, got %d", h)
	}

	// The delta log is exhausted after the recorded steps.
	if cs, _ := sm.RollbackContract(testCid, &model); cs == nil {
		t.Fatal("one more rollback should still be available")
	}
	if cs, _ := sm.RollbackContract(testCid, &model); cs != nil {
		t.Fatal("an exhausted delta log should return nil")
	}
}

func TestResetContract(t *testing.T) {
	sm := newManager()
	model := zk.ListModel(zk.ScalarModel(), 5)

	v200 := zk.ZkScalarFromUint64(200)
	v234 := zk.ZkScalarFromUint64(234)
	if err := sm.UpdateContract(testCid, &model, zk.ZkDeltaPairs{"1": &v200}, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	rootAt1, _ := sm.Root(testCid)
	if err := sm.UpdateContract(testCid, &model, zk.ZkDeltaPairs{"7": &v234}, 2); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	rootAt2, _ := sm.Root(testCid)

	// A fresh manager accepts the full state when its rollback chain
	// reproduces the recorded roots.
	full := &zk.ZkState{
		Rollbacks: []zk.ZkDeltaPairs{{"7": nil}},
		Data:      zk.ZkDataPairs{"1": v200, "7": v234},
	}
	fresh := newManager()
	if err := fresh.ResetContract(testCid, &model, 2, full, []zk.ZkCompressedState{rootAt1}); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	got, _ := fresh.Root(testCid)
	if !got.State.Equal(rootAt2.State) {
		t.Fatal("reset should land on the full state's root")
	}

	// A fabricated rollback chain is rejected.
	bad := &zk.ZkState{
		Rollbacks: []zk.ZkDeltaPairs{{"1": nil}},
		Data:      zk.ZkDataPairs{"1": v200, "7": v234},
	}
	if err := newManager().ResetContract(testCid, &model, 2, bad, []zk.ZkCompressedState{rootAt1}); err != zk.ErrFullStateNotValid {
		t.Fatalf("expected ErrFullStateNotValid, got %v", err)
	}
}

func TestDeleteContract(t *testing.T) {
	store := kv.NewRamKvStore()
	sm := zk.NewStateManager(store)
	model := zk.ListModel(zk.ScalarModel(), 3)
	v := zk.ZkScalarFromUint64(42)
	if err := sm.UpdateContract(testCid, &model, zk.ZkDeltaPairs{"5": &v}, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := sm.DeleteContract(testCid); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	pairs, err := store.Pairs(kv.StringKey(testCid + "_"))
	if err != nil {
		t.Fatalf("pairs failed: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected no keys after delete, got %d", len(pairs))
	}
}

func TestCompressMatchesManager(t *testing.T) {
	model := zk.ListModel(zk.ScalarModel(), 5)
	data := zk.ZkDataPairs{
		"1": zk.ZkScalarFromUint64(200),
		"7": zk.ZkScalarFromUint64(234),
	}
	compressed, err := model.Compress(data)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	sm := newManager()
	for loc, val := range data {
		locator, _ := zk.ParseLocator(loc)
		if err := sm.SetData(testCid, &model, locator, val); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	root, _ := sm.Root(testCid)
	if !root.State.Equal(compressed.State) || root.Size != compressed.Size {
		t.Fatal("compress must agree with the incremental tree")
	}

	empty, err := model.Compress(zk.ZkDataPairs{})
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if !empty.State.Equal(model.DefaultRoot()) || empty.Size != 0 {
		t.Fatal("compress of no data must be the model default")
	}
}
