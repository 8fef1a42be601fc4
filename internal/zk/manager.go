package zk

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ziesha/core/internal/kv"
)

// StateManager maintains contract state trees inside a KV store. Every key
// it writes is prefixed by the contract id, so a whole tree can be removed
// with one prefix scan. Tree nodes carry their (level, index) position
// inside the key.
type StateManager struct {
	db kv.KvStore
}

// NewStateManager creates a manager over db.
func NewStateManager(db kv.KvStore) *StateManager {
	return &StateManager{db: db}
}

func heightKey(cid string) kv.StringKey {
	return kv.StringKey(cid + "_height")
}

func compressedKey(cid string) kv.StringKey {
	return kv.StringKey(cid + "_compressed")
}

func leafKey(cid, loc string) kv.StringKey {
	return kv.StringKey(cid + "_s_" + loc)
}

func auxKey(cid, loc string) kv.StringKey {
	return kv.StringKey(cid + "_a_" + loc)
}

func listAuxKey(cid, loc string, level uint8, index uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("%s_a_%s~%d-%d", cid, loc, level, index))
}

func rollbackKey(cid string, height uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("%s_rollback_%010d", cid, height))
}

func (sm *StateManager) getScalar(key kv.StringKey) (ZkScalar, bool, error) {
	blob, err := sm.db.Get(key)
	if err != nil {
		return ZkScalar{}, false, err
	}
	if blob == nil {
		return ZkScalar{}, false, nil
	}
	var s ZkScalar
	if err := json.Unmarshal(blob, &s); err != nil {
		return ZkScalar{}, false, err
	}
	return s, true, nil
}

// setOrRemove stores value under key, or removes the key when the value
// equals the subtree's default so that unset regions stay sparse.
func (sm *StateManager) setOrRemove(key kv.StringKey, value, def ZkScalar) error {
	if value.Equal(def) {
		return sm.db.Update([]kv.WriteOp{kv.Remove(key)})
	}
	blob, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return sm.db.Update([]kv.WriteOp{kv.Put(key, blob)})
}

// Root returns the contract's current compressed state. A contract with no
// tree material yet reports the zero state.
func (sm *StateManager) Root(cid string) (ZkCompressedState, error) {
	blob, err := sm.db.Get(compressedKey(cid))
	if err != nil {
		return ZkCompressedState{}, err
	}
	if blob == nil {
		return ZkCompressedState{}, nil
	}
	var cs ZkCompressedState
	if err := json.Unmarshal(blob, &cs); err != nil {
		return ZkCompressedState{}, err
	}
	return cs, nil
}

// HeightOf returns the number of committed deltas of the contract's tree.
func (sm *StateManager) HeightOf(cid string) (uint64, error) {
	blob, err := sm.db.Get(heightKey(cid))
	if err != nil {
		return 0, err
	}
	if blob == nil {
		return 0, nil
	}
	var h uint64
	if err := json.Unmarshal(blob, &h); err != nil {
		return 0, err
	}
	return h, nil
}

func (sm *StateManager) setHeight(cid string, h uint64) error {
	blob, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return sm.db.Update([]kv.WriteOp{kv.Put(heightKey(cid), blob)})
}

// GetData returns the scalar stored at a locator, defaulting to zero.
func (sm *StateManager) GetData(cid string, locator []uint64) (ZkScalar, error) {
	s, ok, err := sm.getScalar(leafKey(cid, LocatorString(locator)))
	if err != nil {
		return ZkScalar{}, err
	}
	if !ok {
		return ZkScalarFromUint64(0), nil
	}
	return s, nil
}

// nodeRoot returns the current root of the subtree at loc under model m.
func (sm *StateManager) nodeRoot(cid string, loc []uint64, m *ZkStateModel) (ZkScalar, error) {
	if m.Type == ModelScalar {
		return sm.GetData(cid, loc)
	}
	s, ok, err := sm.getScalar(auxKey(cid, LocatorString(loc)))
	if err != nil {
		return ZkScalar{}, err
	}
	if !ok {
		return m.DefaultRoot(), nil
	}
	return s, nil
}

// listNode returns the internal 4-ary node at (level, index) of the list
// rooted at loc.
func (sm *StateManager) listNode(cid string, loc []uint64, m *ZkStateModel, ladder []ZkScalar, level uint8, index uint64) (ZkScalar, error) {
	if level == 0 {
		return sm.nodeRoot(cid, append(append([]uint64{}, loc...), index), m.ItemType)
	}
	s, ok, err := sm.getScalar(listAuxKey(cid, LocatorString(loc), level, index))
	if err != nil {
		return ZkScalar{}, err
	}
	if !ok {
		return ladder[level], nil
	}
	return s, nil
}

// SetData writes a scalar slot and recomputes the affected path up to the
// contract root. The compressed state's size tracks non-default slots.
func (sm *StateManager) SetData(cid string, model *ZkStateModel, locator []uint64, value ZkScalar) error {
	sub, err := model.Locate(locator)
	if err != nil {
		return err
	}
	if sub.Type != ModelScalar {
		return ErrInvalidLocator
	}

	old, err := sm.GetData(cid, locator)
	if err != nil {
		return err
	}
	if err := sm.setOrRemove(leafKey(cid, LocatorString(locator)), value, ZkScalarFromUint64(0)); err != nil {
		return err
	}

	cs, err := sm.Root(cid)
	if err != nil {
		return err
	}
	switch {
	case old.IsZero() && !value.IsZero():
		cs.Size++
	case !old.IsZero() && value.IsZero():
		cs.Size--
	}

	// Recompute every ancestor, leaf upward.
	for p := len(locator); p >= 1; p-- {
		parentLoc := locator[:p-1]
		parentModel, err := model.Locate(parentLoc)
		if err != nil {
			return err
		}
		childIdx := locator[p-1]

		var newRoot ZkScalar
		switch parentModel.Type {
		case ModelStruct:
			fields := make([]ZkScalar, len(parentModel.FieldTypes))
			for i := range parentModel.FieldTypes {
				floc := append(append([]uint64{}, parentLoc...), uint64(i))
				fields[i], err = sm.nodeRoot(cid, floc, &parentModel.FieldTypes[i])
				if err != nil {
					return err
				}
			}
			newRoot = HashScalars(fields...)
		case ModelList:
			ladder := defaultListLadder(parentModel.ItemType, parentModel.Log4Size)
			curIdx := childIdx
			cur, err := sm.listNode(cid, parentLoc, parentModel, ladder, 0, curIdx)
			if err != nil {
				return err
			}
			for level := uint8(1); level <= parentModel.Log4Size; level++ {
				base := (curIdx / 4) * 4
				var children [4]ZkScalar
				for j := uint64(0); j < 4; j++ {
					ci := base + j
					if ci == curIdx {
						children[j] = cur
					} else {
						children[j], err = sm.listNode(cid, parentLoc, parentModel, ladder, level-1, ci)
						if err != nil {
							return err
						}
					}
				}
				cur = listNodeHash(level, children[0], children[1], children[2], children[3])
				curIdx = curIdx / 4
				if level < parentModel.Log4Size {
					if err := sm.setOrRemove(listAuxKey(cid, LocatorString(parentLoc), level, curIdx), cur, ladder[level]); err != nil {
						return err
					}
				}
			}
			newRoot = cur
		default:
			return ErrInvalidLocator
		}

		if err := sm.setOrRemove(auxKey(cid, LocatorString(parentLoc)), newRoot, parentModel.DefaultRoot()); err != nil {
			return err
		}
	}

	root, err := sm.nodeRoot(cid, nil, model)
	if err != nil {
		return err
	}
	cs.State = root
	blob, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return sm.db.Update([]kv.WriteOp{kv.Put(compressedKey(cid), blob)})
}

// sortedDeltaKeys returns the delta's locator strings in ascending order,
// keeping every write sequence deterministic across nodes.
func sortedDeltaKeys(delta ZkDeltaPairs) []string {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ensureCompressed materializes the compressed record of an empty tree so
// its root reads as the model default rather than the zero state.
func (sm *StateManager) ensureCompressed(cid string, model *ZkStateModel) error {
	blob, err := sm.db.Get(compressedKey(cid))
	if err != nil {
		return err
	}
	if blob != nil {
		return nil
	}
	empty, err := json.Marshal(model.EmptyCompressed())
	if err != nil {
		return err
	}
	return sm.db.Update([]kv.WriteOp{kv.Put(compressedKey(cid), empty)})
}

// UpdateContract applies a delta to the contract's tree, records the
// reverse delta for one-step rollback, and moves the tree to targetHeight.
func (sm *StateManager) UpdateContract(cid string, model *ZkStateModel, delta ZkDeltaPairs, targetHeight uint64) error {
	if err := sm.ensureCompressed(cid, model); err != nil {
		return err
	}
	reverse := make(ZkDeltaPairs, len(delta))
	for _, locStr := range sortedDeltaKeys(delta) {
		locator, err := ParseLocator(locStr)
		if err != nil {
			return err
		}
		old, err := sm.GetData(cid, locator)
		if err != nil {
			return err
		}
		newVal := ZkScalarFromUint64(0)
		if v := delta[locStr]; v != nil {
			newVal = *v
		}
		if err := sm.SetData(cid, model, locator, newVal); err != nil {
			return err
		}
		if old.IsZero() {
			reverse[locStr] = nil
		} else {
			o := old
			reverse[locStr] = &o
		}
	}
	blob, err := json.Marshal(reverse)
	if err != nil {
		return err
	}
	if err := sm.db.Update([]kv.WriteOp{kv.Put(rollbackKey(cid, targetHeight), blob)}); err != nil {
		return err
	}
	return sm.setHeight(cid, targetHeight)
}

// RollbackContract undoes one step using the on-disk delta log. It returns
// the new compressed state, or nil when the log is exhausted.
func (sm *StateManager) RollbackContract(cid string, model *ZkStateModel) (*ZkCompressedState, error) {
	h, err := sm.HeightOf(cid)
	if err != nil {
		return nil, err
	}
	if h == 0 {
		return nil, nil
	}
	blob, err := sm.db.Get(rollbackKey(cid, h))
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, nil
	}
	var reverse ZkDeltaPairs
	if err := json.Unmarshal(blob, &reverse); err != nil {
		return nil, err
	}
	for _, locStr := range sortedDeltaKeys(reverse) {
		locator, err := ParseLocator(locStr)
		if err != nil {
			return nil, err
		}
		val := ZkScalarFromUint64(0)
		if v := reverse[locStr]; v != nil {
			val = *v
		}
		if err := sm.SetData(cid, model, locator, val); err != nil {
			return nil, err
		}
	}
	if err := sm.db.Update([]kv.WriteOp{kv.Remove(rollbackKey(cid, h))}); err != nil {
		return nil, err
	}
	if err := sm.setHeight(cid, h-1); err != nil {
		return nil, err
	}
	cs, err := sm.Root(cid)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// DeltaOf returns the forward delta that a tree `away` steps behind must
// apply to reach the current state, or nil when the delta log no longer
// covers that distance. The delta is the union of the locators touched by
// the last `away` steps, valued at their current contents.
func (sm *StateManager) DeltaOf(cid string, away uint64) (ZkDeltaPairs, error) {
	h, err := sm.HeightOf(cid)
	if err != nil {
		return nil, err
	}
	if away > h {
		return nil, nil
	}
	touched := make(map[string]struct{})
	for i := uint64(0); i < away; i++ {
		blob, err := sm.db.Get(rollbackKey(cid, h-i))
		if err != nil {
			return nil, err
		}
		if blob == nil {
			return nil, nil
		}
		var reverse ZkDeltaPairs
		if err := json.Unmarshal(blob, &reverse); err != nil {
			return nil, err
		}
		for k := range reverse {
			touched[k] = struct{}{}
		}
	}
	delta := make(ZkDeltaPairs, len(touched))
	for locStr := range touched {
		locator, err := ParseLocator(locStr)
		if err != nil {
			return nil, err
		}
		cur, err := sm.GetData(cid, locator)
		if err != nil {
			return nil, err
		}
		if cur.IsZero() {
			delta[locStr] = nil
		} else {
			c := cur
			delta[locStr] = &c
		}
	}
	return delta, nil
}

// ResetContract overwrites the whole tree with a full state and verifies
// that its embedded rollback chain reproduces each expected target root.
func (sm *StateManager) ResetContract(cid string, model *ZkStateModel, height uint64, full *ZkState, expectedTargets []ZkCompressedState) error {
	if err := sm.DeleteContract(cid); err != nil {
		return err
	}
	dataKeys := make([]string, 0, len(full.Data))
	for k := range full.Data {
		dataKeys = append(dataKeys, k)
	}
	sort.Strings(dataKeys)
	for _, locStr := range dataKeys {
		locator, err := ParseLocator(locStr)
		if err != nil {
			return err
		}
		if err := sm.SetData(cid, model, locator, full.Data[locStr]); err != nil {
			return err
		}
	}
	for i, rb := range full.Rollbacks {
		blob, err := json.Marshal(rb)
		if err != nil {
			return err
		}
		if err := sm.db.Update([]kv.WriteOp{kv.Put(rollbackKey(cid, height-uint64(i)), blob)}); err != nil {
			return err
		}
	}
	if err := sm.ensureCompressed(cid, model); err != nil {
		return err
	}
	if err := sm.setHeight(cid, height); err != nil {
		return err
	}

	// Replay the rollback chain on a fork and demand it lands on the
	// recorded roots; a fabricated chain is rejected wholesale.
	if len(full.Rollbacks) > 0 {
		if len(expectedTargets) < len(full.Rollbacks) {
			return ErrFullStateNotValid
		}
		fork := kv.NewMirrorKvStore(sm.db)
		fsm := NewStateManager(fork)
		for i := range full.Rollbacks {
			cs, err := fsm.RollbackContract(cid, model)
			if err != nil {
				return err
			}
			if cs == nil || !cs.State.Equal(expectedTargets[i].State) {
				return ErrFullStateNotValid
			}
		}
	}
	return nil
}

// DeleteContract removes every key under the contract's prefix.
func (sm *StateManager) DeleteContract(cid string) error {
	pairs, err := sm.db.Pairs(kv.StringKey(cid + "_"))
	if err != nil {
		return err
	}
	ops := make([]kv.WriteOp, 0, len(pairs))
	for _, p := range pairs {
		ops = append(ops, kv.Remove(p.Key))
	}
	return sm.db.Update(ops)
}

// GetFullState extracts the contract's full state: all non-default data
// pairs plus the available rollback chain, newest first.
func (sm *StateManager) GetFullState(cid string) (*ZkState, error) {
	h, err := sm.HeightOf(cid)
	if err != nil {
		return nil, err
	}
	dataPrefix := cid + "_s_"
	pairs, err := sm.db.Pairs(kv.StringKey(dataPrefix))
	if err != nil {
		return nil, err
	}
	data := make(ZkDataPairs, len(pairs))
	for _, p := range pairs {
		var s ZkScalar
		if err := json.Unmarshal(p.Blob, &s); err != nil {
			return nil, err
		}
		data[string(p.Key)[len(dataPrefix):]] = s
	}
	var rollbacks []ZkDeltaPairs
	for i := uint64(0); i < h; i++ {
		blob, err := sm.db.Get(rollbackKey(cid, h-i))
		if err != nil {
			return nil, err
		}
		if blob == nil {
			break
		}
		var reverse ZkDeltaPairs
		if err := json.Unmarshal(blob, &reverse); err != nil {
			return nil, err
		}
		rollbacks = append(rollbacks, reverse)
	}
	return &ZkState{Rollbacks: rollbacks, Data: data}, nil
}
