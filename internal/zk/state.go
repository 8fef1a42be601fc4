package zk

// ZkCompressedState is the public commitment to a contract's state: the
// Merkle root of its sparse tree plus the number of non-default slots. The
// size feeds the drafter's delta-count budget.
type ZkCompressedState struct {
	State ZkScalar `json:"state"`
	Size  uint64   `json:"size"`
}

// Equal reports equality of root and size.
func (c ZkCompressedState) Equal(o ZkCompressedState) bool {
	return c.State.Equal(o.State) && c.Size == o.Size
}

// ZkDataPairs maps locator strings (see LocatorString) to the scalars
// stored at them. Only non-default slots appear.
type ZkDataPairs map[string]ZkScalar

// AsDelta converts the pairs into a delta that sets every pair.
func (d ZkDataPairs) AsDelta() ZkDeltaPairs {
	delta := make(ZkDeltaPairs, len(d))
	for k, v := range d {
		val := v
		delta[k] = &val
	}
	return delta
}

// ZkDeltaPairs is an ordered-by-key set of locator edits. A nil value
// resets the slot to its default. Deltas are reversible when the prior
// values are preserved alongside, which is exactly what the per-height
// rollback entries store.
type ZkDeltaPairs map[string]*ZkScalar

// ApplyTo applies the delta to a data-pair set in place.
func (d ZkDeltaPairs) ApplyTo(data ZkDataPairs) {
	for k, v := range d {
		if v == nil || v.IsZero() {
			delete(data, k)
		} else {
			data[k] = *v
		}
	}
}

// ZkState is a full contract state: the current data pairs plus the chain
// of reverse deltas going back from the current height. Rollbacks[0] undoes
// the newest step.
type ZkState struct {
	Rollbacks []ZkDeltaPairs `json:"rollbacks"`
	Data      ZkDataPairs    `json:"data"`
}

// ZkStatePatch ships a contract state across nodes: either a delta against
// the receiver's tree, or a full snapshot with its rollback chain.
type ZkStatePatch struct {
	Delta *ZkDeltaPairs `json:"delta,omitempty"`
	Full  *ZkState      `json:"full,omitempty"`
}
