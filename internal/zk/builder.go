package zk

import (
	"github.com/ziesha/core/internal/kv"
)

// builderContractId is the prefix the builder's scratch tree lives under.
const builderContractId = "payload"

// ZkStateBuilder assembles a throwaway state tree in memory. The update
// pipeline uses it to compute the aux-data commitments of deposit and
// withdraw payload lists and function-call fees.
type ZkStateBuilder struct {
	model   ZkStateModel
	manager *StateManager
}

// NewZkStateBuilder creates a builder for the given model.
func NewZkStateBuilder(model ZkStateModel) (*ZkStateBuilder, error) {
	if !model.IsValid() {
		return nil, ErrInvalidStateModel
	}
	return &ZkStateBuilder{
		model:   model,
		manager: NewStateManager(kv.NewRamKvStore()),
	}, nil
}

// BatchSet applies a delta to the scratch tree.
func (b *ZkStateBuilder) BatchSet(delta ZkDeltaPairs) error {
	for _, locStr := range sortedDeltaKeys(delta) {
		locator, err := ParseLocator(locStr)
		if err != nil {
			return err
		}
		val := ZkScalarFromUint64(0)
		if v := delta[locStr]; v != nil {
			val = *v
		}
		if err := b.manager.SetData(builderContractId, &b.model, locator, val); err != nil {
			return err
		}
	}
	return nil
}

// Compress returns the compressed state of the assembled tree.
func (b *ZkStateBuilder) Compress() (ZkCompressedState, error) {
	cs, err := b.manager.Root(builderContractId)
	if err != nil {
		return ZkCompressedState{}, err
	}
	// An untouched tree has no compressed record yet; its root is the
	// model's default.
	if cs.State.IsZero() && cs.Size == 0 {
		return b.model.EmptyCompressed(), nil
	}
	return cs, nil
}
