package chain

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
)

// Rollback undoes the newest block by replaying its stored inverse
// write-set. Contract trees roll back through their own delta logs; a
// contract whose delta is gone is marked outdated instead of corrupted.
func (c *KvStoreChain) Rollback() error {
	ops, err := c.isolated(func(fork *KvStoreChain) error {
		return fork.rollback()
	})
	if err != nil {
		return err
	}
	return c.database.Update(ops)
}

func (c *KvStoreChain) rollback() error {
	height, err := c.GetHeight()
	if err != nil {
		return err
	}
	if height == 0 {
		return ErrNoBlocksToRollback
	}

	var rollbackOps []kv.WriteOp
	ok, err := c.getJSON(rollbackKey(height-1), &rollbackOps)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInconsistency
	}

	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		return err
	}
	changed, err := c.GetChangedStates()
	if err != nil {
		return err
	}

	sm := zk.NewStateManager(c.database)
	for _, cs := range changed {
		cid := cs.ContractId
		if cs.Change.PrevHeight == 0 {
			if err := sm.DeleteContract(cid.String()); err != nil {
				return err
			}
			outdated = removeContract(outdated, cid)
			continue
		}

		if !containsContract(outdated, cid) {
			contract, err := c.GetContract(cid)
			if err != nil {
				return err
			}
			treeOps, err := c.isolated(func(fork *KvStoreChain) error {
				fsm := zk.NewStateManager(fork.database)
				result, err := fsm.RollbackContract(cid.String(), &contract.StateModel)
				if err != nil {
					return err
				}
				if result == nil || !result.State.Equal(cs.Change.PrevState.State) {
					return zk.ErrFullStateNotValid
				}
				return nil
			})
			switch {
			case err == nil:
				if err := c.database.Update(treeOps); err != nil {
					return err
				}
			case errors.Is(err, zk.ErrFullStateNotValid):
				// The local delta log cannot reproduce the previous
				// state; block production stops until a patch arrives.
				outdated = append(outdated, cid)
				logrus.WithField("contract", cid.String()).Warn("contract marked outdated on rollback")
			default:
				return err
			}
		} else {
			localRoot, err := sm.Root(cid.String())
			if err != nil {
				return err
			}
			localHeight, err := sm.HeightOf(cid.String())
			if err != nil {
				return err
			}
			if localRoot.State.Equal(cs.Change.PrevState.State) && localHeight == cs.Change.PrevHeight {
				outdated = removeContract(outdated, cid)
			}
		}
	}

	if err := c.database.Update(rollbackOps); err != nil {
		return err
	}
	ops := []kv.WriteOp{kv.Remove(rollbackKey(height - 1))}
	if len(outdated) == 0 {
		ops = append(ops, kv.Remove(outdatedKey()))
	} else {
		ops = append(ops, putOp(outdatedKey(), outdated))
	}
	return c.database.Update(ops)
}

func removeContract(list []types.ContractId, cid types.ContractId) []types.ContractId {
	out := list[:0]
	for _, c := range list {
		if c != cid {
			out = append(out, c)
		}
	}
	return out
}

// UpdateStates reconciles every outdated contract from the given patch.
// Deltas replay against the local tree; full snapshots replace it after
// their rollback chains check out against the recorded compressed states.
func (c *KvStoreChain) UpdateStates(patch *ZkBlockchainPatch) error {
	ops, err := c.isolated(func(fork *KvStoreChain) error {
		return fork.updateStates(patch)
	})
	if err != nil {
		return err
	}
	return c.database.Update(ops)
}

func (c *KvStoreChain) updateStates(patch *ZkBlockchainPatch) error {
	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		return err
	}
	sm := zk.NewStateManager(c.database)

	for _, cid := range append([]types.ContractId{}, outdated...) {
		account, err := c.GetContractAccount(cid)
		if err != nil {
			return err
		}
		contract, err := c.GetContract(cid)
		if err != nil {
			return err
		}
		entry, ok := patch.Patches[cid]
		if !ok {
			return ErrFullStateNotFound
		}
		switch {
		case entry.Delta != nil:
			if err := sm.UpdateContract(cid.String(), &contract.StateModel, *entry.Delta, account.Height); err != nil {
				return err
			}
		case entry.Full != nil:
			expected := make([]zk.ZkCompressedState, len(entry.Full.Rollbacks))
			for i := range entry.Full.Rollbacks {
				expected[i], err = c.GetCompressedStateAt(cid, account.Height-1-uint64(i))
				if err != nil {
					return err
				}
			}
			if err := sm.ResetContract(cid.String(), &contract.StateModel, account.Height, entry.Full, expected); err != nil {
				return err
			}
		default:
			return ErrFullStateNotFound
		}

		root, err := sm.Root(cid.String())
		if err != nil {
			return err
		}
		if !root.State.Equal(account.CompressedState.State) {
			return ErrFullStateNotValid
		}
		outdated = removeContract(outdated, cid)
	}

	if len(outdated) == 0 {
		return c.database.Update([]kv.WriteOp{kv.Remove(outdatedKey())})
	}
	return c.database.Update([]kv.WriteOp{putOp(outdatedKey(), outdated)})
}

// GetOutdatedHeights maps every outdated contract to the local height of
// its tree, the request peers answer with GenerateStatePatch.
func (c *KvStoreChain) GetOutdatedHeights() (map[types.ContractId]uint64, error) {
	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		return nil, err
	}
	sm := zk.NewStateManager(c.database)
	heights := make(map[types.ContractId]uint64, len(outdated))
	for _, cid := range outdated {
		h, err := sm.HeightOf(cid.String())
		if err != nil {
			return nil, err
		}
		heights[cid] = h
	}
	return heights, nil
}

// GenerateStatePatch answers a peer's outdated-heights request against the
// current tip: a delta when the local log still covers the distance, a
// full snapshot otherwise.
func (c *KvStoreChain) GenerateStatePatch(heights map[types.ContractId]uint64, to types.Hash) (*ZkBlockchainPatch, error) {
	tip, err := c.GetTip()
	if err != nil {
		return nil, err
	}
	if tip.Hash() != to {
		return nil, ErrStatesUnavailable
	}

	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		return nil, err
	}
	sm := zk.NewStateManager(c.database)
	patch := &ZkBlockchainPatch{Patches: make(map[types.ContractId]zk.ZkStatePatch)}
	for cid, asked := range heights {
		if containsContract(outdated, cid) {
			continue
		}
		localHeight, err := sm.HeightOf(cid.String())
		if err != nil {
			return nil, err
		}
		if asked > localHeight {
			return nil, ErrStatesUnavailable
		}
		away := localHeight - asked
		delta, err := sm.DeltaOf(cid.String(), away)
		if err != nil {
			return nil, err
		}
		if delta != nil {
			d := delta
			patch.Patches[cid] = zk.ZkStatePatch{Delta: &d}
		} else {
			full, err := sm.GetFullState(cid.String())
			if err != nil {
				return nil, err
			}
			patch.Patches[cid] = zk.ZkStatePatch{Full: full}
		}
	}
	return patch, nil
}
