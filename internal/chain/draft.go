package chain

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

// ZkBlockchainPatch carries the per-contract state patches accompanying a
// drafted block, keyed by contract id.
type ZkBlockchainPatch struct {
	Patches map[types.ContractId]zk.ZkStatePatch
}

// BlockAndPatch is a drafted block together with the state patch that
// makes its contract updates locally reconcilable.
type BlockAndPatch struct {
	Block types.Block
	Patch ZkBlockchainPatch
}

// isMpnTx reports whether a transaction updates the MPN contract.
func (c *KvStoreChain) isMpnTx(tx *types.Transaction) bool {
	return tx.Data.UpdateContract != nil &&
		tx.Data.UpdateContract.ContractId == c.config.Mpn.MpnContractId
}

// SelectTransactions ranks and, when check is set, replays mempool
// transactions for inclusion: MPN updates first, then fee density, then
// oldest nonce; acceptance is bounded by the delta-count and block-size
// budgets.
func (c *KvStoreChain) SelectTransactions(validator types.Address, txs []types.TransactionAndDelta, check bool) ([]types.TransactionAndDelta, error) {
	sorted := make([]types.TransactionAndDelta, 0, len(txs))
	for _, t := range txs {
		if t.Tx.Fee.TokenId == types.ZieshaTokenId {
			sorted = append(sorted, t)
		}
	}
	// WARN: the composite key is only meaningful with Ziesha-only fees.
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		aMpn, bMpn := c.isMpnTx(&a.Tx), c.isMpnTx(&b.Tx)
		if aMpn != bMpn {
			return aMpn
		}
		aDensity := uint64(a.Tx.Fee.Amount) / uint64(a.Tx.Size())
		bDensity := uint64(b.Tx.Fee.Amount) / uint64(b.Tx.Size())
		if aDensity != bDensity {
			return aDensity > bDensity
		}
		return a.Tx.Nonce < b.Tx.Nonce
	})
	if !check {
		return sorted, nil
	}

	var result []types.TransactionAndDelta
	_, err := c.isolated(func(fork *KvStoreChain) error {
		// A zero fee-sum payout keeps the replay's account state aligned
		// with what the real block application will see.
		if err := fork.payValidatorAndDelegators(validator, 0); err != nil {
			return err
		}
		blockSize := 0
		deltaCount := int64(0)
		for i := range sorted {
			tx := &sorted[i]
			eff, err := fork.ApplyTx(&tx.Tx, false)
			if err != nil {
				if c.isMpnTx(&tx.Tx) {
					logrus.WithError(err).Error("MPN transaction rejected")
				}
				continue
			}
			deltaDiff := int64(0)
			if eff.StateChange != nil {
				deltaDiff = int64(eff.StateChange.State.Size) - int64(eff.StateChange.PrevState.Size)
			}
			blockDiff := tx.Tx.Size()
			if deltaCount+deltaDiff <= int64(c.config.MaxDeltaCount) &&
				blockSize+blockDiff <= c.config.MaxBlockSize &&
				tx.Tx.VerifySignature() {
				deltaCount += deltaDiff
				blockSize += blockDiff
				result = append(result, *tx)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DraftBlock assembles a candidate block from the mempool and try-applies
// it on a fork. It returns nil when the wallet is not a proven validator
// for the slot, or when the chain does not yet carry enough MPN work.
func (c *KvStoreChain) DraftBlock(timestamp uint32, mempool []types.TransactionAndDelta, w *wallet.TxBuilder, check bool) (*BlockAndPatch, error) {
	height, err := c.GetHeight()
	if err != nil {
		return nil, err
	}

	validatorStatus, err := c.ValidatorStatus(timestamp, w)
	if err != nil {
		return nil, err
	}
	if c.config.CheckValidator && validatorStatus == nil {
		return nil, nil
	}

	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		return nil, err
	}
	if len(outdated) > 0 {
		return nil, ErrStatesOutdated
	}

	lastHeader, err := c.GetHeader(height - 1)
	if err != nil {
		return nil, err
	}

	selected, err := c.SelectTransactions(w.GetAddress(), mempool, check)
	if err != nil {
		return nil, err
	}

	patch := ZkBlockchainPatch{Patches: make(map[types.ContractId]zk.ZkStatePatch)}
	body := make([]types.Transaction, 0, len(selected))
	for i := range selected {
		txd := &selected[i]
		var cid *types.ContractId
		switch {
		case txd.Tx.Data.CreateContract != nil:
			id := types.NewContractId(&txd.Tx)
			cid = &id
		case txd.Tx.Data.UpdateContract != nil:
			id := txd.Tx.Data.UpdateContract.ContractId
			cid = &id
		}
		if cid != nil {
			if txd.StateDelta == nil {
				return nil, ErrFullStateNotFound
			}
			patch.Patches[*cid] = zk.ZkStatePatch{Delta: txd.StateDelta}
		}
		body = append(body, txd.Tx)
	}

	blk := types.Block{
		Header: types.Header{
			ParentHash: lastHeader.Hash(),
			Number:     height,
			ProofOfStake: types.ProofOfStake{
				Timestamp: timestamp,
				Validator: w.GetAddress(),
				Proof:     validatorStatus,
			},
		},
		Body: body,
	}
	blk.Header.BlockRoot = blk.MerkleRoot()

	_, err = c.isolated(func(fork *KvStoreChain) error {
		if err := fork.ApplyBlock(&blk); err != nil {
			return err
		}
		return fork.UpdateStates(&patch)
	})
	if err == ErrInsufficientMpnUpdates {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &BlockAndPatch{Block: blk, Patch: patch}, nil
}
