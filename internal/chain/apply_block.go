package chain

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/common"
	"github.com/ziesha/core/pkg/types"
)

// hashPreimage digests concatenated byte strings with the chain hash.
func hashPreimage(parts ...[]byte) [32]byte {
	return sha3.Sum256(common.ConcatBytes(parts...))
}

// ApplyBlock validates and commits one block. Everything runs under an
// isolated overlay; any failure discards all of the block's writes. The
// overlay's inverse write-set is persisted as the block's rollback entry.
func (c *KvStoreChain) ApplyBlock(block *types.Block) error {
	ops, err := c.isolated(func(fork *KvStoreChain) error {
		return fork.applyBlock(block)
	})
	if err != nil {
		return err
	}
	return c.database.Update(ops)
}

func (c *KvStoreChain) applyBlock(block *types.Block) error {
	curHeight, err := c.GetHeight()
	if err != nil {
		return err
	}
	curPow, err := c.GetPower()
	if err != nil {
		return err
	}

	if limit := c.config.TestnetHeightLimit; limit != nil && block.Header.Number >= *limit {
		return ErrTestnetHeightLimitReached
	}

	isGenesis := block.Header.Number == 0

	if curHeight > 0 {
		if block.MerkleRoot() != block.Header.BlockRoot {
			return ErrInvalidMerkleRoot
		}
		if err := c.WillExtend(curHeight, []types.Header{block.Header}); err != nil {
			return err
		}
	}

	if !isGenesis {
		if c.config.CheckValidator {
			proof := block.Header.ProofOfStake.Proof
			if proof == nil {
				return ErrValidatorProofNotGiven
			}
			curPow += proof.Power()
			ok, err := c.IsValidator(
				block.Header.ProofOfStake.Timestamp,
				block.Header.ProofOfStake.Validator,
				proof,
			)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUnelectedValidator
			}
		} else {
			curPow++
		}

		// The fee sum is only meaningful because non-Ziesha fees are
		// rejected at the transaction level.
		feeSum := types.Amount(0)
		for i := range block.Body {
			feeSum, err = feeSum.Add(block.Body[i].Fee.Amount)
			if err != nil {
				return ErrInconsistency
			}
		}
		if err := c.payValidatorAndDelegators(block.Header.ProofOfStake.Validator, feeSum); err != nil {
			return err
		}
	}

	if !isGenesis {
		if !common.ParallelAll(len(block.Body), func(i int) bool {
			return block.Body[i].VerifySignature()
		}) {
			return ErrSignatureError
		}
	}

	var (
		numMpnFunctionCalls int
		numMpnDeposits      int
		numMpnWithdraws     int
		bodySize            int
		changeOrder         []types.ContractId
		changes             = make(map[types.ContractId]*ZkCompressedStateChange)
	)

	for i := range block.Body {
		tx := &block.Body[i]
		if uc := tx.Data.UpdateContract; uc != nil && uc.ContractId == c.config.Mpn.MpnContractId {
			for j := range uc.Updates {
				switch {
				case uc.Updates[j].Deposit != nil:
					numMpnDeposits++
				case uc.Updates[j].Withdraw != nil:
					numMpnWithdraws++
				case uc.Updates[j].FunctionCall != nil:
					numMpnFunctionCalls++
				}
			}
		}
		bodySize += tx.Size()
		eff, err := c.ApplyTx(tx, isGenesis)
		if err != nil {
			return err
		}
		if eff.StateChange != nil {
			if existing, ok := changes[eff.ContractId]; ok {
				existing.State = eff.StateChange.State
			} else {
				change := *eff.StateChange
				changes[eff.ContractId] = &change
				changeOrder = append(changeOrder, eff.ContractId)
			}
		}
	}

	if !isGenesis && curHeight >= c.config.MpnGraceHeight {
		if numMpnFunctionCalls < c.config.Mpn.MpnNumUpdateBatches ||
			numMpnDeposits < c.config.Mpn.MpnNumDepositBatches ||
			numMpnWithdraws < c.config.Mpn.MpnNumWithdrawBatches {
			return ErrInsufficientMpnUpdates
		}
	}

	if bodySize > c.config.MaxBlockSize {
		return ErrBlockTooBig
	}

	if curHeight > 0 {
		tip, err := c.GetTip()
		if err != nil {
			return err
		}
		tipEpoch, _ := c.EpochSlot(tip.ProofOfStake.Timestamp)
		blockEpoch, _ := c.EpochSlot(block.Header.ProofOfStake.Timestamp)
		if blockEpoch > tipEpoch {
			if proof := block.Header.ProofOfStake.Proof; proof != nil {
				if proof.Attempt != 0 {
					return ErrRandomnessChangeNotPermitted
				}
				// New randomness = H(H(tip) | VRF_out)
				tipHash := tip.Hash()
				newRandomness := hashPreimage(tipHash[:], proof.VRFOutput[:])
				if err := c.database.Update([]kv.WriteOp{
					kv.Put(randomnessKey(), newRandomness[:]),
				}); err != nil {
					return err
				}
			}
		}
	}

	// Contracts whose local tree no longer mirrors the on-chain compressed
	// state block drafting until a patch arrives.
	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		return err
	}
	sm := zk.NewStateManager(c.database)
	added := false
	for _, cid := range changeOrder {
		change := changes[cid]
		local, err := sm.Root(cid.String())
		if err != nil {
			return err
		}
		if !local.Equal(change.State) && !containsContract(outdated, cid) {
			outdated = append(outdated, cid)
			added = true
			logrus.WithField("contract", cid.String()).Debug("contract state outdated")
		}
	}
	if added {
		if err := c.database.Update([]kv.WriteOp{putOp(outdatedKey(), outdated)}); err != nil {
			return err
		}
	}

	changeList := make([]ContractStateChange, 0, len(changeOrder))
	for _, cid := range changeOrder {
		changeList = append(changeList, ContractStateChange{ContractId: cid, Change: *changes[cid]})
	}

	ops := []kv.WriteOp{
		putOp(powerKey(curHeight+1), curPow),
		putOp(heightKey(), curHeight+1),
		putOp(headerKey(block.Header.Number), block.Header),
		putOp(blockKey(block.Header.Number), block),
		putOp(merkleKey(block.Header.Number), bodyLeaves(block)),
	}
	if len(changeList) > 0 {
		ops = append(ops, putOp(contractUpdatesKey(block.Header.Number), changeList))
	}
	if err := c.database.Update(ops); err != nil {
		return err
	}

	rollbackOps, err := c.database.Rollback()
	if err != nil {
		return err
	}
	return c.database.Update([]kv.WriteOp{
		putOp(rollbackKey(block.Header.Number), rollbackOps),
	})
}

// bodyLeaves returns the body's Merkle leaves, the persisted form of the
// block's Merkle tree.
func bodyLeaves(block *types.Block) []types.Hash {
	leaves := make([]types.Hash, len(block.Body))
	for i := range block.Body {
		leaves[i] = block.Body[i].Hash()
	}
	return leaves
}

func containsContract(list []types.ContractId, cid types.ContractId) bool {
	for _, c := range list {
		if c == cid {
			return true
		}
	}
	return false
}
