package chain

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ziesha/core/internal/crypto"
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/pkg/common"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

// EpochSlot maps a timestamp onto the epoch/slot grid. Slots count from
// the genesis timestamp; earlier timestamps clamp to the first slot.
func (c *KvStoreChain) EpochSlot(timestamp uint32) (uint32, uint32) {
	if timestamp <= c.config.GenesisTimestamp {
		return 0, 0
	}
	d := timestamp - c.config.GenesisTimestamp
	epochLen := c.config.SlotDuration * c.config.SlotsPerEpoch
	return d / epochLen, (d % epochLen) / c.config.SlotDuration
}

// EpochRandomness returns the current epoch's randomness beacon; a fresh
// chain reads all zeros.
func (c *KvStoreChain) EpochRandomness() ([32]byte, error) {
	var r [32]byte
	blob, err := c.database.Get(randomnessKey())
	if err != nil {
		return r, err
	}
	if len(blob) == 32 {
		copy(r[:], blob)
	}
	return r, nil
}

// vrfInput is the message a slot claimant evaluates its VRF on.
func vrfInput(randomness [32]byte, epoch, slot, attempt uint32) []byte {
	return common.ConcatBytes(
		randomness[:],
		common.Uint64ToBytes(uint64(epoch)),
		common.Uint64ToBytes(uint64(slot)),
		common.Uint64ToBytes(uint64(attempt)),
	)
}

// StakerRank is one row of the descending staker ranking.
type StakerRank struct {
	Address types.Address
	Amount  types.Amount
}

// GetStakers returns up to limit stakers by descending stake, read off the
// rank index.
func (c *KvStoreChain) GetStakers(limit int) ([]StakerRank, error) {
	pairs, err := c.database.Pairs(kv.StringKey(stakerRankPrefix))
	if err != nil {
		return nil, err
	}
	ranks := make([]StakerRank, 0, len(pairs))
	for i := len(pairs) - 1; i >= 0; i-- {
		rest := strings.TrimPrefix(string(pairs[i].Key), stakerRankPrefix)
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) != 2 {
			return nil, ErrInconsistency
		}
		var amount uint64
		for _, ch := range parts[0] {
			amount = amount*10 + uint64(ch-'0')
		}
		addr, err := types.ParseAddress(parts[1])
		if err != nil {
			return nil, ErrInconsistency
		}
		if amount == 0 {
			continue
		}
		ranks = append(ranks, StakerRank{Address: addr, Amount: types.Amount(amount)})
		if limit > 0 && len(ranks) >= limit {
			break
		}
	}
	return ranks, nil
}

// IsValidator checks a claimant's slot eligibility: a registered VRF key
// that verifies the proof against the epoch randomness and slot, a bounded
// attempt counter, and membership in the epoch's top staker set.
func (c *KvStoreChain) IsValidator(timestamp uint32, addr types.Address, proof *types.ValidatorProof) (bool, error) {
	if proof == nil || proof.Attempt >= c.config.MaxValidatorAttempts {
		return false, nil
	}
	staker, err := c.GetStaker(addr)
	if err != nil {
		return false, err
	}
	if staker == nil {
		return false, nil
	}
	stakers, err := c.GetStakers(c.config.MaxValidators)
	if err != nil {
		return false, err
	}
	elected := false
	for _, s := range stakers {
		if s.Address == addr {
			elected = true
			break
		}
	}
	if !elected {
		return false, nil
	}
	randomness, err := c.EpochRandomness()
	if err != nil {
		return false, err
	}
	epoch, slot := c.EpochSlot(timestamp)
	input := vrfInput(randomness, epoch, slot, proof.Attempt)
	return crypto.VRFVerify(staker.VRFPubKey, input, [32]byte(proof.VRFOutput), proof.VRFProof), nil
}

// ValidatorStatus evaluates the wallet's claim on the slot at the given
// timestamp. With validator checking enabled it returns nil for unproven
// wallets; in test configurations it always produces the VRF evaluation so
// randomness keeps advancing.
func (c *KvStoreChain) ValidatorStatus(timestamp uint32, w *wallet.TxBuilder) (*types.ValidatorProof, error) {
	randomness, err := c.EpochRandomness()
	if err != nil {
		return nil, err
	}
	epoch, slot := c.EpochSlot(timestamp)

	if !c.config.CheckValidator {
		out, vrfProof := w.EvaluateVRF(vrfInput(randomness, epoch, slot, 0))
		return &types.ValidatorProof{Attempt: 0, VRFOutput: types.Hash(out), VRFProof: vrfProof}, nil
	}

	staker, err := c.GetStaker(w.GetAddress())
	if err != nil {
		return nil, err
	}
	if staker == nil || !bytes.Equal(staker.VRFPubKey, w.GetVRFPublicKey()) {
		return nil, nil
	}
	for attempt := uint32(0); attempt < c.config.MaxValidatorAttempts; attempt++ {
		out, vrfProof := w.EvaluateVRF(vrfInput(randomness, epoch, slot, attempt))
		proof := &types.ValidatorProof{Attempt: attempt, VRFOutput: types.Hash(out), VRFProof: vrfProof}
		ok, err := c.IsValidator(timestamp, w.GetAddress(), proof)
		if err != nil {
			return nil, err
		}
		if ok {
			return proof, nil
		}
	}
	return nil, nil
}

// NextReward returns the block reward the next accepted block pays: a
// fixed fraction of what the treasury still holds.
func (c *KvStoreChain) NextReward() (types.Amount, error) {
	treasury, err := c.GetBalance(types.TreasuryAddress, types.ZieshaTokenId)
	if err != nil {
		return 0, err
	}
	return types.Amount(uint64(treasury) / c.config.RewardRatio), nil
}

// payValidatorAndDelegators pays the block reward plus the body's fee sum
// out of the treasury: the configured share to the validator, the rest pro
// rata to its delegators by delegated amount.
func (c *KvStoreChain) payValidatorAndDelegators(validator types.Address, feeSum types.Amount) error {
	nextReward, err := c.NextReward()
	if err != nil {
		return err
	}
	reward, err := nextReward.Add(feeSum)
	if err != nil {
		return ErrInconsistency
	}
	validatorShare := types.Amount(new(big.Int).Div(
		new(big.Int).Mul(
			new(big.Int).SetUint64(uint64(reward)),
			new(big.Int).SetUint64(c.config.ValidatorRewardNum),
		),
		new(big.Int).SetUint64(c.config.ValidatorRewardDen),
	).Uint64())
	remaining := reward - validatorShare

	paid := validatorShare
	validatorBal, err := c.GetBalance(validator, types.ZieshaTokenId)
	if err != nil {
		return err
	}
	validatorBal, err = validatorBal.Add(validatorShare)
	if err != nil {
		return ErrInconsistency
	}
	if err := c.database.Update([]kv.WriteOp{
		putOp(balanceKey(validator, types.ZieshaTokenId), validatorBal),
	}); err != nil {
		return err
	}

	stake, err := c.GetStake(validator)
	if err != nil {
		return err
	}
	if stake > 0 && remaining > 0 {
		pairs, err := c.database.Pairs(delegatorRankPrefix(validator))
		if err != nil {
			return err
		}
		prefix := string(delegatorRankPrefix(validator))
		for _, p := range pairs {
			rest := strings.TrimPrefix(string(p.Key), prefix)
			parts := strings.SplitN(rest, "_", 2)
			if len(parts) != 2 {
				return ErrInconsistency
			}
			var amount uint64
			for _, ch := range parts[0] {
				amount = amount*10 + uint64(ch-'0')
			}
			if amount == 0 {
				continue
			}
			delegator, err := types.ParseAddress(parts[1])
			if err != nil {
				return ErrInconsistency
			}
			share := types.Amount(new(big.Int).Div(
				new(big.Int).Mul(
					new(big.Int).SetUint64(uint64(remaining)),
					new(big.Int).SetUint64(amount),
				),
				new(big.Int).SetUint64(uint64(stake)),
			).Uint64())
			if share == 0 {
				continue
			}
			bal, err := c.GetBalance(delegator, types.ZieshaTokenId)
			if err != nil {
				return err
			}
			bal, err = bal.Add(share)
			if err != nil {
				return ErrInconsistency
			}
			if err := c.database.Update([]kv.WriteOp{
				putOp(balanceKey(delegator, types.ZieshaTokenId), bal),
			}); err != nil {
				return err
			}
			paid, err = paid.Add(share)
			if err != nil {
				return ErrInconsistency
			}
		}
	}

	treasury, err := c.GetBalance(types.TreasuryAddress, types.ZieshaTokenId)
	if err != nil {
		return err
	}
	if treasury < paid {
		return ErrInconsistency
	}
	treasury -= paid
	return c.database.Update([]kv.WriteOp{
		putOp(balanceKey(types.TreasuryAddress, types.ZieshaTokenId), treasury),
	})
}
