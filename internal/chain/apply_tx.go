package chain

import (
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/pkg/types"
)

// TxSideEffect reports what a transaction did beyond balances: a contract
// compressed-state change the drafter and rollback machinery must track.
type TxSideEffect struct {
	ContractId  types.ContractId
	StateChange *ZkCompressedStateChange
}

// ApplyTx validates and applies one transaction. It runs under an isolated
// overlay: a failing transaction leaves no residue. Treasury transactions
// (nil source) are only allowed while applying the genesis block.
func (c *KvStoreChain) ApplyTx(tx *types.Transaction, allowTreasury bool) (TxSideEffect, error) {
	var sideEffect TxSideEffect
	ops, err := c.isolated(func(fork *KvStoreChain) error {
		var err error
		sideEffect, err = fork.applyTx(tx, allowTreasury)
		return err
	})
	if err != nil {
		return TxSideEffect{}, err
	}
	if err := c.database.Update(ops); err != nil {
		return TxSideEffect{}, err
	}
	return sideEffect, nil
}

func (c *KvStoreChain) applyTx(tx *types.Transaction, allowTreasury bool) (TxSideEffect, error) {
	var sideEffect TxSideEffect

	if tx.Src == nil && !allowTreasury {
		return sideEffect, ErrIllegalTreasuryAccess
	}
	if tx.Fee.TokenId != types.ZieshaTokenId {
		return sideEffect, ErrOnlyZieshaFeesAccepted
	}
	if len(tx.Memo) > c.config.MaxMemoLength {
		return sideEffect, ErrMemoTooLong
	}

	txSrc := tx.SrcOrTreasury()

	acc, err := c.GetAccount(txSrc)
	if err != nil {
		return sideEffect, err
	}
	if tx.Nonce != acc.Nonce+1 {
		return sideEffect, ErrInvalidTransactionNonce
	}
	acc.Nonce++

	feeBal, err := c.GetBalance(txSrc, tx.Fee.TokenId)
	if err != nil {
		return sideEffect, err
	}
	if feeBal < tx.Fee.Amount {
		return sideEffect, ErrBalanceInsufficient
	}
	feeBal -= tx.Fee.Amount

	if err := c.database.Update([]kv.WriteOp{
		putOp(accountKey(txSrc), acc),
		putOp(balanceKey(txSrc, tx.Fee.TokenId), feeBal),
	}); err != nil {
		return sideEffect, err
	}

	switch {
	case tx.Data.RegularSend != nil:
		err = c.applyRegularSend(txSrc, tx.Data.RegularSend)
	case tx.Data.CreateToken != nil:
		err = c.applyCreateToken(txSrc, tx, tx.Data.CreateToken)
	case tx.Data.UpdateToken != nil:
		err = c.applyUpdateToken(txSrc, tx.Data.UpdateToken)
	case tx.Data.Delegate != nil:
		err = c.applyDelegate(txSrc, tx.Data.Delegate)
	case tx.Data.InitiateUndelegate != nil:
		err = c.applyInitiateUndelegate(txSrc, tx.Data.InitiateUndelegate)
	case tx.Data.ClaimUndelegate != nil:
		err = c.applyClaimUndelegate(txSrc, tx.Data.ClaimUndelegate)
	case tx.Data.UpdateStaker != nil:
		err = c.database.Update([]kv.WriteOp{
			putOp(stakerKey(txSrc), types.Staker{VRFPubKey: tx.Data.UpdateStaker.VRFPubKey}),
		})
	case tx.Data.CreateContract != nil:
		sideEffect, err = c.applyCreateContract(tx, tx.Data.CreateContract)
	case tx.Data.UpdateContract != nil:
		sideEffect, err = c.applyUpdateContract(txSrc, tx.Data.UpdateContract)
	default:
		err = ErrInconsistency
	}
	if err != nil {
		return TxSideEffect{}, err
	}

	// Fees accrue to the treasury; the block applier redistributes them.
	if tx.Src != nil {
		treasuryBal, err := c.GetBalance(types.TreasuryAddress, tx.Fee.TokenId)
		if err != nil {
			return sideEffect, err
		}
		treasuryBal, err = treasuryBal.Add(tx.Fee.Amount)
		if err != nil {
			return sideEffect, ErrInconsistency
		}
		if err := c.database.Update([]kv.WriteOp{
			putOp(balanceKey(types.TreasuryAddress, tx.Fee.TokenId), treasuryBal),
		}); err != nil {
			return sideEffect, err
		}
	}

	return sideEffect, nil
}

func (c *KvStoreChain) applyRegularSend(txSrc types.Address, data *types.RegularSendData) error {
	for _, entry := range data.Entries {
		if entry.Dst == txSrc {
			continue
		}
		srcBal, err := c.GetBalance(txSrc, entry.Amount.TokenId)
		if err != nil {
			return err
		}
		if srcBal < entry.Amount.Amount {
			return ErrBalanceInsufficient
		}
		srcBal -= entry.Amount.Amount
		if err := c.database.Update([]kv.WriteOp{
			putOp(balanceKey(txSrc, entry.Amount.TokenId), srcBal),
		}); err != nil {
			return err
		}
		dstBal, err := c.GetBalance(entry.Dst, entry.Amount.TokenId)
		if err != nil {
			return err
		}
		dstBal, err = dstBal.Add(entry.Amount.Amount)
		if err != nil {
			return ErrInconsistency
		}
		if err := c.database.Update([]kv.WriteOp{
			putOp(balanceKey(entry.Dst, entry.Amount.TokenId), dstBal),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *KvStoreChain) applyCreateToken(txSrc types.Address, tx *types.Transaction, data *types.CreateTokenData) error {
	tokenId := types.NewTokenId(tx)
	if tokenId == c.config.ZieshaGenesisId {
		tokenId = types.ZieshaTokenId
	}
	existing, err := c.GetToken(tokenId)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTokenAlreadyExists
	}
	if !data.Token.Validate() {
		return ErrTokenBadNameSymbol
	}
	return c.database.Update([]kv.WriteOp{
		putOp(balanceKey(txSrc, tokenId), data.Token.Supply),
		putOp(tokenKey(tokenId), data.Token),
	})
}

func (c *KvStoreChain) applyUpdateToken(txSrc types.Address, data *types.UpdateTokenData) error {
	token, err := c.GetToken(data.TokenId)
	if err != nil {
		return err
	}
	if token == nil {
		return ErrTokenNotFound
	}
	if token.Minter == nil {
		return ErrTokenNotUpdatable
	}
	if *token.Minter != txSrc {
		return ErrTokenUpdatePermissionDenied
	}
	switch {
	case data.Update.Mint != nil:
		amount := data.Update.Mint.Amount
		bal, err := c.GetBalance(txSrc, data.TokenId)
		if err != nil {
			return err
		}
		newBal, err := bal.Add(amount)
		if err != nil {
			return ErrTokenSupplyOverflow
		}
		newSupply, err := token.Supply.Add(amount)
		if err != nil {
			return ErrTokenSupplyOverflow
		}
		token.Supply = newSupply
		return c.database.Update([]kv.WriteOp{
			putOp(tokenKey(data.TokenId), token),
			putOp(balanceKey(txSrc, data.TokenId), newBal),
		})
	case data.Update.ChangeMinter != nil:
		minter := data.Update.ChangeMinter.Minter
		token.Minter = &minter
		return c.database.Update([]kv.WriteOp{
			putOp(tokenKey(data.TokenId), token),
		})
	default:
		return ErrInconsistency
	}
}

func (c *KvStoreChain) applyDelegate(txSrc types.Address, data *types.DelegateData) error {
	srcBal, err := c.GetBalance(txSrc, types.ZieshaTokenId)
	if err != nil {
		return err
	}
	if !data.Reverse {
		if srcBal < data.Amount {
			return ErrBalanceInsufficient
		}
		srcBal -= data.Amount
	} else {
		srcBal, err = srcBal.Add(data.Amount)
		if err != nil {
			return ErrInconsistency
		}
	}
	if err := c.database.Update([]kv.WriteOp{
		putOp(balanceKey(txSrc, types.ZieshaTokenId), srcBal),
	}); err != nil {
		return err
	}

	delegate, err := c.GetDelegate(txSrc, data.To)
	if err != nil {
		return err
	}
	oldDelegate := delegate.Amount
	if !data.Reverse {
		delegate.Amount, err = delegate.Amount.Add(data.Amount)
		if err != nil {
			return ErrInconsistency
		}
	} else {
		if delegate.Amount < data.Amount {
			return ErrBalanceInsufficient
		}
		delegate.Amount -= data.Amount
	}

	oldStake, err := c.GetStake(data.To)
	if err != nil {
		return err
	}
	var newStake types.Amount
	if !data.Reverse {
		newStake, err = oldStake.Add(data.Amount)
		if err != nil {
			return ErrInconsistency
		}
	} else {
		if oldStake < data.Amount {
			return ErrInconsistency
		}
		newStake = oldStake - data.Amount
	}

	return c.database.Update([]kv.WriteOp{
		putOp(delegateKey(txSrc, data.To), delegate),
		kv.Remove(delegateeRankKey(txSrc, oldDelegate, data.To)),
		putOp(delegateeRankKey(txSrc, delegate.Amount, data.To), struct{}{}),
		kv.Remove(delegatorRankKey(data.To, oldDelegate, txSrc)),
		putOp(delegatorRankKey(data.To, delegate.Amount, txSrc), struct{}{}),
		kv.Remove(stakerRankKey(oldStake, data.To)),
		putOp(stakerRankKey(newStake, data.To), struct{}{}),
		putOp(stakeKey(data.To), newStake),
	})
}

func (c *KvStoreChain) applyInitiateUndelegate(txSrc types.Address, data *types.InitiateUndelegateData) error {
	height, err := c.GetHeight()
	if err != nil {
		return err
	}
	existing, err := c.GetUndelegation(txSrc, data.Id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrInconsistency
	}
	undelegation := types.Undelegation{
		Amount:    data.Amount,
		UnlocksOn: height + c.config.UndelegationPeriod,
	}

	delegate, err := c.GetDelegate(txSrc, data.From)
	if err != nil {
		return err
	}
	oldDelegate := delegate.Amount
	if delegate.Amount < data.Amount {
		return ErrBalanceInsufficient
	}
	delegate.Amount -= data.Amount

	oldStake, err := c.GetStake(data.From)
	if err != nil {
		return err
	}
	if oldStake < data.Amount {
		return ErrInconsistency
	}
	newStake := oldStake - data.Amount

	return c.database.Update([]kv.WriteOp{
		putOp(delegateKey(txSrc, data.From), delegate),
		putOp(undelegationKey(txSrc, data.Id), undelegation),
		kv.Remove(delegateeRankKey(txSrc, oldDelegate, data.From)),
		putOp(delegateeRankKey(txSrc, delegate.Amount, data.From), struct{}{}),
		kv.Remove(delegatorRankKey(data.From, oldDelegate, txSrc)),
		putOp(delegatorRankKey(data.From, delegate.Amount, txSrc), struct{}{}),
		kv.Remove(stakerRankKey(oldStake, data.From)),
		putOp(stakerRankKey(newStake, data.From), struct{}{}),
		putOp(stakeKey(data.From), newStake),
	})
}

func (c *KvStoreChain) applyClaimUndelegate(txSrc types.Address, data *types.ClaimUndelegateData) error {
	undelegation, err := c.GetUndelegation(txSrc, data.Id)
	if err != nil {
		return err
	}
	if undelegation == nil {
		return ErrUndelegationNotFound
	}
	height, err := c.GetHeight()
	if err != nil {
		return err
	}
	if height < undelegation.UnlocksOn {
		return ErrUndelegationLocked
	}
	srcBal, err := c.GetBalance(txSrc, types.ZieshaTokenId)
	if err != nil {
		return err
	}
	srcBal, err = srcBal.Add(undelegation.Amount)
	if err != nil {
		return ErrInconsistency
	}
	return c.database.Update([]kv.WriteOp{
		kv.Remove(undelegationKey(txSrc, data.Id)),
		putOp(balanceKey(txSrc, types.ZieshaTokenId), srcBal),
	})
}

func (c *KvStoreChain) applyCreateContract(tx *types.Transaction, data *types.CreateContractData) (TxSideEffect, error) {
	if !data.Contract.StateModel.IsValid() {
		return TxSideEffect{}, ErrInvalidStateModel
	}
	cid := types.NewContractId(tx)
	account := types.ContractAccount{
		CompressedState: data.Contract.InitialState,
		Height:          1,
	}
	if err := c.database.Update([]kv.WriteOp{
		putOp(contractKey(cid), data.Contract),
		putOp(contractAccountKey(cid), account),
		putOp(compressedStateAtKey(cid, 1), data.Contract.InitialState),
	}); err != nil {
		return TxSideEffect{}, err
	}
	empty := data.Contract.StateModel.EmptyCompressed()
	return TxSideEffect{
		ContractId: cid,
		StateChange: &ZkCompressedStateChange{
			PrevHeight: 0,
			PrevState:  empty,
			State:      data.Contract.InitialState,
		},
	}, nil
}
