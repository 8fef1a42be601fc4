package chain

import (
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/pkg/types"
)

// applyDeposit moves funds from an account into a contract. Each deposit
// carries its own signature and a strictly increasing per-(src, contract)
// nonce, so batches cannot be replayed.
func (c *KvStoreChain) applyDeposit(deposit *types.ContractDeposit) error {
	if !deposit.VerifySignature() {
		return ErrInvalidContractPaymentSignature
	}

	depositNonce, err := c.GetDepositNonce(deposit.Src, deposit.ContractId)
	if err != nil {
		return err
	}
	if deposit.Nonce != depositNonce+1 {
		return ErrInvalidTransactionNonce
	}
	depositNonce++
	ops := []kv.WriteOp{putOp(depositNonceKey(deposit.Src, deposit.ContractId), depositNonce)}

	// The account record mirrors the MPN contract's deposit nonce.
	if deposit.ContractId == c.config.Mpn.MpnContractId {
		acc, err := c.GetAccount(deposit.Src)
		if err != nil {
			return err
		}
		acc.MpnDepositNonce = depositNonce
		ops = append(ops, putOp(accountKey(deposit.Src), acc))
	}
	if err := c.database.Update(ops); err != nil {
		return err
	}

	if deposit.Amount.TokenId == deposit.Fee.TokenId {
		total, err := deposit.Amount.Amount.Add(deposit.Fee.Amount)
		if err != nil {
			return ErrInconsistency
		}
		bal, err := c.GetBalance(deposit.Src, deposit.Amount.TokenId)
		if err != nil {
			return err
		}
		if bal < total {
			return ErrBalanceInsufficient
		}
		bal -= total
		if err := c.database.Update([]kv.WriteOp{
			putOp(balanceKey(deposit.Src, deposit.Amount.TokenId), bal),
		}); err != nil {
			return err
		}
	} else {
		bal, err := c.GetBalance(deposit.Src, deposit.Amount.TokenId)
		if err != nil {
			return err
		}
		feeBal, err := c.GetBalance(deposit.Src, deposit.Fee.TokenId)
		if err != nil {
			return err
		}
		if bal < deposit.Amount.Amount || feeBal < deposit.Fee.Amount {
			return ErrBalanceInsufficient
		}
		bal -= deposit.Amount.Amount
		feeBal -= deposit.Fee.Amount
		if err := c.database.Update([]kv.WriteOp{
			putOp(balanceKey(deposit.Src, deposit.Amount.TokenId), bal),
			putOp(balanceKey(deposit.Src, deposit.Fee.TokenId), feeBal),
		}); err != nil {
			return err
		}
	}

	contractBal, err := c.GetContractBalance(deposit.ContractId, deposit.Amount.TokenId)
	if err != nil {
		return err
	}
	contractBal, err = contractBal.Add(deposit.Amount.Amount)
	if err != nil {
		return ErrInconsistency
	}
	return c.database.Update([]kv.WriteOp{
		putOp(contractBalanceKey(deposit.ContractId, deposit.Amount.TokenId), contractBal),
	})
}

// applyWithdraw moves funds from a contract to an account. The withdrawal
// is authorized by the circuit proof, not a signature; both the amount and
// the executor fee come out of the contract's balances.
func (c *KvStoreChain) applyWithdraw(withdraw *types.ContractWithdraw) error {
	if withdraw.Amount.TokenId == withdraw.Fee.TokenId {
		total, err := withdraw.Amount.Amount.Add(withdraw.Fee.Amount)
		if err != nil {
			return ErrInconsistency
		}
		contractBal, err := c.GetContractBalance(withdraw.ContractId, withdraw.Amount.TokenId)
		if err != nil {
			return err
		}
		if contractBal < total {
			return ErrContractBalanceInsufficient
		}
		contractBal -= total
		if err := c.database.Update([]kv.WriteOp{
			putOp(contractBalanceKey(withdraw.ContractId, withdraw.Amount.TokenId), contractBal),
		}); err != nil {
			return err
		}
	} else {
		contractBal, err := c.GetContractBalance(withdraw.ContractId, withdraw.Amount.TokenId)
		if err != nil {
			return err
		}
		contractFeeBal, err := c.GetContractBalance(withdraw.ContractId, withdraw.Fee.TokenId)
		if err != nil {
			return err
		}
		if contractBal < withdraw.Amount.Amount || contractFeeBal < withdraw.Fee.Amount {
			return ErrContractBalanceInsufficient
		}
		contractBal -= withdraw.Amount.Amount
		contractFeeBal -= withdraw.Fee.Amount
		if err := c.database.Update([]kv.WriteOp{
			putOp(contractBalanceKey(withdraw.ContractId, withdraw.Amount.TokenId), contractBal),
			putOp(contractBalanceKey(withdraw.ContractId, withdraw.Fee.TokenId), contractFeeBal),
		}); err != nil {
			return err
		}
	}

	dstBal, err := c.GetBalance(withdraw.Dst, withdraw.Amount.TokenId)
	if err != nil {
		return err
	}
	dstBal, err = dstBal.Add(withdraw.Amount.Amount)
	if err != nil {
		return ErrInconsistency
	}
	return c.database.Update([]kv.WriteOp{
		putOp(balanceKey(withdraw.Dst, withdraw.Amount.TokenId), dstBal),
	})
}
