package chain

import (
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
)

// tokenIdScalar embeds a token id into the scalar field for payload rows.
func tokenIdScalar(id types.TokenId) zk.ZkScalar {
	return zk.ZkScalarFromBytes(id[:])
}

// depositPayloadModel is the circuit-facing layout of a deposit batch.
func depositPayloadModel(log4Capacity uint8) zk.ZkStateModel {
	return zk.ListModel(
		zk.StructModel(
			zk.ScalarModel(), // enabled
			zk.ScalarModel(), // token id
			zk.ScalarModel(), // amount
			zk.ScalarModel(), // calldata
		),
		log4Capacity,
	)
}

// withdrawPayloadModel is the circuit-facing layout of a withdraw batch.
func withdrawPayloadModel(log4Capacity uint8) zk.ZkStateModel {
	return zk.ListModel(
		zk.StructModel(
			zk.ScalarModel(), // enabled
			zk.ScalarModel(), // amount token id
			zk.ScalarModel(), // amount
			zk.ScalarModel(), // fee token id
			zk.ScalarModel(), // fee
			zk.ScalarModel(), // fingerprint
			zk.ScalarModel(), // calldata
		),
		log4Capacity,
	)
}

// applyUpdateContract runs an ordered list of contract updates. Each
// update's proof is checked against the compressed state the previous one
// left behind; executor fees accumulate and go to the transaction source.
func (c *KvStoreChain) applyUpdateContract(txSrc types.Address, data *types.UpdateContractData) (TxSideEffect, error) {
	cid := data.ContractId
	contract, err := c.GetContract(cid)
	if err != nil {
		return TxSideEffect{}, err
	}
	prevAccount, err := c.GetContractAccount(cid)
	if err != nil {
		return TxSideEffect{}, err
	}

	account := prevAccount
	account.Height++
	if err := c.database.Update([]kv.WriteOp{
		putOp(contractAccountKey(cid), account),
	}); err != nil {
		return TxSideEffect{}, err
	}

	var executorFees []types.Money

	for i := range data.Updates {
		update := &data.Updates[i]

		var verifierKey *zk.ZkVerifierKey
		var auxData zk.ZkCompressedState
		var nextState zk.ZkCompressedState
		var proof *zk.ZkProof

		switch {
		case update.Deposit != nil:
			dep := update.Deposit
			if int(dep.DepositCircuitId) >= len(contract.DepositFunctions) {
				return TxSideEffect{}, ErrContractFunctionNotFound
			}
			depositFunc := &contract.DepositFunctions[dep.DepositCircuitId]
			builder, err := zk.NewZkStateBuilder(depositPayloadModel(depositFunc.Log4PaymentCapacity))
			if err != nil {
				return TxSideEffect{}, err
			}
			for j := range dep.Deposits {
				deposit := &dep.Deposits[j]
				if deposit.ContractId != cid || deposit.DepositCircuitId != dep.DepositCircuitId {
					return TxSideEffect{}, ErrDepositWithdrawPassedToWrongFunction
				}
				executorFees = append(executorFees, deposit.Fee)
				row := uint64(j)
				one := zk.ZkScalarFromUint64(1)
				tok := tokenIdScalar(deposit.Amount.TokenId)
				amt := zk.ZkScalarFromUint64(uint64(deposit.Amount.Amount))
				call := deposit.Calldata
				if err := builder.BatchSet(zk.ZkDeltaPairs{
					zk.LocatorString([]uint64{row, 0}): &one,
					zk.LocatorString([]uint64{row, 1}): &tok,
					zk.LocatorString([]uint64{row, 2}): &amt,
					zk.LocatorString([]uint64{row, 3}): &call,
				}); err != nil {
					return TxSideEffect{}, err
				}
				if err := c.applyDeposit(deposit); err != nil {
					return TxSideEffect{}, err
				}
			}
			aux, err := builder.Compress()
			if err != nil {
				return TxSideEffect{}, err
			}
			verifierKey, auxData, nextState, proof = &depositFunc.VerifierKey, aux, dep.NextState, &dep.Proof

		case update.Withdraw != nil:
			wd := update.Withdraw
			if int(wd.WithdrawCircuitId) >= len(contract.WithdrawFunctions) {
				return TxSideEffect{}, ErrContractFunctionNotFound
			}
			withdrawFunc := &contract.WithdrawFunctions[wd.WithdrawCircuitId]
			builder, err := zk.NewZkStateBuilder(withdrawPayloadModel(withdrawFunc.Log4PaymentCapacity))
			if err != nil {
				return TxSideEffect{}, err
			}
			for j := range wd.Withdraws {
				withdraw := &wd.Withdraws[j]
				if withdraw.ContractId != cid || withdraw.WithdrawCircuitId != wd.WithdrawCircuitId {
					return TxSideEffect{}, ErrDepositWithdrawPassedToWrongFunction
				}
				executorFees = append(executorFees, withdraw.Fee)
				row := uint64(j)
				one := zk.ZkScalarFromUint64(1)
				amtTok := tokenIdScalar(withdraw.Amount.TokenId)
				amt := zk.ZkScalarFromUint64(uint64(withdraw.Amount.Amount))
				feeTok := tokenIdScalar(withdraw.Fee.TokenId)
				fee := zk.ZkScalarFromUint64(uint64(withdraw.Fee.Amount))
				fingerprint := withdraw.Fingerprint()
				call := withdraw.Calldata
				if err := builder.BatchSet(zk.ZkDeltaPairs{
					zk.LocatorString([]uint64{row, 0}): &one,
					zk.LocatorString([]uint64{row, 1}): &amtTok,
					zk.LocatorString([]uint64{row, 2}): &amt,
					zk.LocatorString([]uint64{row, 3}): &feeTok,
					zk.LocatorString([]uint64{row, 4}): &fee,
					zk.LocatorString([]uint64{row, 5}): &fingerprint,
					zk.LocatorString([]uint64{row, 6}): &call,
				}); err != nil {
					return TxSideEffect{}, err
				}
				if err := c.applyWithdraw(withdraw); err != nil {
					return TxSideEffect{}, err
				}
			}
			aux, err := builder.Compress()
			if err != nil {
				return TxSideEffect{}, err
			}
			verifierKey, auxData, nextState, proof = &withdrawFunc.VerifierKey, aux, wd.NextState, &wd.Proof

		case update.FunctionCall != nil:
			call := update.FunctionCall
			executorFees = append(executorFees, call.Fee)

			contractBal, err := c.GetContractBalance(cid, call.Fee.TokenId)
			if err != nil {
				return TxSideEffect{}, err
			}
			if contractBal < call.Fee.Amount {
				return TxSideEffect{}, ErrContractBalanceInsufficient
			}
			contractBal -= call.Fee.Amount
			if err := c.database.Update([]kv.WriteOp{
				putOp(contractBalanceKey(cid, call.Fee.TokenId), contractBal),
			}); err != nil {
				return TxSideEffect{}, err
			}

			if int(call.FunctionId) >= len(contract.Functions) {
				return TxSideEffect{}, ErrContractFunctionNotFound
			}
			function := &contract.Functions[call.FunctionId]
			builder, err := zk.NewZkStateBuilder(zk.StructModel(
				zk.ScalarModel(), // token id
				zk.ScalarModel(), // total fee
			))
			if err != nil {
				return TxSideEffect{}, err
			}
			feeTok := tokenIdScalar(call.Fee.TokenId)
			feeAmt := zk.ZkScalarFromUint64(uint64(call.Fee.Amount))
			if err := builder.BatchSet(zk.ZkDeltaPairs{
				zk.LocatorString([]uint64{0}): &feeTok,
				zk.LocatorString([]uint64{1}): &feeAmt,
			}); err != nil {
				return TxSideEffect{}, err
			}
			aux, err := builder.Compress()
			if err != nil {
				return TxSideEffect{}, err
			}
			verifierKey, auxData, nextState, proof = &function.VerifierKey, aux, call.NextState, &call.Proof

		default:
			return TxSideEffect{}, ErrContractFunctionNotFound
		}

		current, err := c.GetContractAccount(cid)
		if err != nil {
			return TxSideEffect{}, err
		}
		if !zk.CheckProof(verifierKey, prevAccount.Height, current.CompressedState, auxData, nextState, proof) {
			return TxSideEffect{}, ErrIncorrectZkProof
		}
		current.CompressedState = nextState
		if err := c.database.Update([]kv.WriteOp{
			putOp(contractAccountKey(cid), current),
		}); err != nil {
			return TxSideEffect{}, err
		}
	}

	for _, fee := range executorFees {
		bal, err := c.GetBalance(txSrc, fee.TokenId)
		if err != nil {
			return TxSideEffect{}, err
		}
		bal, err = bal.Add(fee.Amount)
		if err != nil {
			return TxSideEffect{}, ErrInconsistency
		}
		if err := c.database.Update([]kv.WriteOp{
			putOp(balanceKey(txSrc, fee.TokenId), bal),
		}); err != nil {
			return TxSideEffect{}, err
		}
	}

	final, err := c.GetContractAccount(cid)
	if err != nil {
		return TxSideEffect{}, err
	}
	if err := c.database.Update([]kv.WriteOp{
		putOp(compressedStateAtKey(cid, final.Height), final.CompressedState),
	}); err != nil {
		return TxSideEffect{}, err
	}
	return TxSideEffect{
		ContractId: cid,
		StateChange: &ZkCompressedStateChange{
			PrevHeight: prevAccount.Height,
			PrevState:  prevAccount.CompressedState,
			State:      final.CompressedState,
		},
	}, nil
}
