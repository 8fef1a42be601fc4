// Package wallet builds and signs transactions from deterministic seed
// material. It is the boundary the out-of-scope CLI and node layers talk
// through; the chain core only ever sees the signed artifacts.
package wallet

import (
	"github.com/ziesha/core/internal/crypto"
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
)

// TxBuilder holds one identity's signing and VRF keys.
type TxBuilder struct {
	keys *crypto.KeyPair
	vrf  *crypto.VRFKeyPair
	addr types.Address
}

// NewTxBuilder derives a builder from a seed. The same seed always yields
// the same address and keys.
func NewTxBuilder(seed []byte) *TxBuilder {
	keys, err := crypto.NewKeyPair(seed)
	if err != nil {
		panic(err)
	}
	b := &TxBuilder{
		keys: keys,
		vrf:  crypto.NewVRFKeyPair(seed),
	}
	b.addr = types.Address(keys.PublicBytes())
	return b
}

// GetAddress returns the builder's chain address.
func (b *TxBuilder) GetAddress() types.Address {
	return b.addr
}

// GetVRFPublicKey returns the VRF key UpdateStaker registers.
func (b *TxBuilder) GetVRFPublicKey() []byte {
	return b.vrf.PublicBytes()
}

// EvaluateVRF evaluates the builder's VRF on an input.
func (b *TxBuilder) EvaluateVRF(input []byte) ([32]byte, []byte) {
	return b.vrf.Evaluate(input)
}

// sign finalizes a transaction with the builder's signature.
func (b *TxBuilder) sign(tx types.Transaction) types.Transaction {
	src := b.addr
	tx.Src = &src
	sig, err := b.keys.Sign(tx.SignPayload())
	if err != nil {
		panic(err)
	}
	tx.Sig = sig
	return tx
}

// RegularSend builds a plain transfer.
func (b *TxBuilder) RegularSend(memo string, entries []types.RegularSendEntry, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			RegularSend: &types.RegularSendData{Entries: entries},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// CreateToken builds a token creation.
func (b *TxBuilder) CreateToken(memo string, token types.Token, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			CreateToken: &types.CreateTokenData{Token: token},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// MintToken builds a supply increase on a mintable token.
func (b *TxBuilder) MintToken(memo string, tokenId types.TokenId, amount types.Amount, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			UpdateToken: &types.UpdateTokenData{
				TokenId: tokenId,
				Update:  types.TokenUpdate{Mint: &types.MintTokenUpdate{Amount: amount}},
			},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// ChangeTokenMinter builds a minter handover on a mintable token.
func (b *TxBuilder) ChangeTokenMinter(memo string, tokenId types.TokenId, minter types.Address, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			UpdateToken: &types.UpdateTokenData{
				TokenId: tokenId,
				Update:  types.TokenUpdate{ChangeMinter: &types.ChangeMinterUpdate{Minter: minter}},
			},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// Delegate builds a delegation (or its reverse).
func (b *TxBuilder) Delegate(memo string, to types.Address, amount types.Amount, reverse bool, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			Delegate: &types.DelegateData{To: to, Amount: amount, Reverse: reverse},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// InitiateUndelegate builds the start of an undelegation.
func (b *TxBuilder) InitiateUndelegate(memo string, from types.Address, amount types.Amount, id types.UndelegationId, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			InitiateUndelegate: &types.InitiateUndelegateData{From: from, Amount: amount, Id: id},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// ClaimUndelegate builds the claim of a matured undelegation.
func (b *TxBuilder) ClaimUndelegate(memo string, id types.UndelegationId, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			ClaimUndelegate: &types.ClaimUndelegateData{Id: id},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// RegisterValidator builds the UpdateStaker registration of the builder's
// VRF key.
func (b *TxBuilder) RegisterValidator(memo string, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			UpdateStaker: &types.UpdateStakerData{VRFPubKey: b.vrf.PublicBytes()},
		},
	})
	return types.TransactionAndDelta{Tx: tx}
}

// CreateContract builds a contract deployment, shipping the full initial
// state alongside as the block patch material.
func (b *TxBuilder) CreateContract(memo string, contract types.Contract, initialData zk.ZkDataPairs, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			CreateContract: &types.CreateContractData{Contract: contract},
		},
	})
	delta := initialData.AsDelta()
	return types.TransactionAndDelta{Tx: tx, StateDelta: &delta}
}

// CallFunction builds a function-call contract update.
func (b *TxBuilder) CallFunction(memo string, cid types.ContractId, functionId uint32, stateDelta zk.ZkDeltaPairs, nextState zk.ZkCompressedState, proof zk.ZkProof, executorFee types.Money, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			UpdateContract: &types.UpdateContractData{
				ContractId: cid,
				Updates: []types.ContractUpdate{{
					FunctionCall: &types.FunctionCallUpdate{
						FunctionId: functionId,
						Fee:        executorFee,
						NextState:  nextState,
						Proof:      proof,
					},
				}},
			},
		},
	})
	d := stateDelta
	return types.TransactionAndDelta{Tx: tx, StateDelta: &d}
}

// BuildDeposit signs one contract deposit record.
func (b *TxBuilder) BuildDeposit(cid types.ContractId, circuitId uint32, amount, fee types.Money, nonce uint64, calldata zk.ZkScalar) types.ContractDeposit {
	deposit := types.ContractDeposit{
		ContractId:       cid,
		DepositCircuitId: circuitId,
		Src:              b.addr,
		Amount:           amount,
		Fee:              fee,
		Nonce:            nonce,
		Calldata:         calldata,
	}
	sig, err := b.keys.Sign(deposit.SignPayload())
	if err != nil {
		panic(err)
	}
	deposit.Sig = sig
	return deposit
}

// DepositTx wraps signed deposits into an UpdateContract transaction.
func (b *TxBuilder) DepositTx(memo string, cid types.ContractId, circuitId uint32, deposits []types.ContractDeposit, stateDelta zk.ZkDeltaPairs, nextState zk.ZkCompressedState, proof zk.ZkProof, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			UpdateContract: &types.UpdateContractData{
				ContractId: cid,
				Updates: []types.ContractUpdate{{
					Deposit: &types.DepositUpdate{
						DepositCircuitId: circuitId,
						Deposits:         deposits,
						NextState:        nextState,
						Proof:            proof,
					},
				}},
			},
		},
	})
	d := stateDelta
	return types.TransactionAndDelta{Tx: tx, StateDelta: &d}
}

// WithdrawTx wraps withdraw records into an UpdateContract transaction.
func (b *TxBuilder) WithdrawTx(memo string, cid types.ContractId, circuitId uint32, withdraws []types.ContractWithdraw, stateDelta zk.ZkDeltaPairs, nextState zk.ZkCompressedState, proof zk.ZkProof, fee types.Money, nonce uint64) types.TransactionAndDelta {
	tx := b.sign(types.Transaction{
		Nonce: nonce,
		Fee:   fee,
		Memo:  memo,
		Data: types.TransactionData{
			UpdateContract: &types.UpdateContractData{
				ContractId: cid,
				Updates: []types.ContractUpdate{{
					Withdraw: &types.WithdrawUpdate{
						WithdrawCircuitId: circuitId,
						Withdraws:         withdraws,
						NextState:         nextState,
						Proof:             proof,
					},
				}},
			},
		},
	})
	d := stateDelta
	return types.TransactionAndDelta{Tx: tx, StateDelta: &d}
}
