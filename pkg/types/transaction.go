package types

import (
	"encoding/json"

	"golang.org/x/crypto/sha3"

	"github.com/ziesha/core/internal/zk"
)

// RegularSendEntry is one destination of a plain transfer.
type RegularSendEntry struct {
	Dst    Address `json:"dst"`
	Amount Money   `json:"amount"`
}

// RegularSendData transfers funds to one or more destinations.
type RegularSendData struct {
	Entries []RegularSendEntry `json:"entries"`
}

// CreateTokenData mints a brand-new token; its id derives from the
// transaction hash.
type CreateTokenData struct {
	Token Token `json:"token"`
}

// MintTokenUpdate increases a mintable token's supply.
type MintTokenUpdate struct {
	Amount Amount `json:"amount"`
}

// ChangeMinterUpdate hands minting rights to a new address.
type ChangeMinterUpdate struct {
	Minter Address `json:"minter"`
}

// TokenUpdate is one mutation of an existing token; exactly one variant
// is set.
type TokenUpdate struct {
	Mint         *MintTokenUpdate    `json:"mint,omitempty"`
	ChangeMinter *ChangeMinterUpdate `json:"change_minter,omitempty"`
}

// UpdateTokenData applies a TokenUpdate; only the current minter may.
type UpdateTokenData struct {
	TokenId TokenId     `json:"token_id"`
	Update  TokenUpdate `json:"update"`
}

// CreateContractData deploys a zk contract; its id derives from the
// transaction hash.
type CreateContractData struct {
	Contract Contract `json:"contract"`
}

// UpdateContractData advances a contract's state through ordered updates.
type UpdateContractData struct {
	ContractId ContractId       `json:"contract_id"`
	Updates    []ContractUpdate `json:"updates"`
}

// DelegateData moves stake toward (or, reversed, away from) a delegatee.
type DelegateData struct {
	To      Address `json:"to"`
	Amount  Amount  `json:"amount"`
	Reverse bool    `json:"reverse,omitempty"`
}

// InitiateUndelegateData starts the undelegation timer on part of an
// existing delegation.
type InitiateUndelegateData struct {
	From   Address        `json:"from"`
	Amount Amount         `json:"amount"`
	Id     UndelegationId `json:"id"`
}

// ClaimUndelegateData redeems a matured undelegation.
type ClaimUndelegateData struct {
	Id UndelegationId `json:"id"`
}

// UpdateStakerData registers or replaces the sender's VRF public key.
type UpdateStakerData struct {
	VRFPubKey []byte `json:"vrf_pub_key"`
}

// TransactionData is the tagged union of transaction effects; exactly one
// variant is set.
type TransactionData struct {
	RegularSend        *RegularSendData        `json:"regular_send,omitempty"`
	CreateToken        *CreateTokenData        `json:"create_token,omitempty"`
	UpdateToken        *UpdateTokenData        `json:"update_token,omitempty"`
	CreateContract     *CreateContractData     `json:"create_contract,omitempty"`
	UpdateContract     *UpdateContractData     `json:"update_contract,omitempty"`
	Delegate           *DelegateData           `json:"delegate,omitempty"`
	InitiateUndelegate *InitiateUndelegateData `json:"initiate_undelegate,omitempty"`
	ClaimUndelegate    *ClaimUndelegateData    `json:"claim_undelegate,omitempty"`
	UpdateStaker       *UpdateStakerData       `json:"update_staker,omitempty"`
}

// Transaction is one signed state transition. A nil Src is the treasury
// and is only legal inside the genesis block.
type Transaction struct {
	Src   *Address        `json:"src,omitempty"`
	Nonce uint64          `json:"nonce"`
	Fee   Money           `json:"fee"`
	Memo  string          `json:"memo"`
	Data  TransactionData `json:"data"`
	Sig   Signature       `json:"sig,omitempty"`
}

// SrcOrTreasury returns the effective source account.
func (tx *Transaction) SrcOrTreasury() Address {
	if tx.Src == nil {
		return TreasuryAddress
	}
	return *tx.Src
}

// SignPayload returns the canonical bytes the signature covers: the
// transaction with its signature stripped.
func (tx *Transaction) SignPayload() []byte {
	unsigned := *tx
	unsigned.Sig = nil
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		panic(err)
	}
	return payload
}

// Hash returns the transaction hash; derived ids (tokens, contracts) come
// from it.
func (tx *Transaction) Hash() Hash {
	return sha3.Sum256(tx.SignPayload())
}

// Size returns the transaction's serialized size, the unit of the block
// size budget.
func (tx *Transaction) Size() int {
	payload, err := json.Marshal(tx)
	if err != nil {
		panic(err)
	}
	return len(payload)
}

// VerifySignature checks the source signature; treasury transactions carry
// none.
func (tx *Transaction) VerifySignature() bool {
	if tx.Src == nil {
		return len(tx.Sig) == 0
	}
	return VerifyAddressSignature(*tx.Src, tx.SignPayload(), tx.Sig)
}

// NewTokenId derives the token id a CreateToken transaction would mint.
func NewTokenId(tx *Transaction) TokenId {
	return TokenId(tx.Hash())
}

// NewContractId derives the contract id a CreateContract transaction would
// deploy.
func NewContractId(tx *Transaction) ContractId {
	return ContractId(tx.Hash())
}

// TransactionAndDelta pairs a transaction with the off-chain state delta
// its contract updates imply; mempools and drafters move these around.
type TransactionAndDelta struct {
	Tx         Transaction      `json:"tx"`
	StateDelta *zk.ZkDeltaPairs `json:"state_delta,omitempty"`
}
