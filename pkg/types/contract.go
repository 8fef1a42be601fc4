package types

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"

	"github.com/ziesha/core/internal/zk"
)

// ContractId is the 32-byte identifier of a zk contract, derived from the
// hash of its creation transaction.
type ContractId [HashSize]byte

// ParseContractId parses the hex form of a contract id.
func ParseContractId(s string) (ContractId, error) {
	var c ContractId
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != HashSize {
		return c, ErrInvalidHash
	}
	copy(c[:], b)
	return c, nil
}

// String returns the hex form of the contract id.
func (c ContractId) String() string {
	return hex.EncodeToString(c[:])
}

// MarshalJSON encodes the contract id as a hex string.
func (c ContractId) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the contract id from a hex string.
func (c *ContractId) UnmarshalJSON(data []byte) error {
	return unmarshalHex32(data, (*[HashSize]byte)(c))
}

// ContractFunction is one provable circuit of a contract: its verifier key
// and, for deposit/withdraw circuits, the log4 size of the payment batch
// it can absorb.
type ContractFunction struct {
	VerifierKey         zk.ZkVerifierKey `json:"verifier_key"`
	Log4PaymentCapacity uint8            `json:"log4_payment_capacity"`
}

// MintableToken ties a token record to a contract that may mint it.
type MintableToken struct {
	Token Token `json:"token"`
}

// Contract is the immutable definition of a zk contract.
type Contract struct {
	InitialState      zk.ZkCompressedState `json:"initial_state"`
	StateModel        zk.ZkStateModel      `json:"state_model"`
	Functions         []ContractFunction   `json:"functions"`
	DepositFunctions  []ContractFunction   `json:"deposit_functions"`
	WithdrawFunctions []ContractFunction   `json:"withdraw_functions"`
	Token             *MintableToken       `json:"token,omitempty"`
}

// ContractAccount is the mutable on-chain view of a contract: its current
// compressed state and the number of state transitions so far.
type ContractAccount struct {
	CompressedState zk.ZkCompressedState `json:"compressed_state"`
	Height          uint64               `json:"height"`
}

// ContractDeposit moves funds from an account into a contract through a
// deposit circuit. It is signed by Src and replay-protected by its own
// nonce sequence.
type ContractDeposit struct {
	ContractId       ContractId  `json:"contract_id"`
	DepositCircuitId uint32      `json:"deposit_circuit_id"`
	Src              Address     `json:"src"`
	Amount           Money       `json:"amount"`
	Fee              Money       `json:"fee"`
	Nonce            uint64      `json:"nonce"`
	Calldata         zk.ZkScalar `json:"calldata"`
	Sig              Signature   `json:"sig,omitempty"`
}

// SignPayload returns the canonical bytes the deposit signature covers.
func (d *ContractDeposit) SignPayload() []byte {
	unsigned := *d
	unsigned.Sig = nil
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		panic(err)
	}
	return payload
}

// VerifySignature checks the depositor's signature.
func (d *ContractDeposit) VerifySignature() bool {
	return VerifyAddressSignature(d.Src, d.SignPayload(), d.Sig)
}

// ContractWithdraw moves funds from a contract to an account through a
// withdraw circuit. It carries no signature; the fingerprint binds the
// destination into the proven payload.
type ContractWithdraw struct {
	ContractId        ContractId  `json:"contract_id"`
	WithdrawCircuitId uint32      `json:"withdraw_circuit_id"`
	Dst               Address     `json:"dst"`
	Amount            Money       `json:"amount"`
	Fee               Money       `json:"fee"`
	Calldata          zk.ZkScalar `json:"calldata"`
}

// Fingerprint commits the withdraw's routing fields into one scalar slot
// of the payload list.
func (w *ContractWithdraw) Fingerprint() zk.ZkScalar {
	stripped := *w
	stripped.Calldata = zk.ZkScalar{}
	payload, err := json.Marshal(&stripped)
	if err != nil {
		panic(err)
	}
	digest := sha3.Sum256(payload)
	return zk.ZkScalarFromBytes(digest[:])
}

// DepositUpdate batches deposits through one deposit circuit.
type DepositUpdate struct {
	DepositCircuitId uint32               `json:"deposit_circuit_id"`
	Deposits         []ContractDeposit    `json:"deposits"`
	NextState        zk.ZkCompressedState `json:"next_state"`
	Proof            zk.ZkProof           `json:"proof"`
}

// WithdrawUpdate batches withdrawals through one withdraw circuit.
type WithdrawUpdate struct {
	WithdrawCircuitId uint32               `json:"withdraw_circuit_id"`
	Withdraws         []ContractWithdraw   `json:"withdraws"`
	NextState         zk.ZkCompressedState `json:"next_state"`
	Proof             zk.ZkProof           `json:"proof"`
}

// FunctionCallUpdate runs one general circuit, paying its executor fee out
// of the contract's balance.
type FunctionCallUpdate struct {
	FunctionId uint32               `json:"function_id"`
	Fee        Money                `json:"fee"`
	NextState  zk.ZkCompressedState `json:"next_state"`
	Proof      zk.ZkProof           `json:"proof"`
}

// ContractUpdate is one step of a contract's state transition; exactly one
// of the variants is set.
type ContractUpdate struct {
	Deposit      *DepositUpdate      `json:"deposit,omitempty"`
	Withdraw     *WithdrawUpdate     `json:"withdraw,omitempty"`
	FunctionCall *FunctionCallUpdate `json:"function_call,omitempty"`
}
