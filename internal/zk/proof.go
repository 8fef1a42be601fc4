package zk

import (
	"bytes"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// Verifier key and proof kinds
const (
	ProofGroth16 = "groth16"
	ProofDummy   = "dummy"
)

// ZkVerifierKey identifies the circuit a contract function is checked
// against. Dummy keys exist for tests and accept exactly the Dummy(true)
// proof.
type ZkVerifierKey struct {
	Type    string `json:"type"`
	Groth16 []byte `json:"groth16,omitempty"`
}

// DummyVerifierKey returns the always-checkable test verifier.
func DummyVerifierKey() ZkVerifierKey {
	return ZkVerifierKey{Type: ProofDummy}
}

// Groth16VerifierKey wraps a serialized Groth16 verifying key.
func Groth16VerifierKey(vk []byte) ZkVerifierKey {
	return ZkVerifierKey{Type: ProofGroth16, Groth16: vk}
}

// ZkProof attests one contract-state transition.
type ZkProof struct {
	Type    string `json:"type"`
	Groth16 []byte `json:"groth16,omitempty"`
	Dummy   bool   `json:"dummy,omitempty"`
}

// DummyProof returns a test proof that verifies iff ok is true.
func DummyProof(ok bool) ZkProof {
	return ZkProof{Type: ProofDummy, Dummy: ok}
}

// stateTransitionCircuit fixes the public-input layout every contract
// circuit commits to: previous on-chain height, previous compressed state,
// the aux-data commitment, and the claimed next compressed state.
type stateTransitionCircuit struct {
	PrevHeight frontend.Variable `gnark:",public"`
	PrevState  frontend.Variable `gnark:",public"`
	AuxData    frontend.Variable `gnark:",public"`
	NextState  frontend.Variable `gnark:",public"`
}

// Define exists to satisfy the frontend; the constraint system itself comes
// with the prover's verifying key.
func (c *stateTransitionCircuit) Define(api frontend.API) error {
	return nil
}

// CheckProof is the verification oracle of the contract update pipeline:
// verify(vk, prev_height, prev_state, aux_data, next_state, proof).
func CheckProof(vk *ZkVerifierKey, prevHeight uint64, prevState, auxData, nextState ZkCompressedState, proof *ZkProof) bool {
	switch vk.Type {
	case ProofDummy:
		return proof.Type == ProofDummy && proof.Dummy
	case ProofGroth16:
		if proof.Type != ProofGroth16 {
			return false
		}
		return verifyGroth16(vk.Groth16, prevHeight, prevState.State, auxData.State, nextState.State, proof.Groth16)
	default:
		return false
	}
}

func verifyGroth16(vkBytes []byte, prevHeight uint64, prevState, auxData, nextState ZkScalar, proofBytes []byte) bool {
	vk := groth16.NewVerifyingKey(ecc.BLS12_381)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return false
	}
	proof := groth16.NewProof(ecc.BLS12_381)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false
	}
	assignment := &stateTransitionCircuit{
		PrevHeight: prevHeight,
		PrevState:  prevState.BigInt(),
		AuxData:    auxData.BigInt(),
		NextState:  nextState.BigInt(),
	}
	witness, err := frontend.NewWitness(assignment, ecc.BLS12_381.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false
	}
	return groth16.Verify(proof, vk, witness) == nil
}
