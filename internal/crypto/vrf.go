package crypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/sha3"
)

// VRF output/proof sizes
const (
	VRFPublicKeySize = ed25519.PublicKeySize
	VRFOutputSize    = 32
)

// VRFKeyPair is a verifiable-random-function key. Ed25519 signing is
// deterministic, so the signature doubles as the uniqueness proof and the
// output is its digest.
type VRFKeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewVRFKeyPair derives a VRF key pair from an arbitrary seed.
func NewVRFKeyPair(seed []byte) *VRFKeyPair {
	h := sha3.Sum256(append([]byte("ziesha-vrf"), seed...))
	priv := ed25519.NewKeyFromSeed(h[:])
	return &VRFKeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// PublicBytes returns the VRF public key, registered on chain by
// UpdateStaker transactions.
func (k *VRFKeyPair) PublicBytes() []byte {
	out := make([]byte, VRFPublicKeySize)
	copy(out, k.pub)
	return out
}

// Evaluate computes the VRF output and its proof for an input.
func (k *VRFKeyPair) Evaluate(input []byte) (output [VRFOutputSize]byte, proof []byte) {
	proof = ed25519.Sign(k.priv, input)
	output = sha3.Sum256(proof)
	return output, proof
}

// VRFVerify checks that output/proof is the unique evaluation of the key
// on input.
func VRFVerify(pub []byte, input []byte, output [VRFOutputSize]byte, proof []byte) bool {
	if len(pub) != VRFPublicKeySize {
		return false
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), input, proof) {
		return false
	}
	return sha3.Sum256(proof) == output
}
