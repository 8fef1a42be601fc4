// Package crypto wraps the signature scheme and the verifiable random
// function the chain relies on. Both are deterministic: the same seed
// always yields the same keys, and the same message the same signature.
package crypto

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	bn254mimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"golang.org/x/crypto/sha3"
)

// Signature scheme errors
var (
	ErrBadSeed      = errors.New("cannot derive key material from seed")
	ErrBadPublicKey = errors.New("malformed public key")
)

// PublicKeySize is the byte length of a compressed public key, which is
// also the byte length of a chain address.
const PublicKeySize = 32

// KeyPair is an EdDSA signing key over the zk-friendly twisted Edwards
// curve, derived deterministically from a seed.
type KeyPair struct {
	priv *eddsa.PrivateKey
	pub  [PublicKeySize]byte
}

// NewKeyPair derives a key pair from an arbitrary seed.
func NewKeyPair(seed []byte) (*KeyPair, error) {
	// Stretch the seed into an unbounded deterministic byte stream; key
	// generation rejection-samples from it.
	shake := sha3.NewShake256()
	shake.Write([]byte("ziesha-eddsa"))
	shake.Write(seed)
	priv, err := eddsa.GenerateKey(shake)
	if err != nil {
		return nil, ErrBadSeed
	}
	kp := &KeyPair{priv: priv}
	copy(kp.pub[:], priv.PublicKey.Bytes())
	return kp, nil
}

// PublicBytes returns the compressed public key, the wire form of a chain
// address.
func (k *KeyPair) PublicBytes() [PublicKeySize]byte {
	return k.pub
}

// digestToField reduces an arbitrary message into one canonical field
// element; EdDSA's inner hash only absorbs field elements.
func digestToField(message []byte) []byte {
	digest := sha3.Sum256(message)
	var e fr.Element
	e.SetBytes(digest[:])
	b := e.Bytes()
	return b[:]
}

// Sign signs a message. The signature commits to the SHA3 digest of the
// message reduced into the scalar field.
func (k *KeyPair) Sign(message []byte) ([]byte, error) {
	return k.priv.Sign(digestToField(message), bn254mimc.NewMiMC())
}

// VerifySignature checks a signature against a compressed public key.
func VerifySignature(pub []byte, message, signature []byte) bool {
	if len(pub) != PublicKeySize {
		return false
	}
	var pk eddsa.PublicKey
	if _, err := pk.SetBytes(pub); err != nil {
		return false
	}
	ok, err := pk.Verify(signature, digestToField(message), bn254mimc.NewMiMC())
	return err == nil && ok
}
