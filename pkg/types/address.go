// Package types defines the core data structures of the Ziesha blockchain:
// addresses, money, tokens, accounts, delegation records, contracts,
// transactions and blocks.
package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/ziesha/core/internal/crypto"
)

// Domain model errors
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidHash    = errors.New("invalid hash")
	ErrAmountOverflow = errors.New("amount overflow")
)

// HashSize is the byte length of every chain hash and identifier.
const HashSize = 32

// Hash is a 32-byte chain hash.
type Hash [HashSize]byte

// String returns the hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes the hash from a hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	return unmarshalHex32(data, (*[HashSize]byte)(h))
}

// Address is a 32-byte public-key identity. The zero address is the
// treasury.
type Address [HashSize]byte

// TreasuryAddress is the zero address holding the undistributed supply.
var TreasuryAddress = Address{}

// ParseAddress parses the hex form of an address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != HashSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

// String returns the hex form of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsTreasury reports whether this is the treasury address.
func (a Address) IsTreasury() bool {
	return a == TreasuryAddress
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the address from a hex string.
func (a *Address) UnmarshalJSON(data []byte) error {
	return unmarshalHex32(data, (*[HashSize]byte)(a))
}

// Signature is a detached transaction signature.
type Signature []byte

// VerifyAddressSignature checks a signature against the public key an
// address encodes.
func VerifyAddressSignature(addr Address, message []byte, sig Signature) bool {
	return crypto.VerifySignature(addr[:], message, sig)
}

func unmarshalHex32(data []byte, out *[HashSize]byte) error {
	var hs string
	if err := json.Unmarshal(data, &hs); err != nil {
		return err
	}
	b, err := hex.DecodeString(hs)
	if err != nil || len(b) != HashSize {
		return ErrInvalidHash
	}
	copy(out[:], b)
	return nil
}
