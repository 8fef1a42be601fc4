package types

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// Amount is an unsigned token quantity in base units.
type Amount uint64

// Add returns a+b, failing on wrap-around.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a + b
	if sum < a {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}

// TokenId is a 32-byte token identifier.
type TokenId [HashSize]byte

// ZieshaTokenId is the distinguished identifier of the fee and stake
// currency. Token creation remaps the configured genesis-derived id onto
// it, so every node agrees on one id regardless of genesis encoding.
var ZieshaTokenId = TokenId(sha3.Sum256([]byte("ZSH")))

// String returns the hex form of the token id.
func (t TokenId) String() string {
	return hex.EncodeToString(t[:])
}

// MarshalJSON encodes the token id as a hex string.
func (t TokenId) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the token id from a hex string.
func (t *TokenId) UnmarshalJSON(data []byte) error {
	return unmarshalHex32(data, (*[HashSize]byte)(t))
}

// Money is an amount of a specific token.
type Money struct {
	TokenId TokenId `json:"token_id"`
	Amount  Amount  `json:"amount"`
}

// Ziesha returns the given amount of the fee currency.
func Ziesha(amount Amount) Money {
	return Money{TokenId: ZieshaTokenId, Amount: amount}
}
