// Package zk implements the typed sparse Merkle state trees backing
// zero-knowledge contracts, together with compressed states, state deltas
// and the proof verification oracle.
package zk

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/mimc"
)

// zk errors
var (
	ErrInvalidStateModel = errors.New("invalid zk state model")
	ErrInvalidLocator    = errors.New("locator does not resolve to a scalar slot")
	ErrFullStateNotValid = errors.New("full state rollback chain is not valid")
)

// ZkScalar is one element of the proving system's scalar field. It is the
// unit of contract state: every leaf of a state tree holds one scalar, and
// a compressed state is a single scalar.
type ZkScalar struct {
	inner fr.Element
}

// ZkScalarFromUint64 creates a scalar from an unsigned integer.
func ZkScalarFromUint64(v uint64) ZkScalar {
	var e fr.Element
	e.SetUint64(v)
	return ZkScalar{inner: e}
}

// ZkScalarFromBytes reduces an arbitrary byte string into the field.
func ZkScalarFromBytes(b []byte) ZkScalar {
	var e fr.Element
	e.SetBytes(b)
	return ZkScalar{inner: e}
}

// Bytes returns the canonical 32-byte big-endian representation.
func (s ZkScalar) Bytes() [32]byte {
	return s.inner.Bytes()
}

// BigInt returns the scalar as a big integer.
func (s ZkScalar) BigInt() *big.Int {
	return s.inner.BigInt(new(big.Int))
}

// IsZero reports whether the scalar is the field's zero element, which is
// also the default value of every unset state slot.
func (s ZkScalar) IsZero() bool {
	return s.inner.IsZero()
}

// Equal reports scalar equality.
func (s ZkScalar) Equal(o ZkScalar) bool {
	return s.inner.Equal(&o.inner)
}

// String returns the hex form of the canonical bytes.
func (s ZkScalar) String() string {
	b := s.Bytes()
	return hex.EncodeToString(b[:])
}

// MarshalJSON encodes the scalar as a hex string.
func (s ZkScalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the scalar from a hex string.
func (s *ZkScalar) UnmarshalJSON(data []byte) error {
	var hs string
	if err := json.Unmarshal(data, &hs); err != nil {
		return err
	}
	b, err := hex.DecodeString(hs)
	if err != nil {
		return err
	}
	s.inner.SetBytes(b)
	return nil
}

// HashScalars absorbs the given scalars into the zk-friendly hash and
// returns the digest as a scalar. Node hashes of every state tree go
// through here, so the function must stay deterministic across platforms.
func HashScalars(items ...ZkScalar) ZkScalar {
	h := mimc.NewMiMC()
	for _, it := range items {
		b := it.Bytes()
		// canonical field bytes are always accepted by the hasher
		if _, err := h.Write(b[:]); err != nil {
			panic(err)
		}
	}
	return ZkScalarFromBytes(h.Sum(nil))
}
