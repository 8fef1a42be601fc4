package types

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// ValidatorProof is a claimant's evidence of slot leadership: the VRF
// evaluation over the epoch randomness and slot, and the attempt index it
// was won at.
type ValidatorProof struct {
	Attempt   uint32 `json:"attempt"`
	VRFOutput Hash   `json:"vrf_output"`
	VRFProof  []byte `json:"vrf_proof"`
}

// Power is the proof's weight in the fork-choice score.
func (p *ValidatorProof) Power() uint64 {
	return 1
}

// ProofOfStake is the consensus payload of a header.
type ProofOfStake struct {
	Timestamp uint32          `json:"timestamp"`
	Validator Address         `json:"validator"`
	Proof     *ValidatorProof `json:"proof,omitempty"`
}

// Header commits to a block's position, body and validator.
type Header struct {
	ParentHash   Hash         `json:"parent_hash"`
	Number       uint64       `json:"number"`
	BlockRoot    Hash         `json:"block_root"`
	ProofOfStake ProofOfStake `json:"proof_of_stake"`
}

// Hash returns the header hash linking child blocks to this one.
func (h *Header) Hash() Hash {
	payload, err := json.Marshal(h)
	if err != nil {
		panic(err)
	}
	return sha3.Sum256(payload)
}

// Block is a header plus its transaction body.
type Block struct {
	Header Header        `json:"header"`
	Body   []Transaction `json:"body"`
}

// MerkleRoot computes the Merkle root of the body: pairwise SHA3 over the
// transaction hashes, duplicating the last node of odd levels. An empty
// body has the zero root.
func (b *Block) MerkleRoot() Hash {
	if len(b.Body) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(b.Body))
	for i := range b.Body {
		level[i] = b.Body[i].Hash()
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = sha3.Sum256(append(level[i][:], level[i+1][:]...))
		}
		level = next
	}
	return level[0]
}

// HexToHash parses a hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}
