package chain_test

import (
	"encoding/hex"
	"testing"

	"github.com/ziesha/core/pkg/wallet"
)

// Epoch randomness must stay constant inside each 10-slot epoch and
// change exactly at epoch boundaries.
func TestVrfRandomnessChanges(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	c := newTestChain(t)

	perEpoch := make([]string, 0, 10)
	for i := uint32(0); i < 100; i++ {
		applyDraft(t, c, 1_700_000_000+i*5, nil, validator, true)
		randomness, err := c.EpochRandomness()
		if err != nil {
			t.Fatalf("randomness failed: %v", err)
		}
		hexRand := hex.EncodeToString(randomness[:])
		epoch := int(i / 10)
		if epoch == len(perEpoch) {
			perEpoch = append(perEpoch, hexRand)
		} else if perEpoch[epoch] != hexRand {
			t.Fatalf("randomness changed inside epoch %d at block %d", epoch, i)
		}
	}

	if len(perEpoch) != 10 {
		t.Fatalf("expected 10 epochs, got %d", len(perEpoch))
	}
	if perEpoch[0] != "0000000000000000000000000000000000000000000000000000000000000000" {
		t.Fatalf("first epoch must use the zero randomness, got %s", perEpoch[0])
	}
	seen := make(map[string]struct{})
	for epoch, r := range perEpoch {
		if _, dup := seen[r]; dup {
			t.Fatalf("epoch %d repeats an earlier randomness value", epoch)
		}
		seen[r] = struct{}{}
	}
}
