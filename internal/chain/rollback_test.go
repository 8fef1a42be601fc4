package chain_test

import (
	"testing"

	"github.com/ziesha/core/internal/chain"
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

// Applying the stored rollback entry after a block returns the store to
// its exact byte-level state.
func TestRollbackRestoresChecksum(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	bob := wallet.NewTxBuilder([]byte("DELEGATOR"))
	c := newTestChain(t)

	before, err := c.Checksum()
	if err != nil {
		t.Fatalf("checksum failed: %v", err)
	}

	applyDraft(t, c, 0, []types.TransactionAndDelta{
		alice.RegularSend("", []types.RegularSendEntry{
			{Dst: bob.GetAddress(), Amount: types.Ziesha(500)},
		}, types.Ziesha(3), 1),
		bob.Delegate("", validator.GetAddress(), 50, false, types.Ziesha(2), 2),
	}, validator, true)

	changed, _ := c.Checksum()
	if changed == before {
		t.Fatal("applying a block must change the store")
	}
	if err := c.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	after, err := c.Checksum()
	if err != nil {
		t.Fatalf("checksum failed: %v", err)
	}
	if after != before {
		t.Fatal("rollback must restore the exact byte-level state")
	}
}

// Two identically-configured fresh chains applying the same blocks agree
// on every checksum.
func TestDeterministicReplay(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	bob := wallet.NewTxBuilder([]byte("DELEGATOR"))

	a := newTestChain(t)
	b, err := chain.NewKvStoreChain(kv.NewRamKvStore(), chain.GetTestBlockchainConfig())
	if err != nil {
		t.Fatalf("chain construction failed: %v", err)
	}

	ca, _ := a.Checksum()
	cb, _ := b.Checksum()
	if ca != cb {
		t.Fatal("fresh chains must agree at genesis")
	}

	mempools := [][]types.TransactionAndDelta{
		{alice.RegularSend("", []types.RegularSendEntry{
			{Dst: bob.GetAddress(), Amount: types.Ziesha(77)},
		}, types.Ziesha(1), 1)},
		{bob.Delegate("", validator.GetAddress(), 10, false, types.Ziesha(0), 2)},
		nil,
	}
	for i, mempool := range mempools {
		draft := applyDraft(t, a, uint32(1_700_000_000+i*5), mempool, validator, true)
		if err := b.ApplyBlock(&draft.Block); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		ca, _ = a.Checksum()
		cb, _ = b.Checksum()
		if ca != cb {
			t.Fatalf("checksums diverged at height %d", i+1)
		}
	}
}

// Nonces count exactly the ever-applied outgoing transactions.
func TestNonceCountsAppliedTransactions(t *testing.T) {
	alice := wallet.NewTxBuilder([]byte("ABC"))
	bob := wallet.NewTxBuilder([]byte("DELEGATOR"))
	c := newTestChain(t)

	for n := uint64(1); n <= 3; n++ {
		send := alice.RegularSend("", []types.RegularSendEntry{
			{Dst: bob.GetAddress(), Amount: types.Ziesha(1)},
		}, types.Ziesha(0), n)
		if _, err := c.ApplyTx(&send.Tx, false); err != nil {
			t.Fatalf("send %d failed: %v", n, err)
		}
		// A replay of the same nonce is always rejected.
		if _, err := c.ApplyTx(&send.Tx, false); err != chain.ErrInvalidTransactionNonce {
			t.Fatalf("expected ErrInvalidTransactionNonce, got %v", err)
		}
	}
	acc, _ := c.GetAccount(alice.GetAddress())
	if acc.Nonce != 3 {
		t.Fatalf("expected nonce 3, got %d", acc.Nonce)
	}
}

// Extend is the height-checked convenience wrapper over ApplyBlock.
func TestExtend(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	c := newTestChain(t)

	draft, err := c.Fork().DraftBlock(0, nil, validator, true)
	if err != nil || draft == nil {
		t.Fatalf("draft failed: %v", err)
	}
	if err := c.Extend(2, []types.Block{draft.Block}); err != chain.ErrInconsistency {
		t.Fatalf("expected ErrInconsistency for a wrong height, got %v", err)
	}
	if err := c.Extend(1, []types.Block{draft.Block}); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	height, _ := c.GetHeight()
	if height != 2 {
		t.Fatalf("expected height 2, got %d", height)
	}

	// A block whose parent hash does not link is rejected.
	bad := draft.Block
	bad.Header.Number = 2
	if err := c.ApplyBlock(&bad); err != chain.ErrInvalidParentHash {
		t.Fatalf("expected ErrInvalidParentHash, got %v", err)
	}
}
