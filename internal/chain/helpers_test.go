package chain_test

import (
	"testing"

	"github.com/ziesha/core/internal/chain"
	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

func newTestChain(t *testing.T) *chain.KvStoreChain {
	t.Helper()
	c, err := chain.NewKvStoreChain(kv.NewRamKvStore(), chain.GetTestBlockchainConfig())
	if err != nil {
		t.Fatalf("chain construction failed: %v", err)
	}
	return c
}

// applyDraft drafts a block from the given mempool and applies it.
func applyDraft(t *testing.T, c *chain.KvStoreChain, timestamp uint32, mempool []types.TransactionAndDelta, w *wallet.TxBuilder, check bool) *chain.BlockAndPatch {
	t.Helper()
	draft, err := c.DraftBlock(timestamp, mempool, w, check)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if draft == nil {
		t.Fatal("draft unexpectedly returned no block")
	}
	if err := c.ApplyBlock(&draft.Block); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	return draft
}

// advanceEmptyBlocks applies n empty blocks at timestamp zero.
func advanceEmptyBlocks(t *testing.T, c *chain.KvStoreChain, w *wallet.TxBuilder, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		draft := applyDraft(t, c, 0, nil, w, true)
		if len(draft.Block.Body) != 0 {
			t.Fatal("expected an empty block")
		}
	}
}

// rollbackTillEmpty unwinds the whole chain and checks it ends cleanly.
func rollbackTillEmpty(t *testing.T, c *chain.KvStoreChain) {
	t.Helper()
	for {
		height, err := c.GetHeight()
		if err != nil {
			t.Fatalf("height failed: %v", err)
		}
		if height == 0 {
			break
		}
		if err := c.Rollback(); err != nil {
			t.Fatalf("rollback at height %d failed: %v", height, err)
		}
	}
	if err := c.Rollback(); err != chain.ErrNoBlocksToRollback {
		t.Fatalf("expected ErrNoBlocksToRollback, got %v", err)
	}
	outdated, err := c.GetOutdatedContracts()
	if err != nil {
		t.Fatalf("outdated failed: %v", err)
	}
	if len(outdated) != 0 {
		t.Fatalf("expected no outdated contracts, got %d", len(outdated))
	}
}
