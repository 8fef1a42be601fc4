package chain_test

import (
	"testing"

	"github.com/ziesha/core/internal/chain"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

func TestUndelegationTiming(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	c := newTestChain(t)

	delegateTx := alice.Delegate("", validator.GetAddress(), 100, false, types.Ziesha(0), 1)
	if _, err := c.ApplyTx(&delegateTx.Tx, false); err != nil {
		t.Fatalf("delegate failed: %v", err)
	}
	balAfterDelegate, _ := c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	if balAfterDelegate != 9_900 {
		t.Fatalf("expected balance 9900 after delegating, got %d", balAfterDelegate)
	}

	startHeight, _ := c.GetHeight()
	initiateTx := alice.InitiateUndelegate("", validator.GetAddress(), 40, 0, types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&initiateTx.Tx, false); err != nil {
		t.Fatalf("initiate undelegate failed: %v", err)
	}

	undelegation, err := c.GetUndelegation(alice.GetAddress(), 0)
	if err != nil || undelegation == nil {
		t.Fatalf("undelegation should exist: %v", err)
	}
	if undelegation.UnlocksOn != startHeight+c.Config().UndelegationPeriod {
		t.Fatalf("unexpected unlock height %d", undelegation.UnlocksOn)
	}
	stake, _ := c.GetStake(validator.GetAddress())
	if stake != 85 {
		t.Fatalf("expected stake 85 after undelegating, got %d", stake)
	}
	// The amount sits in no balance while locked.
	bal, _ := c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	if bal != balAfterDelegate {
		t.Fatalf("locked amount must not appear in any balance, got %d", bal)
	}

	// Claiming before the unlock height fails.
	claimEarlyTx := alice.ClaimUndelegate("", 0, types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&claimEarlyTx.Tx, false); err != chain.ErrUndelegationLocked {
		t.Fatalf("expected ErrUndelegationLocked, got %v", err)
	}

	advanceEmptyBlocks(t, c, validator, int(c.Config().UndelegationPeriod))

	// The empty blocks paid alice delegator rewards; measure from here.
	balBeforeClaim, _ := c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	claimTx := alice.ClaimUndelegate("", 0, types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&claimTx.Tx, false); err != nil {
		t.Fatalf("claim should succeed after unlock: %v", err)
	}
	bal, _ = c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	if bal != balBeforeClaim+40 {
		t.Fatalf("expected the undelegated amount back, got %d", bal)
	}
	if u, _ := c.GetUndelegation(alice.GetAddress(), 0); u != nil {
		t.Fatal("undelegation should be removed on claim")
	}

	// Claiming again reports the record gone.
	claimAgainTx := alice.ClaimUndelegate("", 0, types.Ziesha(0), 4)
	if _, err := c.ApplyTx(&claimAgainTx.Tx, false); err != chain.ErrUndelegationNotFound {
		t.Fatalf("expected ErrUndelegationNotFound, got %v", err)
	}
}

func TestUndelegateMoreThanDelegated(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	c := newTestChain(t)

	delegateTx := alice.Delegate("", validator.GetAddress(), 10, false, types.Ziesha(0), 1)
	if _, err := c.ApplyTx(&delegateTx.Tx, false); err != nil {
		t.Fatalf("delegate failed: %v", err)
	}
	initiateTx := alice.InitiateUndelegate("", validator.GetAddress(), 11, 0, types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&initiateTx.Tx, false); err != chain.ErrBalanceInsufficient {
		t.Fatalf("expected ErrBalanceInsufficient, got %v", err)
	}
}

func TestReverseDelegation(t *testing.T) {
	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	c := newTestChain(t)

	delegateTx := alice.Delegate("", validator.GetAddress(), 50, false, types.Ziesha(0), 1)
	if _, err := c.ApplyTx(&delegateTx.Tx, false); err != nil {
		t.Fatalf("delegate failed: %v", err)
	}
	reverseTx := alice.Delegate("", validator.GetAddress(), 20, true, types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&reverseTx.Tx, false); err != nil {
		t.Fatalf("reverse delegate failed: %v", err)
	}
	d, _ := c.GetDelegate(alice.GetAddress(), validator.GetAddress())
	if d.Amount != 30 {
		t.Fatalf("expected delegation 30, got %d", d.Amount)
	}
	bal, _ := c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	if bal != 9_970 {
		t.Fatalf("expected balance 9970, got %d", bal)
	}
	// Reversing more than delegated fails.
	overReverseTx := alice.Delegate("", validator.GetAddress(), 31, true, types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&overReverseTx.Tx, false); err != chain.ErrBalanceInsufficient {
		t.Fatalf("expected ErrBalanceInsufficient, got %v", err)
	}
}
