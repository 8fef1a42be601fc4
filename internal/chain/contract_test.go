package chain_test

import (
	"errors"
	"testing"

	"github.com/ziesha/core/internal/chain"
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

func TestContractCreatePatch(t *testing.T) {
	miner := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	c := newTestChain(t)

	stateModel := zk.ListModel(zk.ScalarModel(), 5)
	tx := alice.CreateContract("", types.Contract{
		StateModel:   stateModel,
		InitialState: stateModel.EmptyCompressed(),
	}, zk.ZkDataPairs{}, types.Ziesha(0), 1)

	applyDraft(t, c, 1, []types.TransactionAndDelta{tx}, miner, true)

	height, _ := c.GetHeight()
	if height != 2 {
		t.Fatalf("expected height 2, got %d", height)
	}
	outdated, _ := c.GetOutdatedContracts()
	if len(outdated) != 1 {
		t.Fatalf("expected 1 outdated contract, got %d", len(outdated))
	}

	// Drafting is refused while a contract is outdated; an empty delta
	// brings the new contract's tree up to date.
	draft, err := c.Fork().DraftBlock(1, nil, miner, true)
	if err == nil && draft != nil {
		t.Fatal("drafting with outdated states should not succeed")
	}
	delta := zk.ZkDeltaPairs{}
	if err := c.UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{
			types.NewContractId(&tx.Tx): {Delta: &delta},
		},
	}); err != nil {
		t.Fatalf("update states failed: %v", err)
	}
	outdated, _ = c.GetOutdatedContracts()
	if len(outdated) != 0 {
		t.Fatalf("expected no outdated contracts, got %d", len(outdated))
	}

	rollbackTillEmpty(t, c)
}

func TestMpnContractPatching(t *testing.T) {
	miner := wallet.NewTxBuilder([]byte("VALIDATOR"))
	alice := wallet.NewTxBuilder([]byte("ABC"))
	c := newTestChain(t)

	cid := c.Config().Mpn.MpnContractId
	stateModel := c.Config().Mpn.StateModel()

	fullData := zk.ZkDataPairs{"1-0": zk.ZkScalarFromUint64(200)}
	compressed1, err := stateModel.Compress(fullData)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	initTx := alice.CallFunction("", cid, 0, fullData.AsDelta(), compressed1,
		zk.DummyProof(true), types.Ziesha(0), types.Ziesha(0), 1)
	draft1 := applyDraft(t, c, 1, []types.TransactionAndDelta{initTx}, miner, false)
	if err := c.UpdateStates(&draft1.Patch); err != nil {
		t.Fatalf("update states failed: %v", err)
	}

	v234 := zk.ZkScalarFromUint64(234)
	stateDelta := zk.ZkDeltaPairs{"2-3-1-0": &v234}
	fullData["2-3-1-0"] = v234
	compressed2, err := stateModel.Compress(fullData)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	tx := alice.CallFunction("", cid, 0, stateDelta, compressed2,
		zk.DummyProof(true), types.Ziesha(0), types.Ziesha(0), 2)
	draft2, err := c.DraftBlock(2, []types.TransactionAndDelta{tx}, miner, false)
	if err != nil || draft2 == nil {
		t.Fatalf("draft failed: %v", err)
	}
	if err := c.ApplyBlock(&draft2.Block); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// A missing patch entry cannot reconcile the outdated contract.
	if err := c.Fork().UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{},
	}); err != chain.ErrFullStateNotFound {
		t.Fatalf("expected ErrFullStateNotFound, got %v", err)
	}

	// A delta with the wrong value lands on the wrong root.
	v321 := zk.ZkScalarFromUint64(321)
	if err := c.Fork().UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{
			cid: {Delta: &zk.ZkDeltaPairs{"2-3-1-0": &v321}},
		},
	}); !errors.Is(err, chain.ErrFullStateNotValid) {
		t.Fatalf("expected ErrFullStateNotValid, got %v", err)
	}

	// The correct delta reconciles.
	if err := c.Fork().UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{
			cid: {Delta: &stateDelta},
		},
	}); err != nil {
		t.Fatalf("correct delta should reconcile: %v", err)
	}

	// A full snapshot missing the new key lands on the wrong root.
	if err := c.Fork().UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{
			cid: {Full: &zk.ZkState{
				Data: zk.ZkDataPairs{"1-0": zk.ZkScalarFromUint64(200)},
			}},
		},
	}); !errors.Is(err, chain.ErrFullStateNotValid) {
		t.Fatalf("expected ErrFullStateNotValid, got %v", err)
	}

	// The complete snapshot reconciles.
	if err := c.Fork().UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{
			cid: {Full: &zk.ZkState{
				Data: zk.ZkDataPairs{
					"1-0":     zk.ZkScalarFromUint64(200),
					"2-3-1-0": v234,
				},
			}},
		},
	}); err != nil {
		t.Fatalf("full snapshot should reconcile: %v", err)
	}

	// Patch generation: an up-to-date fork serves a lagging one.
	unupdated := c.Fork()
	updated := c.Fork()
	if err := updated.UpdateStates(&chain.ZkBlockchainPatch{
		Patches: map[types.ContractId]zk.ZkStatePatch{
			cid: {Delta: &stateDelta},
		},
	}); err != nil {
		t.Fatalf("update states failed: %v", err)
	}
	out, _ := updated.GetOutdatedContracts()
	if len(out) != 0 {
		t.Fatal("updated fork should have no outdated contracts")
	}
	heights, err := unupdated.GetOutdatedHeights()
	if err != nil {
		t.Fatalf("outdated heights failed: %v", err)
	}
	if len(heights) != 1 {
		t.Fatalf("expected 1 outdated height, got %d", len(heights))
	}
	tip, _ := updated.GetTip()
	genPatch, err := updated.GenerateStatePatch(heights, tip.Hash())
	if err != nil {
		t.Fatalf("generate patch failed: %v", err)
	}
	if err := unupdated.UpdateStates(genPatch); err != nil {
		t.Fatalf("generated patch should reconcile: %v", err)
	}
	out, _ = unupdated.GetOutdatedContracts()
	if len(out) != 0 {
		t.Fatal("lagging fork should be reconciled")
	}

	if err := c.UpdateStates(&draft2.Patch); err != nil {
		t.Fatalf("update states failed: %v", err)
	}
	height, _ := c.GetHeight()
	if height != 3 {
		t.Fatalf("expected height 3, got %d", height)
	}

	// Error paths of the update pipeline.
	badNonceTxAndDelta := alice.CallFunction("", cid, 0, stateDelta, compressed2,
		zk.DummyProof(true), types.Ziesha(0), types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&badNonceTxAndDelta.Tx, false); err != chain.ErrInvalidTransactionNonce {
		t.Fatalf("expected ErrInvalidTransactionNonce, got %v", err)
	}
	noContractTxAndDelta := alice.CallFunction("", types.ContractId{}, 0, stateDelta, compressed2,
		zk.DummyProof(true), types.Ziesha(0), types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&noContractTxAndDelta.Tx, false); err != chain.ErrContractNotFound {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
	noFuncTxAndDelta := alice.CallFunction("", cid, 1, stateDelta, compressed2,
		zk.DummyProof(true), types.Ziesha(0), types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&noFuncTxAndDelta.Tx, false); err != chain.ErrContractFunctionNotFound {
		t.Fatalf("expected ErrContractFunctionNotFound, got %v", err)
	}
	badProofTxAndDelta := alice.CallFunction("", cid, 0, stateDelta, compressed2,
		zk.DummyProof(false), types.Ziesha(0), types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&badProofTxAndDelta.Tx, false); err != chain.ErrIncorrectZkProof {
		t.Fatalf("expected ErrIncorrectZkProof, got %v", err)
	}

	// Unwind the whole chain.
	if err := c.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	height, _ = c.GetHeight()
	if height != 2 {
		t.Fatalf("expected height 2, got %d", height)
	}
	out, _ = c.GetOutdatedContracts()
	if len(out) != 0 {
		t.Fatal("rollback should keep the contract reconciled")
	}
	rollbackTillEmpty(t, c)
}

func TestDepositAndWithdraw(t *testing.T) {
	alice := wallet.NewTxBuilder([]byte("ABC"))
	c := newTestChain(t)

	cid := c.Config().Mpn.MpnContractId
	account, err := c.GetContractAccount(cid)
	if err != nil {
		t.Fatalf("contract account failed: %v", err)
	}
	unchanged := account.CompressedState

	deposit := alice.BuildDeposit(cid, 0, types.Ziesha(100), types.Ziesha(5), 1, zk.ZkScalarFromUint64(0))
	depositTx := alice.DepositTx("", cid, 0, []types.ContractDeposit{deposit},
		zk.ZkDeltaPairs{}, unchanged, zk.DummyProof(true), types.Ziesha(0), 1)
	if _, err := c.ApplyTx(&depositTx.Tx, false); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// 100 into the contract; the 5 executor fee flows back to the
	// transaction source, which here is the depositor itself.
	contractBal, _ := c.GetContractBalance(cid, types.ZieshaTokenId)
	if contractBal != 100 {
		t.Fatalf("expected contract balance 100, got %d", contractBal)
	}
	bal, _ := c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	if bal != 9_900 {
		t.Fatalf("expected balance 9900, got %d", bal)
	}
	nonce, _ := c.GetDepositNonce(alice.GetAddress(), cid)
	if nonce != 1 {
		t.Fatalf("expected deposit nonce 1, got %d", nonce)
	}
	acc, _ := c.GetAccount(alice.GetAddress())
	if acc.MpnDepositNonce != 1 {
		t.Fatalf("expected mirrored mpn deposit nonce 1, got %d", acc.MpnDepositNonce)
	}

	// Replaying the deposit nonce fails.
	replay := alice.DepositTx("", cid, 0, []types.ContractDeposit{deposit},
		zk.ZkDeltaPairs{}, unchanged, zk.DummyProof(true), types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&replay.Tx, false); err != chain.ErrInvalidTransactionNonce {
		t.Fatalf("expected ErrInvalidTransactionNonce, got %v", err)
	}

	// A deposit routed to the wrong circuit is rejected wholesale.
	wrong := alice.BuildDeposit(cid, 1, types.Ziesha(10), types.Ziesha(0), 2, zk.ZkScalarFromUint64(0))
	wrongTx := alice.DepositTx("", cid, 0, []types.ContractDeposit{wrong},
		zk.ZkDeltaPairs{}, unchanged, zk.DummyProof(true), types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&wrongTx.Tx, false); err != chain.ErrDepositWithdrawPassedToWrongFunction {
		t.Fatalf("expected ErrDepositWithdrawPassedToWrongFunction, got %v", err)
	}

	// Withdraw 30 with a 2 executor fee, both paid by the contract.
	withdraw := types.ContractWithdraw{
		ContractId:        cid,
		WithdrawCircuitId: 0,
		Dst:               alice.GetAddress(),
		Amount:            types.Ziesha(30),
		Fee:               types.Ziesha(2),
	}
	withdrawTx := alice.WithdrawTx("", cid, 0, []types.ContractWithdraw{withdraw},
		zk.ZkDeltaPairs{}, unchanged, zk.DummyProof(true), types.Ziesha(0), 2)
	if _, err := c.ApplyTx(&withdrawTx.Tx, false); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	contractBal, _ = c.GetContractBalance(cid, types.ZieshaTokenId)
	if contractBal != 68 {
		t.Fatalf("expected contract balance 68, got %d", contractBal)
	}
	bal, _ = c.GetBalance(alice.GetAddress(), types.ZieshaTokenId)
	if bal != 9_932 {
		t.Fatalf("expected balance 9932, got %d", bal)
	}

	// An over-large withdraw drains past the contract's funds.
	tooMuch := types.ContractWithdraw{
		ContractId:        cid,
		WithdrawCircuitId: 0,
		Dst:               alice.GetAddress(),
		Amount:            types.Ziesha(1_000),
		Fee:               types.Ziesha(0),
	}
	tooMuchTx := alice.WithdrawTx("", cid, 0, []types.ContractWithdraw{tooMuch},
		zk.ZkDeltaPairs{}, unchanged, zk.DummyProof(true), types.Ziesha(0), 3)
	if _, err := c.ApplyTx(&tooMuchTx.Tx, false); err != chain.ErrContractBalanceInsufficient {
		t.Fatalf("expected ErrContractBalanceInsufficient, got %v", err)
	}
}
