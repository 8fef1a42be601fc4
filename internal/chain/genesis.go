package chain

import (
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
	"github.com/ziesha/core/pkg/wallet"
)

// Genesis fixture constants. The treasury starts with the whole supply;
// the per-block reward is carved out of what remains.
const (
	GenesisSupply    = types.Amount(2_000_000_000_000_000_000)
	ZieshaDecimals   = 9
	testSeedBalance  = types.Amount(10_000)
	testGenesisStake = types.Amount(25)
)

// treasuryTx builds an unsigned treasury transaction for the genesis body.
func treasuryTx(nonce uint64, data types.TransactionData) types.Transaction {
	return types.Transaction{
		Src:   nil,
		Nonce: nonce,
		Fee:   types.Ziesha(0),
		Memo:  "",
		Data:  data,
	}
}

// buildGenesis assembles a genesis block from treasury transactions plus
// pre-signed extras, and wires the derived ids into the config.
func buildGenesis(cfg *Config, extra []types.Transaction) {
	createZiesha := treasuryTx(1, types.TransactionData{
		CreateToken: &types.CreateTokenData{
			Token: types.Token{
				Name:     "Ziesha",
				Symbol:   "ZSH",
				Supply:   GenesisSupply,
				Decimals: ZieshaDecimals,
			},
		},
	})
	cfg.ZieshaGenesisId = types.NewTokenId(&createZiesha)

	mpnModel := cfg.Mpn.StateModel()
	createMpn := treasuryTx(2, types.TransactionData{
		CreateContract: &types.CreateContractData{
			Contract: types.Contract{
				InitialState: mpnModel.EmptyCompressed(),
				StateModel:   mpnModel,
				Functions: []types.ContractFunction{
					{VerifierKey: zk.DummyVerifierKey(), Log4PaymentCapacity: 1},
				},
				DepositFunctions: []types.ContractFunction{
					{VerifierKey: zk.DummyVerifierKey(), Log4PaymentCapacity: 1},
				},
				WithdrawFunctions: []types.ContractFunction{
					{VerifierKey: zk.DummyVerifierKey(), Log4PaymentCapacity: 1},
				},
			},
		},
	})
	cfg.Mpn.MpnContractId = types.NewContractId(&createMpn)

	body := []types.Transaction{createZiesha, createMpn}
	body = append(body, extra...)

	blk := types.Block{
		Header: types.Header{
			ParentHash: types.Hash{},
			Number:     0,
			ProofOfStake: types.ProofOfStake{
				Timestamp: cfg.GenesisTimestamp,
				Validator: types.TreasuryAddress,
			},
		},
		Body: body,
	}
	blk.Header.BlockRoot = blk.MerkleRoot()

	// The MPN contract starts empty; an empty delta reconciles its tree.
	emptyDelta := zk.ZkDeltaPairs{}
	cfg.Genesis = &BlockAndPatch{
		Block: blk,
		Patch: ZkBlockchainPatch{
			Patches: map[types.ContractId]zk.ZkStatePatch{
				cfg.Mpn.MpnContractId: {Delta: &emptyDelta},
			},
		},
	}
}

// GetTestBlockchainConfig returns the deterministic test configuration:
// validator checking off, 5-second slots in 10-slot epochs, a genesis that
// funds the DELEGATOR and ABC seed identities, registers VALIDATOR's VRF key
// and delegates DELEGATOR's stake to it, and a registered MPN contract with
// dummy verifiers.
func GetTestBlockchainConfig() *Config {
	cfg := DefaultConfig()
	cfg.CheckValidator = false
	cfg.SlotDuration = 5
	cfg.SlotsPerEpoch = 10
	cfg.UndelegationPeriod = 10
	cfg.Mpn.Log4TreeSize = 5
	cfg.Mpn.Log4TokenTreeSize = 3
	cfg.Mpn.MpnNumUpdateBatches = 1
	cfg.Mpn.MpnNumDepositBatches = 0
	cfg.Mpn.MpnNumWithdrawBatches = 0

	validator := wallet.NewTxBuilder([]byte("VALIDATOR"))
	delegator := wallet.NewTxBuilder([]byte("DELEGATOR"))
	abc := wallet.NewTxBuilder([]byte("ABC"))

	fund := treasuryTx(3, types.TransactionData{
		RegularSend: &types.RegularSendData{
			Entries: []types.RegularSendEntry{
				{Dst: abc.GetAddress(), Amount: types.Ziesha(testSeedBalance)},
				{Dst: delegator.GetAddress(), Amount: types.Ziesha(testSeedBalance)},
			},
		},
	})
	register := validator.RegisterValidator("", types.Ziesha(0), 1)
	delegate := delegator.Delegate("", validator.GetAddress(), testGenesisStake, false, types.Ziesha(0), 1)

	buildGenesis(cfg, []types.Transaction{fund, register.Tx, delegate.Tx})
	return cfg
}

// GetBlockchainConfig returns the production configuration with a bare
// genesis: the Ziesha token and the MPN contract, nothing else.
func GetBlockchainConfig() *Config {
	cfg := DefaultConfig()
	buildGenesis(cfg, nil)
	return cfg
}
