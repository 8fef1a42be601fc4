package chain

import (
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
)

// MpnConfig describes the designated zk payment-network contract: its id,
// the shape of its account tree, and the per-block minimum batch counts.
type MpnConfig struct {
	MpnContractId         types.ContractId
	Log4TreeSize          uint8
	Log4TokenTreeSize     uint8
	MpnNumUpdateBatches   int
	MpnNumDepositBatches  int
	MpnNumWithdrawBatches int
}

// StateModel returns the MPN account tree model: a 4-ary list of accounts,
// each a struct of nonce, the two public-key coordinates, and a nested
// token list of (token id, amount) slots.
func (m *MpnConfig) StateModel() zk.ZkStateModel {
	return zk.ListModel(
		zk.StructModel(
			zk.ScalarModel(), // nonce
			zk.ScalarModel(), // pub-key x
			zk.ScalarModel(), // pub-key y
			zk.ListModel(
				zk.StructModel(
					zk.ScalarModel(), // token id
					zk.ScalarModel(), // amount
				),
				m.Log4TokenTreeSize,
			),
		),
		m.Log4TreeSize,
	)
}

// Config is the network configuration the chain handle is constructed
// with. A handle owns exactly one store; nothing here is process-global.
type Config struct {
	// Genesis is applied when the store is empty: the genesis block plus
	// the state patch that reconciles its contract creations.
	Genesis *BlockAndPatch

	// ZieshaGenesisId is the token id derived by the genesis CreateToken
	// transaction; creation remaps it onto the distinguished Ziesha id.
	ZieshaGenesisId types.TokenId

	MaxBlockSize  int
	MaxDeltaCount int
	MaxMemoLength int

	Mpn MpnConfig

	// MpnGraceHeight is the height below which no MPN minimum batch
	// counts are enforced.
	MpnGraceHeight uint64

	// TestnetHeightLimit, when set, rejects blocks at or past the limit.
	TestnetHeightLimit *uint64

	// CheckValidator gates validator eligibility checking; off in tests.
	CheckValidator bool

	// Epoch timing. Slots count from GenesisTimestamp.
	GenesisTimestamp uint32
	SlotDuration     uint32
	SlotsPerEpoch    uint32

	// MaxValidators is the size of the eligible staker set per epoch.
	MaxValidators int

	// MaxValidatorAttempts bounds the per-slot VRF attempt counter.
	MaxValidatorAttempts uint32

	// UndelegationPeriod is the number of blocks an undelegation stays
	// locked.
	UndelegationPeriod uint64

	// RewardRatio divides the treasury balance into the per-block reward.
	RewardRatio uint64

	// ValidatorRewardNum/Den is the validator's cut of the block reward;
	// the remainder goes pro rata to its delegators.
	ValidatorRewardNum uint64
	ValidatorRewardDen uint64
}

// DefaultConfig returns the production configuration, genesis aside.
func DefaultConfig() *Config {
	return &Config{
		MaxBlockSize:  1 << 20,
		MaxDeltaCount: 1024,
		MaxMemoLength: 64,
		Mpn: MpnConfig{
			Log4TreeSize:          15,
			Log4TokenTreeSize:     3,
			MpnNumUpdateBatches:   1,
			MpnNumDepositBatches:  1,
			MpnNumWithdrawBatches: 1,
		},
		MpnGraceHeight:       10_000,
		CheckValidator:       true,
		GenesisTimestamp:     1_700_000_000,
		SlotDuration:         60,
		SlotsPerEpoch:        10,
		MaxValidators:        32,
		MaxValidatorAttempts: 32,
		UndelegationPeriod:   80_640,
		RewardRatio:          100_000,
		ValidatorRewardNum:   12,
		ValidatorRewardDen:   255,
	}
}
