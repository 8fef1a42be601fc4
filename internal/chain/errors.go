// Package chain implements the state transition engine: deterministic,
// rollback-safe application of blocks and transactions against a KV store,
// the zk-contract update pipeline, delegation bookkeeping, and block
// drafting.
package chain

import (
	"errors"

	"github.com/ziesha/core/internal/zk"
)

// Flow errors
var (
	ErrInvalidTransactionNonce     = errors.New("transaction nonce is not account nonce + 1")
	ErrBalanceInsufficient         = errors.New("balance insufficient")
	ErrContractBalanceInsufficient = errors.New("contract balance insufficient")
	ErrMemoTooLong                 = errors.New("memo exceeds maximum length")
	ErrOnlyZieshaFeesAccepted      = errors.New("only ziesha fees are accepted")
	ErrIllegalTreasuryAccess       = errors.New("treasury transactions are only allowed in genesis")
)

// Token errors
var (
	ErrTokenAlreadyExists          = errors.New("token already exists")
	ErrTokenBadNameSymbol          = errors.New("token has invalid name or symbol")
	ErrTokenNotFound               = errors.New("token not found")
	ErrTokenNotUpdatable           = errors.New("token is not updatable")
	ErrTokenUpdatePermissionDenied = errors.New("only the minter may update the token")
	ErrTokenSupplyOverflow         = errors.New("token supply overflow")
)

// Contract errors
var (
	ErrContractFunctionNotFound             = errors.New("contract function not found")
	ErrContractNotFound                     = errors.New("contract not found")
	ErrDepositWithdrawPassedToWrongFunction = errors.New("deposit or withdraw passed to wrong function")
	ErrIncorrectZkProof                     = errors.New("incorrect zk proof")
	ErrInvalidStateModel                    = zk.ErrInvalidStateModel
	ErrInvalidContractPaymentSignature      = errors.New("invalid contract payment signature")
)

// Block errors
var (
	ErrInvalidMerkleRoot            = errors.New("block root does not match the body merkle root")
	ErrInvalidParentHash            = errors.New("header does not link to the tip")
	ErrInvalidBlockNumber           = errors.New("header number does not extend the chain")
	ErrSignatureError               = errors.New("body signature verification failed")
	ErrBlockTooBig                  = errors.New("block exceeds maximum size")
	ErrUnelectedValidator           = errors.New("validator is not elected for this slot")
	ErrValidatorProofNotGiven       = errors.New("validator proof not given")
	ErrRandomnessChangeNotPermitted = errors.New("randomness may only change on a first-attempt proof")
	ErrInsufficientMpnUpdates       = errors.New("block does not carry enough mpn updates")
	ErrTestnetHeightLimitReached    = errors.New("testnet height limit reached")
)

// Delegation errors
var (
	ErrUndelegationNotFound = errors.New("undelegation not found")
	ErrUndelegationLocked   = errors.New("undelegation is still locked")
	ErrInconsistency        = errors.New("chain state inconsistency")
)

// State sync errors
var (
	ErrStatesOutdated    = errors.New("contract states are outdated")
	ErrStatesUnavailable = errors.New("requested states are unavailable")
	ErrFullStateNotFound = errors.New("no patch entry for outdated contract")
	ErrFullStateNotValid = zk.ErrFullStateNotValid
)

// Rollback errors
var (
	ErrNoBlocksToRollback = errors.New("no blocks to rollback")
)
