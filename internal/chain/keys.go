package chain

import (
	"fmt"

	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/pkg/types"
)

// Persisted key layout. Numeric sort fields are zero-padded decimal so
// lexical key order matches numeric order; the KV layer provides no
// comparators.

func heightKey() kv.StringKey {
	return "height"
}

func outdatedKey() kv.StringKey {
	return "outdated"
}

func randomnessKey() kv.StringKey {
	return "randomness"
}

func blockKey(n uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("block_%010d", n))
}

func headerKey(n uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("header_%010d", n))
}

func merkleKey(n uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("merkle_%010d", n))
}

func rollbackKey(n uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("rollback_%010d", n))
}

func powerKey(n uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("power_%010d", n))
}

func contractUpdatesKey(n uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("contract_updates_%010d", n))
}

func accountKey(addr types.Address) kv.StringKey {
	return kv.StringKey("account_" + addr.String())
}

func balanceKey(addr types.Address, token types.TokenId) kv.StringKey {
	return kv.StringKey("balance_" + addr.String() + "_" + token.String())
}

func tokenKey(id types.TokenId) kv.StringKey {
	return kv.StringKey("token_" + id.String())
}

func stakerKey(addr types.Address) kv.StringKey {
	return kv.StringKey("staker_" + addr.String())
}

func stakeKey(addr types.Address) kv.StringKey {
	return kv.StringKey("stake_" + addr.String())
}

func delegateKey(from, to types.Address) kv.StringKey {
	return kv.StringKey("delegate_" + from.String() + "_" + to.String())
}

func contractKey(cid types.ContractId) kv.StringKey {
	return kv.StringKey("contract_" + cid.String())
}

func contractAccountKey(cid types.ContractId) kv.StringKey {
	return kv.StringKey("contract_account_" + cid.String())
}

func compressedStateAtKey(cid types.ContractId, height uint64) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("contract_compressed_state_%s_%d", cid.String(), height))
}

func contractBalanceKey(cid types.ContractId, token types.TokenId) kv.StringKey {
	return kv.StringKey("contract_balance_" + cid.String() + "_" + token.String())
}

func depositNonceKey(addr types.Address, cid types.ContractId) kv.StringKey {
	return kv.StringKey("deposit_nonce_" + addr.String() + "_" + cid.String())
}

func undelegationKey(undelegator types.Address, id types.UndelegationId) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("undeleg_%s_%010d", undelegator.String(), id))
}

// stakerRankKey orders stakers by amount; iterated in reverse it yields
// the top stakers first.
func stakerRankKey(amount types.Amount, addr types.Address) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("stkrnk_%020d_%s", amount, addr.String()))
}

const stakerRankPrefix = "stkrnk_"

// delegatorRankKey orders a delegatee's delegators by delegated amount.
func delegatorRankKey(delegatee types.Address, amount types.Amount, delegator types.Address) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("deltorrnk_%s_%020d_%s", delegatee.String(), amount, delegator.String()))
}

func delegatorRankPrefix(delegatee types.Address) kv.StringKey {
	return kv.StringKey("deltorrnk_" + delegatee.String() + "_")
}

// delegateeRankKey orders a delegator's delegatees by delegated amount.
func delegateeRankKey(delegator types.Address, amount types.Amount, delegatee types.Address) kv.StringKey {
	return kv.StringKey(fmt.Sprintf("deleeernk_%s_%020d_%s", delegator.String(), amount, delegatee.String()))
}
