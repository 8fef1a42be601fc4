package chain

import (
	"encoding/json"

	"github.com/ziesha/core/internal/kv"
	"github.com/ziesha/core/internal/zk"
	"github.com/ziesha/core/pkg/types"
)

// KvStoreChain is the chain handle: one store, one configuration, one
// writer. Hosts construct as many handles as they need; the core keeps no
// process-wide state.
type KvStoreChain struct {
	database kv.KvStore
	config   *Config
}

// NewKvStoreChain opens a chain over the given store, applying the
// configured genesis block when the store is empty.
func NewKvStoreChain(db kv.KvStore, config *Config) (*KvStoreChain, error) {
	c := &KvStoreChain{database: db, config: config}
	height, err := c.GetHeight()
	if err != nil {
		return nil, err
	}
	if height == 0 && config.Genesis != nil {
		if err := c.ApplyBlock(&config.Genesis.Block); err != nil {
			return nil, err
		}
		if err := c.UpdateStates(&config.Genesis.Patch); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Config returns the chain's configuration.
func (c *KvStoreChain) Config() *Config {
	return c.config
}

// Checksum returns the byte-level digest of the underlying store.
func (c *KvStoreChain) Checksum() ([32]byte, error) {
	return c.database.Checksum()
}

// Fork returns a chain over an in-memory overlay of this chain's store.
// Everything done on the fork stays invisible to the parent.
func (c *KvStoreChain) Fork() *KvStoreChain {
	return &KvStoreChain{
		database: kv.NewMirrorKvStore(c.database),
		config:   c.config,
	}
}

// isolated runs f against an overlay fork. On success it returns the
// overlay's op-list for the caller to commit or discard; on failure the
// overlay is dropped and the parent store is untouched.
func (c *KvStoreChain) isolated(f func(fork *KvStoreChain) error) ([]kv.WriteOp, error) {
	mirror := kv.NewMirrorKvStore(c.database)
	fork := &KvStoreChain{database: mirror, config: c.config}
	if err := f(fork); err != nil {
		return nil, err
	}
	return mirror.ToOps(), nil
}

// getJSON reads and decodes a stored value; ok is false when absent.
func (c *KvStoreChain) getJSON(key kv.StringKey, out interface{}) (bool, error) {
	blob, err := c.database.Get(key)
	if err != nil {
		return false, err
	}
	if blob == nil {
		return false, nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return false, err
	}
	return true, nil
}

// putOp encodes a value into a write operation.
func putOp(key kv.StringKey, v interface{}) kv.WriteOp {
	blob, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return kv.Put(key, blob)
}

// GetHeight returns the number of blocks ever applied.
func (c *KvStoreChain) GetHeight() (uint64, error) {
	var h uint64
	if _, err := c.getJSON(heightKey(), &h); err != nil {
		return 0, err
	}
	return h, nil
}

// GetHeader returns the header at block number n.
func (c *KvStoreChain) GetHeader(n uint64) (types.Header, error) {
	var h types.Header
	ok, err := c.getJSON(headerKey(n), &h)
	if err != nil {
		return h, err
	}
	if !ok {
		return h, ErrInconsistency
	}
	return h, nil
}

// GetBlock returns the block at number n.
func (c *KvStoreChain) GetBlock(n uint64) (types.Block, error) {
	var b types.Block
	ok, err := c.getJSON(blockKey(n), &b)
	if err != nil {
		return b, err
	}
	if !ok {
		return b, ErrInconsistency
	}
	return b, nil
}

// GetTip returns the header of the newest applied block.
func (c *KvStoreChain) GetTip() (types.Header, error) {
	height, err := c.GetHeight()
	if err != nil {
		return types.Header{}, err
	}
	if height == 0 {
		return types.Header{}, ErrInconsistency
	}
	return c.GetHeader(height - 1)
}

// GetPower returns the accumulated fork-choice power at the current tip.
func (c *KvStoreChain) GetPower() (uint64, error) {
	height, err := c.GetHeight()
	if err != nil {
		return 0, err
	}
	var p uint64
	if _, err := c.getJSON(powerKey(height), &p); err != nil {
		return 0, err
	}
	return p, nil
}

// GetAccount returns the account record of an address; missing accounts
// read as zeroed records.
func (c *KvStoreChain) GetAccount(addr types.Address) (types.Account, error) {
	var a types.Account
	if _, err := c.getJSON(accountKey(addr), &a); err != nil {
		return a, err
	}
	return a, nil
}

// GetBalance returns an address's balance of a token.
func (c *KvStoreChain) GetBalance(addr types.Address, token types.TokenId) (types.Amount, error) {
	var a types.Amount
	if _, err := c.getJSON(balanceKey(addr, token), &a); err != nil {
		return 0, err
	}
	return a, nil
}

// GetContractBalance returns a contract's balance of a token.
func (c *KvStoreChain) GetContractBalance(cid types.ContractId, token types.TokenId) (types.Amount, error) {
	var a types.Amount
	if _, err := c.getJSON(contractBalanceKey(cid, token), &a); err != nil {
		return 0, err
	}
	return a, nil
}

// GetToken returns a token record, or nil when the id is unknown.
func (c *KvStoreChain) GetToken(id types.TokenId) (*types.Token, error) {
	var t types.Token
	ok, err := c.getJSON(tokenKey(id), &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// GetDelegate returns the delegation from one address to another.
func (c *KvStoreChain) GetDelegate(from, to types.Address) (types.Delegate, error) {
	var d types.Delegate
	if _, err := c.getJSON(delegateKey(from, to), &d); err != nil {
		return d, err
	}
	return d, nil
}

// GetStake returns the total stake delegated to an address.
func (c *KvStoreChain) GetStake(addr types.Address) (types.Amount, error) {
	var a types.Amount
	if _, err := c.getJSON(stakeKey(addr), &a); err != nil {
		return 0, err
	}
	return a, nil
}

// GetStaker returns an address's registered VRF key, or nil.
func (c *KvStoreChain) GetStaker(addr types.Address) (*types.Staker, error) {
	var s types.Staker
	ok, err := c.getJSON(stakerKey(addr), &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// GetUndelegation returns one of an address's pending undelegations, or
// nil.
func (c *KvStoreChain) GetUndelegation(undelegator types.Address, id types.UndelegationId) (*types.Undelegation, error) {
	var u types.Undelegation
	ok, err := c.getJSON(undelegationKey(undelegator, id), &u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetContract returns a contract definition.
func (c *KvStoreChain) GetContract(cid types.ContractId) (types.Contract, error) {
	var ct types.Contract
	ok, err := c.getJSON(contractKey(cid), &ct)
	if err != nil {
		return ct, err
	}
	if !ok {
		return ct, ErrContractNotFound
	}
	return ct, nil
}

// GetContractAccount returns a contract's mutable on-chain record.
func (c *KvStoreChain) GetContractAccount(cid types.ContractId) (types.ContractAccount, error) {
	var ca types.ContractAccount
	ok, err := c.getJSON(contractAccountKey(cid), &ca)
	if err != nil {
		return ca, err
	}
	if !ok {
		return ca, ErrContractNotFound
	}
	return ca, nil
}

// GetCompressedStateAt returns the contract's compressed state at a past
// on-chain height.
func (c *KvStoreChain) GetCompressedStateAt(cid types.ContractId, height uint64) (zk.ZkCompressedState, error) {
	var cs zk.ZkCompressedState
	ok, err := c.getJSON(compressedStateAtKey(cid, height), &cs)
	if err != nil {
		return cs, err
	}
	if !ok {
		return cs, ErrInconsistency
	}
	return cs, nil
}

// GetDepositNonce returns the deposit nonce of an address against a
// contract.
func (c *KvStoreChain) GetDepositNonce(addr types.Address, cid types.ContractId) (uint64, error) {
	var n uint64
	if _, err := c.getJSON(depositNonceKey(addr, cid), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetOutdatedContracts lists the contracts whose off-chain state cannot
// currently be derived locally. A non-empty list blocks block production.
func (c *KvStoreChain) GetOutdatedContracts() ([]types.ContractId, error) {
	var out []types.ContractId
	if _, err := c.getJSON(outdatedKey(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ContractStateChange records one contract's compressed-state movement
// inside a block, in body order.
type ContractStateChange struct {
	ContractId types.ContractId        `json:"contract_id"`
	Change     ZkCompressedStateChange `json:"change"`
}

// ZkCompressedStateChange is the before/after of one contract across a
// transaction or block.
type ZkCompressedStateChange struct {
	PrevHeight uint64               `json:"prev_height"`
	PrevState  zk.ZkCompressedState `json:"prev_state"`
	State      zk.ZkCompressedState `json:"state"`
}

// GetChangedStates returns the contract state changes of the newest
// applied block.
func (c *KvStoreChain) GetChangedStates() ([]ContractStateChange, error) {
	height, err := c.GetHeight()
	if err != nil {
		return nil, err
	}
	if height == 0 {
		return nil, nil
	}
	var changes []ContractStateChange
	if _, err := c.getJSON(contractUpdatesKey(height-1), &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// WillExtend checks that the given headers form a chain extending the
// current tip at the given height.
func (c *KvStoreChain) WillExtend(height uint64, headers []types.Header) error {
	tip, err := c.GetTip()
	if err != nil {
		return err
	}
	prevHash := tip.Hash()
	for i := range headers {
		if headers[i].Number != height+uint64(i) {
			return ErrInvalidBlockNumber
		}
		if headers[i].ParentHash != prevHash {
			return ErrInvalidParentHash
		}
		prevHash = headers[i].Hash()
	}
	return nil
}

// Extend applies blocks on top of the chain, requiring the caller's view
// of the height to match.
func (c *KvStoreChain) Extend(expectedHeight uint64, blocks []types.Block) error {
	height, err := c.GetHeight()
	if err != nil {
		return err
	}
	if height != expectedHeight {
		return ErrInconsistency
	}
	for i := range blocks {
		if err := c.ApplyBlock(&blocks[i]); err != nil {
			return err
		}
	}
	return nil
}
