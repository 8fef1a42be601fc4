package types

// Token name/symbol limits
const (
	MaxTokenNameLen   = 32
	MaxTokenSymbolLen = 10
)

// Token is a fungible asset created on chain. A nil Minter makes the
// supply fixed forever.
type Token struct {
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Supply   Amount   `json:"supply"`
	Decimals uint8    `json:"decimals"`
	Minter   *Address `json:"minter,omitempty"`
}

// Validate checks the token's name and symbol against the printable-ASCII
// predicate: a non-empty printable name and an upper-case alphanumeric
// symbol, both bounded.
func (t *Token) Validate() bool {
	if len(t.Name) == 0 || len(t.Name) > MaxTokenNameLen {
		return false
	}
	for _, c := range t.Name {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	if len(t.Symbol) == 0 || len(t.Symbol) > MaxTokenSymbolLen {
		return false
	}
	for _, c := range t.Symbol {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// Account is the mutable per-address record. Balances live under separate
// per-token keys. MpnDepositNonce mirrors the deposit nonce against the
// MPN contract so wallets can build deposits without a contract lookup.
type Account struct {
	Nonce           uint64 `json:"nonce"`
	MpnDepositNonce uint64 `json:"mpn_deposit_nonce"`
}

// Delegate is the amount one address has delegated to a delegatee.
type Delegate struct {
	Amount Amount `json:"amount"`
}

// Staker is a registered validator candidate: its VRF public key.
type Staker struct {
	VRFPubKey []byte `json:"vrf_pub_key"`
}

// UndelegationId distinguishes concurrent undelegations by one address.
type UndelegationId uint32

// Undelegation is stake on its way back to liquidity. The amount is in no
// balance until claimed at or after UnlocksOn.
type Undelegation struct {
	Amount    Amount `json:"amount"`
	UnlocksOn uint64 `json:"unlocks_on"`
}
