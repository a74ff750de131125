package lending

import (
	"fmt"
	"strings"

	"lendcore/crypto"
)

// TokenStandard identifies the fungible-asset primitive a market settles in.
const TokenStandard = "lend-token-v1"

// LendingMarket owns the governance roles and the market-wide outflow limit.
type LendingMarket struct {
	Version               uint8
	Address               crypto.Address
	Owner                 crypto.Address
	RiskAuthority         crypto.Address
	WhitelistedLiquidator crypto.Address
	QuoteCurrency         [32]byte
	RateLimiter           RateLimiter
	TokenStandard         string
}

// Clone returns a copy of the market.
func (m *LendingMarket) Clone() *LendingMarket {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// EncodeQuoteCurrency packs a currency symbol such as "USD" into the fixed
// width field stored on the market.
func EncodeQuoteCurrency(symbol string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" || len(trimmed) > len(out) {
		return out, fmt.Errorf("lending: quote currency must be 1-32 bytes")
	}
	copy(out[:], trimmed)
	return out, nil
}

// QuoteCurrencySymbol returns the quote currency with padding removed.
func (m *LendingMarket) QuoteCurrencySymbol() string {
	return strings.TrimRight(string(m.QuoteCurrency[:]), "\x00")
}

// NewLendingMarket creates a market owned by owner, who also starts as risk
// authority.
func NewLendingMarket(addr, owner crypto.Address, quote [32]byte, slot uint64) *LendingMarket {
	return &LendingMarket{
		Version:       RecordVersion,
		Address:       addr,
		Owner:         owner,
		RiskAuthority: owner,
		QuoteCurrency: quote,
		RateLimiter:   NewRateLimiter(DefaultRateLimiterConfig(), slot),
		TokenStandard: TokenStandard,
	}
}

// MarketUpdate carries the fields replaced by SetOwnerAndConfig.
type MarketUpdate struct {
	NewOwner              crypto.Address
	RateLimiter           RateLimiterConfig
	WhitelistedLiquidator crypto.Address
	RiskAuthority         crypto.Address
	ExpectedCurrentOwner  crypto.Address
}

// SetOwnerAndConfig applies update when signer is the owner and the request
// re-asserts the current owner.
func (m *LendingMarket) SetOwnerAndConfig(signer crypto.Address, update MarketUpdate) error {
	if signer != m.Owner {
		return ErrUnauthorized
	}
	if update.ExpectedCurrentOwner != m.Owner {
		return ErrOwnerMismatch
	}
	if update.NewOwner.IsZero() || update.RiskAuthority.IsZero() {
		return ErrInvalidAddress
	}
	m.Owner = update.NewOwner
	m.RiskAuthority = update.RiskAuthority
	m.WhitelistedLiquidator = update.WhitelistedLiquidator
	m.RateLimiter.SetConfig(update.RateLimiter)
	return nil
}
