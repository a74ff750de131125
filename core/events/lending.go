package events

import (
	"strconv"

	"lendcore/crypto"
)

const (
	TypeMarketInitialized             = "lending.market.initialized"
	TypeMarketOwnerUpdated            = "lending.market.owner_updated"
	TypeReserveInitialized            = "lending.reserve.initialized"
	TypeReserveConfigUpdated          = "lending.reserve.config_updated"
	TypeReserveRefreshed              = "lending.reserve.refreshed"
	TypeLiquidityDeposited            = "lending.reserve.liquidity_deposited"
	TypeCollateralRedeemed            = "lending.reserve.collateral_redeemed"
	TypeObligationInitialized         = "lending.obligation.initialized"
	TypeObligationCollateralDeposited = "lending.obligation.collateral_deposited"
	TypeObligationCollateralWithdrawn = "lending.obligation.collateral_withdrawn"
	TypeObligationRefreshed           = "lending.obligation.refreshed"
	TypeOracleFeedInitialized         = "oracle.feed.initialized"
	TypeOraclePriceUpdated            = "oracle.feed.price_updated"
	TypeTokensTransferred             = "token.transferred"
)

type attrs map[string]string

func (a attrs) addr(key string, v crypto.Address) attrs {
	if !v.IsZero() {
		a[key] = v.String()
	}
	return a
}

func (a attrs) u64(key string, v uint64) attrs {
	a[key] = strconv.FormatUint(v, 10)
	return a
}

func (a attrs) str(key, v string) attrs {
	if v != "" {
		a[key] = v
	}
	return a
}

type MarketInitialized struct {
	Market        crypto.Address
	Owner         crypto.Address
	QuoteCurrency string
}

func (MarketInitialized) EventType() string { return TypeMarketInitialized }

func (e MarketInitialized) Attributes() map[string]string {
	return attrs{}.addr("market", e.Market).addr("owner", e.Owner).str("quoteCurrency", e.QuoteCurrency)
}

type MarketOwnerUpdated struct {
	Market         crypto.Address
	Owner          crypto.Address
	RiskAuthority  crypto.Address
	Liquidator     crypto.Address
	WindowDuration uint64
	MaxOutflow     uint64
}

func (MarketOwnerUpdated) EventType() string { return TypeMarketOwnerUpdated }

func (e MarketOwnerUpdated) Attributes() map[string]string {
	return attrs{}.addr("market", e.Market).addr("owner", e.Owner).addr("riskAuthority", e.RiskAuthority).
		addr("liquidator", e.Liquidator).u64("windowDuration", e.WindowDuration).u64("maxOutflow", e.MaxOutflow)
}

type ReserveInitialized struct {
	Market           crypto.Address
	Reserve          crypto.Address
	LiquidityMint    crypto.Address
	CollateralMint   crypto.Address
	OracleFeed       crypto.Address
	Key              uint64
	InitialLiquidity uint64
	Minted           uint64
}

func (ReserveInitialized) EventType() string { return TypeReserveInitialized }

func (e ReserveInitialized) Attributes() map[string]string {
	return attrs{}.addr("market", e.Market).addr("reserve", e.Reserve).addr("liquidityMint", e.LiquidityMint).
		addr("collateralMint", e.CollateralMint).addr("oracleFeed", e.OracleFeed).u64("key", e.Key).
		u64("initialLiquidity", e.InitialLiquidity).u64("minted", e.Minted)
}

type ReserveConfigUpdated struct {
	Reserve crypto.Address
	Signer  crypto.Address
	Role    string
}

func (ReserveConfigUpdated) EventType() string { return TypeReserveConfigUpdated }

func (e ReserveConfigUpdated) Attributes() map[string]string {
	return attrs{}.addr("reserve", e.Reserve).addr("signer", e.Signer).str("role", e.Role)
}

type ReserveRefreshed struct {
	Reserve     crypto.Address
	Slot        uint64
	MarketPrice string
}

func (ReserveRefreshed) EventType() string { return TypeReserveRefreshed }

func (e ReserveRefreshed) Attributes() map[string]string {
	return attrs{}.addr("reserve", e.Reserve).u64("slot", e.Slot).str("marketPrice", e.MarketPrice)
}

type LiquidityDeposited struct {
	Reserve    crypto.Address
	Depositor  crypto.Address
	Liquidity  uint64
	Collateral uint64
}

func (LiquidityDeposited) EventType() string { return TypeLiquidityDeposited }

func (e LiquidityDeposited) Attributes() map[string]string {
	return attrs{}.addr("reserve", e.Reserve).addr("depositor", e.Depositor).
		u64("liquidity", e.Liquidity).u64("collateral", e.Collateral)
}

type CollateralRedeemed struct {
	Reserve    crypto.Address
	Redeemer   crypto.Address
	Collateral uint64
	Liquidity  uint64
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Attributes() map[string]string {
	return attrs{}.addr("reserve", e.Reserve).addr("redeemer", e.Redeemer).
		u64("collateral", e.Collateral).u64("liquidity", e.Liquidity)
}

type ObligationInitialized struct {
	Market     crypto.Address
	Obligation crypto.Address
	Owner      crypto.Address
	Key        uint64
}

func (ObligationInitialized) EventType() string { return TypeObligationInitialized }

func (e ObligationInitialized) Attributes() map[string]string {
	return attrs{}.addr("market", e.Market).addr("obligation", e.Obligation).addr("owner", e.Owner).u64("key", e.Key)
}

type ObligationCollateralDeposited struct {
	Obligation crypto.Address
	Reserve    crypto.Address
	Amount     uint64
}

func (ObligationCollateralDeposited) EventType() string { return TypeObligationCollateralDeposited }

func (e ObligationCollateralDeposited) Attributes() map[string]string {
	return attrs{}.addr("obligation", e.Obligation).addr("reserve", e.Reserve).u64("amount", e.Amount)
}

type ObligationCollateralWithdrawn struct {
	Obligation crypto.Address
	Reserve    crypto.Address
	Amount     uint64
}

func (ObligationCollateralWithdrawn) EventType() string { return TypeObligationCollateralWithdrawn }

func (e ObligationCollateralWithdrawn) Attributes() map[string]string {
	return attrs{}.addr("obligation", e.Obligation).addr("reserve", e.Reserve).u64("amount", e.Amount)
}

type ObligationRefreshed struct {
	Obligation         crypto.Address
	Slot               uint64
	DepositedValue     string
	BorrowedValue      string
	AllowedBorrowValue string
}

func (ObligationRefreshed) EventType() string { return TypeObligationRefreshed }

func (e ObligationRefreshed) Attributes() map[string]string {
	return attrs{}.addr("obligation", e.Obligation).u64("slot", e.Slot).str("depositedValue", e.DepositedValue).
		str("borrowedValue", e.BorrowedValue).str("allowedBorrowValue", e.AllowedBorrowValue)
}

type OracleFeedInitialized struct {
	Feed      crypto.Address
	Symbol    string
	Publisher crypto.Address
}

func (OracleFeedInitialized) EventType() string { return TypeOracleFeedInitialized }

func (e OracleFeedInitialized) Attributes() map[string]string {
	return attrs{}.addr("feed", e.Feed).str("symbol", e.Symbol).addr("publisher", e.Publisher)
}

type OraclePriceUpdated struct {
	Feed     crypto.Address
	Price    uint64
	Exponent int32
}

func (OraclePriceUpdated) EventType() string { return TypeOraclePriceUpdated }

func (e OraclePriceUpdated) Attributes() map[string]string {
	return attrs{}.addr("feed", e.Feed).u64("price", e.Price).str("exponent", strconv.FormatInt(int64(e.Exponent), 10))
}

type TokensTransferred struct {
	Mint   crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount uint64
}

func (TokensTransferred) EventType() string { return TypeTokensTransferred }

func (e TokensTransferred) Attributes() map[string]string {
	return attrs{}.addr("mint", e.Mint).addr("from", e.From).addr("to", e.To).u64("amount", e.Amount)
}
