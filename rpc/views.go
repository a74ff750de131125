package rpc

import (
	"lendcore/crypto"
	"lendcore/native/lending"
)

// WAD scaled values are rendered as decimal strings.

type rateLimiterView struct {
	WindowDuration uint64 `json:"windowDuration"`
	MaxOutflow     uint64 `json:"maxOutflow"`
	WindowStart    uint64 `json:"windowStart"`
	WindowOutflow  uint64 `json:"windowOutflow"`
}

func newRateLimiterView(rl lending.RateLimiter) rateLimiterView {
	return rateLimiterView{
		WindowDuration: rl.Config.WindowDuration,
		MaxOutflow:     rl.Config.MaxOutflow,
		WindowStart:    rl.WindowStart,
		WindowOutflow:  rl.WindowOutflow,
	}
}

type MarketView struct {
	Address               crypto.Address  `json:"address"`
	Owner                 crypto.Address  `json:"owner"`
	RiskAuthority         crypto.Address  `json:"riskAuthority"`
	WhitelistedLiquidator crypto.Address  `json:"whitelistedLiquidator"`
	QuoteCurrency         string          `json:"quoteCurrency"`
	TokenStandard         string          `json:"tokenStandard"`
	RateLimiter           rateLimiterView `json:"rateLimiter"`
}

func newMarketView(m *lending.LendingMarket) MarketView {
	return MarketView{
		Address:               m.Address,
		Owner:                 m.Owner,
		RiskAuthority:         m.RiskAuthority,
		WhitelistedLiquidator: m.WhitelistedLiquidator,
		QuoteCurrency:         m.QuoteCurrencySymbol(),
		TokenStandard:         m.TokenStandard,
		RateLimiter:           newRateLimiterView(m.RateLimiter),
	}
}

type ReserveView struct {
	Address          crypto.Address        `json:"address"`
	Market           crypto.Address        `json:"market"`
	Key              uint64                `json:"key"`
	LastUpdateSlot   uint64                `json:"lastUpdateSlot"`
	Stale            bool                  `json:"stale"`
	LiquidityMint    crypto.Address        `json:"liquidityMint"`
	MintDecimals     uint8                 `json:"mintDecimals"`
	OracleFeed       crypto.Address        `json:"oracleFeed"`
	AvailableAmount  uint64                `json:"availableAmount"`
	MarketPrice      string                `json:"marketPrice"`
	ExtraMarketPrice string                `json:"extraMarketPrice,omitempty"`
	CollateralMint   crypto.Address        `json:"collateralMint"`
	CollateralSupply uint64                `json:"collateralSupply"`
	ExchangeRate     string                `json:"exchangeRate"`
	BorrowRate       string                `json:"borrowRate"`
	Config           lending.ReserveConfig `json:"config"`
	RateLimiter      rateLimiterView       `json:"rateLimiter"`
}

func newReserveView(r *lending.Reserve) (ReserveView, error) {
	rate, err := r.ExchangeRate()
	if err != nil {
		return ReserveView{}, err
	}
	borrowRate, err := r.CurrentBorrowRate()
	if err != nil {
		return ReserveView{}, err
	}
	view := ReserveView{
		Address:          r.Address,
		Market:           r.Market,
		Key:              r.Key,
		LastUpdateSlot:   r.LastUpdate.Slot,
		Stale:            r.LastUpdate.Stale,
		LiquidityMint:    r.Liquidity.MintAddress,
		MintDecimals:     r.Liquidity.MintDecimals,
		OracleFeed:       r.Liquidity.OracleFeed,
		AvailableAmount:  r.Liquidity.AvailableAmount,
		MarketPrice:      r.Liquidity.MarketPrice.Dec(),
		CollateralMint:   r.Collateral.MintAddress,
		CollateralSupply: r.Collateral.MintTotalSupply,
		ExchangeRate:     rate.Dec(),
		BorrowRate:       borrowRate.Dec(),
		Config:           r.Config,
		RateLimiter:      newRateLimiterView(r.RateLimiter),
	}
	if !r.Liquidity.ExtraMarketPrice.IsZero() {
		view.ExtraMarketPrice = r.Liquidity.ExtraMarketPrice.Dec()
	}
	return view, nil
}

type depositView struct {
	Reserve         crypto.Address `json:"reserve"`
	DepositedAmount uint64         `json:"depositedAmount"`
	MarketValue     string         `json:"marketValue"`
}

type borrowView struct {
	Reserve        crypto.Address `json:"reserve"`
	BorrowedAmount uint64         `json:"borrowedAmount"`
	MarketValue    string         `json:"marketValue"`
}

type ObligationView struct {
	Address                   crypto.Address `json:"address"`
	Market                    crypto.Address `json:"market"`
	Owner                     crypto.Address `json:"owner"`
	LastUpdateSlot            uint64         `json:"lastUpdateSlot"`
	Stale                     bool           `json:"stale"`
	Deposits                  []depositView  `json:"deposits"`
	Borrows                   []borrowView   `json:"borrows"`
	DepositedValue            string         `json:"depositedValue"`
	BorrowedValue             string         `json:"borrowedValue"`
	AllowedBorrowValue        string         `json:"allowedBorrowValue"`
	UnhealthyBorrowValue      string         `json:"unhealthyBorrowValue"`
	SuperUnhealthyBorrowValue string         `json:"superUnhealthyBorrowValue"`
	Healthy                   bool           `json:"healthy"`
	Closeable                 bool           `json:"closeable"`
}

func newObligationView(o *lending.Obligation) ObligationView {
	view := ObligationView{
		Address:                   o.Address,
		Market:                    o.Market,
		Owner:                     o.Owner,
		LastUpdateSlot:            o.LastUpdate.Slot,
		Stale:                     o.LastUpdate.Stale,
		Deposits:                  make([]depositView, 0, len(o.Deposits)),
		Borrows:                   make([]borrowView, 0, len(o.Borrows)),
		DepositedValue:            o.DepositedValue.Dec(),
		BorrowedValue:             o.BorrowedValue.Dec(),
		AllowedBorrowValue:        o.AllowedBorrowValue.Dec(),
		UnhealthyBorrowValue:      o.UnhealthyBorrowValue.Dec(),
		SuperUnhealthyBorrowValue: o.SuperUnhealthyBorrowValue.Dec(),
		Healthy:                   o.IsHealthy(),
		Closeable:                 o.Closeable,
	}
	for _, d := range o.Deposits {
		view.Deposits = append(view.Deposits, depositView{Reserve: d.Reserve, DepositedAmount: d.DepositedAmount, MarketValue: d.MarketValue.Dec()})
	}
	for _, b := range o.Borrows {
		view.Borrows = append(view.Borrows, borrowView{Reserve: b.Reserve, BorrowedAmount: b.BorrowedAmount, MarketValue: b.MarketValue.Dec()})
	}
	return view
}

type BalanceView struct {
	Mint    crypto.Address `json:"mint"`
	Owner   crypto.Address `json:"owner"`
	Balance uint64         `json:"balance"`
}

type NonceView struct {
	Address crypto.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
	Slot    uint64         `json:"slot"`
}
