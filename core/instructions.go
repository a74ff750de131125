package core

import (
	"encoding/json"
	"fmt"

	"lendcore/core/events"
	"lendcore/crypto"
	"lendcore/native/lending"
	"lendcore/native/oracle"
	"lendcore/native/token"
)

const (
	OpInitMarket                   = "init_market"
	OpSetMarketOwnerAndConfig      = "set_market_owner_and_config"
	OpInitReserve                  = "init_reserve"
	OpUpdateReserveConfig          = "update_reserve_config"
	OpRefreshReserve               = "refresh_reserve"
	OpDepositLiquidity             = "deposit_liquidity"
	OpRedeemCollateral             = "redeem_collateral"
	OpInitObligation               = "init_obligation"
	OpDepositObligationCollateral  = "deposit_obligation_collateral"
	OpWithdrawObligationCollateral = "withdraw_obligation_collateral"
	OpRefreshObligation            = "refresh_obligation"
	OpInitFeed                     = "init_feed"
	OpUpdateFeedPrice              = "update_feed_price"
	OpTransfer                     = "transfer"
)

type InitMarketParams struct {
	QuoteCurrency string `json:"quoteCurrency"`
}

type SetMarketOwnerAndConfigParams struct {
	Market                crypto.Address            `json:"market"`
	NewOwner              crypto.Address            `json:"newOwner"`
	RateLimiter           lending.RateLimiterConfig `json:"rateLimiter"`
	WhitelistedLiquidator crypto.Address            `json:"whitelistedLiquidator,omitempty"`
	RiskAuthority         crypto.Address            `json:"riskAuthority,omitempty"`
	ExpectedCurrentOwner  crypto.Address            `json:"expectedCurrentOwner"`
}

type InitReserveInstruction struct {
	Market           crypto.Address        `json:"market"`
	LiquidityMint    crypto.Address        `json:"liquidityMint"`
	OracleFeed       crypto.Address        `json:"oracleFeed"`
	Key              uint64                `json:"key"`
	InitialLiquidity uint64                `json:"initialLiquidity"`
	Config           lending.ReserveConfig `json:"config"`
}

type UpdateReserveConfigParams struct {
	Reserve     crypto.Address            `json:"reserve"`
	Config      lending.ReserveConfig     `json:"config"`
	RateLimiter lending.RateLimiterConfig `json:"rateLimiter"`
}

type ReserveParams struct {
	Reserve crypto.Address `json:"reserve"`
}

type ReserveAmountParams struct {
	Reserve crypto.Address `json:"reserve"`
	Amount  uint64         `json:"amount"`
}

type InitObligationParams struct {
	Market crypto.Address `json:"market"`
	Key    uint64         `json:"key"`
}

type ObligationParams struct {
	Obligation crypto.Address `json:"obligation"`
}

type ObligationCollateralParams struct {
	Obligation crypto.Address `json:"obligation"`
	Reserve    crypto.Address `json:"reserve"`
	Amount     uint64         `json:"amount"`
}

type InitFeedParams struct {
	Symbol   string `json:"symbol"`
	Price    uint64 `json:"price"`
	Exponent int32  `json:"exponent"`
}

type UpdateFeedPriceParams struct {
	Feed     crypto.Address `json:"feed"`
	Price    uint64         `json:"price"`
	Exponent int32          `json:"exponent"`
}

type TransferParams struct {
	Mint   crypto.Address `json:"mint"`
	To     crypto.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// AddressResult reports the account created or touched by an instruction.
type AddressResult struct {
	Address crypto.Address `json:"address"`
}

// AmountResult reports the tokens minted or returned by an instruction.
type AmountResult struct {
	Amount uint64 `json:"amount"`
}

// execContext carries the per-batch collaborators handed to each handler.
type execContext struct {
	signer  crypto.Address
	slot    uint64
	engine  *lending.Engine
	ledger  *token.Ledger
	feeds   *oracle.Registry
	emitter events.Emitter
}

type handler func(ctx *execContext, raw json.RawMessage) (any, error)

var handlers = map[string]handler{
	OpInitMarket: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p InitMarketParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		market, err := ctx.engine.InitMarket(ctx.signer, p.QuoteCurrency)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: market.Address}, nil
	},
	OpSetMarketOwnerAndConfig: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p SetMarketOwnerAndConfigParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		market, err := ctx.engine.SetMarketOwnerAndConfig(ctx.signer, p.Market, lending.MarketUpdate{
			NewOwner:              p.NewOwner,
			RateLimiter:           p.RateLimiter,
			WhitelistedLiquidator: p.WhitelistedLiquidator,
			RiskAuthority:         p.RiskAuthority,
			ExpectedCurrentOwner:  p.ExpectedCurrentOwner,
		})
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: market.Address}, nil
	},
	OpInitReserve: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p InitReserveInstruction
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		reserve, err := ctx.engine.InitReserve(ctx.signer, lending.InitReserveParams{
			Market:           p.Market,
			LiquidityMint:    p.LiquidityMint,
			OracleFeed:       p.OracleFeed,
			Key:              p.Key,
			InitialLiquidity: p.InitialLiquidity,
			Config:           p.Config,
		})
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: reserve.Address}, nil
	},
	OpUpdateReserveConfig: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p UpdateReserveConfigParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		reserve, err := ctx.engine.UpdateReserveConfig(ctx.signer, p.Reserve, p.Config, p.RateLimiter)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: reserve.Address}, nil
	},
	OpRefreshReserve: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p ReserveParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		reserve, err := ctx.engine.RefreshReserve(p.Reserve)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: reserve.Address}, nil
	},
	OpDepositLiquidity: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p ReserveAmountParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		minted, err := ctx.engine.DepositLiquidity(ctx.signer, p.Reserve, p.Amount)
		if err != nil {
			return nil, err
		}
		return AmountResult{Amount: minted}, nil
	},
	OpRedeemCollateral: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p ReserveAmountParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		returned, err := ctx.engine.RedeemCollateral(ctx.signer, p.Reserve, p.Amount)
		if err != nil {
			return nil, err
		}
		return AmountResult{Amount: returned}, nil
	},
	OpInitObligation: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p InitObligationParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		obligation, err := ctx.engine.InitObligation(ctx.signer, p.Market, p.Key)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: obligation.Address}, nil
	},
	OpDepositObligationCollateral: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p ObligationCollateralParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		obligation, err := ctx.engine.DepositObligationCollateral(ctx.signer, p.Obligation, p.Reserve, p.Amount)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: obligation.Address}, nil
	},
	OpWithdrawObligationCollateral: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p ObligationCollateralParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		obligation, err := ctx.engine.WithdrawObligationCollateral(ctx.signer, p.Obligation, p.Reserve, p.Amount)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: obligation.Address}, nil
	},
	OpRefreshObligation: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p ObligationParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		obligation, err := ctx.engine.RefreshObligation(p.Obligation)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: obligation.Address}, nil
	},
	OpInitFeed: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p InitFeedParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		feed, err := ctx.feeds.InitFeed(ctx.signer, p.Symbol, p.Price, p.Exponent, ctx.slot)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: feed.Address}, nil
	},
	OpUpdateFeedPrice: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p UpdateFeedPriceParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		feed, err := ctx.feeds.UpdateFeedPrice(ctx.signer, p.Feed, p.Price, p.Exponent, ctx.slot)
		if err != nil {
			return nil, err
		}
		return AddressResult{Address: feed.Address}, nil
	},
	OpTransfer: func(ctx *execContext, raw json.RawMessage) (any, error) {
		var p TransferParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if err := ctx.ledger.Transfer(p.Mint, ctx.signer, p.To, p.Amount); err != nil {
			return nil, err
		}
		ctx.emitter.Emit(events.TokensTransferred{Mint: p.Mint, From: ctx.signer, To: p.To, Amount: p.Amount})
		return AmountResult{Amount: p.Amount}, nil
	},
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// KnownOp reports whether op names a supported instruction.
func KnownOp(op string) bool {
	_, ok := handlers[op]
	return ok
}
