package lending

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/crypto"
	nativecommon "lendcore/native/common"
)

const moduleName = "lending"

// State persists lending records. Getters return nil, nil for absent records.
type State interface {
	GetMarket(addr crypto.Address) (*LendingMarket, error)
	PutMarket(market *LendingMarket) error
	GetReserve(addr crypto.Address) (*Reserve, error)
	PutReserve(reserve *Reserve) error
	GetObligation(addr crypto.Address) (*Obligation, error)
	PutObligation(obligation *Obligation) error
	ReserveAddresses() ([]crypto.Address, error)
}

// Tokens is the fungible-asset primitive. Every call is atomic.
type Tokens interface {
	CreateMint(mint crypto.Address, decimals uint8, authority crypto.Address) error
	MintDecimals(mint crypto.Address) (uint8, error)
	MintTo(mint, authority, to crypto.Address, amount uint64) error
	Burn(mint, from crypto.Address, amount uint64) error
	Transfer(mint, from, to crypto.Address, amount uint64) error
}

// Oracle reads the latest (price, exponent) pair published on a feed.
type Oracle interface {
	Price(feed crypto.Address) (price uint64, exponent int32, err error)
}

// Engine executes the lending entry points against its collaborators. It is
// not safe for concurrent use; the host serializes requests.
type Engine struct {
	state             State
	tokens            Tokens
	oracle            Oracle
	emitter           events.Emitter
	pauses            nativecommon.PauseView
	protocolAuthority crypto.Address
	slot              uint64
}

// NewEngine constructs an engine recognising protocolAuthority as the signer
// allowed to change protocol-economics fields.
func NewEngine(protocolAuthority crypto.Address) *Engine {
	return &Engine{protocolAuthority: protocolAuthority, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

func (e *Engine) SetTokens(tokens Tokens) { e.tokens = tokens }

func (e *Engine) SetOracle(oracle Oracle) { e.oracle = oracle }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetSlot records the slot used for staleness and rate limiting.
func (e *Engine) SetSlot(slot uint64) { e.slot = slot }

func (e *Engine) Slot() uint64 { return e.slot }

// ProtocolAuthority returns the configured protocol authority.
func (e *Engine) ProtocolAuthority() crypto.Address { return e.protocolAuthority }

func (e *Engine) ready(mutating bool) error {
	if e == nil || e.state == nil || e.tokens == nil || e.oracle == nil {
		return ErrNilState
	}
	if mutating {
		return nativecommon.Guard(e.pauses, moduleName)
	}
	return nil
}

func (e *Engine) loadMarket(addr crypto.Address) (*LendingMarket, error) {
	market, err := e.state.GetMarket(addr)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, addr)
	}
	return market, nil
}

func (e *Engine) loadReserve(addr crypto.Address) (*Reserve, error) {
	reserve, err := e.state.GetReserve(addr)
	if err != nil {
		return nil, err
	}
	if reserve == nil {
		return nil, fmt.Errorf("%w: %s", ErrReserveNotFound, addr)
	}
	return reserve, nil
}

func (e *Engine) loadObligation(addr crypto.Address) (*Obligation, error) {
	obligation, err := e.state.GetObligation(addr)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, fmt.Errorf("%w: %s", ErrObligationNotFound, addr)
	}
	return obligation, nil
}

// readPrice normalizes the latest reading of feed.
func (e *Engine) readPrice(feed crypto.Address) (*uint256.Int, error) {
	price, exponent, err := e.oracle.Price(feed)
	if err != nil {
		return nil, err
	}
	return NormalizePrice(price, exponent)
}

// refresh pulls fresh oracle prices into reserve. Any failure means the
// reserve cannot be brought up to date.
func (e *Engine) refresh(reserve *Reserve) error {
	main, err := e.readPrice(reserve.Liquidity.OracleFeed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReserveStale, err)
	}
	var extra *uint256.Int
	if !reserve.Config.ExtraOracle.IsZero() {
		if extra, err = e.readPrice(reserve.Config.ExtraOracle); err != nil {
			return fmt.Errorf("%w: extra oracle: %w", ErrReserveStale, err)
		}
	}
	reserve.SetPrices(main, extra, e.slot)
	return nil
}

// ensureFresh returns reserve refreshed at the current slot when it is stale.
// The second result reports whether a refresh happened.
func (e *Engine) ensureFresh(reserve *Reserve) (*Reserve, bool, error) {
	stale, err := reserve.LastUpdate.IsStale(e.slot)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrReserveStale, err)
	}
	if !stale {
		return reserve, false, nil
	}
	refreshed := reserve.Clone()
	if err := e.refresh(refreshed); err != nil {
		return nil, false, err
	}
	e.emitter.Emit(events.ReserveRefreshed{
		Reserve:     refreshed.Address,
		Slot:        e.slot,
		MarketPrice: refreshed.Liquidity.MarketPrice.Dec(),
	})
	return refreshed, true, nil
}

// InitMarket creates the market owned by signer.
func (e *Engine) InitMarket(signer crypto.Address, quoteCurrency string) (*LendingMarket, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if signer.IsZero() {
		return nil, ErrInvalidAddress
	}
	quote, err := EncodeQuoteCurrency(quoteCurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	addr := MarketAddress(signer)
	existing, err := e.state.GetMarket(addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: market %s", ErrAlreadyInitialized, addr)
	}
	market := NewLendingMarket(addr, signer, quote, e.slot)
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.MarketInitialized{Market: addr, Owner: signer, QuoteCurrency: market.QuoteCurrencySymbol()})
	return market.Clone(), nil
}

// SetMarketOwnerAndConfig replaces the market's roles and outflow limit.
func (e *Engine) SetMarketOwnerAndConfig(signer, marketAddr crypto.Address, update MarketUpdate) (*LendingMarket, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	market, err := e.loadMarket(marketAddr)
	if err != nil {
		return nil, err
	}
	next := market.Clone()
	if err := next.SetOwnerAndConfig(signer, update); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(next); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.MarketOwnerUpdated{
		Market:         next.Address,
		Owner:          next.Owner,
		RiskAuthority:  next.RiskAuthority,
		Liquidator:     next.WhitelistedLiquidator,
		WindowDuration: next.RateLimiter.Config.WindowDuration,
		MaxOutflow:     next.RateLimiter.Config.MaxOutflow,
	})
	return next.Clone(), nil
}

// InitReserveParams describes a new reserve.
type InitReserveParams struct {
	Market           crypto.Address
	LiquidityMint    crypto.Address
	OracleFeed       crypto.Address
	Key              uint64
	InitialLiquidity uint64
	Config           ReserveConfig
}

// InitReserve registers a reserve, seeds it with the owner's initial
// liquidity and mints the matching collateral to the owner.
func (e *Engine) InitReserve(signer crypto.Address, params InitReserveParams) (*Reserve, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if params.InitialLiquidity == 0 {
		return nil, ErrInvalidAmount
	}
	if params.LiquidityMint.IsZero() || params.OracleFeed.IsZero() {
		return nil, ErrInvalidAddress
	}
	market, err := e.loadMarket(params.Market)
	if err != nil {
		return nil, err
	}
	if signer != market.Owner {
		return nil, ErrUnauthorized
	}
	if err := ValidateConfig(params.Config); err != nil {
		return nil, err
	}
	addr := ReserveAddress(market.Address, params.Key)
	existing, err := e.state.GetReserve(addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: reserve %s", ErrAlreadyInitialized, addr)
	}
	decimals, err := e.tokens.MintDecimals(params.LiquidityMint)
	if err != nil {
		return nil, err
	}

	reserve := &Reserve{
		Version:    RecordVersion,
		Address:    addr,
		Market:     market.Address,
		Key:        params.Key,
		LastUpdate: NewLastUpdate(e.slot),
		Liquidity: ReserveLiquidity{
			MintAddress:   params.LiquidityMint,
			MintDecimals:  decimals,
			SupplyAddress: LiquiditySupplyAddress(addr),
			FeeAddress:    FeeAddress(addr),
			OracleFeed:    params.OracleFeed,
		},
		Collateral: ReserveCollateral{
			MintAddress:   CollateralMintAddress(addr),
			SupplyAddress: CollateralSupplyAddress(addr),
		},
		Config:      params.Config,
		RateLimiter: NewRateLimiter(DefaultRateLimiterConfig(), e.slot),
	}
	if err := e.refresh(reserve); err != nil {
		return nil, err
	}
	if err := reserve.CheckDepositLimit(params.InitialLiquidity); err != nil {
		return nil, err
	}
	minted, err := reserve.DepositLiquidity(params.InitialLiquidity)
	if err != nil {
		return nil, err
	}

	if err := e.tokens.CreateMint(reserve.Collateral.MintAddress, decimals, market.Address); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(params.LiquidityMint, signer, reserve.Liquidity.SupplyAddress, params.InitialLiquidity); err != nil {
		return nil, err
	}
	if err := e.tokens.MintTo(reserve.Collateral.MintAddress, market.Address, signer, minted); err != nil {
		return nil, err
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ReserveInitialized{
		Market:           market.Address,
		Reserve:          addr,
		LiquidityMint:    params.LiquidityMint,
		CollateralMint:   reserve.Collateral.MintAddress,
		OracleFeed:       params.OracleFeed,
		Key:              params.Key,
		InitialLiquidity: params.InitialLiquidity,
		Minted:           minted,
	})
	return reserve.Clone(), nil
}

// UpdateReserveConfig applies the signer's role policy to the proposed config
// and outflow limit, then marks the reserve stale.
func (e *Engine) UpdateReserveConfig(signer, reserveAddr crypto.Address, proposed ReserveConfig, proposedLimiter RateLimiterConfig) (*Reserve, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	reserve, err := e.loadReserve(reserveAddr)
	if err != nil {
		return nil, err
	}
	market, err := e.loadMarket(reserve.Market)
	if err != nil {
		return nil, err
	}
	role := ResolveRole(signer, market, e.protocolAuthority)
	change, err := ApplyConfigChange(role, reserve.Config, reserve.RateLimiter.Config, proposed, proposedLimiter)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(change.Config); err != nil {
		return nil, err
	}
	next := reserve.Clone()
	next.Config = change.Config
	next.RateLimiter.SetConfig(change.RateLimiter)
	next.LastUpdate.MarkStale()
	if err := e.state.PutReserve(next); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ReserveConfigUpdated{Reserve: next.Address, Signer: signer, Role: role.String()})
	return next.Clone(), nil
}

// RefreshReserve pulls oracle prices into the reserve. Anyone may call it and
// repeated calls within a slot are idempotent.
func (e *Engine) RefreshReserve(reserveAddr crypto.Address) (*Reserve, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	reserve, err := e.loadReserve(reserveAddr)
	if err != nil {
		return nil, err
	}
	next := reserve.Clone()
	if err := e.refresh(next); err != nil {
		return nil, err
	}
	if err := e.state.PutReserve(next); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ReserveRefreshed{Reserve: next.Address, Slot: e.slot, MarketPrice: next.Liquidity.MarketPrice.Dec()})
	return next.Clone(), nil
}

// DepositLiquidity moves amount of liquidity from signer into the reserve and
// mints collateral back. It returns the collateral minted.
func (e *Engine) DepositLiquidity(signer, reserveAddr crypto.Address, amount uint64) (uint64, error) {
	if err := e.ready(true); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	stored, err := e.loadReserve(reserveAddr)
	if err != nil {
		return 0, err
	}
	market, err := e.loadMarket(stored.Market)
	if err != nil {
		return 0, err
	}
	reserve, _, err := e.ensureFresh(stored)
	if err != nil {
		return 0, err
	}
	reserve = reserve.Clone()
	if err := reserve.CheckDepositLimit(amount); err != nil {
		return 0, err
	}
	minted, err := reserve.DepositLiquidity(amount)
	if err != nil {
		return 0, err
	}

	if err := e.tokens.Transfer(reserve.Liquidity.MintAddress, signer, reserve.Liquidity.SupplyAddress, amount); err != nil {
		return 0, err
	}
	if err := e.tokens.MintTo(reserve.Collateral.MintAddress, market.Address, signer, minted); err != nil {
		return 0, err
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.LiquidityDeposited{Reserve: reserve.Address, Depositor: signer, Liquidity: amount, Collateral: minted})
	return minted, nil
}

// quoteUnits converts a WAD scaled value to whole quote units, rounding up
// and saturating at the uint64 range.
func quoteUnits(value *uint256.Int) (uint64, error) {
	units, err := ceilDiv(value, wad)
	if err != nil {
		return 0, err
	}
	if !units.IsUint64() {
		return Unrestricted, nil
	}
	return units.Uint64(), nil
}

// RedeemCollateral burns amount of signer's collateral and releases the
// corresponding liquidity. The outflow counts against both the market limit,
// in quote value, and the reserve limit, in tokens.
func (e *Engine) RedeemCollateral(signer, reserveAddr crypto.Address, amount uint64) (uint64, error) {
	if err := e.ready(true); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	stored, err := e.loadReserve(reserveAddr)
	if err != nil {
		return 0, err
	}
	market, err := e.loadMarket(stored.Market)
	if err != nil {
		return 0, err
	}
	reserve, _, err := e.ensureFresh(stored)
	if err != nil {
		return 0, err
	}
	reserve = reserve.Clone()
	liquidity, err := reserve.PreviewRedeem(amount)
	if err != nil {
		return 0, err
	}
	value, err := reserve.MarketValue(liquidity)
	if err != nil {
		return 0, err
	}
	units, err := quoteUnits(value)
	if err != nil {
		return 0, err
	}

	marketLimiter := market.RateLimiter
	if err := marketLimiter.CheckAndUpdate(units, e.slot); err != nil {
		return 0, fmt.Errorf("market: %w", err)
	}
	reserveLimiter := reserve.RateLimiter
	if err := reserveLimiter.CheckAndUpdate(liquidity, e.slot); err != nil {
		return 0, fmt.Errorf("reserve: %w", err)
	}
	if _, err := reserve.RedeemCollateral(amount); err != nil {
		return 0, err
	}
	reserve.RateLimiter = reserveLimiter
	nextMarket := market.Clone()
	nextMarket.RateLimiter = marketLimiter

	if err := e.tokens.Burn(reserve.Collateral.MintAddress, signer, amount); err != nil {
		return 0, err
	}
	if err := e.tokens.Transfer(reserve.Liquidity.MintAddress, reserve.Liquidity.SupplyAddress, signer, liquidity); err != nil {
		return 0, err
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(nextMarket); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.CollateralRedeemed{Reserve: reserve.Address, Redeemer: signer, Collateral: amount, Liquidity: liquidity})
	return liquidity, nil
}

// InitObligation opens an empty obligation for signer under key.
func (e *Engine) InitObligation(signer, marketAddr crypto.Address, key uint64) (*Obligation, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if signer.IsZero() {
		return nil, ErrInvalidAddress
	}
	market, err := e.loadMarket(marketAddr)
	if err != nil {
		return nil, err
	}
	addr := ObligationAddress(market.Address, signer, key)
	existing, err := e.state.GetObligation(addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: obligation %s", ErrAlreadyInitialized, addr)
	}
	obligation := NewObligation(addr, market.Address, signer, key, e.slot)
	if err := e.state.PutObligation(obligation); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ObligationInitialized{Market: market.Address, Obligation: addr, Owner: signer, Key: key})
	return obligation.Clone(), nil
}

func (e *Engine) loadOwnedObligation(signer, obligationAddr crypto.Address) (*Obligation, error) {
	obligation, err := e.loadObligation(obligationAddr)
	if err != nil {
		return nil, err
	}
	if obligation.Owner != signer {
		return nil, ErrObligationNotOwned
	}
	return obligation, nil
}

// DepositObligationCollateral moves amount of the reserve's claim token from
// signer into custody and credits the obligation. The reserve is left stale.
func (e *Engine) DepositObligationCollateral(signer, obligationAddr, reserveAddr crypto.Address, amount uint64) (*Obligation, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	obligation, err := e.loadOwnedObligation(signer, obligationAddr)
	if err != nil {
		return nil, err
	}
	stored, err := e.loadReserve(reserveAddr)
	if err != nil {
		return nil, err
	}
	if stored.Market != obligation.Market {
		return nil, ErrMarketMismatch
	}
	reserve, _, err := e.ensureFresh(stored)
	if err != nil {
		return nil, err
	}
	reserve = reserve.Clone()
	next := obligation.Clone()
	if err := next.DepositCollateral(reserve.Address, amount); err != nil {
		return nil, err
	}

	if err := e.tokens.Transfer(reserve.Collateral.MintAddress, signer, reserve.Collateral.SupplyAddress, amount); err != nil {
		return nil, err
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}
	if err := e.state.PutObligation(next); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ObligationCollateralDeposited{Obligation: next.Address, Reserve: reserve.Address, Amount: amount})
	return next.Clone(), nil
}

// referencedReserves loads every reserve the obligation references. Missing
// records are omitted so Refresh fails closed on them.
func (e *Engine) referencedReserves(obligation *Obligation) (map[crypto.Address]*Reserve, error) {
	out := make(map[crypto.Address]*Reserve)
	for _, addr := range obligation.ReserveAddresses() {
		reserve, err := e.state.GetReserve(addr)
		if err != nil {
			return nil, err
		}
		if reserve != nil {
			out[addr] = reserve
		}
	}
	return out, nil
}

// WithdrawObligationCollateral returns amount of claim tokens to the owner if
// the obligation stays within its allowed borrow value. Every referenced
// reserve must already be fresh at the current slot.
func (e *Engine) WithdrawObligationCollateral(signer, obligationAddr, reserveAddr crypto.Address, amount uint64) (*Obligation, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	obligation, err := e.loadOwnedObligation(signer, obligationAddr)
	if err != nil {
		return nil, err
	}
	if amount > obligation.DepositedAmount(reserveAddr) {
		return nil, ErrInsufficientDeposit
	}
	reserve, err := e.loadReserve(reserveAddr)
	if err != nil {
		return nil, err
	}
	reserves, err := e.referencedReserves(obligation)
	if err != nil {
		return nil, err
	}

	next := obligation.Clone()
	if err := next.Refresh(reserves, e.slot); err != nil {
		return nil, err
	}
	if err := next.WithdrawCollateral(reserveAddr, amount); err != nil {
		return nil, err
	}
	if err := next.Refresh(reserves, e.slot); err != nil {
		return nil, err
	}
	if !next.IsHealthy() {
		return nil, ErrWithdrawExceedsAllowedValue
	}

	if err := e.tokens.Transfer(reserve.Collateral.MintAddress, reserve.Collateral.SupplyAddress, signer, amount); err != nil {
		return nil, err
	}
	next.LastUpdate.MarkStale()
	if err := e.state.PutObligation(next); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ObligationCollateralWithdrawn{Obligation: next.Address, Reserve: reserveAddr, Amount: amount})
	return next.Clone(), nil
}

// RefreshObligation recomputes the obligation's health from reserves that
// were refreshed at the current slot.
func (e *Engine) RefreshObligation(obligationAddr crypto.Address) (*Obligation, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	obligation, err := e.loadObligation(obligationAddr)
	if err != nil {
		return nil, err
	}
	reserves, err := e.referencedReserves(obligation)
	if err != nil {
		return nil, err
	}
	next := obligation.Clone()
	if err := next.Refresh(reserves, e.slot); err != nil {
		return nil, err
	}
	if err := e.state.PutObligation(next); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ObligationRefreshed{
		Obligation:         next.Address,
		Slot:               e.slot,
		DepositedValue:     next.DepositedValue.Dec(),
		BorrowedValue:      next.BorrowedValue.Dec(),
		AllowedBorrowValue: next.AllowedBorrowValue.Dec(),
	})
	return next.Clone(), nil
}

// Market returns the stored market.
func (e *Engine) Market(addr crypto.Address) (*LendingMarket, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	return e.loadMarket(addr)
}

// Reserve returns the stored reserve.
func (e *Engine) Reserve(addr crypto.Address) (*Reserve, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	return e.loadReserve(addr)
}

// Obligation returns the stored obligation.
func (e *Engine) Obligation(addr crypto.Address) (*Obligation, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	return e.loadObligation(addr)
}

// Reserves returns every registered reserve in registration order.
func (e *Engine) Reserves() ([]*Reserve, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	addrs, err := e.state.ReserveAddresses()
	if err != nil {
		return nil, err
	}
	out := make([]*Reserve, 0, len(addrs))
	for _, addr := range addrs {
		reserve, err := e.state.GetReserve(addr)
		if err != nil {
			return nil, err
		}
		if reserve == nil {
			return nil, errors.Join(ErrReserveNotFound, fmt.Errorf("indexed reserve %s missing", addr))
		}
		out = append(out, reserve)
	}
	return out, nil
}
