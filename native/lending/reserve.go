package lending

import (
	"github.com/holiman/uint256"

	"lendcore/crypto"
)

// RecordVersion is stamped on every record created by this package.
const RecordVersion uint8 = 1

// ReserveLiquidity tracks the underlying asset held by a reserve.
type ReserveLiquidity struct {
	MintAddress     crypto.Address
	MintDecimals    uint8
	SupplyAddress   crypto.Address
	FeeAddress      crypto.Address
	OracleFeed      crypto.Address
	AvailableAmount uint64
	// MarketPrice is the WAD scaled quote price of one whole token.
	MarketPrice uint256.Int
	// ExtraMarketPrice is zero unless the config names an extra oracle.
	ExtraMarketPrice uint256.Int
}

// ReserveCollateral tracks the claim token minted to depositors.
type ReserveCollateral struct {
	MintAddress     crypto.Address
	SupplyAddress   crypto.Address
	MintTotalSupply uint64
}

// Reserve is a single-asset liquidity pool.
type Reserve struct {
	Version     uint8
	Address     crypto.Address
	Market      crypto.Address
	Key         uint64
	LastUpdate  LastUpdate
	Liquidity   ReserveLiquidity
	Collateral  ReserveCollateral
	Config      ReserveConfig
	RateLimiter RateLimiter
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ExchangeRate returns the liquidity backing one collateral unit, WAD scaled.
// An empty pool starts at one.
func (r *Reserve) ExchangeRate() (*uint256.Int, error) {
	if r.Collateral.MintTotalSupply == 0 {
		return new(uint256.Int).Set(wad), nil
	}
	return mulDiv(u(r.Liquidity.AvailableAmount), wad, u(r.Collateral.MintTotalSupply))
}

// LiquidityToCollateral converts a liquidity amount at the current rate,
// rounding down.
func (r *Reserve) LiquidityToCollateral(amount uint64) (uint64, error) {
	if r.Collateral.MintTotalSupply == 0 {
		return amount, nil
	}
	if r.Liquidity.AvailableAmount == 0 {
		return 0, ErrMathOverflow
	}
	out, err := mulDiv(u(amount), u(r.Collateral.MintTotalSupply), u(r.Liquidity.AvailableAmount))
	if err != nil {
		return 0, err
	}
	return toUint64(out)
}

// CollateralToLiquidity converts a collateral amount at the current rate,
// rounding down.
func (r *Reserve) CollateralToLiquidity(amount uint64) (uint64, error) {
	if r.Collateral.MintTotalSupply == 0 {
		return amount, nil
	}
	out, err := mulDiv(u(amount), u(r.Liquidity.AvailableAmount), u(r.Collateral.MintTotalSupply))
	if err != nil {
		return 0, err
	}
	return toUint64(out)
}

// CheckDepositLimit fails when adding amount would push available liquidity
// past the configured cap.
func (r *Reserve) CheckDepositLimit(amount uint64) error {
	total, err := checkedAddUint64(r.Liquidity.AvailableAmount, amount)
	if err != nil {
		return err
	}
	if total > r.Config.DepositLimit {
		return ErrExceedsDepositLimit
	}
	return nil
}

// DepositLiquidity records amount of liquidity entering the pool and returns
// the collateral to mint.
func (r *Reserve) DepositLiquidity(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	minted, err := r.LiquidityToCollateral(amount)
	if err != nil {
		return 0, err
	}
	if minted == 0 {
		return 0, ErrInvalidAmount
	}
	available, err := checkedAddUint64(r.Liquidity.AvailableAmount, amount)
	if err != nil {
		return 0, err
	}
	supply, err := checkedAddUint64(r.Collateral.MintTotalSupply, minted)
	if err != nil {
		return 0, err
	}
	r.Liquidity.AvailableAmount = available
	r.Collateral.MintTotalSupply = supply
	return minted, nil
}

// PreviewRedeem returns the liquidity a collateral amount redeems for without
// mutating the reserve.
func (r *Reserve) PreviewRedeem(collateral uint64) (uint64, error) {
	if collateral == 0 {
		return 0, ErrInvalidAmount
	}
	if collateral > r.Collateral.MintTotalSupply {
		return 0, ErrInsufficientLiquidity
	}
	liquidity, err := r.CollateralToLiquidity(collateral)
	if err != nil {
		return 0, err
	}
	if liquidity > r.Liquidity.AvailableAmount {
		return 0, ErrInsufficientLiquidity
	}
	return liquidity, nil
}

// RedeemCollateral burns collateral and returns the liquidity to release.
func (r *Reserve) RedeemCollateral(collateral uint64) (uint64, error) {
	liquidity, err := r.PreviewRedeem(collateral)
	if err != nil {
		return 0, err
	}
	r.Collateral.MintTotalSupply -= collateral
	r.Liquidity.AvailableAmount -= liquidity
	return liquidity, nil
}

// PriceLowerBound is the smaller of the main and extra oracle prices.
func (r *Reserve) PriceLowerBound() *uint256.Int {
	price := new(uint256.Int).Set(&r.Liquidity.MarketPrice)
	if r.Liquidity.ExtraMarketPrice.IsZero() {
		return price
	}
	return minInt(price, new(uint256.Int).Set(&r.Liquidity.ExtraMarketPrice))
}

// PriceUpperBound is the larger of the main and extra oracle prices.
func (r *Reserve) PriceUpperBound() *uint256.Int {
	price := new(uint256.Int).Set(&r.Liquidity.MarketPrice)
	if r.Liquidity.ExtraMarketPrice.IsZero() {
		return price
	}
	return maxInt(price, new(uint256.Int).Set(&r.Liquidity.ExtraMarketPrice))
}

func (r *Reserve) valueAt(price *uint256.Int, amount uint64) (*uint256.Int, error) {
	scale, err := pow10(uint64(r.Liquidity.MintDecimals))
	if err != nil {
		return nil, err
	}
	return mulDiv(price, u(amount), scale)
}

// MarketValue values amount base units of liquidity in WAD scaled quote
// currency.
func (r *Reserve) MarketValue(amount uint64) (*uint256.Int, error) {
	return r.valueAt(&r.Liquidity.MarketPrice, amount)
}

func (r *Reserve) MarketValueLowerBound(amount uint64) (*uint256.Int, error) {
	return r.valueAt(r.PriceLowerBound(), amount)
}

func (r *Reserve) MarketValueUpperBound(amount uint64) (*uint256.Int, error) {
	return r.valueAt(r.PriceUpperBound(), amount)
}

// BorrowWeightBps is the borrow weight in basis points, never below 10000.
func (r *Reserve) BorrowWeightBps() (uint64, error) {
	return checkedAddUint64(bpsScale, r.Config.AddedBorrowWeightBps)
}

// SetPrices stores normalized oracle prices and marks the reserve fresh at slot.
func (r *Reserve) SetPrices(main, extra *uint256.Int, slot uint64) {
	r.Liquidity.MarketPrice.Set(main)
	if extra == nil {
		r.Liquidity.ExtraMarketPrice.Clear()
	} else {
		r.Liquidity.ExtraMarketPrice.Set(extra)
	}
	r.LastUpdate.Update(slot)
}

// CurrentBorrowRate is the borrow curve evaluated at the reserve's
// utilization. No liquidity is lent out, so utilization is zero.
func (r *Reserve) CurrentBorrowRate() (*uint256.Int, error) {
	return r.Config.BorrowRate(new(uint256.Int))
}
