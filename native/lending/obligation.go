package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"lendcore/crypto"
)

// MaxObligationReserves caps the deposit and borrow lines of one obligation.
const MaxObligationReserves = 10

// ObligationCollateral is a deposit line: claim tokens of one reserve held in
// custody for the obligation.
type ObligationCollateral struct {
	Reserve               crypto.Address
	DepositedAmount       uint64
	MarketValue           uint256.Int
	AttributedBorrowValue uint256.Int
}

// ObligationLiquidity is a borrow line against one reserve.
type ObligationLiquidity struct {
	Reserve        crypto.Address
	BorrowedAmount uint64
	MarketValue    uint256.Int
}

// Obligation aggregates a borrower's position across reserves.
type Obligation struct {
	Version                   uint8
	Address                   crypto.Address
	Market                    crypto.Address
	Owner                     crypto.Address
	Key                       uint64
	LastUpdate                LastUpdate
	Deposits                  []ObligationCollateral
	Borrows                   []ObligationLiquidity
	DepositedValue            uint256.Int
	BorrowedValue             uint256.Int
	AllowedBorrowValue        uint256.Int
	UnhealthyBorrowValue      uint256.Int
	SuperUnhealthyBorrowValue uint256.Int
	Closeable                 bool
}

// NewObligation returns an empty, stale obligation.
func NewObligation(addr, market, owner crypto.Address, key, slot uint64) *Obligation {
	return &Obligation{
		Version:    RecordVersion,
		Address:    addr,
		Market:     market,
		Owner:      owner,
		Key:        key,
		LastUpdate: NewLastUpdate(slot),
		Closeable:  true,
	}
}

// Clone returns a deep copy of the obligation.
func (o *Obligation) Clone() *Obligation {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Deposits = append([]ObligationCollateral(nil), o.Deposits...)
	clone.Borrows = append([]ObligationLiquidity(nil), o.Borrows...)
	return &clone
}

// ReserveAddresses lists every reserve the obligation references, deposits
// first, without duplicates.
func (o *Obligation) ReserveAddresses() []crypto.Address {
	seen := make(map[crypto.Address]struct{}, len(o.Deposits)+len(o.Borrows))
	out := make([]crypto.Address, 0, len(o.Deposits)+len(o.Borrows))
	add := func(addr crypto.Address) {
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, line := range o.Deposits {
		add(line.Reserve)
	}
	for _, line := range o.Borrows {
		add(line.Reserve)
	}
	return out
}

func (o *Obligation) findDeposit(reserve crypto.Address) int {
	for i := range o.Deposits {
		if o.Deposits[i].Reserve == reserve {
			return i
		}
	}
	return -1
}

// DepositedAmount returns the collateral held for reserve.
func (o *Obligation) DepositedAmount(reserve crypto.Address) uint64 {
	if idx := o.findDeposit(reserve); idx >= 0 {
		return o.Deposits[idx].DepositedAmount
	}
	return 0
}

// DepositCollateral credits amount of reserve's claim token, adding a line on
// first touch.
func (o *Obligation) DepositCollateral(reserve crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	idx := o.findDeposit(reserve)
	if idx < 0 {
		if len(o.Deposits)+len(o.Borrows) >= MaxObligationReserves {
			return ErrObligationReserveLimit
		}
		o.Deposits = append(o.Deposits, ObligationCollateral{Reserve: reserve})
		idx = len(o.Deposits) - 1
	}
	total, err := checkedAddUint64(o.Deposits[idx].DepositedAmount, amount)
	if err != nil {
		return err
	}
	o.Deposits[idx].DepositedAmount = total
	o.Closeable = false
	o.LastUpdate.MarkStale()
	return nil
}

// WithdrawCollateral debits amount from the reserve's line, dropping the line
// when it reaches zero.
func (o *Obligation) WithdrawCollateral(reserve crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	idx := o.findDeposit(reserve)
	if idx < 0 || amount > o.Deposits[idx].DepositedAmount {
		return ErrInsufficientDeposit
	}
	o.Deposits[idx].DepositedAmount -= amount
	if o.Deposits[idx].DepositedAmount == 0 {
		o.Deposits = append(o.Deposits[:idx], o.Deposits[idx+1:]...)
	}
	o.Closeable = len(o.Deposits) == 0 && len(o.Borrows) == 0
	o.LastUpdate.MarkStale()
	return nil
}

// Refresh recomputes every line and aggregate from reserve snapshots. Each
// referenced reserve must be present and fresh at slot. On error the
// obligation is left unchanged.
func (o *Obligation) Refresh(reserves map[crypto.Address]*Reserve, slot uint64) error {
	lookup := func(addr crypto.Address) (*Reserve, error) {
		reserve, ok := reserves[addr]
		if !ok || reserve == nil {
			return nil, fmt.Errorf("%w: reserve %s not supplied", ErrReservesStale, addr)
		}
		if reserve.Market != o.Market {
			return nil, fmt.Errorf("%w: reserve %s", ErrMarketMismatch, addr)
		}
		if !reserve.LastUpdate.IsFresh(slot) {
			return nil, fmt.Errorf("%w: reserve %s", ErrReservesStale, addr)
		}
		return reserve, nil
	}

	var (
		deposited      = new(uint256.Int)
		borrowed       = new(uint256.Int)
		allowed        = new(uint256.Int)
		unhealthy      = new(uint256.Int)
		superUnhealthy = new(uint256.Int)
		err            error
	)
	addPct := func(acc, value *uint256.Int, percent uint8) (*uint256.Int, error) {
		part, err := mulDiv(value, u(uint64(percent)), u(percentScale))
		if err != nil {
			return nil, err
		}
		return checkedAdd(acc, part)
	}

	deposits := make([]ObligationCollateral, 0, len(o.Deposits))
	for _, line := range o.Deposits {
		reserve, lerr := lookup(line.Reserve)
		if lerr != nil {
			return lerr
		}
		if line.DepositedAmount == 0 {
			continue
		}
		liquidity, lerr := reserve.CollateralToLiquidity(line.DepositedAmount)
		if lerr != nil {
			return lerr
		}
		value, lerr := reserve.MarketValue(liquidity)
		if lerr != nil {
			return lerr
		}
		lower, lerr := reserve.MarketValueLowerBound(liquidity)
		if lerr != nil {
			return lerr
		}
		attributed, lerr := mulDiv(lower, u(uint64(reserve.Config.LoanToValueRatio)), u(percentScale))
		if lerr != nil {
			return lerr
		}
		if deposited, err = checkedAdd(deposited, value); err != nil {
			return err
		}
		if allowed, err = checkedAdd(allowed, attributed); err != nil {
			return err
		}
		if unhealthy, err = addPct(unhealthy, value, reserve.Config.LiquidationThreshold); err != nil {
			return err
		}
		if superUnhealthy, err = addPct(superUnhealthy, value, reserve.Config.MaxLiquidationThreshold); err != nil {
			return err
		}
		line.MarketValue.Set(value)
		line.AttributedBorrowValue.Set(attributed)
		deposits = append(deposits, line)
	}

	borrows := make([]ObligationLiquidity, 0, len(o.Borrows))
	for _, line := range o.Borrows {
		reserve, lerr := lookup(line.Reserve)
		if lerr != nil {
			return lerr
		}
		if line.BorrowedAmount == 0 {
			continue
		}
		value, lerr := reserve.MarketValue(line.BorrowedAmount)
		if lerr != nil {
			return lerr
		}
		weightBps, lerr := reserve.BorrowWeightBps()
		if lerr != nil {
			return lerr
		}
		weighted, lerr := mulDiv(value, u(weightBps), u(bpsScale))
		if lerr != nil {
			return lerr
		}
		if borrowed, err = checkedAdd(borrowed, weighted); err != nil {
			return err
		}
		line.MarketValue.Set(weighted)
		borrows = append(borrows, line)
	}

	o.Deposits = deposits
	o.Borrows = borrows
	o.DepositedValue.Set(deposited)
	o.BorrowedValue.Set(borrowed)
	o.AllowedBorrowValue.Set(allowed)
	o.UnhealthyBorrowValue.Set(unhealthy)
	o.SuperUnhealthyBorrowValue.Set(superUnhealthy)
	o.Closeable = len(deposits) == 0 && len(borrows) == 0
	o.LastUpdate.Update(slot)
	return nil
}

// IsHealthy reports whether allowed borrow value covers the borrowed value.
func (o *Obligation) IsHealthy() bool {
	return !o.AllowedBorrowValue.Lt(&o.BorrowedValue)
}
