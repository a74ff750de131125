package lending

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"lendcore/crypto"
)

const (
	// MaxBonusPct caps liquidator bonus plus protocol fee, as a percentage.
	MaxBonusPct = 25
	// MaxProtocolLiquidationFeeDecaBps caps the protocol's cut of the bonus.
	MaxProtocolLiquidationFeeDecaBps = 50
)

// ReserveType distinguishes pools whose assets may back borrows elsewhere.
type ReserveType uint8

const (
	ReserveTypeRegular ReserveType = iota
	ReserveTypeIsolated
)

func (t ReserveType) String() string {
	switch t {
	case ReserveTypeRegular:
		return "regular"
	case ReserveTypeIsolated:
		return "isolated"
	default:
		return fmt.Sprintf("reserve-type(%d)", uint8(t))
	}
}

func (t ReserveType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ReserveType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "regular":
		*t = ReserveTypeRegular
	case "isolated":
		*t = ReserveTypeIsolated
	default:
		return fmt.Errorf("lending: unknown reserve type %q", string(text))
	}
	return nil
}

// ReserveFees are the protocol-owned fees assessed on borrows and flash loans.
type ReserveFees struct {
	BorrowFeeWad      uint64 `json:"borrowFeeWad"`
	FlashLoanFeeWad   uint64 `json:"flashLoanFeeWad"`
	HostFeePercentage uint8  `json:"hostFeePercentage"`
}

// ReserveConfig holds the risk and economic parameters of a reserve.
// Percentages are whole numbers in [0, 100].
type ReserveConfig struct {
	OptimalUtilizationRate  uint8 `json:"optimalUtilizationRate"`
	MaxUtilizationRate      uint8 `json:"maxUtilizationRate"`
	LoanToValueRatio        uint8 `json:"loanToValueRatio"`
	LiquidationBonus        uint8 `json:"liquidationBonus"`
	MaxLiquidationBonus     uint8 `json:"maxLiquidationBonus"`
	LiquidationThreshold    uint8 `json:"liquidationThreshold"`
	MaxLiquidationThreshold uint8 `json:"maxLiquidationThreshold"`
	MinBorrowRate           uint8 `json:"minBorrowRate"`
	OptimalBorrowRate       uint8 `json:"optimalBorrowRate"`
	MaxBorrowRate           uint8 `json:"maxBorrowRate"`
	// SuperMaxBorrowRate may exceed 100 percent.
	SuperMaxBorrowRate uint64      `json:"superMaxBorrowRate"`
	Fees               ReserveFees `json:"fees"`
	// DepositLimit and BorrowLimit are in liquidity token base units.
	DepositLimit           uint64         `json:"depositLimit"`
	BorrowLimit            uint64         `json:"borrowLimit"`
	FeeReceiver            crypto.Address `json:"feeReceiver"`
	ProtocolLiquidationFee uint8          `json:"protocolLiquidationFee"` // deca bps
	ProtocolTakeRate       uint8          `json:"protocolTakeRate"`
	AddedBorrowWeightBps   uint64         `json:"addedBorrowWeightBps"`
	ReserveType            ReserveType    `json:"reserveType"`
	// Attributed borrow limits are whole quote-currency units.
	AttributedBorrowLimitOpen  uint64         `json:"attributedBorrowLimitOpen"`
	AttributedBorrowLimitClose uint64         `json:"attributedBorrowLimitClose"`
	ExtraOracle                crypto.Address `json:"extraOracle,omitempty"`
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ValidateConfig enforces the ordering and range constraints between the
// config's percentages, rates and fees.
func ValidateConfig(c ReserveConfig) error {
	switch {
	case c.OptimalUtilizationRate > 100:
		return invalidConfig("optimal utilization rate must be in [0, 100]")
	case c.MaxUtilizationRate < c.OptimalUtilizationRate || c.MaxUtilizationRate > 100:
		return invalidConfig("max utilization rate must be in [optimal, 100]")
	case c.LoanToValueRatio >= 100:
		return invalidConfig("loan to value ratio must be in [0, 100)")
	case c.LiquidationBonus > 100:
		return invalidConfig("liquidation bonus must be in [0, 100]")
	case c.MaxLiquidationBonus < c.LiquidationBonus || c.MaxLiquidationBonus > 100:
		return invalidConfig("max liquidation bonus must be in [bonus, 100]")
	case c.LiquidationThreshold < c.LoanToValueRatio || c.LiquidationThreshold > 100:
		return invalidConfig("liquidation threshold must be in [ltv, 100]")
	case c.MaxLiquidationThreshold < c.LiquidationThreshold || c.MaxLiquidationThreshold > 100:
		return invalidConfig("max liquidation threshold must be in [threshold, 100]")
	case c.OptimalBorrowRate < c.MinBorrowRate:
		return invalidConfig("optimal borrow rate must be >= min borrow rate")
	case c.MaxBorrowRate < c.OptimalBorrowRate:
		return invalidConfig("max borrow rate must be >= optimal borrow rate")
	case c.SuperMaxBorrowRate < uint64(c.MaxBorrowRate):
		return invalidConfig("super max borrow rate must be >= max borrow rate")
	case c.Fees.BorrowFeeWad >= WAD:
		return invalidConfig("borrow fee must be below 1")
	case c.Fees.FlashLoanFeeWad >= WAD:
		return invalidConfig("flash loan fee must be below 1")
	case c.Fees.HostFeePercentage > 100:
		return invalidConfig("host fee percentage must be in [0, 100]")
	case c.ProtocolLiquidationFee > MaxProtocolLiquidationFeeDecaBps:
		return invalidConfig("protocol liquidation fee must be <= %d deca bps", MaxProtocolLiquidationFeeDecaBps)
	case uint64(c.MaxLiquidationBonus)*100+uint64(c.ProtocolLiquidationFee)*10 > MaxBonusPct*100:
		return invalidConfig("max liquidation bonus plus protocol fee must be <= %d%%", MaxBonusPct)
	case c.ProtocolTakeRate > 100:
		return invalidConfig("protocol take rate must be in [0, 100]")
	case c.ReserveType != ReserveTypeRegular && c.ReserveType != ReserveTypeIsolated:
		return invalidConfig("unknown reserve type %d", c.ReserveType)
	case c.ReserveType == ReserveTypeIsolated && (c.LoanToValueRatio != 0 || c.LiquidationThreshold != 0):
		return invalidConfig("isolated reserves must have zero ltv and liquidation threshold")
	case c.AttributedBorrowLimitOpen > c.AttributedBorrowLimitClose:
		return invalidConfig("attributed borrow open limit must be <= close limit")
	}
	return nil
}

// protocolFieldsEqual compares the subset of fields only the protocol
// authority may change.
func protocolFieldsEqual(a, b ReserveConfig) bool {
	return a.Fees == b.Fees &&
		a.ProtocolLiquidationFee == b.ProtocolLiquidationFee &&
		a.ProtocolTakeRate == b.ProtocolTakeRate &&
		a.FeeReceiver == b.FeeReceiver
}

// withProtocolFields returns base with the protocol subset copied from src.
func withProtocolFields(base, src ReserveConfig) ReserveConfig {
	base.Fees = src.Fees
	base.ProtocolLiquidationFee = src.ProtocolLiquidationFee
	base.ProtocolTakeRate = src.ProtocolTakeRate
	base.FeeReceiver = src.FeeReceiver
	return base
}

func pct(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(u(v), u(WAD/percentScale))
}

// BorrowRate evaluates the piecewise linear borrow curve at a WAD scaled
// utilization and returns a WAD scaled annual rate.
func (c ReserveConfig) BorrowRate(utilization *uint256.Int) (*uint256.Int, error) {
	if utilization.Gt(wad) {
		utilization = wad
	}
	optimalUtil := pct(uint64(c.OptimalUtilizationRate))
	maxUtil := pct(uint64(c.MaxUtilizationRate))
	minRate := pct(uint64(c.MinBorrowRate))
	optimalRate := pct(uint64(c.OptimalBorrowRate))
	maxRate := pct(uint64(c.MaxBorrowRate))
	superMaxRate, overflow := new(uint256.Int).MulOverflow(u(c.SuperMaxBorrowRate), u(WAD/percentScale))
	if overflow {
		return nil, ErrMathOverflow
	}

	interpolate := func(lo, hi, x, x0, x1 *uint256.Int) (*uint256.Int, error) {
		span, err := checkedSub(hi, lo)
		if err != nil {
			return nil, err
		}
		dx, err := checkedSub(x, x0)
		if err != nil {
			return nil, err
		}
		width, err := checkedSub(x1, x0)
		if err != nil {
			return nil, err
		}
		delta, err := mulDiv(span, dx, width)
		if err != nil {
			return nil, err
		}
		return checkedAdd(lo, delta)
	}

	switch {
	case !utilization.Gt(optimalUtil):
		if optimalUtil.IsZero() {
			return minRate, nil
		}
		return interpolate(minRate, optimalRate, utilization, new(uint256.Int), optimalUtil)
	case !utilization.Gt(maxUtil):
		return interpolate(optimalRate, maxRate, utilization, optimalUtil, maxUtil)
	default:
		return interpolate(maxRate, superMaxRate, utilization, maxUtil, wad)
	}
}
