package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func openReserve(available, supply uint64) *Reserve {
	r := &Reserve{Config: testConfig()}
	r.Config.DepositLimit = Unrestricted
	r.Liquidity.AvailableAmount = available
	r.Liquidity.MintDecimals = 6
	r.Collateral.MintTotalSupply = supply
	return r
}

func TestDepositIntoEmptyReserveMintsOneToOne(t *testing.T) {
	r := openReserve(0, 0)
	rate, err := r.ExchangeRate()
	require.NoError(t, err)
	require.Equal(t, WAD, rate.Uint64())

	minted, err := r.DepositLiquidity(500_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), minted)
	require.Equal(t, uint64(500_000_000), r.Liquidity.AvailableAmount)
	require.Equal(t, uint64(500_000_000), r.Collateral.MintTotalSupply)
}

func TestDepositRedeemRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		available uint64
		supply    uint64
		amount    uint64
	}{
		{"unit rate", 1_000_000, 1_000_000, 12_345},
		{"appreciated", 1_000_003, 1_000_000, 12_345},
		{"depreciated", 999_999, 1_000_000, 777},
		{"large", 3_000_000_000_000, 1_000_000_000_000, 5_000_000_001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := openReserve(tc.available, tc.supply)
			minted, err := r.DepositLiquidity(tc.amount)
			require.NoError(t, err)
			back, err := r.RedeemCollateral(minted)
			require.NoError(t, err)
			require.LessOrEqual(t, back, tc.amount)
			if tc.amount-back > 1 {
				t.Fatalf("round trip lost %d units", tc.amount-back)
			}
		})
	}
}

func TestRedeemBeyondAvailableFails(t *testing.T) {
	r := openReserve(100, 100)
	before := *r
	if _, err := r.RedeemCollateral(101); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	require.Equal(t, before, *r)
}

func TestDepositLimit(t *testing.T) {
	r := openReserve(900, 900)
	r.Config.DepositLimit = 1_000
	require.NoError(t, r.CheckDepositLimit(100))
	require.ErrorIs(t, r.CheckDepositLimit(101), ErrExceedsDepositLimit)
}

func TestDepositOverflowFailsClosed(t *testing.T) {
	r := openReserve(Unrestricted-1, Unrestricted-1)
	before := *r
	_, err := r.DepositLiquidity(2)
	require.ErrorIs(t, err, ErrMathOverflow)
	require.Equal(t, before, *r)
}

func TestMarketValueNormalizesDecimals(t *testing.T) {
	r := openReserve(0, 0)
	price, err := NormalizePrice(2_500_000, -6) // 2.5 quote per token
	require.NoError(t, err)
	r.SetPrices(price, nil, 7)
	require.False(t, r.LastUpdate.Stale)
	require.Equal(t, uint64(7), r.LastUpdate.Slot)

	value, err := r.MarketValue(4_000_000) // 4 tokens
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Mul(uint256.NewInt(10), uint256.NewInt(WAD)), value)
}

func TestPriceBoundsUseExtraOracle(t *testing.T) {
	r := openReserve(0, 0)
	main, _ := NormalizePrice(100, 0)
	extra, _ := NormalizePrice(90, 0)
	r.SetPrices(main, extra, 1)
	require.Equal(t, extra, r.PriceLowerBound())
	require.Equal(t, main, r.PriceUpperBound())

	r.SetPrices(main, nil, 2)
	require.Equal(t, main, r.PriceLowerBound())
	require.True(t, r.Liquidity.ExtraMarketPrice.IsZero())
}

func TestNormalizePrice(t *testing.T) {
	cases := []struct {
		price    uint64
		exponent int32
		want     string
		err      error
	}{
		{1, 0, "1000000000000000000", nil},
		{123_456, -3, "123456000000000000000", nil},
		{5, -20, "", ErrInvalidOracle},
		{500, -20, "5", nil},
		{0, -6, "", ErrInvalidOracle},
		{1, 31, "", ErrInvalidOracle},
		{1, -31, "", ErrInvalidOracle},
	}
	for _, tc := range cases {
		got, err := NormalizePrice(tc.price, tc.exponent)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, "price %d exp %d", tc.price, tc.exponent)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got.Dec())
	}
}

func TestBorrowRateCurve(t *testing.T) {
	cfg := testConfig() // min 0, optimal 4 at 80%, max 30 at 90%, super max 150
	at := func(pct uint64) string {
		rate, err := cfg.BorrowRate(new(uint256.Int).Mul(uint256.NewInt(pct), uint256.NewInt(WAD/100)))
		require.NoError(t, err)
		return rate.Dec()
	}
	require.Equal(t, "0", at(0))
	require.Equal(t, "20000000000000000", at(40))    // 2%
	require.Equal(t, "40000000000000000", at(80))    // 4%
	require.Equal(t, "170000000000000000", at(85))   // 17%
	require.Equal(t, "300000000000000000", at(90))   // 30%
	require.Equal(t, "1500000000000000000", at(100)) // 150%
}
