package lending

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/crypto"
)

// freshReserve is a 6 decimal reserve priced at one quote unit, refreshed at slot.
func freshReserve(name string, market crypto.Address, slot uint64) *Reserve {
	r := openReserve(1_000_000, 1_000_000)
	r.Address = testAddr(name)
	r.Market = market
	r.SetPrices(uint256.NewInt(WAD), nil, slot)
	return r
}

func wadFraction(num, den uint64) *uint256.Int {
	out := new(uint256.Int).Mul(uint256.NewInt(WAD), uint256.NewInt(num))
	return out.Div(out, uint256.NewInt(den))
}

func TestObligationRefreshValuesLines(t *testing.T) {
	market := testAddr("market")
	reserve := freshReserve("reserve", market, 5)
	reserves := map[crypto.Address]*Reserve{reserve.Address: reserve}

	o := NewObligation(testAddr("obligation"), market, testAddr("owner"), 0, 5)
	require.True(t, o.Closeable)
	require.NoError(t, o.DepositCollateral(reserve.Address, 1_000_000))
	o.Borrows = append(o.Borrows, ObligationLiquidity{Reserve: reserve.Address, BorrowedAmount: 400_000})

	require.NoError(t, o.Refresh(reserves, 5))
	require.Equal(t, wadFraction(1, 1), &o.DepositedValue)
	require.Equal(t, wadFraction(1, 2), &o.AllowedBorrowValue)
	require.Equal(t, wadFraction(55, 100), &o.UnhealthyBorrowValue)
	require.Equal(t, wadFraction(65, 100), &o.SuperUnhealthyBorrowValue)
	require.Equal(t, wadFraction(2, 5), &o.BorrowedValue)
	require.True(t, o.IsHealthy())
	require.True(t, o.LastUpdate.IsFresh(5))
	require.False(t, o.Closeable)

	o.Borrows[0].BorrowedAmount = 500_001
	require.NoError(t, o.Refresh(reserves, 5))
	require.False(t, o.IsHealthy())
}

func TestObligationBorrowWeight(t *testing.T) {
	market := testAddr("market")
	reserve := freshReserve("reserve", market, 1)
	reserve.Config.AddedBorrowWeightBps = 5_000

	o := NewObligation(testAddr("obligation"), market, testAddr("owner"), 0, 1)
	o.Borrows = []ObligationLiquidity{{Reserve: reserve.Address, BorrowedAmount: 100_000}}
	require.NoError(t, o.Refresh(map[crypto.Address]*Reserve{reserve.Address: reserve}, 1))
	require.Equal(t, wadFraction(15, 100), &o.BorrowedValue)
	require.False(t, o.IsHealthy())
}

func TestObligationRefreshUsesPriceLowerBoundForAllowance(t *testing.T) {
	market := testAddr("market")
	reserve := freshReserve("reserve", market, 1)
	reserve.SetPrices(uint256.NewInt(WAD), wadFraction(8, 10), 1)

	o := NewObligation(testAddr("obligation"), market, testAddr("owner"), 0, 1)
	require.NoError(t, o.DepositCollateral(reserve.Address, 1_000_000))
	require.NoError(t, o.Refresh(map[crypto.Address]*Reserve{reserve.Address: reserve}, 1))
	require.Equal(t, wadFraction(1, 1), &o.DepositedValue)
	require.Equal(t, wadFraction(4, 10), &o.AllowedBorrowValue)
}

func TestObligationRefreshRequiresFreshReserves(t *testing.T) {
	market := testAddr("market")
	reserve := freshReserve("reserve", market, 5)
	o := NewObligation(testAddr("obligation"), market, testAddr("owner"), 0, 5)
	require.NoError(t, o.DepositCollateral(reserve.Address, 1_000))
	before := o.Clone()

	require.ErrorIs(t, o.Refresh(map[crypto.Address]*Reserve{}, 5), ErrReservesStale)
	require.ErrorIs(t, o.Refresh(map[crypto.Address]*Reserve{reserve.Address: reserve}, 6), ErrReservesStale)

	reserve.LastUpdate.MarkStale()
	require.ErrorIs(t, o.Refresh(map[crypto.Address]*Reserve{reserve.Address: reserve}, 5), ErrReservesStale)

	other := freshReserve("reserve", testAddr("other-market"), 5)
	require.ErrorIs(t, o.Refresh(map[crypto.Address]*Reserve{reserve.Address: other}, 5), ErrMarketMismatch)
	require.Equal(t, before, o)
}

func TestObligationDepositWithdraw(t *testing.T) {
	reserve := testAddr("reserve")
	o := NewObligation(testAddr("obligation"), testAddr("market"), testAddr("owner"), 0, 1)

	require.ErrorIs(t, o.DepositCollateral(reserve, 0), ErrInvalidAmount)
	require.NoError(t, o.DepositCollateral(reserve, 1_000))
	require.NoError(t, o.DepositCollateral(reserve, 500))
	require.Len(t, o.Deposits, 1)
	require.Equal(t, uint64(1_500), o.DepositedAmount(reserve))

	require.ErrorIs(t, o.WithdrawCollateral(reserve, 1_501), ErrInsufficientDeposit)
	require.ErrorIs(t, o.WithdrawCollateral(testAddr("unknown"), 1), ErrInsufficientDeposit)
	require.NoError(t, o.WithdrawCollateral(reserve, 1_500))
	require.Empty(t, o.Deposits)
	require.True(t, o.Closeable)
}

func TestObligationLineCap(t *testing.T) {
	o := NewObligation(testAddr("obligation"), testAddr("market"), testAddr("owner"), 0, 1)
	o.Borrows = []ObligationLiquidity{{Reserve: testAddr("borrowed"), BorrowedAmount: 1}}
	for i := 0; i < MaxObligationReserves-1; i++ {
		require.NoError(t, o.DepositCollateral(ReserveAddress(testAddr("market"), uint64(i)), 1))
	}
	require.ErrorIs(t, o.DepositCollateral(testAddr("one-too-many"), 1), ErrObligationReserveLimit)
	// topping up an existing line is always allowed
	require.NoError(t, o.DepositCollateral(ReserveAddress(testAddr("market"), 0), 1))
	require.Len(t, o.ReserveAddresses(), MaxObligationReserves)
}

func TestObligationCloneIsDeep(t *testing.T) {
	o := NewObligation(testAddr("obligation"), testAddr("market"), testAddr("owner"), 0, 1)
	require.NoError(t, o.DepositCollateral(testAddr("reserve"), 10))
	clone := o.Clone()
	clone.Deposits[0].DepositedAmount = 99
	require.Equal(t, uint64(10), o.Deposits[0].DepositedAmount)
}
