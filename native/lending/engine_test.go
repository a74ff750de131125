package lending

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
)

func eventTypes(buf *events.Buffer) []string {
	var out []string
	for _, e := range buf.Events() {
		out = append(out, e.EventType())
	}
	return out
}

func TestInitReserveSeedsPoolAndCustody(t *testing.T) {
	f := newFixture(t)
	r := f.storedReserve(t)

	require.Equal(t, ReserveAddress(f.market.Address, 1), r.Address)
	require.Equal(t, uint64(1_000_000), r.Liquidity.AvailableAmount)
	require.Equal(t, uint64(1_000_000), r.Collateral.MintTotalSupply)
	require.Equal(t, uint8(6), r.Liquidity.MintDecimals)
	require.True(t, r.LastUpdate.Stale)
	require.Equal(t, uint64(1_000_000), f.tokens.balance(f.mint, r.Liquidity.SupplyAddress))
	require.Equal(t, uint64(1_000_000), f.tokens.balance(r.Collateral.MintAddress, f.owner))
	require.Equal(t, uint64(999_000_000), f.tokens.balance(f.mint, f.owner))

	_, err := f.engine.InitReserve(f.owner, InitReserveParams{
		Market: f.market.Address, LiquidityMint: f.mint, OracleFeed: f.feed, Key: 1, InitialLiquidity: 1, Config: testConfig(),
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = f.engine.InitReserve(f.user, InitReserveParams{
		Market: f.market.Address, LiquidityMint: f.mint, OracleFeed: f.feed, Key: 2, InitialLiquidity: 1, Config: testConfig(),
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	bad := testConfig()
	bad.LoanToValueRatio = 100
	_, err = f.engine.InitReserve(f.owner, InitReserveParams{
		Market: f.market.Address, LiquidityMint: f.mint, OracleFeed: f.feed, Key: 2, InitialLiquidity: 1, Config: bad,
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInitMarketTwiceFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.InitMarket(f.owner, "USD")
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, "USD", f.market.QuoteCurrencySymbol())
	require.Equal(t, f.owner, f.market.RiskAuthority)
}

func TestDepositAndRedeemLiquidity(t *testing.T) {
	f := newFixture(t)

	minted, err := f.engine.DepositLiquidity(f.user, f.reserve.Address, 500_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), minted)
	require.Equal(t, uint64(500_000_000), f.tokens.balance(f.reserve.Collateral.MintAddress, f.user))
	require.Equal(t, []string{events.TypeReserveRefreshed, events.TypeLiquidityDeposited}, eventTypes(f.emitted))

	r := f.storedReserve(t)
	require.Equal(t, uint64(501_000_000), r.Liquidity.AvailableAmount)
	require.True(t, r.LastUpdate.Stale)

	back, err := f.engine.RedeemCollateral(f.user, f.reserve.Address, 500_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), back)
	require.Equal(t, uint64(1_000_000_000), f.tokens.balance(f.mint, f.user))
	require.Zero(t, f.tokens.balance(f.reserve.Collateral.MintAddress, f.user))

	_, err = f.engine.DepositLiquidity(f.user, f.reserve.Address, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDepositLimitRejectsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.DepositLimit = 1_500_000
	_, err := f.engine.UpdateReserveConfig(f.owner, f.reserve.Address, cfg, DefaultRateLimiterConfig())
	require.NoError(t, err)

	before := f.storedReserve(t)
	_, err = f.engine.DepositLiquidity(f.user, f.reserve.Address, 500_001)
	require.ErrorIs(t, err, ErrExceedsDepositLimit)
	require.Equal(t, before, f.storedReserve(t))
	require.Equal(t, uint64(1_000_000_000), f.tokens.balance(f.mint, f.user))

	_, err = f.engine.DepositLiquidity(f.user, f.reserve.Address, 500_000)
	require.NoError(t, err)
}

func TestReserveOutflowLimitBlocksRedeem(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.UpdateReserveConfig(f.owner, f.reserve.Address, testConfig(), RateLimiterConfig{WindowDuration: 10, MaxOutflow: 0})
	require.NoError(t, err)

	before := f.storedReserve(t)
	marketBefore, err := f.engine.Market(f.market.Address)
	require.NoError(t, err)
	f.emitted.Reset()

	_, err = f.engine.RedeemCollateral(f.owner, f.reserve.Address, 1)
	require.ErrorIs(t, err, ErrOutflowLimitExceeded)
	require.Equal(t, before, f.storedReserve(t))
	marketAfter, err := f.engine.Market(f.market.Address)
	require.NoError(t, err)
	require.Equal(t, marketBefore, marketAfter)
	require.Equal(t, uint64(1_000_000), f.tokens.balance(f.reserve.Collateral.MintAddress, f.owner))
}

func TestMarketOutflowLimitCountsQuoteValue(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SetMarketOwnerAndConfig(f.owner, f.market.Address, MarketUpdate{
		NewOwner:             f.owner,
		RiskAuthority:        f.owner,
		RateLimiter:          RateLimiterConfig{WindowDuration: 10, MaxOutflow: 1},
		ExpectedCurrentOwner: f.owner,
	})
	require.NoError(t, err)
	_, err = f.engine.DepositLiquidity(f.user, f.reserve.Address, 2_000_000)
	require.NoError(t, err)

	// exactly one quote unit
	_, err = f.engine.RedeemCollateral(f.owner, f.reserve.Address, 1_000_000)
	require.NoError(t, err)

	// a fraction of a unit rounds up and exceeds the window
	_, err = f.engine.RedeemCollateral(f.user, f.reserve.Address, 1)
	require.ErrorIs(t, err, ErrOutflowLimitExceeded)

	f.engine.SetSlot(110)
	_, err = f.engine.RedeemCollateral(f.user, f.reserve.Address, 1)
	require.NoError(t, err)
}

func TestSetMarketOwnerAndConfig(t *testing.T) {
	f := newFixture(t)
	newOwner := testAddr("new-owner")
	update := MarketUpdate{NewOwner: newOwner, RiskAuthority: testAddr("risk"), ExpectedCurrentOwner: f.user, RateLimiter: DefaultRateLimiterConfig()}

	_, err := f.engine.SetMarketOwnerAndConfig(f.user, f.market.Address, update)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.SetMarketOwnerAndConfig(f.owner, f.market.Address, update)
	require.ErrorIs(t, err, ErrOwnerMismatch)

	update.ExpectedCurrentOwner = f.owner
	market, err := f.engine.SetMarketOwnerAndConfig(f.owner, f.market.Address, update)
	require.NoError(t, err)
	require.Equal(t, newOwner, market.Owner)
	require.Equal(t, testAddr("risk"), market.RiskAuthority)

	_, err = f.engine.SetMarketOwnerAndConfig(f.owner, f.market.Address, update)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateReserveConfigByRole(t *testing.T) {
	f := newFixture(t)
	risk := testAddr("risk")
	_, err := f.engine.SetMarketOwnerAndConfig(f.owner, f.market.Address, MarketUpdate{
		NewOwner: f.owner, RiskAuthority: risk, ExpectedCurrentOwner: f.owner, RateLimiter: DefaultRateLimiterConfig(),
	})
	require.NoError(t, err)

	// protocol authority: only the protocol subset lands
	proposed := testConfig()
	proposed.ProtocolTakeRate = 7
	proposed.LoanToValueRatio = 40
	r, err := f.engine.UpdateReserveConfig(f.protocol, f.reserve.Address, proposed, RateLimiterConfig{WindowDuration: 1, MaxOutflow: 1})
	require.NoError(t, err)
	require.Equal(t, uint8(7), r.Config.ProtocolTakeRate)
	require.Equal(t, uint8(50), r.Config.LoanToValueRatio)
	require.Equal(t, uint64(Unrestricted), r.RateLimiter.Config.MaxOutflow)
	require.True(t, r.LastUpdate.Stale)

	// owner may not touch protocol fields
	proposed = r.Config
	proposed.ProtocolTakeRate = 8
	_, err = f.engine.UpdateReserveConfig(f.owner, f.reserve.Address, proposed, DefaultRateLimiterConfig())
	require.ErrorIs(t, err, ErrNotBernanke)

	// risk authority lowers, cannot raise
	proposed = r.Config
	proposed.DepositLimit = 10
	_, err = f.engine.UpdateReserveConfig(risk, f.reserve.Address, proposed, DefaultRateLimiterConfig())
	require.NoError(t, err)
	proposed.DepositLimit = 11
	_, err = f.engine.UpdateReserveConfig(risk, f.reserve.Address, proposed, DefaultRateLimiterConfig())
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.engine.UpdateReserveConfig(f.user, f.reserve.Address, proposed, DefaultRateLimiterConfig())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshReserveIsIdempotentWithinSlot(t *testing.T) {
	f := newFixture(t)
	first, err := f.engine.RefreshReserve(f.reserve.Address)
	require.NoError(t, err)
	second, err := f.engine.RefreshReserve(f.reserve.Address)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.True(t, first.LastUpdate.IsFresh(100))
	require.Equal(t, "1000000000000000000", first.Liquidity.MarketPrice.Dec())

	delete(f.oracle, f.feed)
	_, err = f.engine.RefreshReserve(f.reserve.Address)
	require.ErrorIs(t, err, ErrReserveStale)
	require.Equal(t, second, f.storedReserve(t))
}

func TestObligationWithdrawFlow(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.DepositLiquidity(f.user, f.reserve.Address, 10_000)
	require.NoError(t, err)

	obligation, err := f.engine.InitObligation(f.user, f.market.Address, 1)
	require.NoError(t, err)
	require.Equal(t, ObligationAddress(f.market.Address, f.user, 1), obligation.Address)
	_, err = f.engine.InitObligation(f.user, f.market.Address, 1)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = f.engine.DepositObligationCollateral(f.owner, obligation.Address, f.reserve.Address, 1_000)
	require.ErrorIs(t, err, ErrObligationNotOwned)
	_, err = f.engine.DepositObligationCollateral(f.user, obligation.Address, f.reserve.Address, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), f.tokens.balance(f.reserve.Collateral.MintAddress, f.reserve.Collateral.SupplyAddress))

	_, err = f.engine.WithdrawObligationCollateral(f.user, obligation.Address, f.reserve.Address, 1_500)
	require.ErrorIs(t, err, ErrInsufficientDeposit)

	// a 400 unit borrow against 1000 deposited at 50% ltv
	stored, err := f.state.GetObligation(obligation.Address)
	require.NoError(t, err)
	stored.Borrows = []ObligationLiquidity{{Reserve: f.reserve.Address, BorrowedAmount: 400}}
	require.NoError(t, f.state.PutObligation(stored))

	f.engine.SetSlot(101)
	_, err = f.engine.WithdrawObligationCollateral(f.user, obligation.Address, f.reserve.Address, 100)
	require.ErrorIs(t, err, ErrReservesStale)

	_, err = f.engine.RefreshReserve(f.reserve.Address)
	require.NoError(t, err)
	_, err = f.engine.WithdrawObligationCollateral(f.user, obligation.Address, f.reserve.Address, 500)
	require.ErrorIs(t, err, ErrWithdrawExceedsAllowedValue)

	next, err := f.engine.WithdrawObligationCollateral(f.user, obligation.Address, f.reserve.Address, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(900), next.DepositedAmount(f.reserve.Address))
	require.True(t, next.LastUpdate.Stale)
	require.Equal(t, uint64(9_100), f.tokens.balance(f.reserve.Collateral.MintAddress, f.user))

	refreshed, err := f.engine.RefreshObligation(obligation.Address)
	require.NoError(t, err)
	require.True(t, refreshed.IsHealthy())
	require.Equal(t, "900000000000000", refreshed.DepositedValue.Dec())
	require.Equal(t, "450000000000000", refreshed.AllowedBorrowValue.Dec())
	require.Equal(t, "400000000000000", refreshed.BorrowedValue.Dec())
}

func TestObligationDepositLeavesReserveStale(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.DepositLiquidity(f.user, f.reserve.Address, 10_000)
	require.NoError(t, err)
	obligation, err := f.engine.InitObligation(f.user, f.market.Address, 1)
	require.NoError(t, err)

	_, err = f.engine.RefreshReserve(f.reserve.Address)
	require.NoError(t, err)
	require.True(t, f.storedReserve(t).LastUpdate.IsFresh(100))

	_, err = f.engine.DepositObligationCollateral(f.user, obligation.Address, f.reserve.Address, 1_000)
	require.NoError(t, err)
	r := f.storedReserve(t)
	require.True(t, r.LastUpdate.Stale)
	require.Equal(t, uint64(100), r.LastUpdate.Slot)

	// same slot, but the deposit invalidated the refresh
	_, err = f.engine.WithdrawObligationCollateral(f.user, obligation.Address, f.reserve.Address, 100)
	require.ErrorIs(t, err, ErrReservesStale)

	_, err = f.engine.RefreshReserve(f.reserve.Address)
	require.NoError(t, err)
	next, err := f.engine.WithdrawObligationCollateral(f.user, obligation.Address, f.reserve.Address, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(900), next.DepositedAmount(f.reserve.Address))
}

func TestPausedModuleRejectsMutationsButAllowsRefresh(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(nativecommon.NewPauseSet("lending"))

	_, err := f.engine.DepositLiquidity(f.user, f.reserve.Address, 1)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	_, err = f.engine.RedeemCollateral(f.owner, f.reserve.Address, 1)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	_, err = f.engine.RefreshReserve(f.reserve.Address)
	require.NoError(t, err)
}

func TestReservesListsInRegistrationOrder(t *testing.T) {
	f := newFixture(t)
	second, err := f.engine.InitReserve(f.owner, InitReserveParams{
		Market: f.market.Address, LiquidityMint: f.mint, OracleFeed: f.feed, Key: 2, InitialLiquidity: 5, Config: testConfig(),
	})
	require.NoError(t, err)

	list, err := f.engine.Reserves()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, f.reserve.Address, list[0].Address)
	require.Equal(t, second.Address, list[1].Address)
	require.NotEqual(t, f.reserve.Collateral.MintAddress, second.Collateral.MintAddress)
}

func TestEngineWithoutStateFails(t *testing.T) {
	e := NewEngine(testAddr("protocol"))
	_, err := e.RefreshReserve(testAddr("reserve"))
	require.ErrorIs(t, err, ErrNilState)
}
