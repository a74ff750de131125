package state

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/crypto"
	"lendcore/native/lending"
	"lendcore/storage"
)

func addr(name string) crypto.Address {
	return crypto.DeriveAddress("state-test", []byte(name))
}

func sampleReserve(name string) *lending.Reserve {
	r := &lending.Reserve{
		Version:    lending.RecordVersion,
		Address:    addr(name),
		Market:     addr("market"),
		Key:        7,
		LastUpdate: lending.NewLastUpdate(3),
		Config: lending.ReserveConfig{
			LoanToValueRatio:   50,
			SuperMaxBorrowRate: 250,
			DepositLimit:       lending.Unrestricted,
			ReserveType:        lending.ReserveTypeIsolated,
			ExtraOracle:        addr("extra"),
		},
		RateLimiter: lending.NewRateLimiter(lending.RateLimiterConfig{WindowDuration: 10, MaxOutflow: 99}, 3),
	}
	r.Liquidity.AvailableAmount = 1_000
	r.Liquidity.MintDecimals = 9
	r.Liquidity.MarketPrice.SetUint64(lending.WAD)
	r.Liquidity.ExtraMarketPrice.Mul(uint256.NewInt(lending.WAD), uint256.NewInt(1_000_000))
	r.Collateral.MintTotalSupply = 900
	return r
}

func TestTxReadsOwnWritesAndCommits(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	tx := mgr.Begin()
	reserve := sampleReserve("a")
	require.NoError(t, tx.PutReserve(reserve))
	got, err := tx.GetReserve(reserve.Address)
	require.NoError(t, err)
	require.Equal(t, reserve, got)

	require.NoError(t, mgr.View(func(other *Tx) error {
		missing, err := other.GetReserve(reserve.Address)
		require.Nil(t, missing)
		return err
	}))

	require.NoError(t, tx.Commit())
	require.ErrorIs(t, tx.Commit(), ErrTxClosed)
	_, err = tx.GetReserve(reserve.Address)
	require.ErrorIs(t, err, ErrTxClosed)

	require.NoError(t, mgr.View(func(other *Tx) error {
		stored, err := other.GetReserve(reserve.Address)
		require.Equal(t, reserve, stored)
		return err
	}))
}

func TestDiscardDropsWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	tx := mgr.Begin()
	require.NoError(t, tx.SetNonce(addr("signer"), 4))
	require.Equal(t, 1, tx.Pending())
	tx.Discard()

	require.NoError(t, mgr.View(func(tx *Tx) error {
		nonce, err := tx.Nonce(addr("signer"))
		require.Zero(t, nonce)
		return err
	}))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	boom := errors.New("boom")
	err := mgr.Update(func(tx *Tx) error {
		require.NoError(t, tx.SetNonce(addr("signer"), 1))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mgr.View(func(tx *Tx) error {
		nonce, err := tx.Nonce(addr("signer"))
		require.Zero(t, nonce)
		return err
	}))
}

func TestLendingRecordsRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	market := lending.NewLendingMarket(addr("market"), addr("owner"), [32]byte{'U', 'S', 'D'}, 5)
	obligation := lending.NewObligation(addr("obligation"), market.Address, addr("owner"), 1, 5)
	require.NoError(t, obligation.DepositCollateral(addr("a"), 10))
	obligation.Borrows = []lending.ObligationLiquidity{{Reserve: addr("b"), BorrowedAmount: 3}}
	obligation.Borrows[0].MarketValue.SetUint64(12345)
	obligation.AllowedBorrowValue.SetUint64(99)

	require.NoError(t, mgr.Update(func(tx *Tx) error {
		if err := tx.PutMarket(market); err != nil {
			return err
		}
		return tx.PutObligation(obligation)
	}))

	require.NoError(t, mgr.View(func(tx *Tx) error {
		gotMarket, err := tx.GetMarket(market.Address)
		require.NoError(t, err)
		require.Equal(t, market, gotMarket)
		require.Equal(t, "USD", gotMarket.QuoteCurrencySymbol())

		gotObligation, err := tx.GetObligation(obligation.Address)
		require.NoError(t, err)
		require.Equal(t, obligation, gotObligation)

		absent, err := tx.GetMarket(addr("nope"))
		require.NoError(t, err)
		require.Nil(t, absent)
		return nil
	}))
}

func TestReserveIndexKeepsRegistrationOrder(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	names := []string{"z", "a", "m"}
	for _, name := range names {
		require.NoError(t, mgr.Update(func(tx *Tx) error { return tx.PutReserve(sampleReserve(name)) }))
	}
	// rewriting a reserve does not duplicate it
	require.NoError(t, mgr.Update(func(tx *Tx) error { return tx.PutReserve(sampleReserve("a")) }))

	require.NoError(t, mgr.View(func(tx *Tx) error {
		index, err := tx.ReserveAddresses()
		require.NoError(t, err)
		require.Equal(t, []crypto.Address{addr("z"), addr("a"), addr("m")}, index)
		return nil
	}))
}

func TestStatePersistsInLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	mgr := NewManager(db)
	require.NoError(t, mgr.EnsureStateVersion(false))
	require.NoError(t, mgr.Update(func(tx *Tx) error { return tx.SetNonce(addr("signer"), 42) }))
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	mgr = NewManager(db)
	require.NoError(t, mgr.EnsureStateVersion(false))
	require.NoError(t, mgr.View(func(tx *Tx) error {
		nonce, err := tx.Nonce(addr("signer"))
		require.Equal(t, uint64(42), nonce)
		return err
	}))
}

func TestEnsureStateVersionRejectsMismatch(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.Update(func(tx *Tx) error {
		return tx.KVPut(stateVersionKey, uint64(StateVersion+1))
	}))
	require.ErrorIs(t, mgr.EnsureStateVersion(false), ErrStateVersionMismatch)
	require.NoError(t, mgr.EnsureStateVersion(true))
}
