package token

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/storage"
)

func addr(name string) crypto.Address {
	return crypto.DeriveAddress("token-test", []byte(name))
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	tx := state.NewManager(storage.NewMemDB()).Begin()
	t.Cleanup(tx.Discard)
	return NewLedger(tx)
}

func TestCreateMintAndMintTo(t *testing.T) {
	l := newLedger(t)
	mint, authority := addr("usdc"), addr("authority")

	require.NoError(t, l.CreateMint(mint, 6, authority))
	require.ErrorIs(t, l.CreateMint(mint, 6, authority), ErrMintExists)

	decimals, err := l.MintDecimals(mint)
	require.NoError(t, err)
	require.Equal(t, uint8(6), decimals)

	require.ErrorIs(t, l.MintTo(mint, addr("intruder"), addr("alice"), 1), ErrMintAuthority)
	require.NoError(t, l.MintTo(mint, authority, addr("alice"), 1_000))

	balance, err := l.BalanceOf(mint, addr("alice"))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), balance)

	record, err := l.Mint(mint)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), record.Supply)

	mints, err := l.Mints()
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{mint}, mints)

	_, err = l.MintDecimals(addr("unknown"))
	require.ErrorIs(t, err, ErrUnknownMint)
}

func TestTransferAndBurn(t *testing.T) {
	l := newLedger(t)
	mint, authority := addr("usdc"), addr("authority")
	alice, bob := addr("alice"), addr("bob")
	require.NoError(t, l.CreateMint(mint, 6, authority))
	require.NoError(t, l.MintTo(mint, authority, alice, 500))

	require.NoError(t, l.Transfer(mint, alice, bob, 200))
	require.ErrorIs(t, l.Transfer(mint, alice, bob, 301), ErrInsufficientBalance)
	require.NoError(t, l.Transfer(mint, alice, alice, 300))

	aliceBalance, _ := l.BalanceOf(mint, alice)
	bobBalance, _ := l.BalanceOf(mint, bob)
	require.Equal(t, uint64(300), aliceBalance)
	require.Equal(t, uint64(200), bobBalance)

	require.ErrorIs(t, l.Burn(mint, bob, 201), ErrInsufficientBalance)
	require.NoError(t, l.Burn(mint, bob, 200))
	record, err := l.Mint(mint)
	require.NoError(t, err)
	require.Equal(t, uint64(300), record.Supply)
}

func TestMintSupplyOverflow(t *testing.T) {
	l := newLedger(t)
	mint, authority := addr("usdc"), addr("authority")
	require.NoError(t, l.CreateMint(mint, 0, authority))
	require.NoError(t, l.MintTo(mint, authority, addr("alice"), ^uint64(0)))
	require.ErrorIs(t, l.MintTo(mint, authority, addr("bob"), 1), ErrSupplyOverflow)
}
