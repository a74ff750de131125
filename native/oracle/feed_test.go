package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/storage"
)

func TestInitAndUpdateFeed(t *testing.T) {
	tx := state.NewManager(storage.NewMemDB()).Begin()
	defer tx.Discard()
	buf := &events.Buffer{}
	reg := NewRegistry(tx, buf)
	publisher := crypto.DeriveAddress("oracle-test", []byte("publisher"))

	feed, err := reg.InitFeed(publisher, " usdc ", 999_800, -6, 10)
	require.NoError(t, err)
	require.Equal(t, "USDC", feed.Symbol)
	require.Equal(t, FeedAddress("USDC"), feed.Address)

	_, err = reg.InitFeed(publisher, "usdc", 1, 0, 10)
	require.ErrorIs(t, err, ErrFeedExists)

	price, exponent, err := reg.Price(feed.Address)
	require.NoError(t, err)
	require.Equal(t, uint64(999_800), price)
	require.Equal(t, int32(-6), exponent)

	_, err = reg.UpdateFeedPrice(crypto.DeriveAddress("oracle-test", []byte("other")), feed.Address, 1, 0, 11)
	require.ErrorIs(t, err, ErrNotPublisher)

	updated, err := reg.UpdateFeedPrice(publisher, feed.Address, 12, 3, 11)
	require.NoError(t, err)
	require.Equal(t, int32(3), updated.Exponent)

	stored, err := reg.Feed(feed.Address)
	require.NoError(t, err)
	require.Equal(t, updated, stored)

	require.Equal(t, []string{events.TypeOracleFeedInitialized, events.TypeOraclePriceUpdated},
		[]string{buf.Events()[0].EventType(), buf.Events()[1].EventType()})
}

func TestInvalidReadings(t *testing.T) {
	tx := state.NewManager(storage.NewMemDB()).Begin()
	defer tx.Discard()
	reg := NewRegistry(tx, nil)
	publisher := crypto.DeriveAddress("oracle-test", []byte("publisher"))

	_, err := reg.InitFeed(publisher, "sol", 0, 0, 1)
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = reg.InitFeed(publisher, "sol", 1, 31, 1)
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = reg.InitFeed(publisher, "  ", 1, 0, 1)
	require.ErrorIs(t, err, ErrInvalidSymbol)

	_, _, err = reg.Price(FeedAddress("sol"))
	require.ErrorIs(t, err, ErrUnknownFeed)
}
