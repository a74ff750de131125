package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	"lendcore/crypto"
)

func openTestJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(DriverSQLite, path, nil)
	require.NoError(t, err)
	return j
}

func TestAppendAndQuery(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	defer j.Close()
	j.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	feed := crypto.DeriveAddress("feed", []byte("SOL"))
	j.Emit(events.OracleFeedInitialized{Feed: feed, Symbol: "SOL", Publisher: crypto.DeriveAddress("publisher")})
	for i := 0; i < 3; i++ {
		j.Emit(events.OraclePriceUpdated{Feed: feed, Price: uint64(100 + i)})
	}

	all, err := j.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, entry := range all {
		require.Equal(t, uint64(i+1), entry.Seq)
	}
	require.Equal(t, "SOL", all[0].Attributes["symbol"])

	updates, err := j.Query(context.Background(), Filter{Type: events.TypeOraclePriceUpdated, AfterSeq: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, uint64(3), updates[0].Seq)
	require.Equal(t, "101", updates[0].Attributes["price"])
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j := openTestJournal(t, path)
	_, err := j.Append(context.Background(), events.OraclePriceUpdated{Price: 1})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j = openTestJournal(t, path)
	defer j.Close()
	entry, err := j.Append(context.Background(), events.OraclePriceUpdated{Price: 2})
	require.NoError(t, err)
	require.Equal(t, uint64(2), entry.Seq)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "", nil)
	require.ErrorContains(t, err, "unsupported driver")
}

func TestAppendRejectsNilEvent(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"))
	defer j.Close()
	_, err := j.Append(context.Background(), nil)
	require.Error(t, err)
}
