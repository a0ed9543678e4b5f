package book

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

func addEntry(t *testing.T, s *MemStore, ticker string, score float64, ts int64, id string) {
	t.Helper()
	b := s.Batch()
	b.AddIndexEntry(ticker, score, ts, id)
	require.NoError(t, b.Commit(context.Background()))
}

func scan(t *testing.T, s *MemStore, ticker string, side order.Side) []IndexEntry {
	t.Helper()
	entries, err := s.ScanIndex(context.Background(), ticker, side)
	require.NoError(t, err)
	return entries
}

func TestIndexOrdering(t *testing.T) {
	s := NewMemStore()

	addEntry(t, s, "WETH-USDC", 2501_000000, 1700000000, "a")
	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000005, "b")
	addEntry(t, s, "WETH-USDC", 2500_500000, 1700000001, "c")

	got := scan(t, s, "WETH-USDC", order.Sell)
	require.Len(t, got, 3)
	require.Equal(t, "b", got[0].OrderID)
	require.Equal(t, "c", got[1].OrderID)
	require.Equal(t, "a", got[2].OrderID)
}

func TestIndexTieBreaksByMember(t *testing.T) {
	s := NewMemStore()

	// Same price level: the timestamp prefix of the member decides, so the
	// earlier order scans first even when scores collide exactly.
	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000099, "late")
	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000001, "early")

	got := scan(t, s, "WETH-USDC", order.Sell)
	require.Len(t, got, 2)
	require.Equal(t, "early", got[0].OrderID)
	require.Equal(t, int64(1700000001), got[0].Timestamp)
	require.Equal(t, "late", got[1].OrderID)
}

func TestIndexReAddReplaces(t *testing.T) {
	s := NewMemStore()

	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000000, "a")
	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000000, "a")

	got := scan(t, s, "WETH-USDC", order.Sell)
	require.Len(t, got, 1)
}

func TestScanIndexFiltersBySide(t *testing.T) {
	s := NewMemStore()

	// Asks carry positive scores, bids negative; one index holds both.
	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000000, "ask")
	addEntry(t, s, "WETH-USDC", -2400_000000, 1700000000, "bid")

	asks := scan(t, s, "WETH-USDC", order.Sell)
	require.Len(t, asks, 1)
	require.Equal(t, "ask", asks[0].OrderID)

	bids := scan(t, s, "WETH-USDC", order.Buy)
	require.Len(t, bids, 1)
	require.Equal(t, "bid", bids[0].OrderID)
}

func TestRemoveIndexEntry(t *testing.T) {
	s := NewMemStore()

	addEntry(t, s, "WETH-USDC", 2500_000000, 1700000000, "a")
	addEntry(t, s, "WETH-USDC", 2501_000000, 1700000000, "b")

	b := s.Batch()
	b.RemoveIndexEntry("WETH-USDC", 2500_000000, 1700000000, "a")
	require.NoError(t, b.Commit(context.Background()))

	got := scan(t, s, "WETH-USDC", order.Sell)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].OrderID)
}

func TestBatchIsAtomicPerCommit(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	o := order.MakerOrder{ID: "o1", Side: order.Sell, PriceLevel: "2500"}
	b := s.Batch()
	b.PutOpenOrder(o)
	b.AddIndexEntry("WETH-USDC", 2500_000000, 1700000000, "o1")

	// Nothing is visible before Commit.
	exists, err := s.OpenOrderExists(ctx, "o1")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, b.Commit(ctx))

	exists, err = s.OpenOrderExists(ctx, "o1")
	require.NoError(t, err)
	require.True(t, exists)
	require.Len(t, scan(t, s, "WETH-USDC", order.Sell), 1)
}

func TestBatchCommitHonorsContext(t *testing.T) {
	s := NewMemStore()

	b := s.Batch()
	b.AddIndexEntry("WETH-USDC", 2500_000000, 1700000000, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Commit(ctx), context.Canceled)
}
