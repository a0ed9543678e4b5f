package book

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/market"
	"github.com/junhoyeo/dexmatch/pkg/order"
)

const testTicker = "WETH-USDC"

var (
	testBase  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	testQuote = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

// fixedClock pins time so deadline checks are deterministic.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func testRegistry() *market.Registry {
	return market.NewRegistry(map[string]market.Info{
		testTicker: {
			BaseToken:     testBase,
			BaseDecimals:  18,
			QuoteToken:    testQuote,
			QuoteDecimals: 6,
			Symbol:        testTicker,
		},
	})
}

func newTestBook(t *testing.T, opts Options) *OrderBook {
	t.Helper()
	return New(NewMemStore(), testRegistry(), fixedClock{now: time.Unix(1700000000, 0)}, zap.NewNop(), opts)
}

func weth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func makerOrder(id string, side order.Side, price string, amount *big.Int, ts int64) order.MakerOrder {
	return order.MakerOrder{
		ID:               id,
		Trader:           common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		BaseToken:        testBase,
		QuoteToken:       testQuote,
		BaseDecimals:     18,
		QuoteDecimals:    6,
		BaseAmount:       amount,
		BaseAmountFilled: big.NewInt(0),
		PriceLevel:       price,
		Side:             side,
		Timestamp:        ts,
		Deadline:         1800000000,
		Salt:             "1",
		Signature:        "0xaa",
	}
}

func takerOrder(id string, side order.Side, price string, amount *big.Int) order.TakerOrder {
	return order.TakerOrder{
		ID:            id,
		Trader:        common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		BaseToken:     testBase,
		QuoteToken:    testQuote,
		BaseDecimals:  18,
		QuoteDecimals: 6,
		BaseAmount:    amount,
		PriceLevel:    price,
		Side:          side,
		Timestamp:     1700000001,
		Deadline:      1800000000,
		Salt:          "2",
		Signature:     "0xbb",
	}
}

func TestSubmitLimitOrderDuplicate(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	m := makerOrder("m1", order.Sell, "2500", weth(1), 100)
	require.NoError(t, b.SubmitLimitOrder(ctx, m))

	err := b.SubmitLimitOrder(ctx, m)
	require.ErrorIs(t, err, ErrOrderExists)
}

func TestCancelLimitOrder(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.ErrorIs(t, b.CancelLimitOrder(ctx, testTicker, "missing"), ErrOrderNotFound)

	m := makerOrder("m1", order.Sell, "2500", weth(1), 100)
	require.NoError(t, b.SubmitLimitOrder(ctx, m))
	require.NoError(t, b.CancelLimitOrder(ctx, testTicker, "m1"))

	// Gone from the book: a crossing taker finds nothing.
	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "3000", weth(1)))
	require.NoError(t, err)
	require.Empty(t, matches)

	cancelled, err := b.Store().IsCancelled(ctx, "m1")
	require.NoError(t, err)
	require.True(t, cancelled)
}

func TestMarketOrderFullFill(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	m := makerOrder("m1", order.Sell, "2500", weth(1), 100)
	require.NoError(t, b.SubmitLimitOrder(ctx, m))

	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(1)))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	got := matches[0]
	require.Equal(t, "m1", got.MakerOrderID)
	require.Equal(t, "t1", got.TakerOrderID)
	require.Equal(t, weth(1), got.BaseAmountFilled)
	require.Equal(t, "2500000000", got.QuoteAmountFilled.String())
	require.Equal(t, order.HashIDs("m1", "t1"), got.PendingTradeID)

	// Fully consumed maker leaves the open set, both parties are in flight,
	// and the pending trade is recorded.
	exists, err := b.Store().OpenOrderExists(ctx, "m1")
	require.NoError(t, err)
	require.False(t, exists)

	inFlight, err := b.Store().InFlightExists(ctx, "m1")
	require.NoError(t, err)
	require.True(t, inFlight)

	_, err = b.Store().GetPendingTrade(ctx, got.PendingTradeID)
	require.NoError(t, err)
}

func TestMarketOrderPartialFillProtectsMaker(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	m := makerOrder("m1", order.Sell, "2500", weth(2), 100)
	require.NoError(t, b.SubmitLimitOrder(ctx, m))

	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(1)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, weth(1), matches[0].BaseAmountFilled)

	// Maker still rests with the remaining amount but cannot be cancelled
	// while its fill settles.
	open, err := b.Store().GetOpenOrder(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, weth(1), open.Remaining())

	err = b.CancelLimitOrder(ctx, testTicker, "m1")
	require.ErrorIs(t, err, ErrOrderInFlight)
}

func TestMatchingPriceTimePriority(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("late-cheap", order.Sell, "2400", weth(1), 1600000100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("expensive", order.Sell, "2500", weth(1), 1600000050)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("early-cheap", order.Sell, "2400", weth(1), 1600000050)))

	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(3)))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	require.Equal(t, "early-cheap", matches[0].MakerOrderID)
	require.Equal(t, "late-cheap", matches[1].MakerOrderID)
	require.Equal(t, "expensive", matches[2].MakerOrderID)
}

func TestMatchingRespectsTakerLimit(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("cheap", order.Sell, "2400", weth(1), 100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("pricey", order.Sell, "2600", weth(1), 100)))

	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(3)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "cheap", matches[0].MakerOrderID)

	// The pricey maker is untouched.
	open, err := b.Store().GetOpenOrder(ctx, "pricey")
	require.NoError(t, err)
	require.Equal(t, weth(1), open.Remaining())
}

func TestSellTakerMatchesBids(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("low-bid", order.Buy, "2400", weth(1), 100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("high-bid", order.Buy, "2600", weth(1), 100)))

	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Sell, "2500", weth(3)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "high-bid", matches[0].MakerOrderID)
	require.Equal(t, "2600000000", matches[0].QuoteAmountFilled.String())
}

func TestExpiredMakerPurgedOnScan(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	expired := makerOrder("stale", order.Sell, "2400", weth(1), 100)
	expired.Deadline = 1600000000 // before the book's clock
	require.NoError(t, b.SubmitLimitOrder(ctx, expired))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("live", order.Sell, "2500", weth(1), 100)))

	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(1)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "live", matches[0].MakerOrderID)

	exists, err := b.Store().OpenOrderExists(ctx, "stale")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestExpiredTakerRejected(t *testing.T) {
	b := newTestBook(t, Options{})

	taker := takerOrder("t1", order.Buy, "2500", weth(1))
	taker.Deadline = 1600000000

	_, err := b.SubmitMarketOrder(context.Background(), taker)
	require.ErrorIs(t, err, order.ErrInvalidRequest)
}

func TestFillConservation(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("m1", order.Sell, "2400", weth(2), 100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("m2", order.Sell, "2500", weth(2), 100)))

	takerAmount := weth(3)
	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", takerAmount))
	require.NoError(t, err)

	total := big.NewInt(0)
	for _, m := range matches {
		total.Add(total, m.BaseAmountFilled)
	}
	require.Equal(t, takerAmount, total)
}

func TestResolveTradeConfirmed(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("m1", order.Sell, "2500", weth(1), 100)))
	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(1)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	tradeID := matches[0].PendingTradeID

	require.NoError(t, b.ResolveTrade(ctx, tradeID, OutcomeConfirmed))

	for _, id := range []string{"m1", "t1"} {
		filled, err := b.Store().FilledOrderExists(ctx, id)
		require.NoError(t, err)
		require.True(t, filled, "order %s should be archived as filled", id)

		inFlight, err := b.Store().InFlightExists(ctx, id)
		require.NoError(t, err)
		require.False(t, inFlight)
	}

	// Second resolution finds nothing to resolve.
	err = b.ResolveTrade(ctx, tradeID, OutcomeConfirmed)
	require.ErrorIs(t, err, ErrTradeNotFound)
}

func TestResolveTradeFailedDropsMaker(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("m1", order.Sell, "2500", weth(1), 100)))
	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(1)))
	require.NoError(t, err)
	tradeID := matches[0].PendingTradeID

	require.NoError(t, b.ResolveTrade(ctx, tradeID, OutcomeFailed))

	// Default policy: the maker does not come back.
	exists, err := b.Store().OpenOrderExists(ctx, "m1")
	require.NoError(t, err)
	require.False(t, exists)

	inFlight, err := b.Store().InFlightExists(ctx, "m1")
	require.NoError(t, err)
	require.False(t, inFlight)
}

func TestResolveTradeFailedReinstatesMaker(t *testing.T) {
	b := newTestBook(t, Options{ReinstateOnFailure: true})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("m1", order.Sell, "2500", weth(2), 100)))
	matches, err := b.SubmitMarketOrder(ctx, takerOrder("t1", order.Buy, "2500", weth(2)))
	require.NoError(t, err)
	tradeID := matches[0].PendingTradeID

	require.NoError(t, b.ResolveTrade(ctx, tradeID, OutcomeFailed))

	// The pre-match snapshot is back on the book with its full amount.
	open, err := b.Store().GetOpenOrder(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, weth(2), open.Remaining())

	// And it is matchable again.
	matches, err = b.SubmitMarketOrder(ctx, takerOrder("t2", order.Buy, "2500", weth(1)))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "m1", matches[0].MakerOrderID)
}

func TestDepthSnapshot(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("ask-high", order.Sell, "2600", weth(1), 100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("ask-low", order.Sell, "2500", weth(1), 100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("bid-low", order.Buy, "2300", weth(1), 100)))
	require.NoError(t, b.SubmitLimitOrder(ctx, makerOrder("bid-high", order.Buy, "2400", weth(1), 100)))

	asks, bids, err := b.Depth(ctx, testTicker)
	require.NoError(t, err)

	require.Len(t, asks, 2)
	require.Equal(t, "ask-low", asks[0].OrderID)
	require.Equal(t, "ask-high", asks[1].OrderID)

	require.Len(t, bids, 2)
	require.Equal(t, "bid-high", bids[0].OrderID)
	require.Equal(t, "bid-low", bids[1].OrderID)
}

func TestHandleRequestRoutesActions(t *testing.T) {
	b := newTestBook(t, Options{})
	ctx := context.Background()

	maker := makerOrder("m1", order.Sell, "2500", weth(1), 100)
	_, err := b.HandleRequest(ctx, &order.Request{Action: order.ActionNewLimitOrder, Maker: &maker})
	require.NoError(t, err)

	taker := takerOrder("t1", order.Buy, "2500", weth(1))
	matches, err := b.HandleRequest(ctx, &order.Request{Action: order.ActionNewMarketOrder, Taker: &taker})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, err = b.HandleRequest(ctx, &order.Request{Action: order.ActionTrade, Match: &matches[0]})
	require.ErrorIs(t, err, order.ErrInvalidRequest)

	_, err = b.HandleRequest(ctx, &order.Request{
		Action: order.ActionConfirmedTrade,
		Match:  &matches[0],
		TxHash: "0x01",
	})
	require.NoError(t, err)

	filled, err := b.Store().FilledOrderExists(ctx, "m1")
	require.NoError(t, err)
	require.True(t, filled)
}
