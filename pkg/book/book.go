// Package book implements the order book and matching engine: keyed store
// state, price-time priority matching, and the locked public contract the
// execution pipeline drives.
package book

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/market"
	"github.com/junhoyeo/dexmatch/pkg/order"
	"github.com/junhoyeo/dexmatch/pkg/util"
)

// Outcome is the terminal result of a pending trade.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeConfirmed {
		return "confirmed"
	}
	return "failed"
}

// Options tune book policy.
type Options struct {
	// ReinstateOnFailure controls what happens to the maker order when a
	// pending trade fails: true puts the pre-match snapshot back on the
	// book, false drops it along with the taker. Default false, matching
	// the behavior the settlement layer was originally run with.
	ReinstateOnFailure bool
}

// OrderBook owns all order and index records for its configured markets.
// Every mutating operation is serialized per market; the lock covers only
// the store read-modify-write, never the slow settlement calls.
type OrderBook struct {
	store     Store
	markets   *market.Registry
	locks     *keyedMutex
	clock     util.Clock
	log       *zap.Logger
	reinstate bool
}

// New builds an order book over an injected store handle.
func New(store Store, markets *market.Registry, clock util.Clock, log *zap.Logger, opts Options) *OrderBook {
	return &OrderBook{
		store:     store,
		markets:   markets,
		locks:     newKeyedMutex(),
		clock:     clock,
		log:       log,
		reinstate: opts.ReinstateOnFailure,
	}
}

// Store exposes the underlying store for read-only observers.
func (b *OrderBook) Store() Store { return b.store }

// Markets exposes the market registry.
func (b *OrderBook) Markets() *market.Registry { return b.markets }

// HandleRequest validates and routes a tagged request under the market lock.
// Market orders return the matches produced; every other action returns an
// empty slice.
func (b *OrderBook) HandleRequest(ctx context.Context, req *order.Request) ([]order.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch req.Action {
	case order.ActionNewLimitOrder:
		return nil, b.SubmitLimitOrder(ctx, *req.Maker)
	case order.ActionCancelLimitOrder:
		ticker, err := b.markets.TickerFor(req.Maker.BaseToken, req.Maker.QuoteToken)
		if err != nil {
			return nil, err
		}
		return nil, b.CancelLimitOrder(ctx, ticker, req.Maker.ID)
	case order.ActionNewMarketOrder:
		return b.SubmitMarketOrder(ctx, *req.Taker)
	case order.ActionConfirmedTrade:
		return nil, b.ResolveTrade(ctx, req.Match.PendingTradeID, OutcomeConfirmed)
	case order.ActionFailedTrade:
		return nil, b.ResolveTrade(ctx, req.Match.PendingTradeID, OutcomeFailed)
	default:
		// TRADE is a pipeline hand-off, not a book mutation.
		return nil, fmt.Errorf("%w: action %s is not a book operation", order.ErrInvalidRequest, req.Action)
	}
}

// SubmitLimitOrder rests a maker order on the book: writes the open-order
// record and the price-index entry atomically. Fails with ErrOrderExists if
// an open record for this id is already present.
func (b *OrderBook) SubmitLimitOrder(ctx context.Context, o order.MakerOrder) error {
	ticker, err := b.markets.TickerFor(o.BaseToken, o.QuoteToken)
	if err != nil {
		return err
	}
	score, err := PriceTimeScore(o.PriceLevel, o.Timestamp, o.Side)
	if err != nil {
		return err
	}

	unlock := b.locks.Lock(ticker)
	defer unlock()

	exists, err := b.store.OpenOrderExists(ctx, o.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("submit limit order %s: %w", o.ID, ErrOrderExists)
	}

	batch := b.store.Batch()
	batch.PutOpenOrder(o)
	batch.AddIndexEntry(ticker, score, o.Timestamp, o.ID)
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("submit limit order %s: %w", o.ID, err)
	}

	b.log.Info("limit order resting",
		zap.String("market", ticker),
		zap.String("order_id", o.ID),
		zap.String("side", string(o.Side)),
		zap.String("price", o.PriceLevel),
		zap.String("base_amount", o.BaseAmount.String()),
	)
	return nil
}

// CancelLimitOrder removes a resting order. An order that is part of a
// pending match may not be cancelled: settlement already committed to it.
// A cancel racing a match therefore either wins outright or fails outright.
func (b *OrderBook) CancelLimitOrder(ctx context.Context, ticker, orderID string) error {
	if _, err := b.markets.Get(ticker); err != nil {
		return err
	}

	unlock := b.locks.Lock(ticker)
	defer unlock()

	exists, err := b.store.OpenOrderExists(ctx, orderID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("cancel order %s: %w", orderID, ErrOrderNotFound)
	}

	inFlight, err := b.store.InFlightExists(ctx, orderID)
	if err != nil {
		return err
	}
	if inFlight {
		return fmt.Errorf("cancel order %s: %w", orderID, ErrOrderInFlight)
	}

	o, err := b.store.GetOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}
	score, err := PriceTimeScore(o.PriceLevel, o.Timestamp, o.Side)
	if err != nil {
		return err
	}

	batch := b.store.Batch()
	batch.DeleteOpenOrder(orderID)
	batch.RemoveIndexEntry(ticker, score, o.Timestamp, orderID)
	batch.PutCancelled(o, b.clock.Now().Unix())
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	b.log.Info("limit order cancelled",
		zap.String("market", ticker),
		zap.String("order_id", orderID),
	)
	return nil
}

// SubmitMarketOrder matches a taker order against resting liquidity and
// returns the matches produced, best price first. Matched maker orders are
// mutated or removed and every order party to a match is marked in-flight.
// Under-fill is not an error: the returned list reflects the fills actually
// produced.
func (b *OrderBook) SubmitMarketOrder(ctx context.Context, t order.TakerOrder) ([]order.Match, error) {
	ticker, err := b.markets.TickerFor(t.BaseToken, t.QuoteToken)
	if err != nil {
		return nil, err
	}
	if t.Deadline < b.clock.Now().Unix() {
		return nil, fmt.Errorf("%w: taker order %s expired", order.ErrInvalidRequest, t.ID)
	}

	unlock := b.locks.Lock(ticker)
	defer unlock()

	matches, err := b.matchLocked(ctx, ticker, &t)
	if err != nil {
		return nil, err
	}

	b.log.Info("market order matched",
		zap.String("market", ticker),
		zap.String("order_id", t.ID),
		zap.String("side", string(t.Side)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// ResolveTrade settles a pending trade's book state. Confirmed archives both
// orders as filled; Failed compensates so neither order stays artificially
// locked. In both cases the pending-trade record and in-flight markers go
// away atomically.
func (b *OrderBook) ResolveTrade(ctx context.Context, tradeID string, outcome Outcome) error {
	m, err := b.store.GetPendingTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	ticker, err := b.markets.TickerFor(m.BaseToken, m.QuoteToken)
	if err != nil {
		return err
	}

	unlock := b.locks.Lock(ticker)
	defer unlock()

	// Re-read under the lock; another worker may have resolved it first.
	if m, err = b.store.GetPendingTrade(ctx, tradeID); err != nil {
		return err
	}

	maker, makerErr := b.store.GetInFlightMaker(ctx, m.MakerOrderID)
	taker, takerErr := b.store.GetInFlightTaker(ctx, m.TakerOrderID)

	batch := b.store.Batch()
	batch.DeletePendingTrade(tradeID)
	batch.DeleteInFlight(m.MakerOrderID)
	batch.DeleteInFlight(m.TakerOrderID)

	switch outcome {
	case OutcomeConfirmed:
		now := b.clock.Now().Unix()
		if makerErr == nil {
			batch.PutFilledMaker(maker, now)
		}
		if takerErr == nil {
			batch.PutFilledTaker(taker, now)
		}
	case OutcomeFailed:
		if b.reinstate && makerErr == nil {
			if err := b.reinstateMaker(batch, ticker, maker); err != nil {
				return err
			}
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("resolve trade %s: %w", tradeID, err)
	}

	b.log.Info("pending trade resolved",
		zap.String("market", ticker),
		zap.String("trade_id", tradeID),
		zap.String("outcome", outcome.String()),
		zap.Bool("maker_reinstated", outcome == OutcomeFailed && b.reinstate && makerErr == nil),
	)
	return nil
}

// reinstateMaker puts the pre-match maker snapshot back on the book. The
// index entry is idempotent: if the maker was only partially consumed its
// entry is still present and the add simply rewrites it.
func (b *OrderBook) reinstateMaker(batch Batch, ticker string, maker order.MakerOrder) error {
	score, err := PriceTimeScore(maker.PriceLevel, maker.Timestamp, maker.Side)
	if err != nil {
		return err
	}
	batch.PutOpenOrder(maker)
	batch.AddIndexEntry(ticker, score, maker.Timestamp, maker.ID)
	return nil
}

// DepthLevel is one resting order in a depth snapshot.
type DepthLevel struct {
	OrderID   string `json:"orderId"`
	Price     string `json:"price"`
	Remaining string `json:"remaining"`
	Timestamp int64  `json:"timestamp"`
}

// Depth returns the resting orders of a market, asks and bids each in
// priority order. Read-only, but taken under the market lock so the
// snapshot is consistent.
func (b *OrderBook) Depth(ctx context.Context, ticker string) (asks, bids []DepthLevel, err error) {
	if _, err := b.markets.Get(ticker); err != nil {
		return nil, nil, err
	}

	unlock := b.locks.Lock(ticker)
	defer unlock()

	asks, err = b.depthSide(ctx, ticker, order.Sell)
	if err != nil {
		return nil, nil, err
	}
	bids, err = b.depthSide(ctx, ticker, order.Buy)
	if err != nil {
		return nil, nil, err
	}
	return asks, bids, nil
}

func (b *OrderBook) depthSide(ctx context.Context, ticker string, side order.Side) ([]DepthLevel, error) {
	entries, err := b.store.ScanIndex(ctx, ticker, side)
	if err != nil {
		return nil, err
	}
	levels := make([]DepthLevel, 0, len(entries))
	for _, e := range entries {
		o, err := b.store.GetOpenOrder(ctx, e.OrderID)
		if errors.Is(err, ErrOrderNotFound) {
			continue // index entry for an order the matcher already consumed
		}
		if err != nil {
			return nil, err
		}
		levels = append(levels, DepthLevel{
			OrderID:   o.ID,
			Price:     o.PriceLevel,
			Remaining: o.Remaining().String(),
			Timestamp: o.Timestamp,
		})
	}
	return levels, nil
}
