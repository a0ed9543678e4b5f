package book

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// Store key space, one record per entity:
//
//	price_levels:<ticker>      ordered index, score -> "timestamp:orderId"
//	open_orders:<orderId>      resting maker order record
//	inflight_orders:<orderId>  order snapshot while part of a pending trade
//	cancelled_orders:<orderId> cancellation marker (matcher skips these)
//	pending_trades:<tradeId>   match awaiting settlement
//	filled_orders:<orderId>    terminal archive
//
// The index member embeds the submission timestamp so an entry can be
// removed by member without a lookup round trip.
const (
	prefixPriceLevels = "price_levels:"
	prefixOpenOrders  = "open_orders:"
	prefixInFlight    = "inflight_orders:"
	prefixCancelled   = "cancelled_orders:"
	prefixPending     = "pending_trades:"
	prefixFilled      = "filled_orders:"
)

func priceLevelKey(ticker string) string  { return prefixPriceLevels + ticker }
func openOrderKey(id string) string       { return prefixOpenOrders + id }
func inFlightOrderKey(id string) string   { return prefixInFlight + id }
func cancelledOrderKey(id string) string  { return prefixCancelled + id }
func pendingTradeKey(id string) string    { return prefixPending + id }
func filledOrderKey(id string) string     { return prefixFilled + id }

func indexMember(timestamp int64, orderID string) string {
	return strconv.FormatInt(timestamp, 10) + ":" + orderID
}

func splitIndexMember(member string) (int64, string, error) {
	ts, id, ok := strings.Cut(member, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed index member %q", member)
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed index member %q", member)
	}
	return n, id, nil
}

// IndexEntry is one resting order reference from the price index, in scan
// order.
type IndexEntry struct {
	Score     float64
	Timestamp int64
	OrderID   string
}

// Store is the keyed state backing an order book. Implementations must make
// Batch commits atomic: either every queued mutation lands or none do. All
// operations are expected to be low-latency; they are the only calls made
// while a market lock is held.
type Store interface {
	OpenOrderExists(ctx context.Context, orderID string) (bool, error)
	// GetOpenOrder returns the resting order record, or an error wrapping
	// ErrOrderNotFound.
	GetOpenOrder(ctx context.Context, orderID string) (order.MakerOrder, error)

	// InFlightExists reports whether the order is committed to a pending
	// trade. Presence alone is the cancel-protection rule.
	InFlightExists(ctx context.Context, orderID string) (bool, error)
	IsCancelled(ctx context.Context, orderID string) (bool, error)

	// GetInFlightMaker / GetInFlightTaker return the order snapshot written
	// when the match was produced.
	GetInFlightMaker(ctx context.Context, orderID string) (order.MakerOrder, error)
	GetInFlightTaker(ctx context.Context, orderID string) (order.TakerOrder, error)

	// GetPendingTrade returns the match awaiting settlement, or an error
	// wrapping ErrTradeNotFound.
	GetPendingTrade(ctx context.Context, tradeID string) (order.Match, error)

	// FilledOrderExists reports whether the order reached the terminal
	// filled archive.
	FilledOrderExists(ctx context.Context, orderID string) (bool, error)

	// ScanIndex returns the resting orders of makerSide for the market, in
	// ascending score order. With the score sign convention this is
	// best-price-then-earliest-time first for both sides.
	ScanIndex(ctx context.Context, ticker string, makerSide order.Side) ([]IndexEntry, error)

	// Batch starts an atomic multi-operation mutation.
	Batch() Batch

	Close() error
}

// Batch queues mutations for one atomic commit. Implementations may assume a
// batch is built and committed by a single goroutine.
type Batch interface {
	PutOpenOrder(o order.MakerOrder)
	DeleteOpenOrder(orderID string)

	AddIndexEntry(ticker string, score float64, timestamp int64, orderID string)
	// RemoveIndexEntry takes the same score the entry was added with; it is
	// a pure function of the resting order, which every caller holds.
	RemoveIndexEntry(ticker string, score float64, timestamp int64, orderID string)

	PutInFlightMaker(o order.MakerOrder)
	PutInFlightTaker(o order.TakerOrder)
	DeleteInFlight(orderID string)

	PutCancelled(o order.MakerOrder, cancelledAt int64)

	PutPendingTrade(m order.Match)
	DeletePendingTrade(tradeID string)

	PutFilledMaker(o order.MakerOrder, filledAt int64)
	PutFilledTaker(o order.TakerOrder, filledAt int64)

	Commit(ctx context.Context) error
}

// Record kinds stored alongside in-flight and filled snapshots so they can
// be parsed back into the right shape.
const (
	recordKindMaker = "MAKER"
	recordKindTaker = "TAKER"
)
