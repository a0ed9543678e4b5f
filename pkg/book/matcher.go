package book

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// matchLocked walks the opposite side of the price index in ascending score
// order, which by construction is best-price-then-earliest-time first, and
// fills the taker until its amount is exhausted or candidates run out.
// Caller holds the market lock.
func (b *OrderBook) matchLocked(ctx context.Context, ticker string, taker *order.TakerOrder) ([]order.Match, error) {
	makerSide := taker.Side.Opposite()
	entries, err := b.store.ScanIndex(ctx, ticker, makerSide)
	if err != nil {
		return nil, err
	}

	limit, err := decimal.NewFromString(taker.PriceLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: bad price level %q", order.ErrInvalidRequest, taker.PriceLevel)
	}

	remaining := new(big.Int).Set(taker.BaseAmount)
	now := b.clock.Now().Unix()

	var matches []order.Match
	batch := b.store.Batch()
	dirty := false

	for _, entry := range entries {
		if remaining.Sign() == 0 {
			break
		}

		cancelled, err := b.store.IsCancelled(ctx, entry.OrderID)
		if err != nil {
			return nil, err
		}
		if cancelled {
			continue
		}

		maker, err := b.store.GetOpenOrder(ctx, entry.OrderID)
		if errors.Is(err, ErrOrderNotFound) {
			continue // stale index entry
		}
		if err != nil {
			return nil, err
		}
		if maker.Side != makerSide {
			continue
		}

		// Lazy expiry: expired makers are never matched and are collected
		// the first time a scan encounters them.
		if maker.Deadline < now {
			batch.DeleteOpenOrder(maker.ID)
			batch.RemoveIndexEntry(ticker, entry.Score, maker.Timestamp, maker.ID)
			dirty = true
			b.log.Debug("expired maker purged",
				zap.String("market", ticker),
				zap.String("order_id", maker.ID),
			)
			continue
		}

		makerPrice, err := decimal.NewFromString(maker.PriceLevel)
		if err != nil {
			return nil, fmt.Errorf("maker order %s: bad price level %q", maker.ID, maker.PriceLevel)
		}

		// A BUY taker accepts makers at or below its limit, a SELL taker at
		// or above. The scan is price-sorted, so the first unexpired
		// candidate past the limit means all remaining ones are worse.
		if taker.Side == order.Buy && makerPrice.GreaterThan(limit) {
			break
		}
		if taker.Side == order.Sell && makerPrice.LessThan(limit) {
			break
		}

		makerRemaining := maker.Remaining()
		if makerRemaining.Sign() <= 0 {
			continue
		}

		fill := new(big.Int).Set(remaining)
		if makerRemaining.Cmp(fill) < 0 {
			fill.Set(makerRemaining)
		}

		quote, err := QuoteAmount(fill, maker.PriceLevel, maker.BaseDecimals, maker.QuoteDecimals)
		if err != nil {
			return nil, fmt.Errorf("maker order %s: %w", maker.ID, err)
		}

		m := newMatch(&maker, taker, fill, quote)
		matches = append(matches, m)

		// Commit the match to the store: pending trade, in-flight markers
		// for both parties, and the maker's consumed liquidity.
		batch.PutPendingTrade(m)
		batch.PutInFlightMaker(maker) // pre-fill snapshot, used for compensation
		batch.PutInFlightTaker(*taker)

		newFilled := new(big.Int).Add(maker.BaseAmountFilled, fill)
		if newFilled.Cmp(maker.BaseAmount) == 0 {
			batch.DeleteOpenOrder(maker.ID)
			batch.RemoveIndexEntry(ticker, entry.Score, maker.Timestamp, maker.ID)
		} else {
			updated := maker
			updated.BaseAmountFilled = newFilled
			batch.PutOpenOrder(updated)
		}
		dirty = true

		remaining.Sub(remaining, fill)
	}

	if dirty {
		if err := batch.Commit(ctx); err != nil {
			return nil, fmt.Errorf("market order %s: %w", taker.ID, err)
		}
	}
	return matches, nil
}

// newMatch builds the immutable maker/taker pairing. The pending-trade id is
// a hash of the sorted order ids, so it is deterministic regardless of which
// side arrived first.
func newMatch(maker *order.MakerOrder, taker *order.TakerOrder, fill, quote *big.Int) order.Match {
	return order.Match{
		PendingTradeID:    order.HashIDs(maker.ID, taker.ID),
		MakerOrderID:      maker.ID,
		Maker:             maker.Trader,
		BaseToken:         maker.BaseToken,
		QuoteToken:        maker.QuoteToken,
		BaseAmountFilled:  fill,
		QuoteAmountFilled: quote,
		MakerSignature:    maker.Signature,
		MakerTimestamp:    maker.Timestamp,
		MakerDeadline:     maker.Deadline,
		MakerSalt:         maker.Salt,
		MakerSide:         maker.Side,
		Taker:             taker.Trader,
		TakerOrderID:      taker.ID,
		TakerSignature:    taker.Signature,
		TakerTimestamp:    taker.Timestamp,
		TakerDeadline:     taker.Deadline,
		TakerSalt:         taker.Salt,
	}
}
