package book

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// MemStore is an in-process Store. It backs tests and single-process runs
// where no external Redis is available; records keep the same flat map shape
// as the Redis implementation so codecs are exercised identically.
type MemStore struct {
	mu        sync.RWMutex
	records   map[string]map[string]string // key -> hash record
	index     map[string][]memEntry        // price-level key -> sorted entries
}

type memEntry struct {
	score  float64
	member string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]map[string]string),
		index:   make(map[string][]memEntry),
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) exists(key string) bool {
	_, ok := s.records[key]
	return ok
}

func (s *MemStore) OpenOrderExists(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(openOrderKey(orderID)), nil
}

func (s *MemStore) GetOpenOrder(ctx context.Context, orderID string) (order.MakerOrder, error) {
	s.mu.RLock()
	rec, ok := s.records[openOrderKey(orderID)]
	s.mu.RUnlock()
	if !ok {
		return order.MakerOrder{}, fmt.Errorf("open order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.MakerFromMap(rec)
}

func (s *MemStore) InFlightExists(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(inFlightOrderKey(orderID)), nil
}

func (s *MemStore) IsCancelled(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(cancelledOrderKey(orderID)), nil
}

func (s *MemStore) GetInFlightMaker(ctx context.Context, orderID string) (order.MakerOrder, error) {
	s.mu.RLock()
	rec, ok := s.records[inFlightOrderKey(orderID)]
	s.mu.RUnlock()
	if !ok {
		return order.MakerOrder{}, fmt.Errorf("in-flight order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.MakerFromMap(rec)
}

func (s *MemStore) GetInFlightTaker(ctx context.Context, orderID string) (order.TakerOrder, error) {
	s.mu.RLock()
	rec, ok := s.records[inFlightOrderKey(orderID)]
	s.mu.RUnlock()
	if !ok {
		return order.TakerOrder{}, fmt.Errorf("in-flight order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.TakerFromMap(rec)
}

func (s *MemStore) GetPendingTrade(ctx context.Context, tradeID string) (order.Match, error) {
	s.mu.RLock()
	rec, ok := s.records[pendingTradeKey(tradeID)]
	s.mu.RUnlock()
	if !ok {
		return order.Match{}, fmt.Errorf("pending trade %s: %w", tradeID, ErrTradeNotFound)
	}
	return order.MatchFromMap(rec)
}

func (s *MemStore) ScanIndex(ctx context.Context, ticker string, makerSide order.Side) ([]IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []IndexEntry
	for _, e := range s.index[priceLevelKey(ticker)] {
		if makerSide == order.Sell && e.score < 0 {
			continue
		}
		if makerSide == order.Buy && e.score > 0 {
			continue
		}
		ts, id, err := splitIndexMember(e.member)
		if err != nil {
			return nil, err
		}
		out = append(out, IndexEntry{Score: e.score, Timestamp: ts, OrderID: id})
	}
	return out, nil
}

// Batch returns a batch whose mutations apply under one lock acquisition.
func (s *MemStore) Batch() Batch {
	return &memBatch{store: s}
}

type memBatch struct {
	store *MemStore
	ops   []func(*MemStore)
}

func (b *memBatch) putRecord(key string, rec map[string]string) {
	b.ops = append(b.ops, func(s *MemStore) { s.records[key] = rec })
}

func (b *memBatch) delRecord(key string) {
	b.ops = append(b.ops, func(s *MemStore) { delete(s.records, key) })
}

func (b *memBatch) PutOpenOrder(o order.MakerOrder) {
	b.putRecord(openOrderKey(o.ID), o.ToMap())
}

func (b *memBatch) DeleteOpenOrder(orderID string) {
	b.delRecord(openOrderKey(orderID))
}

func (b *memBatch) AddIndexEntry(ticker string, score float64, timestamp int64, orderID string) {
	member := indexMember(timestamp, orderID)
	key := priceLevelKey(ticker)
	b.ops = append(b.ops, func(s *MemStore) {
		entries := s.index[key]
		// ZADD semantics: re-adding an existing member replaces it.
		for i, e := range entries {
			if e.member == member {
				entries = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		// Keep ascending (score, member) order on insert; ties resolve by
		// member string, same as a Redis sorted set.
		i := sort.Search(len(entries), func(i int) bool {
			if entries[i].score != score {
				return entries[i].score > score
			}
			return entries[i].member > member
		})
		entries = append(entries, memEntry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = memEntry{score: score, member: member}
		s.index[key] = entries
	})
}

func (b *memBatch) RemoveIndexEntry(ticker string, score float64, timestamp int64, orderID string) {
	member := indexMember(timestamp, orderID)
	key := priceLevelKey(ticker)
	b.ops = append(b.ops, func(s *MemStore) {
		entries := s.index[key]
		for i, e := range entries {
			if e.member == member {
				s.index[key] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	})
}

func (b *memBatch) PutInFlightMaker(o order.MakerOrder) {
	rec := o.ToMap()
	rec["kind"] = recordKindMaker
	b.putRecord(inFlightOrderKey(o.ID), rec)
}

func (b *memBatch) PutInFlightTaker(o order.TakerOrder) {
	rec := o.ToMap()
	rec["kind"] = recordKindTaker
	b.putRecord(inFlightOrderKey(o.ID), rec)
}

func (b *memBatch) DeleteInFlight(orderID string) {
	b.delRecord(inFlightOrderKey(orderID))
}

func (b *memBatch) PutCancelled(o order.MakerOrder, cancelledAt int64) {
	rec := o.ToMap()
	rec["cancelledAt"] = strconv.FormatInt(cancelledAt, 10)
	b.putRecord(cancelledOrderKey(o.ID), rec)
}

func (b *memBatch) PutPendingTrade(m order.Match) {
	b.putRecord(pendingTradeKey(m.PendingTradeID), m.ToMap())
}

func (b *memBatch) DeletePendingTrade(tradeID string) {
	b.delRecord(pendingTradeKey(tradeID))
}

func (b *memBatch) PutFilledMaker(o order.MakerOrder, filledAt int64) {
	rec := o.ToMap()
	rec["kind"] = recordKindMaker
	rec["filledAt"] = strconv.FormatInt(filledAt, 10)
	b.putRecord(filledOrderKey(o.ID), rec)
}

func (b *memBatch) PutFilledTaker(o order.TakerOrder, filledAt int64) {
	rec := o.ToMap()
	rec["kind"] = recordKindTaker
	rec["filledAt"] = strconv.FormatInt(filledAt, 10)
	b.putRecord(filledOrderKey(o.ID), rec)
}

func (b *memBatch) Commit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		op(b.store)
	}
	b.ops = nil
	return nil
}

// FilledOrderExists reports whether a terminal archive record exists. Used
// by the confirmation flow's observers and tests.
func (s *MemStore) FilledOrderExists(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(filledOrderKey(orderID)), nil
}
