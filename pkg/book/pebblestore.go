package book

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/pebble"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// PebbleStore is an embedded alternative to Redis for single-instance
// deployments. Records are JSON-encoded under the same logical keys; the
// price index maps "price_levels:<ticker>:<sortable-score><member>" to nil
// so an ascending iterator walks entries in score order.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) the database at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// encodeScore maps a float64 onto 8 bytes whose big-endian byte order
// matches numeric order: negative scores sort before positive ones, both in
// ascending value order.
func encodeScore(f float64) []byte {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return buf[:]
}

func decodeScore(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func pebbleIndexKey(ticker string, score float64, member string) []byte {
	prefix := priceLevelKey(ticker) + ":"
	key := make([]byte, 0, len(prefix)+8+len(member))
	key = append(key, prefix...)
	key = append(key, encodeScore(score)...)
	key = append(key, member...)
	return key
}

func (s *PebbleStore) keyExists(key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebble get %s: %w", key, err)
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStore) getRecord(key string) (map[string]string, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get %s: %w", key, err)
	}
	defer closer.Close()

	var rec map[string]string
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("pebble decode %s: %w", key, err)
	}
	return rec, nil
}

func (s *PebbleStore) OpenOrderExists(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(openOrderKey(orderID))
}

func (s *PebbleStore) InFlightExists(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(inFlightOrderKey(orderID))
}

func (s *PebbleStore) IsCancelled(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(cancelledOrderKey(orderID))
}

func (s *PebbleStore) FilledOrderExists(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(filledOrderKey(orderID))
}

func (s *PebbleStore) GetOpenOrder(ctx context.Context, orderID string) (order.MakerOrder, error) {
	rec, err := s.getRecord(openOrderKey(orderID))
	if err != nil {
		return order.MakerOrder{}, err
	}
	if rec == nil {
		return order.MakerOrder{}, fmt.Errorf("open order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.MakerFromMap(rec)
}

func (s *PebbleStore) GetInFlightMaker(ctx context.Context, orderID string) (order.MakerOrder, error) {
	rec, err := s.getRecord(inFlightOrderKey(orderID))
	if err != nil {
		return order.MakerOrder{}, err
	}
	if rec == nil {
		return order.MakerOrder{}, fmt.Errorf("in-flight order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.MakerFromMap(rec)
}

func (s *PebbleStore) GetInFlightTaker(ctx context.Context, orderID string) (order.TakerOrder, error) {
	rec, err := s.getRecord(inFlightOrderKey(orderID))
	if err != nil {
		return order.TakerOrder{}, err
	}
	if rec == nil {
		return order.TakerOrder{}, fmt.Errorf("in-flight order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.TakerFromMap(rec)
}

func (s *PebbleStore) GetPendingTrade(ctx context.Context, tradeID string) (order.Match, error) {
	rec, err := s.getRecord(pendingTradeKey(tradeID))
	if err != nil {
		return order.Match{}, err
	}
	if rec == nil {
		return order.Match{}, fmt.Errorf("pending trade %s: %w", tradeID, ErrTradeNotFound)
	}
	return order.MatchFromMap(rec)
}

func (s *PebbleStore) ScanIndex(ctx context.Context, ticker string, makerSide order.Side) ([]IndexEntry, error) {
	prefix := []byte(priceLevelKey(ticker) + ":")
	zero := append(append([]byte{}, prefix...), encodeScore(0)...)

	opts := &pebble.IterOptions{LowerBound: zero, UpperBound: prefixUpperBound(prefix)}
	if makerSide == order.Buy {
		opts = &pebble.IterOptions{LowerBound: prefix, UpperBound: zero}
	}

	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("pebble iter %s: %w", ticker, err)
	}
	defer iter.Close()

	var out []IndexEntry
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8 {
			return nil, fmt.Errorf("malformed index key %q", key)
		}
		score := decodeScore(key[len(prefix) : len(prefix)+8])
		ts, id, err := splitIndexMember(string(key[len(prefix)+8:]))
		if err != nil {
			return nil, err
		}
		out = append(out, IndexEntry{Score: score, Timestamp: ts, OrderID: id})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble iter %s: %w", ticker, err)
	}
	return out, nil
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff, no upper bound
}

func (s *PebbleStore) Batch() Batch {
	return &pebbleBatch{db: s.db, batch: s.db.NewBatch()}
}

type pebbleBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
	err   error
}

func (b *pebbleBatch) putRecord(key string, rec map[string]string) {
	val, err := json.Marshal(rec)
	if err != nil {
		b.err = fmt.Errorf("pebble encode %s: %w", key, err)
		return
	}
	if err := b.batch.Set([]byte(key), val, nil); err != nil {
		b.err = err
	}
}

func (b *pebbleBatch) delKey(key []byte) {
	if err := b.batch.Delete(key, nil); err != nil {
		b.err = err
	}
}

func (b *pebbleBatch) PutOpenOrder(o order.MakerOrder) {
	b.putRecord(openOrderKey(o.ID), o.ToMap())
}

func (b *pebbleBatch) DeleteOpenOrder(orderID string) {
	b.delKey([]byte(openOrderKey(orderID)))
}

func (b *pebbleBatch) AddIndexEntry(ticker string, score float64, timestamp int64, orderID string) {
	key := pebbleIndexKey(ticker, score, indexMember(timestamp, orderID))
	if err := b.batch.Set(key, nil, nil); err != nil {
		b.err = err
	}
}

func (b *pebbleBatch) RemoveIndexEntry(ticker string, score float64, timestamp int64, orderID string) {
	b.delKey(pebbleIndexKey(ticker, score, indexMember(timestamp, orderID)))
}

func (b *pebbleBatch) PutInFlightMaker(o order.MakerOrder) {
	rec := o.ToMap()
	rec["kind"] = recordKindMaker
	b.putRecord(inFlightOrderKey(o.ID), rec)
}

func (b *pebbleBatch) PutInFlightTaker(o order.TakerOrder) {
	rec := o.ToMap()
	rec["kind"] = recordKindTaker
	b.putRecord(inFlightOrderKey(o.ID), rec)
}

func (b *pebbleBatch) DeleteInFlight(orderID string) {
	b.delKey([]byte(inFlightOrderKey(orderID)))
}

func (b *pebbleBatch) PutCancelled(o order.MakerOrder, cancelledAt int64) {
	rec := o.ToMap()
	rec["cancelledAt"] = strconv.FormatInt(cancelledAt, 10)
	b.putRecord(cancelledOrderKey(o.ID), rec)
}

func (b *pebbleBatch) PutPendingTrade(m order.Match) {
	b.putRecord(pendingTradeKey(m.PendingTradeID), m.ToMap())
}

func (b *pebbleBatch) DeletePendingTrade(tradeID string) {
	b.delKey([]byte(pendingTradeKey(tradeID)))
}

func (b *pebbleBatch) PutFilledMaker(o order.MakerOrder, filledAt int64) {
	rec := o.ToMap()
	rec["kind"] = recordKindMaker
	rec["filledAt"] = strconv.FormatInt(filledAt, 10)
	b.putRecord(filledOrderKey(o.ID), rec)
}

func (b *pebbleBatch) PutFilledTaker(o order.TakerOrder, filledAt int64) {
	rec := o.ToMap()
	rec["kind"] = recordKindTaker
	rec["filledAt"] = strconv.FormatInt(filledAt, 10)
	b.putRecord(filledOrderKey(o.ID), rec)
}

func (b *pebbleBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble batch commit: %w", err)
	}
	return nil
}
