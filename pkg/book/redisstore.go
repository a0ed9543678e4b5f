package book

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// RedisStore keeps the book state in Redis: one sorted set per market for
// the price index and one hash per order/trade record. Batches ride a
// MULTI/EXEC pipeline so multi-key mutations land atomically.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error { return s.client.Close() }

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) keyExists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) OpenOrderExists(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(ctx, openOrderKey(orderID))
}

func (s *RedisStore) InFlightExists(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(ctx, inFlightOrderKey(orderID))
}

func (s *RedisStore) IsCancelled(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(ctx, cancelledOrderKey(orderID))
}

func (s *RedisStore) FilledOrderExists(ctx context.Context, orderID string) (bool, error) {
	return s.keyExists(ctx, filledOrderKey(orderID))
}

func (s *RedisStore) getRecord(ctx context.Context, key string) (map[string]string, error) {
	rec, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	if len(rec) == 0 {
		return nil, nil
	}
	return rec, nil
}

func (s *RedisStore) GetOpenOrder(ctx context.Context, orderID string) (order.MakerOrder, error) {
	rec, err := s.getRecord(ctx, openOrderKey(orderID))
	if err != nil {
		return order.MakerOrder{}, err
	}
	if rec == nil {
		return order.MakerOrder{}, fmt.Errorf("open order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.MakerFromMap(rec)
}

func (s *RedisStore) GetInFlightMaker(ctx context.Context, orderID string) (order.MakerOrder, error) {
	rec, err := s.getRecord(ctx, inFlightOrderKey(orderID))
	if err != nil {
		return order.MakerOrder{}, err
	}
	if rec == nil {
		return order.MakerOrder{}, fmt.Errorf("in-flight order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.MakerFromMap(rec)
}

func (s *RedisStore) GetInFlightTaker(ctx context.Context, orderID string) (order.TakerOrder, error) {
	rec, err := s.getRecord(ctx, inFlightOrderKey(orderID))
	if err != nil {
		return order.TakerOrder{}, err
	}
	if rec == nil {
		return order.TakerOrder{}, fmt.Errorf("in-flight order %s: %w", orderID, ErrOrderNotFound)
	}
	return order.TakerFromMap(rec)
}

func (s *RedisStore) GetPendingTrade(ctx context.Context, tradeID string) (order.Match, error) {
	rec, err := s.getRecord(ctx, pendingTradeKey(tradeID))
	if err != nil {
		return order.Match{}, err
	}
	if rec == nil {
		return order.Match{}, fmt.Errorf("pending trade %s: %w", tradeID, ErrTradeNotFound)
	}
	return order.MatchFromMap(rec)
}

func (s *RedisStore) ScanIndex(ctx context.Context, ticker string, makerSide order.Side) ([]IndexEntry, error) {
	// SELL makers live in [0, +inf), BUY makers in (-inf, 0]; ascending
	// range order is best-price-first for both sides.
	rng := &redis.ZRangeBy{Min: "0", Max: "+inf"}
	if makerSide == order.Buy {
		rng = &redis.ZRangeBy{Min: "-inf", Max: "0"}
	}

	zs, err := s.client.ZRangeByScoreWithScores(ctx, priceLevelKey(ticker), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore %s: %w", ticker, err)
	}

	out := make([]IndexEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected index member type %T", z.Member)
		}
		ts, id, err := splitIndexMember(member)
		if err != nil {
			return nil, err
		}
		out = append(out, IndexEntry{Score: z.Score, Timestamp: ts, OrderID: id})
	}
	return out, nil
}

func (s *RedisStore) Batch() Batch {
	return &redisBatch{pipe: s.client.TxPipeline()}
}

type redisBatch struct {
	pipe redis.Pipeliner
}

func hsetArgs(rec map[string]string) []interface{} {
	args := make([]interface{}, 0, len(rec)*2)
	for k, v := range rec {
		args = append(args, k, v)
	}
	return args
}

func (b *redisBatch) PutOpenOrder(o order.MakerOrder) {
	b.pipe.HSet(context.Background(), openOrderKey(o.ID), hsetArgs(o.ToMap())...)
}

func (b *redisBatch) DeleteOpenOrder(orderID string) {
	b.pipe.Del(context.Background(), openOrderKey(orderID))
}

func (b *redisBatch) AddIndexEntry(ticker string, score float64, timestamp int64, orderID string) {
	b.pipe.ZAdd(context.Background(), priceLevelKey(ticker), redis.Z{
		Score:  score,
		Member: indexMember(timestamp, orderID),
	})
}

func (b *redisBatch) RemoveIndexEntry(ticker string, score float64, timestamp int64, orderID string) {
	b.pipe.ZRem(context.Background(), priceLevelKey(ticker), indexMember(timestamp, orderID))
}

func (b *redisBatch) PutInFlightMaker(o order.MakerOrder) {
	rec := o.ToMap()
	rec["kind"] = recordKindMaker
	b.pipe.HSet(context.Background(), inFlightOrderKey(o.ID), hsetArgs(rec)...)
}

func (b *redisBatch) PutInFlightTaker(o order.TakerOrder) {
	rec := o.ToMap()
	rec["kind"] = recordKindTaker
	b.pipe.HSet(context.Background(), inFlightOrderKey(o.ID), hsetArgs(rec)...)
}

func (b *redisBatch) DeleteInFlight(orderID string) {
	b.pipe.Del(context.Background(), inFlightOrderKey(orderID))
}

func (b *redisBatch) PutCancelled(o order.MakerOrder, cancelledAt int64) {
	rec := o.ToMap()
	rec["cancelledAt"] = strconv.FormatInt(cancelledAt, 10)
	b.pipe.HSet(context.Background(), cancelledOrderKey(o.ID), hsetArgs(rec)...)
}

func (b *redisBatch) PutPendingTrade(m order.Match) {
	b.pipe.HSet(context.Background(), pendingTradeKey(m.PendingTradeID), hsetArgs(m.ToMap())...)
}

func (b *redisBatch) DeletePendingTrade(tradeID string) {
	b.pipe.Del(context.Background(), pendingTradeKey(tradeID))
}

func (b *redisBatch) PutFilledMaker(o order.MakerOrder, filledAt int64) {
	rec := o.ToMap()
	rec["kind"] = recordKindMaker
	rec["filledAt"] = strconv.FormatInt(filledAt, 10)
	b.pipe.HSet(context.Background(), filledOrderKey(o.ID), hsetArgs(rec)...)
}

func (b *redisBatch) PutFilledTaker(o order.TakerOrder, filledAt int64) {
	rec := o.ToMap()
	rec["kind"] = recordKindTaker
	rec["filledAt"] = strconv.FormatInt(filledAt, 10)
	b.pipe.HSet(context.Background(), filledOrderKey(o.ID), hsetArgs(rec)...)
}

func (b *redisBatch) Commit(ctx context.Context) error {
	if _, err := b.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis batch exec: %w", err)
	}
	return nil
}
