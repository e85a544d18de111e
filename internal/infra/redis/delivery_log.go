package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/storage"
)

// DeliveryLog implements storage.DeliveryRepository on Redis. Records are
// JSON values indexed by a sorted set scored on creation time.
type DeliveryLog struct {
	c   *Client
	ttl time.Duration
}

// NewDeliveryLog creates a Redis-backed delivery log.
func NewDeliveryLog(client *Client, ttl time.Duration) *DeliveryLog {
	return &DeliveryLog{c: client, ttl: ttl}
}

// Save stores the record and indexes it.
func (l *DeliveryLog) Save(ctx context.Context, rec *domain.DeliveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	pipe := l.c.rdb.TxPipeline()
	pipe.Set(ctx, l.c.deliveryKey(rec.ID), data, l.ttl)
	pipe.ZAdd(ctx, l.c.deliveryIndexKey(), redis.Z{Score: float64(rec.CreatedAt), Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (l *DeliveryLog) Get(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	data, err := l.c.rdb.Get(ctx, l.c.deliveryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	var rec domain.DeliveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery: %w", err)
	}
	return &rec, nil
}

// Recent returns the newest records first.
func (l *DeliveryLog) Recent(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := l.c.rdb.ZRevRange(ctx, l.c.deliveryIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	return l.load(ctx, ids)
}

// SummaryBySource aggregates records created at or after since.
func (l *DeliveryLog) SummaryBySource(ctx context.Context, since int64) ([]domain.SourceSummary, error) {
	ids, err := l.c.rdb.ZRangeByScore(ctx, l.c.deliveryIndexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	recs, err := l.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return storage.Summarize(recs, since), nil
}

// DeleteOlderThan removes records created before cutoff.
func (l *DeliveryLog) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	upper := "(" + strconv.FormatInt(cutoff, 10)
	ids, err := l.c.rdb.ZRangeByScore(ctx, l.c.deliveryIndexKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = l.c.deliveryKey(id)
	}

	pipe := l.c.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	removed := pipe.ZRemRangeByScore(ctx, l.c.deliveryIndexKey(), "-inf", upper)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return removed.Val(), nil
}

// load fetches records by ID, dropping index entries whose value expired.
func (l *DeliveryLog) load(ctx context.Context, ids []string) ([]*domain.DeliveryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = l.c.deliveryKey(id)
	}

	vals, err := l.c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	recs := make([]*domain.DeliveryRecord, 0, len(vals))
	var expired []interface{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var rec domain.DeliveryRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		recs = append(recs, &rec)
	}
	if len(expired) > 0 {
		l.c.rdb.ZRem(ctx, l.c.deliveryIndexKey(), expired...)
	}
	return recs, nil
}

var _ storage.DeliveryRepository = (*DeliveryLog)(nil)
