package runledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "pitchlive:run:"
	recordRetries = 5
)

var ErrConflict = errors.New("run ledger changed concurrently")

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient accepts either a redis:// URL or a bare host:port address.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	var rdb *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(runID string) string {
	return keyPrefix + runID
}

func (s *RedisStore) Record(ctx context.Context, runID, stageID string, moneyRaised int64) (int64, error) {
	if runID == "" {
		return 0, ErrMissingRunID
	}

	var total int64
	update := func(tx *redis.Tx) error {
		entry, err := getEntry(ctx, tx, key(runID))
		if err != nil {
			return err
		}
		if entry.Stages == nil {
			entry.Stages = map[string]int64{}
		}
		entry.Stages[stageID] = moneyRaised
		total = entry.Total()

		b, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(runID), b, s.ttl)
			return nil
		})
		return err
	}

	for range recordRetries {
		err := s.rdb.Watch(ctx, update, key(runID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return total, nil
	}
	return 0, ErrConflict
}

func (s *RedisStore) Total(ctx context.Context, runID string) (int64, error) {
	entry, err := getEntry(ctx, s.rdb, key(runID))
	if err != nil {
		return 0, err
	}
	return entry.Total(), nil
}

func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	return s.rdb.Del(ctx, key(runID)).Err()
}

func getEntry(ctx context.Context, rdb redis.Cmdable, key string) (Entry, error) {
	raw, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// corrupt ledger: start over
		_ = rdb.Del(ctx, key).Err()
		return Entry{}, nil
	}
	return entry, nil
}
