package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	entryPrefix = "linesync:cache"
	indexPrefix = "linesync:cacheidx"
	bucketSet   = "linesync:cachebuckets"
)

// RedisStore keeps cached responses in Redis so every process on the station
// shares one cache. Each bucket carries a sorted-set index scored by store
// time, which is what makes oldest-first trimming cheap.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func entryKey(bucket, key string) string {
	return fmt.Sprintf("%s:%s:%s", entryPrefix, bucket, key)
}

func indexKey(bucket string) string {
	return fmt.Sprintf("%s:%s", indexPrefix, bucket)
}

func (s *RedisStore) Get(ctx context.Context, bucket, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, entryKey(bucket, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, bucket, key string, entry *Entry) error {
	stored := *entry
	if stored.StoredAt.IsZero() {
		stored.StoredAt = s.now()
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(bucket, key), raw, 0)
	pipe.ZAdd(ctx, indexKey(bucket), redis.Z{Score: float64(stored.StoredAt.UnixMilli()), Member: key})
	pipe.SAdd(ctx, bucketSet, bucket)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, bucket, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(bucket, key))
	pipe.ZRem(ctx, indexKey(bucket), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Buckets(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, bucketSet).Result()
}

func (s *RedisStore) PurgeBucket(ctx context.Context, bucket string) error {
	keys, err := s.client.ZRange(ctx, indexKey(bucket), 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, entryKey(bucket, key))
	}
	pipe.Del(ctx, indexKey(bucket))
	pipe.SRem(ctx, bucketSet, bucket)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Trim(ctx context.Context, bucket string, policy Policy) (int, error) {
	evicted := 0

	if policy.MaxAge > 0 {
		cutoff := s.now().Add(-policy.MaxAge)
		stale, err := s.client.ZRangeByScore(ctx, indexKey(bucket), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%d", cutoff.UnixMilli()),
		}).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range stale {
			if err := s.Delete(ctx, bucket, key); err != nil {
				return evicted, err
			}
			evicted++
		}
	}

	if policy.MaxEntries > 0 {
		count, err := s.client.ZCard(ctx, indexKey(bucket)).Result()
		if err != nil {
			return evicted, err
		}
		if excess := count - int64(policy.MaxEntries); excess > 0 {
			oldest, err := s.client.ZRange(ctx, indexKey(bucket), 0, excess-1).Result()
			if err != nil {
				return evicted, err
			}
			for _, key := range oldest {
				if err := s.Delete(ctx, bucket, key); err != nil {
					return evicted, err
				}
				evicted++
			}
		}
	}

	return evicted, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
