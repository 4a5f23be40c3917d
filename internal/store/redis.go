package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:doc:"

// RedisStore keeps each document in a hash {value, version}. Commits run in a
// WATCH/MULTI transaction so concurrent writers sharing the instance cannot
// both succeed against the same version.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Document, error) {
	vals, err := s.client.HMGet(ctx, redisKeyPrefix+key, "value", "version").Result()
	if err != nil {
		return Document{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	doc := Document{Key: key}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return doc, nil
	}

	raw, ok := vals[0].(string)
	if !ok {
		return Document{}, fmt.Errorf("redis get %s: unexpected value type %T", key, vals[0])
	}
	verStr, _ := vals[1].(string)
	version, err := strconv.ParseInt(verStr, 10, 64)
	if err != nil {
		return Document{}, fmt.Errorf("redis get %s: bad version %q: %w", key, verStr, err)
	}

	doc.Value = []byte(raw)
	doc.Version = version
	return doc, nil
}

func (s *RedisStore) Commit(ctx context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = redisKeyPrefix + w.Key
	}

	txf := func(tx *redis.Tx) error {
		current := make([]int64, len(writes))
		for i, w := range writes {
			v, err := tx.HGet(ctx, keys[i], "version").Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("read version of %s: %w", w.Key, err)
			}
			current[i] = v
			if w.ExpectedVersion != AnyVersion && v != w.ExpectedVersion {
				return ErrVersionConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				if w.Delete {
					pipe.Del(ctx, keys[i])
					continue
				}
				pipe.HSet(ctx, keys[i], "value", string(w.Value), "version", current[i]+1)
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil && !errors.Is(err, ErrVersionConflict) {
		return fmt.Errorf("redis commit: %w", err)
	}
	return err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
