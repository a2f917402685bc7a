package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harrylevesque/firenet/internal/prefs"
)

const redisOpTimeout = 3 * time.Second

// RedisStore keeps each prefs group as a hash at "<prefix>:<group>".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(addr string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(rdb, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(group string) string {
	return s.prefix + ":" + group
}

func (s *RedisStore) Group(name string) prefs.Group {
	return &redisGroup{store: s, key: s.key(name)}
}

// ClearAll deletes every hash under the prefix.
func (s *RedisStore) ClearAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return mapRedisErr(err)
	}
	if len(keys) == 0 {
		return nil
	}
	return mapRedisErr(s.rdb.Del(ctx, keys...).Err())
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func mapRedisErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return prefs.ErrClosed
	}
	return err
}

type redisGroup struct {
	store *RedisStore
	key   string
}

func (g *redisGroup) Get(field string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	v, err := g.store.rdb.HGet(ctx, g.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapRedisErr(err)
	}
	return v, true, nil
}

func (g *redisGroup) Snapshot() (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	v, err := g.store.rdb.HGetAll(ctx, g.key).Result()
	return v, mapRedisErr(err)
}

// Put uses a single HSET, which redis applies atomically.
func (g *redisGroup) Put(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return mapRedisErr(g.store.rdb.HSet(ctx, g.key, values).Err())
}

func (g *redisGroup) Delete(fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return mapRedisErr(g.store.rdb.HDel(ctx, g.key, fields...).Err())
}

func (g *redisGroup) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return mapRedisErr(g.store.rdb.Del(ctx, g.key).Err())
}
