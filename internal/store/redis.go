package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisKVHash   = "jobdigest:kv"
	redisJobsHash = "jobdigest:jobs"
)

// RedisBackend keeps the kv records and the jobs map in two redis hashes.
// It exists for setups where the assistant runs alongside an existing redis
// instance; sqlite remains the default.
type RedisBackend struct {
	rdb *redis.Client
}

// OpenRedis parses redisURL and verifies connectivity.
func OpenRedis(ctx context.Context, redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisBackend{rdb: client}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.rdb.HGet(ctx, redisKVHash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.rdb.HSet(ctx, redisKVHash, key, value).Err()
}

func (b *RedisBackend) GetJob(ctx context.Context, id string) ([]byte, error) {
	data, err := b.rdb.HGet(ctx, redisJobsHash, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (b *RedisBackend) PutJob(ctx context.Context, id string, data []byte) error {
	return b.rdb.HSet(ctx, redisJobsHash, id, data).Err()
}

func (b *RedisBackend) AllJobs(ctx context.Context) (map[string][]byte, error) {
	raw, err := b.rdb.HGetAll(ctx, redisJobsHash).Result()
	if err != nil {
		return nil, err
	}

	jobs := make(map[string][]byte, len(raw))
	for id, data := range raw {
		jobs[id] = []byte(data)
	}
	return jobs, nil
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
