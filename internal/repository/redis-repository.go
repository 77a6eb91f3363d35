package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis_v9 "github.com/redis/go-redis/v9"

	"permission-service/internal/database/redis"
)

type RedisRepo struct {
	client *redis_v9.Client
}

func NewRedisRepo() *RedisRepo {
	return &RedisRepo{
		client: redis.Redis_Client,
	}
}

func (rr *RedisRepo) SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) error {
	val, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("error saving struct to cache: %w", err)
	}
	if err := rr.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("error saving struct to cache: %w", err)
	}
	return nil
}

func (rr *RedisRepo) GetStructCached(ctx context.Context, key string, model any) error {
	coded, err := rr.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis_v9.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("error getting struct from cache: %w", err)
	}
	return json.Unmarshal(coded, model)
}

func (rr *RedisRepo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := rr.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error deleting cache keys: %w", err)
	}
	return nil
}

// AddSetMember tracks a member under an index key, refreshing the
// index TTL so the index outlives the entries it points at.
func (rr *RedisRepo) AddSetMember(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := rr.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("error adding set member: %w", err)
	}
	if err := rr.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("error refreshing set expiry: %w", err)
	}
	return nil
}

func (rr *RedisRepo) GetSetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := rr.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading set members: %w", err)
	}
	return members, nil
}
