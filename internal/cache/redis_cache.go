package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

type RedisPartyCache struct {
	client *redis.Client
	prefix string
}

func NewRedisPartyCache(cfg config.RedisConfig, prefix string) (*RedisPartyCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPartyCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisPartyCache) BuildKeyByCode(roomCode string) string {
	return buildKey(c.prefix, roomCode)
}

func (c *RedisPartyCache) Get(ctx context.Context, key string) (*domain.WatchParty, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var party domain.WatchParty
	if err := json.Unmarshal(data, &party); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &party, nil
}

func (c *RedisPartyCache) Set(ctx context.Context, key string, party *domain.WatchParty, ttl time.Duration) error {
	data, err := json.Marshal(party)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisPartyCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

func (c *RedisPartyCache) Close() error {
	return c.client.Close()
}
