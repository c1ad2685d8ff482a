package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// PartyCache holds read-through copies of watch parties keyed by room code.
type PartyCache interface {
	Get(ctx context.Context, key string) (*domain.WatchParty, error)
	Set(ctx context.Context, key string, party *domain.WatchParty, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByCode(roomCode string) string
	Close() error
}

// New creates the cache selected by cfg.Driver.
func New(cfg config.CacheConfig) (PartyCache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryPartyCache(cfg.Prefix), nil
	case "redis":
		return NewRedisPartyCache(cfg.Redis, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
}

func buildKey(prefix, roomCode string) string {
	return fmt.Sprintf("%s:party:%s", prefix, roomCode)
}
