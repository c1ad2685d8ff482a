package cache

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

type memoryEntry struct {
	party     *domain.WatchParty
	expiresAt time.Time
}

// MemoryPartyCache is a process-local PartyCache. Expired entries are
// dropped lazily on read.
type MemoryPartyCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	prefix  string
	now     func() time.Time
}

func NewMemoryPartyCache(prefix string) *MemoryPartyCache {
	return &MemoryPartyCache{
		entries: make(map[string]memoryEntry),
		prefix:  prefix,
		now:     time.Now,
	}
}

func (c *MemoryPartyCache) BuildKeyByCode(roomCode string) string {
	return buildKey(c.prefix, roomCode)
}

func (c *MemoryPartyCache) Get(ctx context.Context, key string) (*domain.WatchParty, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, ErrCacheMiss
	}
	return e.party.Clone(), nil
}

func (c *MemoryPartyCache) Set(ctx context.Context, key string, party *domain.WatchParty, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{party: party.Clone()}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryPartyCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *MemoryPartyCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
