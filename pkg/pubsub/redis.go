package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub carries bus events over Redis PUBLISH/SUBSCRIBE. Channel names
// are used as-is, and patterns map onto PSUBSCRIBE.
type RedisPubSub struct {
	client *redis.Client
	active map[string]*redis.PubSub // channel or pattern → live subscription
	mu     sync.Mutex
}

// NewRedisPubSub dials Redis and fails fast if it is unreachable.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis pubsub: ping %s: %w", cfg.Address, err)
	}

	return &RedisPubSub{client: client, active: make(map[string]*redis.PubSub)}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis pubsub: encode %s: %w", event.Type, err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.open(ctx, channel, r.client.Subscribe(ctx, channel))
}

func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.open(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

// open waits for Redis to confirm the subscription before any event is read,
// so a publish right after Subscribe returns is not lost.
func (r *RedisPubSub) open(ctx context.Context, key string, sub *redis.PubSub) (<-chan *Event, error) {
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis pubsub: subscribe %s: %w", key, err)
	}

	r.mu.Lock()
	if prev, ok := r.active[key]; ok {
		prev.Close()
	}
	r.active[key] = sub
	r.mu.Unlock()

	eventCh := make(chan *Event, subscriberBuffer)
	go r.pump(ctx, key, sub, eventCh)
	return eventCh, nil
}

// pump runs until ctx ends or the subscription is closed, then releases it.
func (r *RedisPubSub) pump(ctx context.Context, key string, sub *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)
	defer r.release(key, sub)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if !forward(ctx, "redis", msg.Channel, []byte(msg.Payload), eventCh) {
				return
			}
		}
	}
}

func (r *RedisPubSub) release(key string, sub *redis.PubSub) {
	r.mu.Lock()
	if r.active[key] == sub {
		delete(r.active, key)
	}
	r.mu.Unlock()
	sub.Close()
}

func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	sub, ok := r.active[channel]
	delete(r.active, channel)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Close()
}

// Close ends every subscription and the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	for key, sub := range r.active {
		sub.Close()
		delete(r.active, key)
	}
	r.mu.Unlock()

	return r.client.Close()
}
