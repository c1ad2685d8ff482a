package pubsub

import (
	"context"
	"path"
	"sync"
)

// MemoryPubSub implements PubSub inside one process. Patterns use the same
// glob syntax as Redis PSUBSCRIBE for the '*' wildcard.
type MemoryPubSub struct {
	subs   map[string][]*memorySub // channel or pattern → subscribers
	mu     sync.RWMutex
	closed bool
}

type memorySub struct {
	key     string
	pattern bool
	ch      chan *Event
	done    chan struct{}
	once    sync.Once
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewMemoryPubSub creates an in-process PubSub.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string][]*memorySub)}
}

// Publish delivers the event to every subscriber whose channel or pattern
// matches. Delivery blocks until each subscriber accepts the event, the
// subscriber goes away, or ctx is done.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	var targets []*memorySub
	for key, subs := range m.subs {
		for _, s := range subs {
			if s.pattern {
				if ok, _ := path.Match(key, channel); !ok {
					continue
				}
			} else if key != channel {
				continue
			}
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- event:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.add(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return m.add(ctx, pattern, true)
}

func (m *MemoryPubSub) add(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	sub := &memorySub{
		key:     key,
		pattern: pattern,
		ch:      make(chan *Event, subscriberBuffer),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, context.Canceled
	}
	m.subs[key] = append(m.subs[key], sub)
	m.mu.Unlock()

	// The caller sees its channel closed once the subscription ends, same as
	// the Redis and Kafka drivers. The forwarder owns the close.
	out := make(chan *Event, subscriberBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				m.remove(sub)
				return
			case <-sub.done:
				return
			case ev := <-sub.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					m.remove(sub)
					return
				case <-sub.done:
					return
				}
			}
		}
	}()

	return out, nil
}

func (m *MemoryPubSub) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[sub.key]
	for i, s := range subs {
		if s == sub {
			m.subs[sub.key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[sub.key]) == 0 {
		delete(m.subs, sub.key)
	}
	sub.stop()
}

// Unsubscribe ends every subscription on a channel or pattern.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs[channel] {
		s.stop()
	}
	delete(m.subs, channel)
	return nil
}

// Close ends all subscriptions.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, subs := range m.subs {
		for _, s := range subs {
			s.stop()
		}
		delete(m.subs, key)
	}
	m.closed = true
	return nil
}
