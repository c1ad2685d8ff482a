package transport

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotConnected       = errors.New("transport not connected")
	ErrConnectionLost     = errors.New("transport connection lost")
	ErrUnknownTopic       = errors.New("unknown topic")
	ErrUnknownDestination = errors.New("unknown destination")
)

// Message is one payload delivered on a subscribed topic.
type Message struct {
	Topic string
	ID    string
	Body  []byte
}

// State is the connection state of a transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Transport is a reconnectable topic-based publish/subscribe channel.
//
// Messages on one topic arrive in the order the server sent them. After a
// connection loss every subscription ends with ErrConnectionLost; owners
// must subscribe again once the state returns to StateConnected.
type Transport interface {
	// Connect opens the connection. Calling it while connected or
	// connecting is a no-op.
	Connect(ctx context.Context) error
	// Subscribe returns once the server has acknowledged the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Publish(ctx context.Context, destination string, body []byte) error
	// Disconnect closes the connection, ends all subscriptions and stops
	// reconnect attempts.
	Disconnect() error
	State() State
	// OnStateChange registers fn for state transitions and returns a func
	// that removes it. fn runs on a transport goroutine and must not block.
	OnStateChange(fn func(State)) (remove func())
}

// Subscription is a single, independently cancellable topic subscription.
type Subscription interface {
	Topic() string
	// C is closed when the subscription ends.
	C() <-chan Message
	// Err reports why C was closed: nil after Unsubscribe or Disconnect,
	// ErrConnectionLost after an unexpected drop.
	Err() error
	Unsubscribe() error
}

// subscription delivers messages through a small pump so that the
// delivering goroutine never closes a channel it might still send on.
type subscription struct {
	id    string
	topic string
	in    chan Message
	out   chan Message
	done  chan struct{}
	once  sync.Once
	err   error
	errMu sync.Mutex
	unsub func(*subscription) error
}

func newSubscription(id, topic string, unsub func(*subscription) error) *subscription {
	s := &subscription{
		id:    id,
		topic: topic,
		in:    make(chan Message, 64),
		out:   make(chan Message),
		done:  make(chan struct{}),
		unsub: unsub,
	}
	go s.pump()
	return s
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case m := <-s.in:
			select {
			case s.out <- m:
			case <-s.done:
				return
			}
		}
	}
}

// deliver queues m, blocking while the consumer is behind. It returns false
// once the subscription has ended.
func (s *subscription) deliver(m Message) bool {
	select {
	case s.in <- m:
		return true
	case <-s.done:
		return false
	}
}

// end closes the subscription with err as its reason. Only the first call counts.
func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
	})
}

func (s *subscription) Topic() string     { return s.topic }
func (s *subscription) C() <-chan Message { return s.out }

func (s *subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *subscription) Unsubscribe() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	return s.unsub(s)
}

// notifier fans state transitions out to listeners.
type notifier struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(State)
}

func (n *notifier) add(fn func(State)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]func(State))
	}
	id := n.next
	n.next++
	n.listeners[id] = fn

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

func (n *notifier) notify(s State) {
	n.mu.Lock()
	fns := make([]func(State), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
