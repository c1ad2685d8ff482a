package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

// BusTransport maps client topics onto pub/sub channels so that back-end
// workers can follow rooms and chats without going through the broker.
// The PubSub is owned by the caller and is not closed by Disconnect.
type BusTransport struct {
	ps     pubsub.PubSub
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	subs  map[string]*busSub

	notifier notifier
}

type busSub struct {
	*subscription
	cancel context.CancelFunc
}

// NewBusTransport creates a transport over ps.
func NewBusTransport(ps pubsub.PubSub) *BusTransport {
	return &BusTransport{
		ps:     ps,
		logger: pkglog.L().With().Str("transport", "bus").Logger(),
		subs:   make(map[string]*busSub),
	}
}

func (b *BusTransport) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BusTransport) OnStateChange(fn func(State)) func() {
	return b.notifier.add(fn)
}

// Connect marks the transport usable. The pub/sub client is already connected.
func (b *BusTransport) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateConnected {
		b.mu.Unlock()
		return nil
	}
	b.state = StateConnected
	b.mu.Unlock()

	b.notifier.notify(StateConnected)
	return nil
}

// Subscribe follows the channel behind topic.
func (b *BusTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	channel, ok := pubsub.ChannelForTopic(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	b.mu.Unlock()

	// The subscription outlives ctx; it ends on Unsubscribe or Disconnect.
	subCtx, cancel := context.WithCancel(context.Background())
	events, err := b.ps.Subscribe(subCtx, channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &busSub{
		subscription: newSubscription(uuid.New().String(), topic, b.unsubscribe),
		cancel:       cancel,
	}

	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		cancel()
		sub.end(nil)
		return nil, ErrNotConnected
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.forward(sub, events)
	return sub, nil
}

func (b *BusTransport) forward(sub *busSub, events <-chan *pubsub.Event) {
	for ev := range events {
		if !sub.deliver(Message{Topic: sub.topic, Body: ev.Payload}) {
			return
		}
	}

	// The channel closed without Unsubscribe: the bus went away.
	b.mu.Lock()
	_, live := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()
	if live {
		b.logger.Warn().Str(pkglog.FieldTopic, sub.topic).Msg("bus subscription lost")
		sub.end(ErrConnectionLost)
	}
}

func (b *BusTransport) unsubscribe(s *subscription) error {
	b.mu.Lock()
	sub, ok := b.subs[s.id]
	delete(b.subs, s.id)
	b.mu.Unlock()

	s.end(nil)
	if ok {
		sub.cancel()
	}
	return nil
}

// Publish sends body to a chat destination or directly to a topic.
func (b *BusTransport) Publish(ctx context.Context, destination string, body []byte) error {
	if b.State() != StateConnected {
		return ErrNotConnected
	}

	var (
		channel string
		event   *pubsub.Event
	)
	if streamID, ok := pubsub.StreamIDFromDestination(destination); ok {
		channel = pubsub.ChatChannel(streamID)
		event = rawEvent(pubsub.EventChatMessage, streamID, body)
	} else if ch, ok := pubsub.ChannelForTopic(destination); ok {
		channel = ch
		event = rawEvent("", "", body)
	} else {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, destination)
	}

	return b.ps.Publish(ctx, channel, event)
}

func rawEvent(eventType, roomID string, body []byte) *pubsub.Event {
	ev, _ := pubsub.NewEvent(eventType, roomID, nil)
	ev.Payload = append([]byte(nil), body...)
	return ev
}

// Disconnect ends every subscription. The underlying PubSub stays open.
func (b *BusTransport) Disconnect() error {
	b.mu.Lock()
	if b.state == StateDisconnected {
		b.mu.Unlock()
		return nil
	}
	b.state = StateDisconnected
	subs := b.subs
	b.subs = make(map[string]*busSub)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.end(nil)
		sub.cancel()
	}
	b.notifier.notify(StateDisconnected)
	return nil
}
