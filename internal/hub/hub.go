package hub

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

type subscriber struct {
	client *Client
	id     string
}

// Hub manages STOMP sessions and fans bus events out to topic subscribers.
type Hub struct {
	clients    map[string]*Client
	topics     map[string]map[subscriber]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	config     config.WebSocketConfig
	messageSeq atomic.Uint64
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[subscriber]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run starts the hub's main loop. Once it returns, Register and Unregister
// act directly instead of waiting on the loop.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	l := pkglog.L()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.drop(client)
			l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client unregistered")
		}
	}
}

// drop removes client and its subscriptions and closes its send queue.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for id, topic := range client.subs {
		h.removeLocked(topic, subscriber{client: client, id: id})
	}
	client.subs = make(map[string]string)
	client.mu.Unlock()

	delete(h.clients, client.ID)
	client.closeSend()
}

// Bridge forwards room and chat events from bus to topic subscribers until
// ctx is done.
func (h *Hub) Bridge(ctx context.Context, bus pubsub.Subscriber) error {
	rooms, err := bus.SubscribePattern(ctx, pubsub.PatternRoomEvents)
	if err != nil {
		return err
	}
	chats, err := bus.SubscribePattern(ctx, pubsub.PatternChatMessages)
	if err != nil {
		return err
	}

	go h.forward(rooms, pubsub.RoomTopic)
	go h.forward(chats, pubsub.StreamTopic)
	return nil
}

func (h *Hub) forward(events <-chan *pubsub.Event, topicOf func(string) string) {
	for ev := range events {
		if ev.RoomID == "" {
			continue
		}
		h.Deliver(topicOf(ev.RoomID), ev.Payload)
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.drop(client)
	}
}

// Subscribe adds a client subscription to topic. Reusing an id replaces the
// previous subscription.
func (h *Hub) Subscribe(client *Client, id, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	if old, ok := client.subs[id]; ok {
		h.removeLocked(old, subscriber{client: client, id: id})
	}
	client.subs[id] = topic
	client.mu.Unlock()

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[subscriber]struct{})
	}
	h.topics[topic][subscriber{client: client, id: id}] = struct{}{}

	l := pkglog.L()
	l.Debug().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldTopic, topic).Str("subscription", id).Msg("client subscribed")
}

// Unsubscribe removes a client subscription by id.
func (h *Hub) Unsubscribe(client *Client, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	topic, ok := client.subs[id]
	delete(client.subs, id)
	client.mu.Unlock()

	if ok {
		h.removeLocked(topic, subscriber{client: client, id: id})
	}
	return ok
}

func (h *Hub) removeLocked(topic string, s subscriber) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Deliver sends body as a MESSAGE frame to every subscriber of topic.
// Clients that cannot keep up are dropped.
func (h *Hub) Deliver(topic string, body []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.topics[topic] {
		f := frame.New(frame.MESSAGE,
			frame.Destination, topic,
			frame.Subscription, s.id,
			frame.MessageId, strconv.FormatUint(h.messageSeq.Add(1), 10),
			frame.ContentType, "application/json",
			frame.ContentLength, strconv.Itoa(len(body)),
		)
		f.Body = body
		if !s.client.SendFrame(f) {
			go h.removeClient(s.client)
		}
	}
}

// Subscribers returns the number of subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) removeClient(client *Client) {
	h.Unregister(client)
}
