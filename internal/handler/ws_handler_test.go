package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/hub"
	"github.com/weiawesome/wes-io-watchparty/internal/idgen"
	"github.com/weiawesome/wes-io-watchparty/internal/service"
	"github.com/weiawesome/wes-io-watchparty/internal/transport"
	"github.com/weiawesome/wes-io-watchparty/pkg/jwt"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

type broker struct {
	url    string
	tokens *jwt.Manager
	bus    *pubsub.MemoryPubSub
	hub    *hub.Hub
}

func newBroker(t *testing.T) *broker {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := jwt.NewManager("broker-test-secret", time.Hour, "test")
	require.NoError(t, err)

	bus := pubsub.NewMemoryPubSub()
	h := hub.NewHub(config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 65536,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.NoError(t, h.Bridge(ctx, bus))

	chat := service.NewChatService(bus, idgen.NewULIDGenerator())
	r := gin.New()
	NewWSHandler(h, chat, tokens, 200*time.Millisecond).RegisterRoutes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		bus.Close()
	})

	return &broker{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		tokens: tokens,
		bus:    bus,
		hub:    h,
	}
}

func (b *broker) dial(t *testing.T, username string) *transport.StompTransport {
	t.Helper()
	token, _, err := b.tokens.GenerateToken(username)
	require.NoError(t, err)

	tr := transport.NewStompTransport(transport.StompOptions{
		URL:               b.url,
		Auth:              auth.StaticProvider{User: username, BearerToken: token},
		HeartbeatOutgoing: 100 * time.Millisecond,
		ReceiptTimeout:    2 * time.Second,
	})
	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func receive(t *testing.T, sub transport.Subscription) transport.Message {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		require.True(t, ok, "subscription ended: %v", sub.Err())
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return transport.Message{}
	}
}

func TestBrokerRoomFanOut(t *testing.T) {
	b := newBroker(t)
	tr := b.dial(t, "bob")
	ctx := context.Background()

	sub, err := tr.Subscribe(ctx, pubsub.RoomTopic("ABCD"))
	require.NoError(t, err)

	msg := domain.NewWatchPartyMessage("ABCD", domain.UserJoined{Username: "carol"})
	ev, err := pubsub.NewEvent(msg.Type, "ABCD", msg)
	require.NoError(t, err)
	require.NoError(t, b.bus.Publish(ctx, pubsub.RoomEventsChannel("ABCD"), ev))

	m := receive(t, sub)
	assert.Equal(t, pubsub.RoomTopic("ABCD"), m.Topic)
	decoded, code, err := domain.DecodeRoomEvent(m.Body)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", code)
	assert.Equal(t, domain.UserJoined{Username: "carol"}, decoded)
}

func TestBrokerChatStampsSender(t *testing.T) {
	b := newBroker(t)
	alice := b.dial(t, "alice")
	bob := b.dial(t, "bob")
	ctx := context.Background()

	sub, err := bob.Subscribe(ctx, pubsub.StreamTopic("42"))
	require.NoError(t, err)

	body, err := json.Marshal(domain.ChatMessage{Sender: "mallory", Content: "hello", StreamID: "42"})
	require.NoError(t, err)
	require.NoError(t, alice.Publish(ctx, pubsub.ChatDestination("42"), body))

	m := receive(t, sub)
	var got domain.ChatMessage
	require.NoError(t, json.Unmarshal(m.Body, &got))
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "hello", got.Content)
	assert.NotEmpty(t, got.ID)
}

func TestBrokerRejectsBadRequestsWithoutDropping(t *testing.T) {
	b := newBroker(t)
	tr := b.dial(t, "alice")
	ctx := context.Background()

	err := tr.Publish(ctx, pubsub.ChatDestination("42"), []byte(`{"content":"   "}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrEmptyMessage.Error())

	_, err = tr.Subscribe(ctx, "/queue/elsewhere")
	require.Error(t, err)

	assert.Equal(t, transport.StateConnected, tr.State())
	_, err = tr.Subscribe(ctx, pubsub.RoomTopic("ABCD"))
	assert.NoError(t, err)
}

func TestBrokerRejectsInvalidToken(t *testing.T) {
	b := newBroker(t)
	tr := transport.NewStompTransport(transport.StompOptions{
		URL:            b.url,
		Auth:           auth.StaticProvider{User: "eve", BearerToken: "not-a-jwt"},
		ReceiptTimeout: 2 * time.Second,
	})
	defer tr.Disconnect()

	err := tr.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.Equal(t, transport.StateDisconnected, tr.State())
}

func TestBrokerUnsubscribeOnDisconnect(t *testing.T) {
	b := newBroker(t)
	tr := b.dial(t, "alice")

	_, err := tr.Subscribe(context.Background(), pubsub.RoomTopic("ABCD"))
	require.NoError(t, err)
	assert.Equal(t, 1, b.hub.Subscribers(pubsub.RoomTopic("ABCD")))

	require.NoError(t, tr.Disconnect())
	assert.Eventually(t, func() bool {
		return b.hub.Subscribers(pubsub.RoomTopic("ABCD")) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNegotiateHeartBeat(t *testing.T) {
	h := &WSHandler{heartBeat: time.Second}

	send, offer := h.negotiate("500,2000")
	assert.Equal(t, 2*time.Second, send)
	assert.Equal(t, "1000,1000", offer)

	send, _ = h.negotiate("500,0")
	assert.Zero(t, send)

	send, _ = h.negotiate("garbage")
	assert.Zero(t, send)

	send, _ = h.negotiate("")
	assert.Zero(t, send)
}
