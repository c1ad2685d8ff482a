package handler

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/party"
	"github.com/weiawesome/wes-io-watchparty/internal/transport"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

// connTracker hands out net.Conns it can later sever from the client side.
type connTracker struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (c *connTracker) dialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.conns = append(c.conns, conn)
			c.mu.Unlock()
			return conn, nil
		},
	}
}

func (c *connTracker) dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

func (c *connTracker) dropLatest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[len(c.conns)-1].Close()
}

func (b *broker) dialTracked(t *testing.T, username string, tracker *connTracker) *transport.StompTransport {
	t.Helper()
	token, _, err := b.tokens.GenerateToken(username)
	require.NoError(t, err)

	tr := transport.NewStompTransport(transport.StompOptions{
		URL:               b.url,
		Auth:              auth.StaticProvider{User: username, BearerToken: token},
		HeartbeatOutgoing: 100 * time.Millisecond,
		ReceiptTimeout:    2 * time.Second,
		ReconnectDelay:    50 * time.Millisecond,
		Dialer:            tracker.dialer(),
	})
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func (b *broker) publishRoom(t *testing.T, code string, ev domain.RoomEvent) {
	t.Helper()
	msg := domain.NewWatchPartyMessage(code, ev)
	event, err := pubsub.NewEvent(msg.Type, code, msg)
	require.NoError(t, err)
	require.NoError(t, b.bus.Publish(context.Background(), pubsub.RoomEventsChannel(code), event))
}

func waitState(t *testing.T, states <-chan transport.State, want transport.State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("transport never reached %s", want)
		}
	}
}

func TestStompReconnectsAfterDrop(t *testing.T) {
	b := newBroker(t)
	tracker := &connTracker{}
	tr := b.dialTracked(t, "bob", tracker)

	states := make(chan transport.State, 16)
	defer tr.OnStateChange(func(s transport.State) { states <- s })()

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	old, err := tr.Subscribe(ctx, pubsub.RoomTopic("ABCD"))
	require.NoError(t, err)

	tracker.dropLatest()

	select {
	case _, ok := <-old.C():
		assert.False(t, ok, "old subscription should end")
	case <-time.After(2 * time.Second):
		t.Fatal("old subscription was not ended")
	}
	assert.True(t, errors.Is(old.Err(), transport.ErrConnectionLost))

	waitState(t, states, transport.StateReconnecting)
	waitState(t, states, transport.StateConnected)
	assert.Equal(t, 2, tracker.dials())

	sub, err := tr.Subscribe(ctx, pubsub.RoomTopic("ABCD"))
	require.NoError(t, err)
	b.publishRoom(t, "ABCD", domain.UserLeft{Username: "carol"})

	decoded, _, err := domain.DecodeRoomEvent(receive(t, sub).Body)
	require.NoError(t, err)
	assert.Equal(t, domain.UserLeft{Username: "carol"}, decoded)
}

// staticParties answers every command with the same party.
type staticParties struct {
	party domain.WatchParty
}

func (s *staticParties) Join(ctx context.Context, code string) (*domain.WatchParty, error) {
	return s.party.Clone(), nil
}
func (s *staticParties) Get(ctx context.Context, code string) (*domain.WatchParty, error) {
	return s.party.Clone(), nil
}
func (s *staticParties) Leave(ctx context.Context, code string) error                 { return nil }
func (s *staticParties) Close(ctx context.Context, code string) error                 { return nil }
func (s *staticParties) StartVideo(ctx context.Context, code string, id int64) error { return nil }

func nextPartyEvent(t *testing.T, c *party.Coordinator, kind party.EventKind) party.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return party.Event{}
		}
	}
}

func TestCoordinatorFollowsRoomAcrossReconnect(t *testing.T) {
	b := newBroker(t)
	tracker := &connTracker{}
	tr := b.dialTracked(t, "bob", tracker)

	api := &staticParties{party: domain.WatchParty{
		RoomCode:             "ABCD",
		Name:                 "movie night",
		OwnerUsername:        "alice",
		ParticipantUsernames: []string{"alice", "bob"},
		Active:               true,
	}}
	c := party.NewCoordinator(api, tr, auth.StaticProvider{User: "bob"}, party.Options{})

	_, err := c.Join(context.Background(), "ABCD")
	require.NoError(t, err)
	require.Equal(t, party.StateActive, c.State())

	tracker.dropLatest()

	nextPartyEvent(t, c, party.EventReconnecting)
	nextPartyEvent(t, c, party.EventReconnected)
	nextPartyEvent(t, c, party.EventPartyUpdated)

	b.publishRoom(t, "ABCD", domain.VideoStarted{VideoID: 42, VideoTitle: "premiere"})
	nav := nextPartyEvent(t, c, party.EventNavigate)
	assert.Equal(t, int64(42), nav.VideoID)
	assert.Equal(t, party.StateActive, c.State())
}
