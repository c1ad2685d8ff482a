package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/transport"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

func connectedBus(t *testing.T) *transport.BusTransport {
	t.Helper()
	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { ps.Close() })

	tr := transport.NewBusTransport(ps)
	require.NoError(t, tr.Connect(context.Background()))
	return tr
}

func next(t *testing.T, r *Room) domain.ChatMessage {
	t.Helper()
	select {
	case m, ok := <-r.Messages():
		require.True(t, ok)
		return m
	case <-time.After(time.Second):
		t.Fatal("no chat message")
		return domain.ChatMessage{}
	}
}

func TestSendAndReceive(t *testing.T) {
	tr := connectedBus(t)
	ctx := context.Background()

	room, err := Join(ctx, tr, "42", auth.StaticProvider{User: "bob"})
	require.NoError(t, err)
	defer room.Leave()

	require.NoError(t, room.Send(ctx, "  hello  "))

	m := next(t, room)
	assert.Equal(t, "bob", m.Sender)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, "42", m.StreamID)
}

func TestSendRejectsEmpty(t *testing.T) {
	tr := connectedBus(t)
	room, err := Join(context.Background(), tr, "42", nil)
	require.NoError(t, err)
	defer room.Leave()

	assert.ErrorIs(t, room.Send(context.Background(), "   "), domain.ErrEmptyMessage)
}

func TestLeaveIsIndependent(t *testing.T) {
	tr := connectedBus(t)
	ctx := context.Background()

	a, err := Join(ctx, tr, "42", auth.StaticProvider{User: "a"})
	require.NoError(t, err)
	b, err := Join(ctx, tr, "42", auth.StaticProvider{User: "b"})
	require.NoError(t, err)
	defer b.Leave()

	require.NoError(t, a.Leave())
	require.NoError(t, a.Leave())

	select {
	case _, ok := <-a.Messages():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("messages not closed after leave")
	}

	require.NoError(t, b.Send(ctx, "still here"))
	assert.Equal(t, "still here", next(t, b).Content)
}

func TestSendWhenDisconnected(t *testing.T) {
	tr := connectedBus(t)
	room, err := Join(context.Background(), tr, "42", nil)
	require.NoError(t, err)

	require.NoError(t, tr.Disconnect())
	assert.ErrorIs(t, room.Send(context.Background(), "hi"), transport.ErrNotConnected)
}
