package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/transport"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

const messageBuffer = 64

// Room is a subscription to one stream's chat. Several rooms can share a
// transport; leaving one does not affect the others.
type Room struct {
	tr       transport.Transport
	streamID string
	user     auth.Provider
	logger   zerolog.Logger
	sub      transport.Subscription
	messages chan domain.ChatMessage
	done     chan struct{}

	once sync.Once
}

// Join subscribes to the chat of streamID. The transport must be connected.
func Join(ctx context.Context, tr transport.Transport, streamID string, user auth.Provider) (*Room, error) {
	if user == nil {
		user = auth.Anonymous
	}

	sub, err := tr.Subscribe(ctx, pubsub.StreamTopic(streamID))
	if err != nil {
		return nil, fmt.Errorf("failed to join chat %s: %w", streamID, err)
	}

	r := &Room{
		tr:       tr,
		streamID: streamID,
		user:     user,
		logger:   pkglog.L().With().Str("component", "chat").Str(pkglog.FieldStreamID, streamID).Logger(),
		sub:      sub,
		messages: make(chan domain.ChatMessage, messageBuffer),
		done:     make(chan struct{}),
	}
	go r.read()
	return r, nil
}

func (r *Room) StreamID() string {
	return r.streamID
}

// Messages is closed when the room is left or the subscription is lost.
func (r *Room) Messages() <-chan domain.ChatMessage {
	return r.messages
}

// Err reports why Messages was closed.
func (r *Room) Err() error {
	return r.sub.Err()
}

// Send publishes content as the current user.
func (r *Room) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ErrEmptyMessage
	}

	sender, _ := r.user.Username()
	body, err := json.Marshal(domain.ChatMessage{
		Sender:   sender,
		Content:  content,
		StreamID: r.streamID,
	})
	if err != nil {
		return err
	}

	if err := r.tr.Publish(ctx, pubsub.ChatDestination(r.streamID), body); err != nil {
		r.logger.Warn().Err(err).Msg("failed to send chat message")
		return fmt.Errorf("failed to send chat message: %w", err)
	}
	return nil
}

// Leave unsubscribes. It is safe to call more than once.
func (r *Room) Leave() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.sub.Unsubscribe()
	})
	return err
}

func (r *Room) read() {
	defer close(r.messages)

	for m := range r.sub.C() {
		var msg domain.ChatMessage
		if err := json.Unmarshal(m.Body, &msg); err != nil {
			r.logger.Warn().Err(err).Msg("ignoring malformed chat message")
			continue
		}
		if msg.StreamID == "" {
			msg.StreamID = r.streamID
		}
		select {
		case r.messages <- msg:
		case <-r.done:
			return
		}
	}
}
