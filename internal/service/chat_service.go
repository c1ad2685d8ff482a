package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/idgen"
	"github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

const maxChatLength = 500

var ErrMessageTooLong = errors.New("message content is too long")

type chatServiceImpl struct {
	bus pubsub.Publisher
	ids idgen.Generator
	now func() time.Time
}

func NewChatService(bus pubsub.Publisher, ids idgen.Generator) ChatService {
	return &chatServiceImpl{bus: bus, ids: ids, now: time.Now}
}

// Post stamps a message with an id and time and publishes it to the stream.
func (s *chatServiceImpl) Post(ctx context.Context, streamID, sender, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxChatLength {
		return nil, ErrMessageTooLong
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		ID:       id,
		Sender:   sender,
		Content:  content,
		StreamID: streamID,
		SentAt:   s.now().UTC(),
	}

	event, err := pubsub.NewEvent(pubsub.EventChatMessage, streamID, msg)
	if err != nil {
		return nil, err
	}
	if err := s.bus.Publish(ctx, pubsub.ChatChannel(streamID), event); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldStreamID, streamID).Msg("failed to publish chat message")
		return nil, err
	}
	return msg, nil
}
