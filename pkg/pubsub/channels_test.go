package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicChannelMapping(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
	}{
		{"watchparty:room:ABCD:events", "/topic/watchparty/ABCD"},
		{"chat:room:42:messages", "/topic/stream/42"},
	}

	for _, tt := range tests {
		channel, ok := ChannelForTopic(tt.topic)
		assert.True(t, ok, tt.topic)
		assert.Equal(t, tt.channel, channel)
	}
}

func TestTopicChannelMappingRejectsForeignNames(t *testing.T) {
	for _, topic := range []string{"/topic/other/1", "/topic/watchparty/", "/topic/stream/a:b", "/queue/x"} {
		_, ok := ChannelForTopic(topic)
		assert.False(t, ok, topic)
	}
}

func TestStreamIDFromDestination(t *testing.T) {
	id, ok := StreamIDFromDestination("/app/chat.send/7")
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	_, ok = StreamIDFromDestination("/app/other/7")
	assert.False(t, ok)
}
