package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    route
	}{
		{RoomEventsChannel("ABCD12"), route{topic: topicRoomEvents, key: "ABCD12"}},
		{ChatChannel("42"), route{topic: topicChatMessages, key: "42"}},
		{PatternRoomEvents, route{topic: topicRoomEvents, key: "*"}},
		{PatternChatMessages, route{topic: topicChatMessages, key: "*"}},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			got, err := parseChannel(tt.channel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChannelRejectsUnknownShapes(t *testing.T) {
	for _, ch := range []string{
		"",
		"watchparty:ABCD:events",
		"watchparty:room::events",
		"chat:room:42:events",
		"presence:room:42:heartbeat",
	} {
		_, err := parseChannel(ch)
		assert.Error(t, err, ch)
	}
}

func TestSanitizeGroupID(t *testing.T) {
	assert.Equal(t, "watchparty-room-ABCD-events", sanitizeGroupID("watchparty:room:ABCD:events"))
}
