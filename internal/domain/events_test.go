package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoomEvent(t *testing.T) {
	tests := []struct {
		raw  string
		want RoomEvent
	}{
		{`{"type":"VIDEO_STARTED","roomCode":"ABCD","videoId":42,"videoTitle":"Intro"}`, VideoStarted{VideoID: 42, VideoTitle: "Intro"}},
		{`{"type":"USER_JOINED","roomCode":"ABCD","username":"bob"}`, UserJoined{Username: "bob"}},
		{`{"type":"USER_LEFT","roomCode":"ABCD","username":"bob"}`, UserLeft{Username: "bob"}},
		{`{"type":"PARTY_CLOSED","roomCode":"ABCD","message":"bye"}`, PartyClosed{Message: "bye"}},
	}

	for _, tt := range tests {
		ev, code, err := DecodeRoomEvent([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, "ABCD", code)
		assert.Equal(t, tt.want, ev)
	}
}

func TestDecodeRoomEventUnknownKind(t *testing.T) {
	_, code, err := DecodeRoomEvent([]byte(`{"type":"SKIP_AHEAD","roomCode":"ABCD"}`))
	assert.True(t, errors.Is(err, ErrUnknownEventKind))
	assert.Equal(t, "ABCD", code)

	_, _, err = DecodeRoomEvent([]byte(`{"type":"VIDEO_STARTED"}`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownEventKind))

	_, _, err = DecodeRoomEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewWatchPartyMessageRoundTrip(t *testing.T) {
	msg := NewWatchPartyMessage("ABCD", VideoStarted{VideoID: 7, VideoTitle: "x"})
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	ev, code, err := DecodeRoomEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", code)
	assert.Equal(t, VideoStarted{VideoID: 7, VideoTitle: "x"}, ev)
}
