package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming conventions for watch-party fan-out.
const (
	// Room control events (VIDEO_STARTED, USER_JOINED, ...)
	ChannelRoomEvents = "watchparty:room:%s:events"

	// Stream-scoped chat messages
	ChannelChatMessages = "chat:room:%s:messages"

	PatternRoomEvents   = "watchparty:room:*:events"
	PatternChatMessages = "chat:room:*:messages"
)

// STOMP topic and destination namespaces seen by clients.
const (
	TopicRoomPrefix       = "/topic/watchparty/"
	TopicStreamPrefix     = "/topic/stream/"
	DestinationChatPrefix = "/app/chat.send/"
)

// EventChatMessage is the event type used for chat fan-out.
const EventChatMessage = "CHAT_MESSAGE"

// RoomEventsChannel returns the channel name for a room's control events.
func RoomEventsChannel(roomCode string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomCode)
}

// ChatChannel returns the channel name for a stream's chat.
func ChatChannel(streamID string) string {
	return fmt.Sprintf(ChannelChatMessages, streamID)
}

// RoomTopic returns the STOMP topic for a room.
func RoomTopic(roomCode string) string {
	return TopicRoomPrefix + roomCode
}

// StreamTopic returns the STOMP topic for a stream's chat.
func StreamTopic(streamID string) string {
	return TopicStreamPrefix + streamID
}

// ChatDestination returns the STOMP destination for sending chat to a stream.
func ChatDestination(streamID string) string {
	return DestinationChatPrefix + streamID
}

// ChannelForTopic maps a STOMP topic to the bus channel that feeds it.
//
//	"/topic/watchparty/ABCD" → "watchparty:room:ABCD:events"
//	"/topic/stream/42"       → "chat:room:42:messages"
func ChannelForTopic(topic string) (string, bool) {
	if id, ok := trimID(topic, TopicRoomPrefix); ok {
		return RoomEventsChannel(id), true
	}
	if id, ok := trimID(topic, TopicStreamPrefix); ok {
		return ChatChannel(id), true
	}
	return "", false
}

// StreamIDFromDestination extracts the stream id from a chat send destination.
func StreamIDFromDestination(destination string) (string, bool) {
	return trimID(destination, DestinationChatPrefix)
}

func trimID(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(s, prefix)
	if id == "" || strings.ContainsAny(id, ":/*") {
		return "", false
	}
	return id, true
}
