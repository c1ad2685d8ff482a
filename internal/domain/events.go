package domain

import (
	"encoding/json"
	"fmt"
)

// Wire values of WatchPartyMessage.Type.
const (
	MsgTypeVideoStarted = "VIDEO_STARTED"
	MsgTypeUserJoined   = "USER_JOINED"
	MsgTypeUserLeft     = "USER_LEFT"
	MsgTypePartyClosed  = "PARTY_CLOSED"
)

// WatchPartyMessage is the JSON broadcast on a room topic.
type WatchPartyMessage struct {
	Type       string `json:"type"`
	RoomCode   string `json:"roomCode"`
	VideoID    *int64 `json:"videoId,omitempty"`
	VideoTitle string `json:"videoTitle,omitempty"`
	Username   string `json:"username,omitempty"`
	Message    string `json:"message,omitempty"`
}

// RoomEvent is one of VideoStarted, UserJoined, UserLeft or PartyClosed.
type RoomEvent interface {
	Kind() string
	roomEvent()
}

type VideoStarted struct {
	VideoID    int64
	VideoTitle string
}

type UserJoined struct {
	Username string
}

type UserLeft struct {
	Username string
}

type PartyClosed struct {
	Message string
}

func (VideoStarted) Kind() string { return MsgTypeVideoStarted }
func (UserJoined) Kind() string   { return MsgTypeUserJoined }
func (UserLeft) Kind() string     { return MsgTypeUserLeft }
func (PartyClosed) Kind() string  { return MsgTypePartyClosed }

func (VideoStarted) roomEvent() {}
func (UserJoined) roomEvent()   {}
func (UserLeft) roomEvent()     {}
func (PartyClosed) roomEvent()  {}

// DecodeRoomEvent parses a room topic message. Messages of an unknown type
// return an error wrapping ErrUnknownEventKind together with the room code.
func DecodeRoomEvent(data []byte) (RoomEvent, string, error) {
	var msg WatchPartyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, "", fmt.Errorf("failed to decode room event: %w", err)
	}

	switch msg.Type {
	case MsgTypeVideoStarted:
		if msg.VideoID == nil {
			return nil, msg.RoomCode, fmt.Errorf("%s without videoId", msg.Type)
		}
		return VideoStarted{VideoID: *msg.VideoID, VideoTitle: msg.VideoTitle}, msg.RoomCode, nil
	case MsgTypeUserJoined:
		return UserJoined{Username: msg.Username}, msg.RoomCode, nil
	case MsgTypeUserLeft:
		return UserLeft{Username: msg.Username}, msg.RoomCode, nil
	case MsgTypePartyClosed:
		return PartyClosed{Message: msg.Message}, msg.RoomCode, nil
	default:
		return nil, msg.RoomCode, fmt.Errorf("%w: %q", ErrUnknownEventKind, msg.Type)
	}
}

// NewWatchPartyMessage builds the wire form of an event for a room.
func NewWatchPartyMessage(roomCode string, ev RoomEvent) WatchPartyMessage {
	msg := WatchPartyMessage{Type: ev.Kind(), RoomCode: roomCode}
	switch e := ev.(type) {
	case VideoStarted:
		id := e.VideoID
		msg.VideoID = &id
		msg.VideoTitle = e.VideoTitle
	case UserJoined:
		msg.Username = e.Username
	case UserLeft:
		msg.Username = e.Username
	case PartyClosed:
		msg.Message = e.Message
	}
	return msg
}
