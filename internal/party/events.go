package party

import "github.com/weiawesome/wes-io-watchparty/internal/domain"

// State is the coordinator's view of its room session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventPartyUpdated
	EventNavigate
	EventClosed
	EventReconnecting
	EventReconnected
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventPartyUpdated:
		return "party_updated"
	case EventNavigate:
		return "navigate"
	case EventClosed:
		return "closed"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Event is emitted on Coordinator.Events.
type Event struct {
	Kind     EventKind
	RoomCode string
	State    State

	// PartyUpdated
	Party *domain.WatchParty

	// Navigate
	VideoID    int64
	VideoTitle string

	// Closed
	Message string
}
