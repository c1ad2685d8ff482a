package stream

import (
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

type EventKind int

const (
	EventPhaseChanged EventKind = iota + 1
	EventCorrected
	EventViewRecorded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase_changed"
	case EventCorrected:
		return "corrected"
	case EventViewRecorded:
		return "view_recorded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted on Synchronizer.Events. Fields beyond Kind, VideoID and
// Phase are set according to Kind.
type Event struct {
	Kind    EventKind
	VideoID int64
	Phase   domain.StreamPhase

	// PhaseChanged: release time for display while NotStarted.
	ScheduledAt *time.Time

	// Corrected
	From    float64
	To      float64
	Resumed bool

	// ViewRecorded
	Video *domain.Video

	Err error
}
