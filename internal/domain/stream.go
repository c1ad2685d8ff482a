package domain

import "time"

// StreamSnapshot is one authoritative read of a video's release state.
// Snapshots are replaced wholesale, never merged.
type StreamSnapshot struct {
	HasStarted           bool       `json:"hasStarted"`
	HasEnded             bool       `json:"hasEnded"`
	ScheduledAt          *time.Time `json:"scheduledAt"`
	DurationSeconds      int        `json:"durationSeconds"`
	CurrentOffsetSeconds *float64   `json:"currentOffsetSeconds,omitempty"`
	ServerTime           time.Time  `json:"serverTime"`
}

// Scheduled reports whether the video has a scheduled release at all.
func (s *StreamSnapshot) Scheduled() bool {
	return s != nil && s.ScheduledAt != nil
}

// StreamPhase is the lifecycle stage of a stream.
type StreamPhase int

const (
	PhaseUnknown StreamPhase = iota
	PhaseNotStarted
	PhaseLive
	PhaseEnded
	PhaseRegular
)

func (p StreamPhase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseLive:
		return "live"
	case PhaseEnded:
		return "ended"
	case PhaseRegular:
		return "regular"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further snapshots can change the phase.
func (p StreamPhase) Terminal() bool {
	return p == PhaseEnded || p == PhaseRegular
}

// PhaseOf derives the phase from a snapshot. A stream that has not started
// is NotStarted even if it also claims to have ended.
func PhaseOf(s *StreamSnapshot) StreamPhase {
	switch {
	case !s.Scheduled():
		return PhaseRegular
	case !s.HasStarted:
		return PhaseNotStarted
	case s.HasEnded:
		return PhaseEnded
	default:
		return PhaseLive
	}
}

// PlaybackIntent records why local playback is paused, if it is.
type PlaybackIntent int

const (
	IntentPlaying PlaybackIntent = iota
	IntentUserPaused
	IntentCorrectionPaused
)

func (i PlaybackIntent) String() string {
	switch i {
	case IntentUserPaused:
		return "user-paused"
	case IntentCorrectionPaused:
		return "correction-paused"
	default:
		return "playing"
	}
}
