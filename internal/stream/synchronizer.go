package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
)

const (
	DefaultPollInterval   = 2000 * time.Millisecond
	DefaultDriftTolerance = 2 * time.Second
	DefaultDebounceWindow = 300 * time.Millisecond

	eventBuffer = 64
)

// ErrDetached is returned when the session a call belonged to was detached
// or replaced before the call completed.
var ErrDetached = errors.New("stream session detached")

// VideoAPI is the part of the video metadata service the synchronizer uses.
type VideoAPI interface {
	StreamInfo(ctx context.Context, videoID int64) (*domain.StreamSnapshot, error)
	Video(ctx context.Context, videoID int64) (*domain.Video, error)
}

// Player is the local playback surface. Calls are made with the
// synchronizer lock held; implementations must not call back into it.
type Player interface {
	Position() float64
	Seek(seconds float64)
	Play()
	Pause()
}

type Options struct {
	PollInterval   time.Duration
	DriftTolerance time.Duration
	DebounceWindow time.Duration
	Logger         *zerolog.Logger
}

// Synchronizer keeps one local player aligned with the server timeline of
// one video at a time.
type Synchronizer struct {
	api    VideoAPI
	player Player
	opts   Options
	logger zerolog.Logger
	events chan Event

	mu       sync.Mutex
	epoch    uint64
	attached bool
	videoID  int64
	phase    domain.StreamPhase
	snapshot *domain.StreamSnapshot
	intent   domain.PlaybackIntent
	viewed   bool
	halted   bool
	inFlight bool
	ctx      context.Context
	cancel   context.CancelFunc
	pollStop chan struct{}
	debounce *time.Timer
}

// New creates a detached synchronizer.
func New(api VideoAPI, player Player, opts Options) *Synchronizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = DefaultDriftTolerance
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}

	logger := pkglog.L()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Synchronizer{
		api:    api,
		player: player,
		opts:   opts,
		logger: logger.With().Str("component", "stream").Logger(),
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the observable event stream. It is never closed.
func (s *Synchronizer) Events() <-chan Event {
	return s.events
}

// Attach starts a new session for videoID, replacing any previous one, and
// returns the phase after the initial snapshot.
func (s *Synchronizer) Attach(ctx context.Context, videoID int64) (domain.StreamPhase, *domain.StreamSnapshot, error) {
	s.mu.Lock()
	s.detachLocked()
	s.epoch++
	epoch := s.epoch
	s.attached = true
	s.videoID = videoID
	s.phase = domain.PhaseUnknown
	s.snapshot = nil
	s.intent = domain.IntentPlaying
	s.viewed = false
	s.halted = false
	s.inFlight = false
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.logger.Debug().Int64(pkglog.FieldVideoID, videoID).Msg("attaching")

	snap, err := s.api.StreamInfo(ctx, videoID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return domain.PhaseUnknown, nil, ErrDetached
	}

	switch {
	case err == nil:
		s.applyLocked(snap)
	case errors.Is(err, domain.ErrForbidden):
		s.applyPhaseLocked(domain.PhaseNotStarted, nil)
	default:
		s.detachLocked()
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnavailable) {
			return domain.PhaseUnknown, nil, err
		}
		return domain.PhaseUnknown, nil, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}

	return s.phase, s.snapshotLocked(), nil
}

// Apply feeds a snapshot obtained elsewhere, such as a pushed update,
// through the same transition rules as a poll result.
func (s *Synchronizer) Apply(ctx context.Context, snap *domain.StreamSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return ErrDetached
	}
	s.applyLocked(snap)
	return nil
}

// Refresh requests an out-of-band snapshot fetch. Calls within the debounce
// window collapse into one fetch.
func (s *Synchronizer) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached || s.halted || s.phase.Terminal() {
		return
	}
	if s.debounce != nil {
		s.debounce.Reset(s.opts.DebounceWindow)
		return
	}

	epoch := s.epoch
	var t *time.Timer
	t = time.AfterFunc(s.opts.DebounceWindow, func() {
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		// A Reset that raced this firing runs the callback again; by then a
		// newer timer may own the pending refresh.
		if s.debounce != nil && s.debounce != t {
			s.mu.Unlock()
			return
		}
		s.debounce = nil
		s.mu.Unlock()
		s.fetch(epoch, "refresh")
	})
	s.debounce = t
}

// Detach ends the current session. Pending timers stop before it returns
// and any response still in flight is discarded.
func (s *Synchronizer) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		s.logger.Debug().Int64(pkglog.FieldVideoID, s.videoID).Msg("detaching")
	}
	s.detachLocked()
}

// UserPaused records that the viewer paused playback.
func (s *Synchronizer) UserPaused() {
	s.mu.Lock()
	s.intent = domain.IntentUserPaused
	s.mu.Unlock()
}

// UserResumed records that the viewer resumed playback.
func (s *Synchronizer) UserResumed() {
	s.mu.Lock()
	s.intent = domain.IntentPlaying
	s.mu.Unlock()
}

func (s *Synchronizer) Phase() domain.StreamPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Synchronizer) Snapshot() *domain.StreamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) Intent() domain.PlaybackIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// VideoID returns the attached video, or zero.
func (s *Synchronizer) VideoID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return 0
	}
	return s.videoID
}

func (s *Synchronizer) snapshotLocked() *domain.StreamSnapshot {
	if s.snapshot == nil {
		return nil
	}
	cp := *s.snapshot
	return &cp
}

func (s *Synchronizer) detachLocked() {
	if !s.attached {
		return
	}
	s.attached = false
	s.epoch++
	s.stopPollingLocked()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Synchronizer) applyLocked(snap *domain.StreamSnapshot) {
	s.applyPhaseLocked(domain.PhaseOf(snap), snap)
}

// applyPhaseLocked runs the transition rule. Terminal phases are final for
// the session; later snapshots are ignored.
func (s *Synchronizer) applyPhaseLocked(next domain.StreamPhase, snap *domain.StreamSnapshot) {
	if s.halted || s.phase.Terminal() {
		s.logger.Debug().Str(pkglog.FieldPhase, s.phase.String()).Msg("ignoring snapshot after terminal phase")
		return
	}

	if snap != nil {
		cp := *snap
		s.snapshot = &cp
	}

	if next != s.phase {
		s.logger.Info().
			Int64(pkglog.FieldVideoID, s.videoID).
			Str(pkglog.FieldPhase, next.String()).
			Str("previous", s.phase.String()).
			Msg("stream phase changed")
		s.phase = next
		ev := Event{Kind: EventPhaseChanged, VideoID: s.videoID, Phase: next}
		if snap != nil && snap.ScheduledAt != nil {
			at := *snap.ScheduledAt
			ev.ScheduledAt = &at
		}
		s.emitLocked(ev)
	}

	switch next {
	case domain.PhaseNotStarted:
		s.startPollingLocked()
	case domain.PhaseLive:
		s.recordViewLocked()
		s.correctLocked(snap)
		s.startPollingLocked()
	case domain.PhaseEnded, domain.PhaseRegular:
		s.recordViewLocked()
		s.stopPollingLocked()
	}
}

// correctLocked seeks to the authoritative offset when the local position
// has drifted further than the tolerance.
func (s *Synchronizer) correctLocked(snap *domain.StreamSnapshot) {
	if snap == nil || snap.CurrentOffsetSeconds == nil {
		return
	}

	target := *snap.CurrentOffsetSeconds
	from := s.player.Position()
	if math.Abs(from-target) <= s.opts.DriftTolerance.Seconds() {
		return
	}

	resumed := false
	if s.intent == domain.IntentUserPaused {
		s.player.Seek(target)
	} else {
		s.intent = domain.IntentCorrectionPaused
		s.player.Pause()
		s.player.Seek(target)
		s.player.Play()
		s.intent = domain.IntentPlaying
		resumed = true
	}

	s.logger.Info().
		Int64(pkglog.FieldVideoID, s.videoID).
		Float64("from", from).
		Float64("to", target).
		Bool("resumed", resumed).
		Msg("corrective seek")
	s.emitLocked(Event{Kind: EventCorrected, VideoID: s.videoID, Phase: s.phase, From: from, To: target, Resumed: resumed})
}

// recordViewLocked fetches full metadata once per session. The server
// counts that fetch as a view.
func (s *Synchronizer) recordViewLocked() {
	if s.viewed {
		return
	}
	s.viewed = true

	ctx, epoch, videoID := s.ctx, s.epoch, s.videoID
	go func() {
		video, err := s.api.Video(ctx, videoID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Int64(pkglog.FieldVideoID, videoID).Msg("failed to fetch video metadata")
			s.emitLocked(Event{Kind: EventError, VideoID: videoID, Phase: s.phase, Err: err})
			return
		}
		s.emitLocked(Event{Kind: EventViewRecorded, VideoID: videoID, Phase: s.phase, Video: video})
	}()
}

func (s *Synchronizer) startPollingLocked() {
	if s.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop
	go s.pollLoop(s.epoch, stop)
}

func (s *Synchronizer) stopPollingLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Synchronizer) pollLoop(epoch uint64, stop chan struct{}) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fetch(epoch, "poll")
		}
	}
}

// fetch pulls one snapshot for the session identified by epoch. A fetch
// that would overlap one already in flight is dropped.
func (s *Synchronizer) fetch(epoch uint64, reason string) {
	s.mu.Lock()
	if s.epoch != epoch || !s.attached || s.halted {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		s.logger.Debug().Str("reason", reason).Msg("fetch already in flight, dropping tick")
		return
	}
	s.inFlight = true
	ctx, videoID := s.ctx, s.videoID
	s.mu.Unlock()

	snap, err := s.api.StreamInfo(ctx, videoID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}
	s.inFlight = false

	switch {
	case err == nil:
		s.applyLocked(snap)
	case errors.Is(err, domain.ErrForbidden):
		s.applyPhaseLocked(domain.PhaseNotStarted, nil)
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn().Int64(pkglog.FieldVideoID, videoID).Msg("video disappeared, stopping sync")
		s.halted = true
		s.stopPollingLocked()
		s.emitLocked(Event{Kind: EventError, VideoID: videoID, Phase: s.phase, Err: err})
	default:
		s.logger.Warn().Err(err).Int64(pkglog.FieldVideoID, videoID).Str("reason", reason).Msg("stream info fetch failed, retrying next tick")
	}
}

func (s *Synchronizer) emitLocked(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Str("event", ev.Kind.String()).Msg("event buffer full, dropping event")
	}
}
