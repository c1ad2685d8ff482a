package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

type fakeAPI struct {
	mu         sync.Mutex
	snap       *domain.StreamSnapshot
	err        error
	gate       chan struct{}
	infoCalls  int
	videoCalls int
}

func (f *fakeAPI) set(snap *domain.StreamSnapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

func (f *fakeAPI) StreamInfo(ctx context.Context, videoID int64) (*domain.StreamSnapshot, error) {
	f.mu.Lock()
	f.infoCalls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.snap
	return &cp, nil
}

func (f *fakeAPI) Video(ctx context.Context, videoID int64) (*domain.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	return &domain.Video{ID: videoID, Title: "video"}, nil
}

func (f *fakeAPI) counts() (info, video int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls, f.videoCalls
}

type fakePlayer struct {
	position float64
	calls    []string
}

func (p *fakePlayer) Position() float64 { return p.position }
func (p *fakePlayer) Seek(s float64)    { p.position = s; p.calls = append(p.calls, "seek") }
func (p *fakePlayer) Play()             { p.calls = append(p.calls, "play") }
func (p *fakePlayer) Pause()            { p.calls = append(p.calls, "pause") }

func scheduled(started, ended bool, offset *float64) *domain.StreamSnapshot {
	at := time.Now().Add(time.Hour)
	if started {
		at = time.Now().Add(-time.Minute)
	}
	return &domain.StreamSnapshot{
		HasStarted:           started,
		HasEnded:             ended,
		ScheduledAt:          &at,
		DurationSeconds:      600,
		CurrentOffsetSeconds: offset,
		ServerTime:           time.Now(),
	}
}

func offset(v float64) *float64 { return &v }

func newSync(api VideoAPI, player Player, poll time.Duration) *Synchronizer {
	return New(api, player, Options{PollInterval: poll, DebounceWindow: 30 * time.Millisecond})
}

func drain(s *Synchronizer) []Event {
	var out []Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestAttachRegularVideo(t *testing.T) {
	api := &fakeAPI{snap: &domain.StreamSnapshot{DurationSeconds: 90}}
	s := newSync(api, &fakePlayer{}, 10*time.Millisecond)
	defer s.Detach()

	phase, snap, err := s.Attach(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRegular, phase)
	require.NotNil(t, snap)

	require.Eventually(t, func() bool { _, v := api.counts(); return v == 1 }, time.Second, 5*time.Millisecond)

	// Regular is terminal from the start: nothing polls.
	time.Sleep(50 * time.Millisecond)
	info, video := api.counts()
	assert.Equal(t, 1, info)
	assert.Equal(t, 1, video)
}

func TestScenarioScheduledGoesLive(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, false, nil)}
	player := &fakePlayer{}
	s := newSync(api, player, 10*time.Millisecond)
	defer s.Detach()

	phase, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNotStarted, phase)

	ev := <-s.Events()
	assert.Equal(t, EventPhaseChanged, ev.Kind)
	assert.Equal(t, domain.PhaseNotStarted, ev.Phase)
	require.NotNil(t, ev.ScheduledAt)

	_, video := api.counts()
	assert.Equal(t, 0, video)

	api.set(scheduled(true, false, offset(1)), nil)
	require.Eventually(t, func() bool { return s.Phase() == domain.PhaseLive }, time.Second, 5*time.Millisecond)

	// Keep polling while live; the view fires once.
	time.Sleep(60 * time.Millisecond)
	info, video := api.counts()
	assert.Greater(t, info, 3)
	assert.Equal(t, 1, video)
}

func TestNotStartedWinsOverEnded(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, true, nil)}
	s := newSync(api, &fakePlayer{}, time.Hour)
	defer s.Detach()

	phase, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNotStarted, phase)
}

func TestEndedIsTerminal(t *testing.T) {
	api := &fakeAPI{snap: scheduled(true, false, offset(0))}
	s := newSync(api, &fakePlayer{}, 10*time.Millisecond)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)

	api.set(scheduled(true, true, nil), nil)
	require.Eventually(t, func() bool { return s.Phase() == domain.PhaseEnded }, time.Second, 5*time.Millisecond)

	info, _ := api.counts()
	api.set(scheduled(true, false, offset(5)), nil)
	time.Sleep(60 * time.Millisecond)

	after, video := api.counts()
	assert.Equal(t, domain.PhaseEnded, s.Phase())
	assert.LessOrEqual(t, after, info+1, "polling continued after Ended")
	assert.Equal(t, 1, video)

	// Pushed snapshots cannot revive it either.
	require.NoError(t, s.Apply(context.Background(), scheduled(false, false, nil)))
	assert.Equal(t, domain.PhaseEnded, s.Phase())
}

func TestViewRecordedOncePerSession(t *testing.T) {
	api := &fakeAPI{snap: scheduled(true, false, offset(0))}
	s := newSync(api, &fakePlayer{}, time.Hour)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Apply(context.Background(), scheduled(true, false, offset(0))))
	}

	require.Eventually(t, func() bool { _, v := api.counts(); return v == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	_, video := api.counts()
	assert.Equal(t, 1, video)

	// A new session may record again.
	_, _, err = s.Attach(context.Background(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, v := api.counts(); return v == 2 }, time.Second, 5*time.Millisecond)
}

func TestCorrectiveSeekBoundary(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		offset   float64
		seek     bool
	}{
		{"within tolerance", 11, 10, false},
		{"exactly at tolerance", 12, 10, false},
		{"exactly at tolerance behind", 8, 10, false},
		{"ahead", 12.5, 10, true},
		{"behind", 0, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{snap: scheduled(true, false, offset(tt.offset))}
			player := &fakePlayer{position: tt.position}
			s := newSync(api, player, time.Hour)
			defer s.Detach()

			_, _, err := s.Attach(context.Background(), 1)
			require.NoError(t, err)

			if tt.seek {
				assert.Equal(t, []string{"pause", "seek", "play"}, player.calls)
				assert.Equal(t, tt.offset, player.position)
				assert.Equal(t, domain.IntentPlaying, s.Intent())
			} else {
				assert.Empty(t, player.calls)
			}
		})
	}
}

func TestCorrectionKeepsUserPause(t *testing.T) {
	api := &fakeAPI{snap: scheduled(true, false, offset(0))}
	player := &fakePlayer{}
	s := newSync(api, player, time.Hour)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)
	drain(s)

	s.UserPaused()
	require.NoError(t, s.Apply(context.Background(), scheduled(true, false, offset(30))))

	assert.Equal(t, []string{"seek"}, player.calls)
	assert.Equal(t, 30.0, player.position)
	assert.Equal(t, domain.IntentUserPaused, s.Intent())

	var corrected *Event
	for _, ev := range drain(s) {
		if ev.Kind == EventCorrected {
			corrected = &ev
		}
	}
	require.NotNil(t, corrected)
	assert.False(t, corrected.Resumed)
	assert.Equal(t, 0.0, corrected.From)
	assert.Equal(t, 30.0, corrected.To)

	s.UserResumed()
	assert.Equal(t, domain.IntentPlaying, s.Intent())
}

func TestForbiddenMeansNotStarted(t *testing.T) {
	api := &fakeAPI{err: domain.ErrForbidden}
	s := newSync(api, &fakePlayer{}, 10*time.Millisecond)
	defer s.Detach()

	phase, snap, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNotStarted, phase)
	assert.Nil(t, snap)

	api.set(scheduled(true, false, offset(0)), nil)
	require.Eventually(t, func() bool { return s.Phase() == domain.PhaseLive }, time.Second, 5*time.Millisecond)
}

func TestAttachErrors(t *testing.T) {
	api := &fakeAPI{err: domain.ErrNotFound}
	s := newSync(api, &fakePlayer{}, time.Hour)

	_, _, err := s.Attach(context.Background(), 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	api.set(nil, errors.New("boom"))
	_, _, err = s.Attach(context.Background(), 1)
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	assert.Equal(t, int64(0), s.VideoID())
}

func TestNotFoundDuringPollStops(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, false, nil)}
	s := newSync(api, &fakePlayer{}, 10*time.Millisecond)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)
	drain(s)

	api.set(nil, domain.ErrNotFound)

	var got Event
	require.Eventually(t, func() bool {
		select {
		case got = <-s.Events():
			return got.Kind == EventError
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.True(t, errors.Is(got.Err, domain.ErrNotFound))

	info, _ := api.counts()
	time.Sleep(50 * time.Millisecond)
	after, _ := api.counts()
	assert.Equal(t, info, after)
}

func TestTransientPollErrorRetries(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, false, nil)}
	s := newSync(api, &fakePlayer{}, 10*time.Millisecond)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)

	api.set(nil, domain.ErrUnavailable)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, domain.PhaseNotStarted, s.Phase())

	api.set(scheduled(true, false, offset(0)), nil)
	require.Eventually(t, func() bool { return s.Phase() == domain.PhaseLive }, time.Second, 5*time.Millisecond)
}

func TestScenarioRefreshDebounce(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, false, nil)}
	s := newSync(api, &fakePlayer{}, time.Hour)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)

	s.Refresh()
	s.Refresh()

	require.Eventually(t, func() bool { i, _ := api.counts(); return i == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	info, _ := api.counts()
	assert.Equal(t, 2, info)
}

func TestStaleDebounceFiringLeavesNewerTimer(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, false, nil)}
	s := newSync(api, &fakePlayer{}, time.Hour)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)

	s.Refresh()

	// Hold the lock past the window so the callback is parked on it, then
	// re-arm the fired timer the way a racing Refresh would.
	s.mu.Lock()
	time.Sleep(60 * time.Millisecond)
	s.debounce.Reset(80 * time.Millisecond)
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.debounce == nil
	}, time.Second, time.Millisecond)

	s.mu.Lock()
	s.opts.DebounceWindow = 500 * time.Millisecond
	s.mu.Unlock()
	s.Refresh()

	// The re-armed timer fires in between and must neither fetch nor drop
	// the pending refresh.
	time.Sleep(150 * time.Millisecond)

	s.mu.Lock()
	pending := s.debounce != nil
	s.mu.Unlock()
	assert.True(t, pending)

	info, _ := api.counts()
	assert.Equal(t, 2, info)
}

func TestInFlightFetchDropsTick(t *testing.T) {
	api := &fakeAPI{snap: scheduled(false, false, nil)}
	s := newSync(api, &fakePlayer{}, time.Hour)
	defer s.Detach()

	_, _, err := s.Attach(context.Background(), 1)
	require.NoError(t, err)

	gate := make(chan struct{})
	api.mu.Lock()
	api.gate = gate
	api.mu.Unlock()

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.fetch(epoch, "poll")
		close(done)
	}()
	require.Eventually(t, func() bool { i, _ := api.counts(); return i == 2 }, time.Second, 5*time.Millisecond)

	s.fetch(epoch, "poll")
	info, _ := api.counts()
	assert.Equal(t, 2, info)

	close(gate)
	<-done
}

func TestDetachDiscardsLateResponse(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{snap: scheduled(true, false, offset(50)), gate: gate}
	player := &fakePlayer{}
	s := newSync(api, player, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := s.Attach(context.Background(), 1)
		errCh <- err
	}()
	require.Eventually(t, func() bool { i, _ := api.counts(); return i == 1 }, time.Second, 5*time.Millisecond)

	s.Detach()
	s.Detach()
	close(gate)

	assert.ErrorIs(t, <-errCh, ErrDetached)
	assert.Empty(t, player.calls)
	assert.Equal(t, domain.PhaseUnknown, s.Phase())
	assert.ErrorIs(t, s.Apply(context.Background(), scheduled(true, false, nil)), ErrDetached)
}
