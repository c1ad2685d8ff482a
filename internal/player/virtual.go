package player

import (
	"sync"
	"time"
)

// Virtual is a clock-driven player with no media behind it. It advances
// while playing and stops at its duration when one is set.
type Virtual struct {
	mu       sync.Mutex
	now      func() time.Time
	base     float64
	since    time.Time
	playing  bool
	duration float64
}

// NewVirtual creates a paused player at position zero. A nil clock uses
// time.Now.
func NewVirtual(now func() time.Time) *Virtual {
	if now == nil {
		now = time.Now
	}
	return &Virtual{now: now}
}

// SetDuration bounds the position. Zero means unbounded.
func (v *Virtual) SetDuration(seconds float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.base = v.positionLocked()
	v.since = v.now()
	v.duration = seconds
}

func (v *Virtual) Position() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionLocked()
}

func (v *Virtual) Seek(seconds float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	v.base = v.clamp(seconds)
	v.since = v.now()
}

func (v *Virtual) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		return
	}
	v.since = v.now()
	v.playing = true
}

func (v *Virtual) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing {
		return
	}
	v.base = v.positionLocked()
	v.playing = false
}

func (v *Virtual) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

func (v *Virtual) positionLocked() float64 {
	if !v.playing {
		return v.base
	}
	return v.clamp(v.base + v.now().Sub(v.since).Seconds())
}

func (v *Virtual) clamp(p float64) float64 {
	if v.duration > 0 && p > v.duration {
		return v.duration
	}
	return p
}
