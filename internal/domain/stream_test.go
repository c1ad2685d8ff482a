package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseOf(t *testing.T) {
	at := time.Now()
	offset := 12.5

	tests := []struct {
		name string
		snap *StreamSnapshot
		want StreamPhase
	}{
		{"nil snapshot", nil, PhaseRegular},
		{"no schedule", &StreamSnapshot{HasStarted: true}, PhaseRegular},
		{"not started", &StreamSnapshot{ScheduledAt: &at}, PhaseNotStarted},
		{"not started but ended", &StreamSnapshot{ScheduledAt: &at, HasEnded: true}, PhaseNotStarted},
		{"live", &StreamSnapshot{ScheduledAt: &at, HasStarted: true, CurrentOffsetSeconds: &offset}, PhaseLive},
		{"ended", &StreamSnapshot{ScheduledAt: &at, HasStarted: true, HasEnded: true}, PhaseEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PhaseOf(tt.snap))
		})
	}
}

func TestPhaseTerminal(t *testing.T) {
	assert.True(t, PhaseEnded.Terminal())
	assert.True(t, PhaseRegular.Terminal())
	assert.False(t, PhaseLive.Terminal())
	assert.False(t, PhaseNotStarted.Terminal())
	assert.Equal(t, "not-started", PhaseNotStarted.String())
}
