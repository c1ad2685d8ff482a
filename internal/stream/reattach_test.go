package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/client"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

// Re-attaching to the same video while a poll of the old session is still
// in flight must not inherit the old session's cancellation.
func TestReattachWhilePollInFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(60 * time.Millisecond)
		at := time.Now().Add(time.Hour)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.StreamSnapshot{
			ScheduledAt:     &at,
			DurationSeconds: 600,
			ServerTime:      time.Now(),
		})
	}))
	defer srv.Close()

	rest := client.New(srv.URL, 2*time.Second, auth.Anonymous)
	s := newSync(client.NewVideoClient(rest), &fakePlayer{}, 10*time.Millisecond)
	defer s.Detach()

	for i := 0; i < 6; i++ {
		phase, _, err := s.Attach(context.Background(), 3)
		require.NoError(t, err, "attach %d", i)
		require.Equal(t, domain.PhaseNotStarted, phase)

		// Let the poll loop put a request on the wire before re-attaching.
		time.Sleep(25 * time.Millisecond)
	}
}
