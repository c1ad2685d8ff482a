package log

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RoundTripper wraps an http.RoundTripper so that outbound requests carry
// an X-Request-ID header and are logged at debug level once they complete.
// A request ID already present on the request is forwarded unchanged.
type RoundTripper struct {
	Next   http.RoundTripper
	Logger zerolog.Logger
}

// NewRoundTripper returns a logging RoundTripper around next.
// A nil next uses http.DefaultTransport.
func NewRoundTripper(next http.RoundTripper, logger zerolog.Logger) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{Next: next, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(headerRequestID)
	if reqID == "" {
		reqID = uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(headerRequestID, reqID)
	}

	resp, err := t.Next.RoundTrip(req)

	evt := t.Logger.Debug().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, req.Method).
		Str(FieldPath, req.URL.Path).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
	if err != nil {
		evt.Err(err).Msg("request failed")
		return nil, err
	}
	evt.Int(FieldStatus, resp.StatusCode).Msg("request completed")
	return resp, nil
}
