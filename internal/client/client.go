package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"golang.org/x/sync/singleflight"
)

const maxBodySize = 4 << 20

// StatusError is returned for non-2xx responses and transport failures.
// It unwraps to one of the domain sentinels so callers can use errors.Is.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Err, e.StatusCode)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Err, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Client is the shared HTTP plumbing for the REST collaborators.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       auth.Provider
	sf         singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a REST client for baseURL. Requests carry the provider's
// bearer token when it has one.
func New(baseURL string, timeout time.Duration, provider auth.Provider, opts ...Option) *Client {
	if provider == nil {
		provider = auth.Anonymous
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: pkglog.NewRoundTripper(nil, pkglog.L()),
		},
		auth: provider,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope matches the {success, data, error} wrapper used by the API.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type result struct {
	status int
	body   []byte
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	// Identical concurrent GETs for the same identity share one round trip.
	// The shared call is detached from any single caller's cancellation and
	// bounded by the http.Client timeout; each caller waits on its own ctx.
	key := path + "|" + c.auth.Token()
	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		return c.roundTrip(shared, http.MethodGet, path, nil)
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return r.Err
	}

	res, ok := r.Val.(*result)
	if !ok {
		return fmt.Errorf("unexpected result type from singleflight")
	}
	return decode(res, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	res, err := c.roundTrip(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decode(res, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}) (*result, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.auth.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &StatusError{Err: domain.ErrUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: domain.ErrUnavailable, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, data)
	}
	return &result{status: resp.StatusCode, body: data}, nil
}

func statusError(status int, body []byte) *StatusError {
	se := &StatusError{StatusCode: status}

	switch status {
	case http.StatusNotFound:
		se.Err = domain.ErrNotFound
	case http.StatusForbidden:
		se.Err = domain.ErrForbidden
	case http.StatusUnauthorized:
		se.Err = domain.ErrUnauthorized
	default:
		se.Err = domain.ErrUnavailable
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		se.Code, se.Message = parseErrorInfo(env.Error)
	}
	return se
}

// parseErrorInfo accepts both {"code","message"} objects and plain strings.
func parseErrorInfo(raw json.RawMessage) (code, message string) {
	var info errorInfo
	if err := json.Unmarshal(raw, &info); err == nil {
		return info.Code, info.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return "", s
	}
	return "", ""
}

// decode unwraps the envelope when present and falls back to a bare body.
func decode(res *result, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(res.body)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(res.body, &env); err == nil && env.Success != nil {
		if !*env.Success {
			code, msg := parseErrorInfo(env.Error)
			return &StatusError{StatusCode: res.status, Code: code, Message: msg, Err: domain.ErrUnavailable}
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
