package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
)

const (
	defaultReceiptTimeout = 10 * time.Second
	defaultWriteWait      = 10 * time.Second
	disconnectGrace       = time.Second
)

// StompOptions configures a StompTransport.
type StompOptions struct {
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	ReceiptTimeout    time.Duration
	Auth              auth.Provider
	Dialer            *websocket.Dialer
	Logger            *zerolog.Logger
}

// StompTransport speaks STOMP 1.2 over a WebSocket, one frame per message.
type StompTransport struct {
	opts   StompOptions
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	conn   *stompConn
	subs   map[string]*subscription
	stopCh chan struct{}

	notifier notifier
}

// stompConn is one physical connection. A reconnect creates a new one.
type stompConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	receiptMu sync.Mutex
	receipts  map[string]chan *frame.Frame

	send   time.Duration
	expect time.Duration
	done   chan struct{}
}

// NewStompTransport creates a transport for the broker at opts.URL.
func NewStompTransport(opts StompOptions) *StompTransport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaultReceiptTimeout
	}
	if opts.Auth == nil {
		opts.Auth = auth.Anonymous
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	logger := pkglog.L()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &StompTransport{
		opts:   opts,
		logger: logger.With().Str("transport", "stomp").Logger(),
		subs:   make(map[string]*subscription),
	}
}

// State returns the current connection state.
func (t *StompTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnStateChange registers a state listener.
func (t *StompTransport) OnStateChange(fn func(State)) func() {
	return t.notifier.add(fn)
}

// Connect dials the broker and completes the STOMP handshake.
func (t *StompTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()
	t.notifier.notify(StateConnecting)

	conn, err := t.dial(ctx)
	if err != nil {
		t.mu.Lock()
		if t.stopCh == stopCh {
			t.state = StateDisconnected
		}
		t.mu.Unlock()
		t.notifier.notify(StateDisconnected)
		return err
	}

	if !t.install(conn, stopCh) {
		conn.ws.Close()
		return ErrNotConnected
	}
	return nil
}

// install makes conn the live connection unless Disconnect ran meanwhile.
func (t *StompTransport) install(conn *stompConn, stopCh chan struct{}) bool {
	t.mu.Lock()
	if t.stopCh != stopCh || t.state == StateDisconnected {
		t.mu.Unlock()
		return false
	}
	t.conn = conn
	t.state = StateConnected
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.heartbeatLoop(conn)

	t.logger.Info().Str("url", t.opts.URL).Msg("stomp connected")
	t.notifier.notify(StateConnected)
	return true
}

func (t *StompTransport) dial(ctx context.Context) (*stompConn, error) {
	header := http.Header{}
	token := t.opts.Auth.Token()
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, _, err := t.opts.Dialer.DialContext(ctx, t.opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.opts.URL, err)
	}

	host := t.opts.URL
	if u, err := url.Parse(t.opts.URL); err == nil {
		host = u.Host
	}

	conn := &stompConn{
		ws:       ws,
		receipts: make(map[string]chan *frame.Frame),
		done:     make(chan struct{}),
	}

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, host,
		frame.HeartBeat, heartBeatHeader(t.opts.HeartbeatOutgoing, t.opts.HeartbeatIncoming),
	)
	if token != "" {
		connect.Header.Set("Authorization", "Bearer "+token)
	}
	if err := conn.write(connect); err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to send CONNECT: %w", err)
	}

	deadline := time.Now().Add(t.opts.ReceiptTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetReadDeadline(deadline)

	var f *frame.Frame
	for f == nil {
		if f, err = conn.read(); err != nil {
			ws.Close()
			return nil, fmt.Errorf("failed to read CONNECTED: %w", err)
		}
	}
	switch f.Command {
	case frame.CONNECTED:
	case frame.ERROR:
		ws.Close()
		return nil, fmt.Errorf("stomp connect rejected: %s", f.Header.Get(frame.Message))
	default:
		ws.Close()
		return nil, fmt.Errorf("unexpected %s frame during handshake", f.Command)
	}

	conn.send, conn.expect, err = negotiateHeartBeat(t.opts.HeartbeatOutgoing, t.opts.HeartbeatIncoming, f.Header.Get(frame.HeartBeat))
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("invalid heart-beat from server: %w", err)
	}
	conn.armReadDeadline()

	return conn, nil
}

// Subscribe subscribes to topic and waits for the broker's receipt.
func (t *StompTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	t.mu.Lock()
	conn := t.conn
	if conn == nil || t.state != StateConnected {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.New().String()
	sub := newSubscription(id, topic, t.unsubscribe)
	t.subs[id] = sub
	t.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, topic,
		frame.Ack, "auto",
	)
	if err := t.request(ctx, conn, f); err != nil {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
		sub.end(nil)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	t.logger.Debug().Str(pkglog.FieldTopic, topic).Str("subscription", id).Msg("subscribed")
	return sub, nil
}

func (t *StompTransport) unsubscribe(sub *subscription) error {
	t.mu.Lock()
	_, ok := t.subs[sub.id]
	delete(t.subs, sub.id)
	conn := t.conn
	t.mu.Unlock()

	sub.end(nil)
	if !ok || conn == nil {
		return nil
	}
	return conn.write(frame.New(frame.UNSUBSCRIBE, frame.Id, sub.id))
}

// Publish sends body to destination and waits for the broker's receipt.
func (t *StompTransport) Publish(ctx context.Context, destination string, body []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = body
	return t.request(ctx, conn, f)
}

// request writes f with a receipt header and waits for the RECEIPT.
func (t *StompTransport) request(ctx context.Context, conn *stompConn, f *frame.Frame) error {
	receiptID := uuid.New().String()
	f.Header.Set(frame.Receipt, receiptID)

	ch := make(chan *frame.Frame, 1)
	conn.receiptMu.Lock()
	conn.receipts[receiptID] = ch
	conn.receiptMu.Unlock()
	defer func() {
		conn.receiptMu.Lock()
		delete(conn.receipts, receiptID)
		conn.receiptMu.Unlock()
	}()

	if err := conn.write(f); err != nil {
		return err
	}

	timer := time.NewTimer(t.opts.ReceiptTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.Command == frame.ERROR {
			return fmt.Errorf("broker rejected %s: %s", f.Command, r.Header.Get(frame.Message))
		}
		return nil
	case <-conn.done:
		return ErrConnectionLost
	case <-timer.C:
		return fmt.Errorf("timed out waiting for %s receipt", f.Command)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection and stops reconnecting.
func (t *StompTransport) Disconnect() error {
	t.mu.Lock()
	if t.state == StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateDisconnected
	close(t.stopCh)
	conn := t.conn
	t.conn = nil
	subs := t.subs
	t.subs = make(map[string]*subscription)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.end(nil)
	}

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
		if err := t.request(ctx, conn, frame.New(frame.DISCONNECT)); err != nil {
			t.logger.Debug().Err(err).Msg("no DISCONNECT receipt")
		}
		cancel()
		conn.ws.Close()
	}

	t.logger.Info().Msg("stomp disconnected")
	t.notifier.notify(StateDisconnected)
	return nil
}

func (t *StompTransport) readLoop(conn *stompConn) {
	var err error
	defer func() {
		close(conn.done)
		conn.ws.Close()
		t.handleLoss(conn, err)
	}()

	for {
		var f *frame.Frame
		f, err = conn.read()
		if err != nil {
			return
		}
		conn.armReadDeadline()
		if f == nil {
			continue // heart-beat
		}

		switch f.Command {
		case frame.MESSAGE:
			t.dispatch(f)
		case frame.RECEIPT:
			conn.resolve(f.Header.Get(frame.ReceiptId), f)
		case frame.ERROR:
			// A receipt-bearing ERROR answers a pending request.
			if id := f.Header.Get(frame.ReceiptId); id != "" {
				conn.resolve(id, f)
				continue
			}
			t.logger.Error().Str("message", f.Header.Get(frame.Message)).Msg("stomp error frame")
		default:
			t.logger.Debug().Str("command", f.Command).Msg("ignoring stomp frame")
		}
	}
}

func (t *StompTransport) dispatch(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)

	t.mu.Lock()
	sub := t.subs[id]
	t.mu.Unlock()

	if sub == nil {
		t.logger.Debug().Str("subscription", id).Msg("message for unknown subscription")
		return
	}
	sub.deliver(Message{
		Topic: sub.topic,
		ID:    f.Header.Get(frame.MessageId),
		Body:  f.Body,
	})
}

// handleLoss ends all subscriptions and starts reconnecting, unless the
// loss was caused by Disconnect or belongs to a replaced connection.
func (t *StompTransport) handleLoss(conn *stompConn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.state = StateReconnecting
	subs := t.subs
	t.subs = make(map[string]*subscription)
	stopCh := t.stopCh
	t.mu.Unlock()

	t.logger.Warn().Err(cause).Dur("retry_in", t.opts.ReconnectDelay).Msg("stomp connection lost")

	for _, sub := range subs {
		sub.end(ErrConnectionLost)
	}
	t.notifier.notify(StateReconnecting)

	go t.reconnectLoop(stopCh)
}

func (t *StompTransport) reconnectLoop(stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-time.After(t.opts.ReconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.opts.ReceiptTimeout)
		conn, err := t.dial(ctx)
		cancel()
		if err != nil {
			t.logger.Warn().Err(err).Dur("retry_in", t.opts.ReconnectDelay).Msg("stomp reconnect failed")
			continue
		}

		if !t.install(conn, stopCh) {
			conn.ws.Close()
		}
		return
	}
}

func (t *StompTransport) heartbeatLoop(conn *stompConn) {
	if conn.send <= 0 {
		return
	}

	ticker := time.NewTicker(conn.send)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.heartbeat(); err != nil {
				return
			}
		}
	}
}

func (c *stompConn) write(f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := frame.NewWriter(w).Write(f); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *stompConn) heartbeat() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte("\n"))
}

// read returns the next frame, or nil for a heart-beat.
func (c *stompConn) read() (*frame.Frame, error) {
	_, r, err := c.ws.NextReader()
	if err != nil {
		return nil, err
	}
	f, err := frame.NewReader(r).Read()
	if err != nil {
		return nil, err
	}
	return f, nil
}

// armReadDeadline allows two missed server heart-beats before the read
// fails. Without server heart-beats reads never time out.
func (c *stompConn) armReadDeadline() {
	if c.expect <= 0 {
		c.ws.SetReadDeadline(time.Time{})
		return
	}
	c.ws.SetReadDeadline(time.Now().Add(2 * c.expect))
}

func (c *stompConn) resolve(id string, f *frame.Frame) {
	c.receiptMu.Lock()
	ch, ok := c.receipts[id]
	c.receiptMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
	}
}
