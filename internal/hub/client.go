package hub

import (
	"bytes"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
)

// FrameHandler handles one inbound STOMP frame. A nil frame is a heart-beat.
type FrameHandler func(*Client, *frame.Frame)

// Client is one STOMP session on a WebSocket.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	// UpgradeToken is a bearer token presented on the HTTP upgrade.
	UpgradeToken string

	mu        sync.Mutex
	username  string
	connected bool
	closed    bool
	subs      map[string]string // subscription id -> topic
	beat      chan time.Duration
}

// NewClient creates a client bound to h.
func NewClient(id string, h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 256),
		subs: make(map[string]string),
		beat: make(chan time.Duration, 1),
	}
}

// Authenticate marks the session connected as username.
func (c *Client) Authenticate(username string) {
	c.mu.Lock()
	c.username = username
	c.connected = true
	c.mu.Unlock()
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetHeartBeat makes WritePump emit a heart-beat every d.
func (c *Client) SetHeartBeat(d time.Duration) {
	select {
	case c.beat <- d:
	default:
	}
}

// SendFrame encodes f and queues it. It reports false if the client is
// gone or its buffer is full.
func (c *Client) SendFrame(f *frame.Frame) bool {
	data, err := encodeFrame(f)
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("failed to encode frame")
		return false
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump pumps frames from the WebSocket connection to handler.
func (c *Client) ReadPump(handler FrameHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, r, err := c.Conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Error().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("websocket error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))

		f, err := frame.NewReader(r).Read()
		if err != nil {
			c.SendFrame(frame.New(frame.ERROR, frame.Message, "malformed frame"))
			c.Hub.Unregister(c)
			return
		}
		handler(c, f)
	}
}

// WritePump pumps queued frames and heart-beats to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	var beat *time.Ticker
	var beatC <-chan time.Time
	defer func() {
		ticker.Stop()
		if beat != nil {
			beat.Stop()
		}
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case d := <-c.beat:
			if beat != nil {
				beat.Stop()
			}
			beat = time.NewTicker(d)
			beatC = beat.C

		case <-beatC:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, []byte("\n")); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
