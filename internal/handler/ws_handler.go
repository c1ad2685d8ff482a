package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/hub"
	"github.com/weiawesome/wes-io-watchparty/internal/service"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/middleware"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

const serverName = "wes-io-watchparty/1.0"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSHandler terminates STOMP sessions on /ws.
type WSHandler struct {
	hub       *hub.Hub
	chat      service.ChatService
	validator middleware.TokenValidator
	heartBeat time.Duration
}

// NewWSHandler creates a new WebSocket handler. heartBeat is the interval
// the broker offers in CONNECTED; zero disables heart-beats.
func NewWSHandler(h *hub.Hub, chat service.ChatService, validator middleware.TokenValidator, heartBeat time.Duration) *WSHandler {
	return &WSHandler{
		hub:       h,
		chat:      chat,
		validator: validator,
		heartBeat: heartBeat,
	}
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.L()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn)
	if token, ok := middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey)); ok {
		client.UpgradeToken = token
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleFrame)
}

func (h *WSHandler) handleFrame(client *hub.Client, f *frame.Frame) {
	if f == nil {
		return // heart-beat
	}

	if !client.Connected() && f.Command != frame.CONNECT && f.Command != frame.STOMP {
		h.fail(client, f, "not connected")
		return
	}

	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		h.handleConnect(client, f)
		return

	case frame.SUBSCRIBE:
		id := f.Header.Get(frame.Id)
		dest := f.Header.Get(frame.Destination)
		if id == "" || dest == "" {
			h.reject(client, f, "SUBSCRIBE requires id and destination")
			return
		}
		if _, ok := pubsub.ChannelForTopic(dest); !ok {
			h.reject(client, f, fmt.Sprintf("unknown destination %s", dest))
			return
		}
		h.hub.Subscribe(client, id, dest)

	case frame.UNSUBSCRIBE:
		id := f.Header.Get(frame.Id)
		if id == "" {
			h.reject(client, f, "UNSUBSCRIBE requires id")
			return
		}
		h.hub.Unsubscribe(client, id)

	case frame.SEND:
		if err := h.handleSend(client, f); err != nil {
			h.reject(client, f, err.Error())
			return
		}

	case frame.DISCONNECT:
		h.receipt(client, f)
		h.hub.Unregister(client)
		return

	default:
		h.reject(client, f, fmt.Sprintf("unsupported command %s", f.Command))
		return
	}

	h.receipt(client, f)
}

func (h *WSHandler) handleConnect(client *hub.Client, f *frame.Frame) {
	l := pkglog.L()

	if client.Connected() {
		h.fail(client, f, "already connected")
		return
	}

	if v := f.Header.Get(frame.AcceptVersion); v != "" && !acceptsVersion(v, "1.2") {
		h.fail(client, f, "unsupported protocol version")
		return
	}

	token := client.UpgradeToken
	if t, ok := middleware.BearerToken(f.Header.Get(middleware.AuthHeaderKey)); ok {
		token = t
	} else if t := f.Header.Get(frame.Passcode); t != "" {
		token = t
	}
	if token == "" {
		h.fail(client, f, "missing bearer token")
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		l.Warn().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("stomp connect rejected")
		h.fail(client, f, "invalid token")
		return
	}
	client.Authenticate(claims.Username)

	send, offer := h.negotiate(f.Header.Get(frame.HeartBeat))
	if send > 0 {
		client.SetHeartBeat(send)
	}

	client.SendFrame(frame.New(frame.CONNECTED,
		frame.Version, "1.2",
		frame.Server, serverName,
		frame.HeartBeat, offer,
		"user-name", claims.Username,
	))
	l.Info().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldUsername, claims.Username).Msg("stomp session established")
}

// negotiate returns how often the broker must send heart-beats and the
// header value it offers. Unparseable client values disable heart-beats.
func (h *WSHandler) negotiate(clientHeader string) (time.Duration, string) {
	offer := fmt.Sprintf("%d,%d", h.heartBeat.Milliseconds(), h.heartBeat.Milliseconds())
	if clientHeader == "" || h.heartBeat <= 0 {
		return 0, offer
	}
	_, cy, err := frame.ParseHeartBeat(clientHeader)
	if err != nil || cy <= 0 {
		return 0, offer
	}
	return max(h.heartBeat, cy), offer
}

func (h *WSHandler) handleSend(client *hub.Client, f *frame.Frame) error {
	dest := f.Header.Get(frame.Destination)
	streamID, ok := pubsub.StreamIDFromDestination(dest)
	if !ok {
		return fmt.Errorf("unknown destination %s", dest)
	}

	var msg domain.ChatMessage
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		return errors.New("invalid chat message")
	}
	if msg.StreamID != "" && msg.StreamID != streamID {
		return errors.New("stream id does not match destination")
	}

	ctx := pkglog.WithLogger(context.Background(), pkglog.L().With().
		Str(pkglog.FieldClientID, client.ID).
		Str(pkglog.FieldUsername, client.Username()).
		Logger())

	_, err := h.chat.Post(ctx, streamID, client.Username(), msg.Content)
	return err
}

func (h *WSHandler) receipt(client *hub.Client, f *frame.Frame) {
	if id := f.Header.Get(frame.Receipt); id != "" {
		client.SendFrame(frame.New(frame.RECEIPT, frame.ReceiptId, id))
	}
}

// reject answers a single request with an ERROR and keeps the session.
func (h *WSHandler) reject(client *hub.Client, f *frame.Frame, msg string) {
	e := frame.New(frame.ERROR, frame.Message, msg)
	if id := f.Header.Get(frame.Receipt); id != "" {
		e.Header.Set(frame.ReceiptId, id)
	}
	client.SendFrame(e)
}

// fail sends an ERROR and closes the session.
func (h *WSHandler) fail(client *hub.Client, f *frame.Frame, msg string) {
	h.reject(client, f, msg)
	h.hub.Unregister(client)
}

func acceptsVersion(header, version string) bool {
	for _, v := range strings.Split(header, ",") {
		if strings.TrimSpace(v) == version {
			return true
		}
	}
	return false
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", gin.WrapF(h.HandleWebSocket))
}
