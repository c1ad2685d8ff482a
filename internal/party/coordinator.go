package party

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/transport"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

const eventBuffer = 64

var (
	ErrNotJoined = errors.New("not in a watch party")
	ErrDetached  = errors.New("watch party session replaced")
)

// PartyAPI is the watch-party command and query surface.
type PartyAPI interface {
	Join(ctx context.Context, roomCode string) (*domain.WatchParty, error)
	Leave(ctx context.Context, roomCode string) error
	Close(ctx context.Context, roomCode string) error
	StartVideo(ctx context.Context, roomCode string, videoID int64) error
	Get(ctx context.Context, roomCode string) (*domain.WatchParty, error)
}

type Options struct {
	Logger *zerolog.Logger
}

// Coordinator manages membership in one watch party at a time and turns
// room broadcasts into navigation and lifecycle events. It owns the
// transport it is given and disconnects it when the session ends.
type Coordinator struct {
	api    PartyAPI
	tr     transport.Transport
	auth   auth.Provider
	logger zerolog.Logger
	events chan Event

	mu             sync.Mutex
	epoch          uint64
	state          State
	roomCode       string
	party          *domain.WatchParty
	isOwner        bool
	lastVideoID    *int64
	pending        []domain.RoomEvent
	sub            transport.Subscription
	removeListener func()
	reconnecting   bool
	resubscribing  bool
	fetchSeq       uint64
	appliedSeq     uint64
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewCoordinator(api PartyAPI, tr transport.Transport, provider auth.Provider, opts Options) *Coordinator {
	if provider == nil {
		provider = auth.Anonymous
	}
	logger := pkglog.L()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Coordinator{
		api:    api,
		tr:     tr,
		auth:   provider,
		logger: logger.With().Str("component", "party").Logger(),
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the observable event stream. It is never closed.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Join enters roomCode. The room topic is subscribed before the join
// command is sent so that no broadcast caused by it is missed.
func (c *Coordinator) Join(ctx context.Context, roomCode string) (*domain.WatchParty, error) {
	c.mu.Lock()
	c.teardownLocked()
	c.epoch++
	epoch := c.epoch
	c.roomCode = roomCode
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	logger := c.logger.With().Str(pkglog.FieldRoomCode, roomCode).Logger()

	if err := c.tr.Connect(ctx); err != nil {
		c.abort(epoch)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sub, err := c.tr.Subscribe(ctx, pubsub.RoomTopic(roomCode))
	if err != nil {
		c.abort(epoch)
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		sub.Unsubscribe()
		return nil, ErrDetached
	}
	c.sub = sub
	c.removeListener = c.tr.OnStateChange(func(transport.State) {
		go c.reconcile(epoch)
	})
	go c.consume(epoch, sub)
	c.mu.Unlock()

	party, err := c.api.Join(ctx, roomCode)
	if err != nil {
		logger.Warn().Err(err).Msg("join command failed, falling back to fetch")
		party, err = c.api.Get(ctx, roomCode)
		if err != nil {
			c.abort(epoch)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("watch party not found: %w", err)
			}
			return nil, fmt.Errorf("failed to load watch party: %w", err)
		}
	}

	username, _ := c.auth.Username()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return nil, ErrDetached
	}

	c.party = party.Clone()
	c.isOwner = party.IsOwner(username)
	c.setStateLocked(StateJoined)

	pending := c.pending
	c.pending = nil
	for _, ev := range pending {
		c.handleLocked(ev)
	}

	if c.state == StateJoined {
		if party.Active {
			c.setStateLocked(StateActive)
		} else {
			c.closeLocked("watch party is no longer active")
		}
	}

	logger.Info().
		Str(pkglog.FieldUsername, username).
		Bool("owner", c.isOwner).
		Str(pkglog.FieldState, c.state.String()).
		Msg("joined watch party")

	return c.party.Clone(), nil
}

// StartVideo switches the party to videoID. On success the caller
// navigates immediately; the resulting broadcast is deduplicated.
func (c *Coordinator) StartVideo(ctx context.Context, videoID int64) error {
	code, epoch, err := c.current()
	if err != nil {
		return err
	}

	if err := c.api.StartVideo(ctx, code, videoID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state == StateClosed {
		return nil
	}
	c.navigateLocked(videoID, "")
	return nil
}

// Close asks the server to close the party. Local state changes when the
// PARTY_CLOSED broadcast arrives.
func (c *Coordinator) Close(ctx context.Context) error {
	code, _, err := c.current()
	if err != nil {
		return err
	}
	return c.api.Close(ctx, code)
}

// Leave exits the party. Members send the leave command first; the owner
// only disconnects, so the room stays open.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	code, owner, state := c.roomCode, c.isOwner, c.state
	c.mu.Unlock()

	if !owner && (state == StateJoined || state == StateActive) {
		if err := c.api.Leave(ctx, code); err != nil {
			c.logger.Warn().Err(err).Str(pkglog.FieldRoomCode, code).Msg("leave command failed")
		}
	}

	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Party returns a copy of the last known party.
func (c *Coordinator) Party() *domain.WatchParty {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.party.Clone()
}

func (c *Coordinator) IsOwner() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOwner
}

func (c *Coordinator) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

func (c *Coordinator) current() (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateJoined, StateActive:
		return c.roomCode, c.epoch, nil
	case StateClosed:
		return "", 0, domain.ErrPartyClosed
	default:
		return "", 0, ErrNotJoined
	}
}

func (c *Coordinator) abort(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.teardownLocked()
	}
}

// consume reads one subscription until it ends.
func (c *Coordinator) consume(epoch uint64, sub transport.Subscription) {
	for msg := range sub.C() {
		ev, code, err := domain.DecodeRoomEvent(msg.Body)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownEventKind) {
				c.logger.Warn().Err(err).Str(pkglog.FieldRoomCode, code).Msg("ignoring unknown room event")
			} else {
				c.logger.Warn().Err(err).Msg("ignoring malformed room event")
			}
			continue
		}

		c.mu.Lock()
		switch {
		case c.epoch != epoch:
		case code != "" && code != c.roomCode:
			c.logger.Debug().Str(pkglog.FieldRoomCode, code).Msg("event for another room")
		case c.state == StateConnecting:
			c.pending = append(c.pending, ev)
		default:
			c.handleLocked(ev)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.sub == sub {
		c.sub = nil
	}
	c.mu.Unlock()

	if errors.Is(sub.Err(), transport.ErrConnectionLost) {
		c.reconcile(epoch)
	}
}

func (c *Coordinator) handleLocked(ev domain.RoomEvent) {
	if c.state == StateClosed || c.state == StateDisconnected {
		c.logger.Debug().Str("event", ev.Kind()).Str(pkglog.FieldState, c.state.String()).Msg("ignoring room event")
		return
	}

	switch e := ev.(type) {
	case domain.UserJoined, domain.UserLeft:
		c.refetchLocked()
	case domain.VideoStarted:
		if c.isOwner {
			return
		}
		c.navigateLocked(e.VideoID, e.VideoTitle)
	case domain.PartyClosed:
		c.closeLocked(e.Message)
	}
}

// navigateLocked emits Navigate unless videoID is the video last navigated to.
func (c *Coordinator) navigateLocked(videoID int64, title string) {
	if c.lastVideoID != nil && *c.lastVideoID == videoID {
		return
	}
	id := videoID
	c.lastVideoID = &id
	if c.party != nil {
		c.party.CurrentVideoID = &id
		if title != "" {
			c.party.CurrentVideoTitle = title
		}
	}

	c.logger.Info().Str(pkglog.FieldRoomCode, c.roomCode).Int64(pkglog.FieldVideoID, videoID).Msg("navigating")
	c.emitLocked(Event{Kind: EventNavigate, RoomCode: c.roomCode, State: c.state, VideoID: videoID, VideoTitle: title})
}

// refetchLocked reloads the party. Responses that arrive out of order are
// dropped.
func (c *Coordinator) refetchLocked() {
	c.fetchSeq++
	seq, epoch, code, ctx := c.fetchSeq, c.epoch, c.roomCode, c.ctx

	go func() {
		party, err := c.api.Get(ctx, code)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.epoch != epoch || seq < c.appliedSeq || c.state == StateClosed || c.state == StateDisconnected {
			return
		}
		if err != nil {
			c.logger.Warn().Err(err).Str(pkglog.FieldRoomCode, code).Msg("failed to refresh watch party")
			return
		}
		c.appliedSeq = seq
		c.party = party.Clone()
		c.emitLocked(Event{Kind: EventPartyUpdated, RoomCode: code, State: c.state, Party: party.Clone()})

		if !party.Active {
			c.closeLocked("watch party is no longer active")
		}
	}()
}

// closeLocked makes the session terminal.
func (c *Coordinator) closeLocked(message string) {
	c.releaseLocked()
	c.setStateLocked(StateClosed)
	c.logger.Info().Str(pkglog.FieldRoomCode, c.roomCode).Str("message", message).Msg("watch party closed")
	c.emitLocked(Event{Kind: EventClosed, RoomCode: c.roomCode, State: StateClosed, Message: message})
}

// teardownLocked drops the session without touching the server.
func (c *Coordinator) teardownLocked() {
	c.epoch++
	c.releaseLocked()
	c.pending = nil
	c.reconnecting = false
	c.resubscribing = false
	c.lastVideoID = nil
	c.isOwner = false
	c.party = nil
	c.setStateLocked(StateDisconnected)
}

// releaseLocked unsubscribes, stops listening and disconnects. The
// subscription goes first so the transport never blocks on our consumer.
func (c *Coordinator) releaseLocked() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.tr.State() != transport.StateDisconnected {
		if err := c.tr.Disconnect(); err != nil {
			c.logger.Warn().Err(err).Msg("transport disconnect failed")
		}
	}
}

// reconcile restores the room subscription after the transport recovers.
// It runs on every transport state change and when a subscription is lost.
func (c *Coordinator) reconcile(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || (c.state != StateJoined && c.state != StateActive) || c.sub != nil || c.resubscribing {
		c.mu.Unlock()
		return
	}

	if c.tr.State() != transport.StateConnected {
		if !c.reconnecting {
			c.reconnecting = true
			c.logger.Warn().Str(pkglog.FieldRoomCode, c.roomCode).Msg("connection lost, waiting for transport")
			c.emitLocked(Event{Kind: EventReconnecting, RoomCode: c.roomCode, State: c.state})
		}
		c.mu.Unlock()
		return
	}

	c.resubscribing = true
	code, ctx := c.roomCode, c.ctx
	c.mu.Unlock()

	sub, err := c.tr.Subscribe(ctx, pubsub.RoomTopic(code))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		if err == nil {
			sub.Unsubscribe()
		}
		return
	}
	c.resubscribing = false
	if err != nil {
		c.logger.Warn().Err(err).Str(pkglog.FieldRoomCode, code).Msg("failed to resubscribe")
		return
	}

	c.sub = sub
	c.reconnecting = false
	go c.consume(epoch, sub)

	c.logger.Info().Str(pkglog.FieldRoomCode, code).Msg("resubscribed after reconnect")
	c.emitLocked(Event{Kind: EventReconnected, RoomCode: code, State: c.state})
	c.refetchLocked()
}

func (c *Coordinator) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emitLocked(Event{Kind: EventStateChanged, RoomCode: c.roomCode, State: s})
}

func (c *Coordinator) emitLocked(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("event", ev.Kind.String()).Msg("event buffer full, dropping event")
	}
}
