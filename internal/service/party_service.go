package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/audit"
	"github.com/weiawesome/wes-io-watchparty/internal/cache"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/idgen"
	"github.com/weiawesome/wes-io-watchparty/internal/repository"
	"github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

const (
	maxCodeAttempts   = 5
	partyClosedNotice = "Watch party has been closed by the owner"
)

type partyServiceImpl struct {
	repo     repository.PartyRepository
	videos   repository.VideoRepository
	cache    cache.PartyCache
	cacheTTL time.Duration
	bus      pubsub.Publisher
	codes    idgen.Generator
	now      func() time.Time
}

// NewPartyService creates a watch-party service.
func NewPartyService(
	repo repository.PartyRepository,
	videos repository.VideoRepository,
	partyCache cache.PartyCache,
	cacheTTL time.Duration,
	bus pubsub.Publisher,
	codes idgen.Generator,
) PartyService {
	return &partyServiceImpl{
		repo:     repo,
		videos:   videos,
		cache:    partyCache,
		cacheTTL: cacheTTL,
		bus:      bus,
		codes:    codes,
		now:      time.Now,
	}
}

// Create opens a party with the creator as owner and first participant.
func (s *partyServiceImpl) Create(ctx context.Context, username string, req *domain.CreateWatchPartyRequest) (*domain.WatchParty, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, err
		}

		party := &domain.WatchParty{
			RoomCode:             code,
			Name:                 req.Name,
			OwnerUsername:        username,
			ParticipantUsernames: []string{username},
			Active:               true,
			CreatedAt:            s.now(),
		}

		err = s.repo.Create(ctx, party)
		if errors.Is(err, repository.ErrRoomCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.cacheParty(ctx, party)
		audit.LogWithDetail(ctx, audit.ActionCreateParty, username, code, "watch party created")
		return party, nil
	}
	return nil, fmt.Errorf("failed to allocate room code after %d attempts", maxCodeAttempts)
}

// Get reads through the party cache.
func (s *partyServiceImpl) Get(ctx context.Context, roomCode string) (*domain.WatchParty, error) {
	l := log.Ctx(ctx)
	key := s.cache.BuildKeyByCode(roomCode)

	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldRoomCode, roomCode).Msg("party cache read failed")
	}

	party, err := s.repo.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.cacheParty(ctx, party)
	return party, nil
}

func (s *partyServiceImpl) ListActive(ctx context.Context) ([]domain.WatchParty, error) {
	return s.repo.ListActive(ctx)
}

func (s *partyServiceImpl) Join(ctx context.Context, roomCode, username string) (*domain.WatchParty, error) {
	party, err := s.update(ctx, roomCode, func(p *domain.WatchParty) error {
		if !p.Active {
			return domain.ErrPartyClosed
		}
		if !p.HasParticipant(username) {
			p.ParticipantUsernames = append(p.ParticipantUsernames, username)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionJoinParty, username, roomCode, "joined watch party")
	s.broadcast(ctx, roomCode, domain.UserJoined{Username: username})
	return party, nil
}

func (s *partyServiceImpl) Leave(ctx context.Context, roomCode, username string) error {
	left := false
	_, err := s.update(ctx, roomCode, func(p *domain.WatchParty) error {
		if !p.Active {
			return domain.ErrPartyClosed
		}
		if i := slices.Index(p.ParticipantUsernames, username); i >= 0 {
			p.ParticipantUsernames = slices.Delete(p.ParticipantUsernames, i, i+1)
			left = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !left {
		return nil
	}

	audit.LogWithDetail(ctx, audit.ActionLeaveParty, username, roomCode, "left watch party")
	s.broadcast(ctx, roomCode, domain.UserLeft{Username: username})
	return nil
}

// Close ends the party. Only the owner may close it.
func (s *partyServiceImpl) Close(ctx context.Context, roomCode, username string) error {
	_, err := s.update(ctx, roomCode, func(p *domain.WatchParty) error {
		if !p.IsOwner(username) {
			return domain.ErrNotOwner
		}
		if !p.Active {
			return domain.ErrPartyClosed
		}
		p.Active = false
		return nil
	})
	if err != nil {
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionCloseParty, username, roomCode, "watch party closed")
	s.broadcast(ctx, roomCode, domain.PartyClosed{Message: partyClosedNotice})
	return nil
}

// StartVideo switches the party to videoID. Only the owner may do this.
func (s *partyServiceImpl) StartVideo(ctx context.Context, roomCode, username string, videoID int64) error {
	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		return mapRepoError(err)
	}

	_, err = s.update(ctx, roomCode, func(p *domain.WatchParty) error {
		if !p.IsOwner(username) {
			return domain.ErrNotOwner
		}
		if !p.Active {
			return domain.ErrPartyClosed
		}
		id := video.ID
		p.CurrentVideoID = &id
		p.CurrentVideoTitle = video.Title
		return nil
	})
	if err != nil {
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionStartVideo, username, roomCode+":"+strconv.FormatInt(videoID, 10), "video started")
	s.broadcast(ctx, roomCode, domain.VideoStarted{VideoID: video.ID, VideoTitle: video.Title})
	return nil
}

// update mutates the stored party and invalidates its cache entry.
func (s *partyServiceImpl) update(ctx context.Context, roomCode string, fn func(*domain.WatchParty) error) (*domain.WatchParty, error) {
	party, err := s.repo.Update(ctx, roomCode, fn)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if err := s.cache.Delete(ctx, s.cache.BuildKeyByCode(roomCode)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomCode, roomCode).Msg("party cache invalidation failed")
	}
	return party, nil
}

func (s *partyServiceImpl) cacheParty(ctx context.Context, party *domain.WatchParty) {
	if err := s.cache.Set(ctx, s.cache.BuildKeyByCode(party.RoomCode), party, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomCode, party.RoomCode).Msg("party cache write failed")
	}
}

// broadcast publishes ev to the room. The command has already been applied,
// so a failed publish is logged rather than returned.
func (s *partyServiceImpl) broadcast(ctx context.Context, roomCode string, ev domain.RoomEvent) {
	l := log.Ctx(ctx)

	msg := domain.NewWatchPartyMessage(roomCode, ev)
	event, err := pubsub.NewEvent(msg.Type, roomCode, msg)
	if err != nil {
		l.Error().Err(err).Msg("failed to encode room event")
		return
	}
	if err := s.bus.Publish(ctx, pubsub.RoomEventsChannel(roomCode), event); err != nil {
		l.Error().Err(err).Str(log.FieldRoomCode, roomCode).Str("event", msg.Type).Msg("failed to publish room event")
	}
}
