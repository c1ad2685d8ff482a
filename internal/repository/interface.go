package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrPartyNotFound = errors.New("watch party not found")
	ErrRoomCodeTaken = errors.New("room code already in use")
)

// VideoRepository stores the video catalog.
type VideoRepository interface {
	List(ctx context.Context) ([]domain.Video, error)
	GetByID(ctx context.Context, id int64) (*domain.Video, error)
	IncrementViews(ctx context.Context, id int64) (*domain.Video, error)
	ToggleLike(ctx context.Context, id int64, username string) (*domain.LikeResult, error)
}

// PartyRepository stores watch parties by room code.
type PartyRepository interface {
	Create(ctx context.Context, party *domain.WatchParty) error
	GetByCode(ctx context.Context, roomCode string) (*domain.WatchParty, error)
	ListActive(ctx context.Context) ([]domain.WatchParty, error)
	// Update applies fn to the stored party atomically and returns the
	// result. If fn fails nothing is stored.
	Update(ctx context.Context, roomCode string, fn func(*domain.WatchParty) error) (*domain.WatchParty, error)
}
