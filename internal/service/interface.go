package service

import (
	"context"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

// VideoService serves the video catalog and release timeline.
type VideoService interface {
	ListVideos(ctx context.Context) ([]domain.Video, error)
	// GetVideo returns full metadata and counts a view.
	GetVideo(ctx context.Context, id int64) (*domain.Video, error)
	StreamInfo(ctx context.Context, id int64) (*domain.StreamSnapshot, error)
	ToggleLike(ctx context.Context, id int64, username string) (*domain.LikeResult, error)
}

// PartyService runs watch-party commands and broadcasts their effects.
type PartyService interface {
	Create(ctx context.Context, username string, req *domain.CreateWatchPartyRequest) (*domain.WatchParty, error)
	Get(ctx context.Context, roomCode string) (*domain.WatchParty, error)
	ListActive(ctx context.Context) ([]domain.WatchParty, error)
	Join(ctx context.Context, roomCode, username string) (*domain.WatchParty, error)
	Leave(ctx context.Context, roomCode, username string) error
	Close(ctx context.Context, roomCode, username string) error
	StartVideo(ctx context.Context, roomCode, username string, videoID int64) error
}

// ChatService stamps and fans out chat messages.
type ChatService interface {
	Post(ctx context.Context, streamID, sender, content string) (*domain.ChatMessage, error)
}
