package service

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/audit"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/repository"
)

type videoServiceImpl struct {
	repo repository.VideoRepository
	now  func() time.Time
}

// NewVideoService creates a video service. A nil clock uses time.Now.
func NewVideoService(repo repository.VideoRepository, now func() time.Time) VideoService {
	if now == nil {
		now = time.Now
	}
	return &videoServiceImpl{repo: repo, now: now}
}

func (s *videoServiceImpl) ListVideos(ctx context.Context) ([]domain.Video, error) {
	return s.repo.List(ctx)
}

// GetVideo refuses scheduled videos before their release.
func (s *videoServiceImpl) GetVideo(ctx context.Context, id int64) (*domain.Video, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if v.ScheduledAt != nil && s.now().Before(*v.ScheduledAt) {
		return nil, domain.ErrNotReleased
	}

	v, err = s.repo.IncrementViews(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return v, nil
}

// StreamInfo derives the release state from the schedule, the duration and
// the server clock.
func (s *videoServiceImpl) StreamInfo(ctx context.Context, id int64) (*domain.StreamSnapshot, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	now := s.now()
	snap := &domain.StreamSnapshot{
		ScheduledAt:     v.ScheduledAt,
		DurationSeconds: v.DurationSeconds,
		ServerTime:      now,
	}

	if v.ScheduledAt == nil {
		snap.HasStarted = true
		return snap, nil
	}

	if now.Before(*v.ScheduledAt) {
		return snap, nil
	}

	snap.HasStarted = true
	elapsed := now.Sub(*v.ScheduledAt).Seconds()
	if v.DurationSeconds > 0 && elapsed >= float64(v.DurationSeconds) {
		snap.HasEnded = true
		return snap, nil
	}
	snap.CurrentOffsetSeconds = &elapsed
	return snap, nil
}

func (s *videoServiceImpl) ToggleLike(ctx context.Context, id int64, username string) (*domain.LikeResult, error) {
	res, err := s.repo.ToggleLike(ctx, id, username)
	if err != nil {
		return nil, mapRepoError(err)
	}
	audit.Log(ctx, audit.ActionToggleLike, username, "video like toggled")
	return res, nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrVideoNotFound), errors.Is(err, repository.ErrPartyNotFound):
		return domain.ErrNotFound
	default:
		return err
	}
}
