package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

type videoRecord struct {
	video domain.Video
	likes map[string]struct{}
}

type MemoryVideoRepository struct {
	mu     sync.RWMutex
	videos map[int64]*videoRecord
}

func NewMemoryVideoRepository() *MemoryVideoRepository {
	return &MemoryVideoRepository{videos: make(map[int64]*videoRecord)}
}

// Seed loads catalog entries. Scheduled entries are placed relative to now.
func (r *MemoryVideoRepository) Seed(seeds []config.VideoSeed, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range seeds {
		v := domain.Video{
			ID:              s.ID,
			Title:           s.Title,
			Description:     s.Description,
			Tags:            slices.Clone(s.Tags),
			VideoURL:        s.VideoURL,
			ThumbnailPath:   s.ThumbnailPath,
			CreatedAt:       now,
			Location:        s.Location,
			Username:        s.Username,
			DurationSeconds: s.DurationSeconds,
		}
		if s.StartsIn != 0 {
			at := now.Add(s.StartsIn)
			v.ScheduledAt = &at
		}
		r.videos[s.ID] = &videoRecord{video: v, likes: make(map[string]struct{})}
	}
}

func (r *MemoryVideoRepository) List(ctx context.Context) ([]domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Video, 0, len(r.videos))
	for _, rec := range r.videos {
		out = append(out, rec.video)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryVideoRepository) GetByID(ctx context.Context, id int64) (*domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	v := rec.video
	return &v, nil
}

func (r *MemoryVideoRepository) IncrementViews(ctx context.Context, id int64) (*domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	rec.video.Views++
	v := rec.video
	return &v, nil
}

func (r *MemoryVideoRepository) ToggleLike(ctx context.Context, id int64, username string) (*domain.LikeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}

	_, liked := rec.likes[username]
	if liked {
		delete(rec.likes, username)
	} else {
		rec.likes[username] = struct{}{}
	}
	rec.video.LikesCount = int64(len(rec.likes))

	return &domain.LikeResult{
		LikesCount:         rec.video.LikesCount,
		LikedByCurrentUser: !liked,
	}, nil
}
