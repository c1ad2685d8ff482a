package client

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

// VideoClient talks to the video metadata service.
type VideoClient struct {
	c *Client
}

// NewVideoClient creates a video metadata client.
func NewVideoClient(c *Client) *VideoClient {
	return &VideoClient{c: c}
}

// StreamInfo fetches the authoritative release state of a video.
func (v *VideoClient) StreamInfo(ctx context.Context, videoID int64) (*domain.StreamSnapshot, error) {
	var snap domain.StreamSnapshot
	if err := v.c.get(ctx, fmt.Sprintf("/api/videos/%d/stream-info", videoID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Video fetches full metadata. The server counts every call as a view.
func (v *VideoClient) Video(ctx context.Context, videoID int64) (*domain.Video, error) {
	var video domain.Video
	if err := v.c.get(ctx, fmt.Sprintf("/api/videos/%d", videoID), &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// ToggleLike likes or unlikes a video for the current user.
func (v *VideoClient) ToggleLike(ctx context.Context, videoID int64) (*domain.LikeResult, error) {
	var res domain.LikeResult
	if err := v.c.post(ctx, fmt.Sprintf("/api/videos/%d/like", videoID), struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListVideos returns the catalog.
func (v *VideoClient) ListVideos(ctx context.Context) ([]domain.Video, error) {
	var videos []domain.Video
	if err := v.c.get(ctx, "/api/videos", &videos); err != nil {
		return nil, err
	}
	return videos, nil
}
