package domain

import "time"

// Video is the full metadata of a video post.
type Video struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	VideoURL        string     `json:"videoUrl"`
	ThumbnailPath   string     `json:"thumbnailPath"`
	CreatedAt       time.Time  `json:"createdAt"`
	Views           int64      `json:"views"`
	Location        string     `json:"location,omitempty"`
	Username        string     `json:"username,omitempty"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	DurationSeconds int        `json:"durationSeconds,omitempty"`
	LikesCount      int64      `json:"likesCount"`
}

// LikeResult is returned by a like toggle.
type LikeResult struct {
	LikesCount         int64 `json:"likesCount"`
	LikedByCurrentUser bool  `json:"likedByCurrentUser"`
}
