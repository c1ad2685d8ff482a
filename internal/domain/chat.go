package domain

import "time"

// ChatMessage is a stream-scoped chat line. ID and SentAt are assigned by
// the server.
type ChatMessage struct {
	ID       string    `json:"id,omitempty"`
	Sender   string    `json:"sender"`
	Content  string    `json:"content"`
	StreamID string    `json:"streamId"`
	SentAt   time.Time `json:"sentAt,omitempty"`
}
