package domain

import (
	"slices"
	"time"
)

// WatchParty is the server-owned room aggregate.
type WatchParty struct {
	ID                   int64     `json:"id"`
	RoomCode             string    `json:"roomCode"`
	Name                 string    `json:"name"`
	OwnerUsername        string    `json:"ownerUsername"`
	ParticipantUsernames []string  `json:"participantUsernames"`
	CurrentVideoID       *int64    `json:"currentVideoId,omitempty"`
	CurrentVideoTitle    string    `json:"currentVideoTitle,omitempty"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"createdAt"`
}

// IsOwner reports whether username owns the party. The comparison is exact.
func (p *WatchParty) IsOwner(username string) bool {
	return p != nil && username != "" && p.OwnerUsername == username
}

// HasParticipant reports whether username is a member.
func (p *WatchParty) HasParticipant(username string) bool {
	return p != nil && slices.Contains(p.ParticipantUsernames, username)
}

// Clone returns a deep copy.
func (p *WatchParty) Clone() *WatchParty {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ParticipantUsernames = slices.Clone(p.ParticipantUsernames)
	if p.CurrentVideoID != nil {
		id := *p.CurrentVideoID
		cp.CurrentVideoID = &id
	}
	return &cp
}

// CreateWatchPartyRequest is the body of a create command.
type CreateWatchPartyRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}
