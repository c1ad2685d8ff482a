package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

// PartyClient talks to the watch-party REST service.
type PartyClient struct {
	c *Client
}

// NewPartyClient creates a watch-party client.
func NewPartyClient(c *Client) *PartyClient {
	return &PartyClient{c: c}
}

func partyPath(roomCode, action string) string {
	p := "/api/watch-party/" + url.PathEscape(roomCode)
	if action != "" {
		p += "/" + action
	}
	return p
}

// Create opens a new watch party owned by the current user.
func (p *PartyClient) Create(ctx context.Context, name string) (*domain.WatchParty, error) {
	var party domain.WatchParty
	req := domain.CreateWatchPartyRequest{Name: name}
	if err := p.c.post(ctx, "/api/watch-party", req, &party); err != nil {
		return nil, err
	}
	return &party, nil
}

// Join adds the current user to the party.
func (p *PartyClient) Join(ctx context.Context, roomCode string) (*domain.WatchParty, error) {
	var party domain.WatchParty
	if err := p.c.post(ctx, partyPath(roomCode, "join"), nil, &party); err != nil {
		return nil, err
	}
	return &party, nil
}

// Leave removes the current user from the party.
func (p *PartyClient) Leave(ctx context.Context, roomCode string) error {
	return p.c.post(ctx, partyPath(roomCode, "leave"), nil, nil)
}

// Close ends the party. Only the owner may do this.
func (p *PartyClient) Close(ctx context.Context, roomCode string) error {
	return p.c.post(ctx, partyPath(roomCode, "close"), nil, nil)
}

// StartVideo switches the party to a video. Only the owner may do this.
func (p *PartyClient) StartVideo(ctx context.Context, roomCode string, videoID int64) error {
	return p.c.post(ctx, partyPath(roomCode, fmt.Sprintf("start-video/%d", videoID)), nil, nil)
}

// Get fetches the current party snapshot.
func (p *PartyClient) Get(ctx context.Context, roomCode string) (*domain.WatchParty, error) {
	var party domain.WatchParty
	if err := p.c.get(ctx, partyPath(roomCode, ""), &party); err != nil {
		return nil, err
	}
	return &party, nil
}

// ListActive returns the parties that are still open.
func (p *PartyClient) ListActive(ctx context.Context) ([]domain.WatchParty, error) {
	var parties []domain.WatchParty
	if err := p.c.get(ctx, "/api/watch-party", &parties); err != nil {
		return nil, err
	}
	return parties, nil
}
