package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

type MemoryPartyRepository struct {
	mu      sync.RWMutex
	parties map[string]*domain.WatchParty
	nextID  int64
}

func NewMemoryPartyRepository() *MemoryPartyRepository {
	return &MemoryPartyRepository{parties: make(map[string]*domain.WatchParty)}
}

// Create stores party and assigns its ID.
func (r *MemoryPartyRepository) Create(ctx context.Context, party *domain.WatchParty) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parties[party.RoomCode]; exists {
		return ErrRoomCodeTaken
	}
	r.nextID++
	party.ID = r.nextID
	r.parties[party.RoomCode] = party.Clone()
	return nil
}

func (r *MemoryPartyRepository) GetByCode(ctx context.Context, roomCode string) (*domain.WatchParty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parties[roomCode]
	if !ok {
		return nil, ErrPartyNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryPartyRepository) ListActive(ctx context.Context) ([]domain.WatchParty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WatchParty, 0, len(r.parties))
	for _, p := range r.parties {
		if p.Active {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryPartyRepository) Update(ctx context.Context, roomCode string, fn func(*domain.WatchParty) error) (*domain.WatchParty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[roomCode]
	if !ok {
		return nil, ErrPartyNotFound
	}

	draft := p.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	r.parties[roomCode] = draft
	return draft.Clone(), nil
}
