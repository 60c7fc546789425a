package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps users and sessions in process memory. It is meant
// for development; everything is lost on restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[string]User
	sessions map[uuid.UUID]SessionRecord
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]User),
		sessions: make(map[uuid.UUID]SessionRecord),
	}
}

func (r *MemoryRepository) UpsertUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.SpotifyID]; ok {
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	}
	r.users[user.SpotifyID] = user
	return user, nil
}

func (r *MemoryRepository) SaveSession(_ context.Context, record SessionRecord) error {
	r.mu.Lock()
	r.sessions[record.ID] = record
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) FindSession(_ context.Context, id uuid.UUID) (*SessionRecord, error) {
	r.mu.RLock()
	record, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *MemoryRepository) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, record := range r.sessions {
		if !now.Before(record.ExpiresAt) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}
