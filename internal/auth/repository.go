package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for user and session persistence.
type Repository interface {
	// UpsertUser creates or refreshes a user keyed by SpotifyID and returns the
	// stored copy, including its stable ID.
	UpsertUser(ctx context.Context, user User) (User, error)

	// Session operations. FindSession returns nil, nil when no record exists.
	SaveSession(ctx context.Context, record SessionRecord) error
	FindSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
