package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify account that has signed in at least once.
type User struct {
	ID          uuid.UUID `json:"id"`
	SpotifyID   string    `json:"spotify_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Country     string    `json:"country"`
	Product     string    `json:"product"`
	Followers   int       `json:"followers"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// SessionRecord is what the persistence adapter stores for one browser session.
type SessionRecord struct {
	ID        uuid.UUID `json:"id"`
	User      User      `json:"user"`
	Tokens    TokenSet  `json:"tokens"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
}

// SessionMeta describes the client that is signing in.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}
