package http

import (
	"context"

	"github.com/google/uuid"

	"nowplaying/internal/auth"
	"nowplaying/internal/playback"
)

// SessionReader resolves a session by id, refreshing its tokens if needed.
type SessionReader interface {
	ReadByID(ctx context.Context, id uuid.UUID) (auth.Session, error)
}

// NewPlayerSources binds background players to their session. Every call
// re-reads the session so players pick up refreshed access tokens.
func NewPlayerSources(sessions SessionReader, clients SpotifyClientFactory) playback.SourceFactory {
	return func(id uuid.UUID) playback.Source {
		return func(ctx context.Context) (playback.Facade, error) {
			session, err := sessions.ReadByID(ctx, id)
			if err != nil {
				return nil, err
			}
			valid, ok := session.(auth.ValidSession)
			if !ok {
				return nil, playback.ErrSessionInvalid
			}
			return clients(valid.Tokens), nil
		}
	}
}
