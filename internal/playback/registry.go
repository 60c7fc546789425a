package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nowplaying/internal/spotify"
)

// SourceFactory binds a Source to a session id.
type SourceFactory func(sessionID uuid.UUID) Source

// Registry owns one Player per browser session. Players run under the
// registry's base context and outlive the request that created them.
type Registry struct {
	base    context.Context
	factory SourceFactory
	logger  *slog.Logger
	opts    []PlayerOption
	now     func() time.Time

	mu      sync.Mutex
	players map[uuid.UUID]*Player
}

// NewRegistry creates an empty registry. opts apply to every player.
func NewRegistry(base context.Context, factory SourceFactory, logger *slog.Logger, opts ...PlayerOption) *Registry {
	return &Registry{
		base:    base,
		factory: factory,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		players: make(map[uuid.UUID]*Player),
	}
}

// Ensure seeds the session's player with snapshot and starts it, creating
// the player on first use. A player halted by an invalid session is replaced.
func (r *Registry) Ensure(sessionID uuid.UUID, snapshot *spotify.PlaybackState) *Player {
	r.mu.Lock()
	player, ok := r.players[sessionID]
	var stale *Player
	if ok && player.Halted() {
		stale, ok = player, false
	}
	if !ok {
		logger := r.logger.With("session_id", sessionID)
		player = NewPlayer(r.factory(sessionID), logger, r.opts...)
		r.players[sessionID] = player
	}
	// Start under the lock so a concurrent Stop cannot remove the player
	// before it runs and leave it polling outside the map.
	player.Seed(snapshot)
	player.Start(r.base)
	r.mu.Unlock()

	if stale != nil {
		stale.Stop()
	}
	if !ok {
		r.logger.Debug("player started", "session_id", sessionID)
	}
	return player
}

// Get returns the session's player if one is running.
func (r *Registry) Get(sessionID uuid.UUID) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[sessionID]
	return player, ok
}

// Stop tears down the session's player, if any.
func (r *Registry) Stop(sessionID uuid.UUID) {
	r.mu.Lock()
	player, ok := r.players[sessionID]
	delete(r.players, sessionID)
	r.mu.Unlock()

	if ok {
		player.Stop()
		r.logger.Debug("player stopped", "session_id", sessionID)
	}
}

// StopAll tears down every player.
func (r *Registry) StopAll() {
	r.mu.Lock()
	players := r.players
	r.players = make(map[uuid.UUID]*Player)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, player := range players {
		wg.Add(1)
		go func(p *Player) {
			defer wg.Done()
			p.Stop()
		}(player)
	}
	wg.Wait()
}

// ReapIdle stops players nobody has used within idleTTL, and players halted
// by an invalid session, and returns how many were stopped.
func (r *Registry) ReapIdle(idleTTL time.Duration) int {
	cutoff := r.now().Add(-idleTTL)

	r.mu.Lock()
	var idle []*Player
	for id, player := range r.players {
		if player.Halted() || player.LastUsed().Before(cutoff) {
			idle = append(idle, player)
			delete(r.players, id)
		}
	}
	r.mu.Unlock()

	for _, player := range idle {
		player.Stop()
	}
	return len(idle)
}

// Len reports the number of live players.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}
