package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nowplaying/internal/downstream"
)

// SessionMaxAge bounds every browser session regardless of token refreshes.
const SessionMaxAge = 7 * 24 * time.Hour

type tokenRefresher interface {
	Refresh(ctx context.Context, tokens TokenSet) (TokenSet, error)
}

// Manager issues sessions and decides on every read whether the token set
// needs a refresh. Persistence is delegated to the Repository.
type Manager struct {
	repo      Repository
	refresher tokenRefresher
	minter    *downstream.Minter
	cookies   cookieCodec
	maxAge    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
		m.cookies.now = now
	}
}

// WithMaxAge overrides SessionMaxAge.
func WithMaxAge(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// NewManager creates a Manager. A nil minter disables downstream tokens.
func NewManager(repo Repository, refresher tokenRefresher, minter *downstream.Minter, sessionSecret string, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:      repo,
		refresher: refresher,
		minter:    minter,
		cookies:   cookieCodec{secret: []byte(sessionSecret), now: time.Now},
		maxAge:    SessionMaxAge,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxAge is the lifetime of a session cookie.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// SignIn completes the initial sign-in: the token set comes straight from the
// provider grant and any previous error tag is dropped. It returns the signed
// cookie value and the resulting session.
func (m *Manager) SignIn(ctx context.Context, grant *Grant, meta SessionMeta) (string, ValidSession, error) {
	if grant == nil || grant.Token == nil {
		return "", ValidSession{}, errors.New("auth: sign-in requires a grant")
	}
	if grant.Profile.ID == "" {
		return "", ValidSession{}, errors.New("auth: profile has no id")
	}

	now := m.now()
	user, err := m.repo.UpsertUser(ctx, User{
		ID:          uuid.New(),
		SpotifyID:   grant.Profile.ID,
		Email:       grant.Profile.Email,
		DisplayName: grant.Profile.DisplayName,
		AvatarURL:   grant.Profile.AvatarURL(),
		Country:     grant.Profile.Country,
		Product:     grant.Profile.Product,
		Followers:   grant.Profile.Followers.Total,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	})
	if err != nil {
		return "", ValidSession{}, fmt.Errorf("upsert user: %w", err)
	}

	record := SessionRecord{
		ID:        uuid.New(),
		User:      user,
		Tokens:    tokenSetFromGrant(grant.Token, now),
		ExpiresAt: now.Add(m.maxAge),
		CreatedAt: now,
		UserAgent: truncateString(meta.UserAgent, 512),
		IPAddress: truncateString(meta.IPAddress, 45),
	}

	if err := m.repo.SaveSession(ctx, record); err != nil {
		return "", ValidSession{}, fmt.Errorf("save session: %w", err)
	}

	cookie, err := m.cookies.encode(record)
	if err != nil {
		return "", ValidSession{}, err
	}

	return cookie, m.valid(record, record.Tokens), nil
}

// Read resolves the browser cookie into a Session. An unreadable cookie is an
// InvalidSession, not an error; errors are reserved for the repository.
func (m *Manager) Read(ctx context.Context, cookie string) (Session, error) {
	id, err := m.cookies.decode(cookie)
	if err != nil {
		return InvalidSession{Reason: ReasonNoSession}, nil
	}
	return m.ReadByID(ctx, id)
}

// ReadByID loads a session and refreshes its token set once if expires_at has
// passed. The downstream token is minted on every valid read.
func (m *Manager) ReadByID(ctx context.Context, id uuid.UUID) (Session, error) {
	record, err := m.repo.FindSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if record == nil {
		return InvalidSession{Reason: ReasonNoSession}, nil
	}

	now := m.now()
	if !now.Before(record.ExpiresAt) {
		if err := m.repo.DeleteSession(ctx, record.ID); err != nil {
			m.logger.Warn("delete expired session", "session_id", record.ID, "error", err)
		}
		return InvalidSession{Reason: ReasonExpired}, nil
	}

	tokens := record.Tokens
	if tokens.Expired(now) {
		refreshed, err := m.refresher.Refresh(ctx, tokens)
		if err != nil {
			m.logger.Info("session token refresh failed", "session_id", record.ID, "error", err)
		}

		// Concurrent reads of the same session may both refresh; the last
		// successful write wins.
		record.Tokens = refreshed
		if err := m.repo.SaveSession(ctx, *record); err != nil {
			return nil, fmt.Errorf("save refreshed session: %w", err)
		}
		tokens = refreshed
	} else {
		tokens.ExpiresIn = tokens.ExpiresAt - now.Unix()
	}

	if tokens.Error != "" {
		return InvalidSession{Reason: ReasonRefreshFailed}, nil
	}

	return m.valid(*record, tokens), nil
}

// SignOut deletes the record behind cookie and returns its id. Unknown or
// malformed cookies are ignored.
func (m *Manager) SignOut(ctx context.Context, cookie string) (uuid.UUID, error) {
	id, err := m.cookies.decode(cookie)
	if err != nil {
		return uuid.Nil, nil
	}
	if err := m.repo.DeleteSession(ctx, id); err != nil {
		return id, fmt.Errorf("delete session: %w", err)
	}
	return id, nil
}

// CleanupExpired removes sessions past their max age.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpiredSessions(ctx, m.now())
}

func (m *Manager) valid(record SessionRecord, tokens TokenSet) ValidSession {
	return ValidSession{
		ID:              record.ID,
		User:            record.User,
		Tokens:          tokens,
		DownstreamToken: m.mintDownstream(record.User),
	}
}

func (m *Manager) mintDownstream(user User) string {
	if m.minter == nil {
		return ""
	}
	token, err := m.minter.Mint(user.ID.String(), user.Email)
	if err != nil {
		m.logger.Warn("mint downstream token", "user_id", user.ID, "error", err)
		return ""
	}
	return token
}

// truncateString truncates a string to the given max length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
