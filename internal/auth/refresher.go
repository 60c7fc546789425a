package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrRefreshFailed  = errors.New("auth: token refresh failed")
	ErrNoRefreshToken = errors.New("auth: no refresh token")
)

// Refresher exchanges a refresh token at the provider's token endpoint.
type Refresher struct {
	config *oauth2.Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefresherClock overrides the time source used for expires_at.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// NewRefresher builds a refresher. config.Endpoint must use
// oauth2.AuthStyleInHeader so the client credentials travel as HTTP Basic.
func NewRefresher(config *oauth2.Config, client *http.Client, logger *slog.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{config: config, client: client, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh returns a new token set. It never panics or retries: on failure the
// original set comes back tagged with RefreshErrorTag alongside an error
// wrapping ErrRefreshFailed, and the caller decides what to do next.
func (r *Refresher) Refresh(ctx context.Context, tokens TokenSet) (TokenSet, error) {
	if tokens.RefreshToken == "" {
		r.logger.Warn("token refresh skipped", "error", ErrNoRefreshToken)
		return tokens.tagged(), fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNoRefreshToken)
	}

	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}

	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: tokens.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		r.logger.Warn("token refresh failed", "error", err)
		return tokens.tagged(), fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	now := r.now()
	expiresIn := grantExpiresIn(tok)

	next := tokens
	next.AccessToken = tok.AccessToken
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	next.ExpiresIn = expiresIn
	next.ExpiresAt = now.Unix() + expiresIn
	// Spotify does not always rotate refresh tokens.
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if scope := grantScope(tok); scope != "" {
		next.Scope = scope
	}
	next.Error = ""

	return next, nil
}
