package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"nowplaying/internal/auth"
	"nowplaying/internal/config"
	"nowplaying/internal/playback"
	"nowplaying/internal/spotify"
)

// Authenticator drives the provider's authorization-code flow.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Grant, error)
}

// SessionManager issues and resolves browser sessions.
type SessionManager interface {
	SignIn(ctx context.Context, grant *auth.Grant, meta auth.SessionMeta) (string, auth.ValidSession, error)
	Read(ctx context.Context, cookie string) (auth.Session, error)
	SignOut(ctx context.Context, cookie string) (uuid.UUID, error)
	MaxAge() time.Duration
}

// PlayerRegistry owns the per-session playback players.
type PlayerRegistry interface {
	Ensure(sessionID uuid.UUID, snapshot *spotify.PlaybackState) *playback.Player
	Get(sessionID uuid.UUID) (*playback.Player, bool)
	Stop(sessionID uuid.UUID)
}

// SpotifyAPI is the Web API surface the handlers use directly.
type SpotifyAPI interface {
	playback.Facade
	RecentlyPlayed(ctx context.Context, limit int) ([]spotify.PlayHistory, error)
	Profile(ctx context.Context) (*spotify.User, error)
}

// SpotifyClientFactory builds a client bound to one session's token set.
type SpotifyClientFactory func(tokens auth.TokenSet) SpotifyAPI

// Dependencies groups the collaborators the router wires into handlers.
type Dependencies struct {
	Authenticator Authenticator
	Sessions      SessionManager
	Players       PlayerRegistry
	Clients       SpotifyClientFactory
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, deps Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	pages := NewPageHandler(deps.Clients, deps.Players, cfg.IsDevelopment(), logger)
	oauthHandler := NewOAuthHandler(deps.Authenticator, deps.Sessions, cfg.PublicURL, cfg.Environment, logger)
	sessionHandler := NewSessionHandler(deps.Sessions, deps.Players, cfg.Environment, logger)
	playerHandler := NewPlayerHandler(deps.Players, logger)

	r.Get("/login", pages.Login)

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/signin/spotify", oauthHandler.InitiateSpotify)
		r.Get("/callback/spotify", oauthHandler.CallbackSpotify)
		r.Post("/signout", sessionHandler.SignOut)
		r.Get("/session", sessionHandler.Session)
	})

	r.Group(func(r chi.Router) {
		r.Use(newSessionMiddleware(deps.Sessions, logger, redirectToLogin))
		r.Get("/", pages.Home)
	})

	limiter := newSessionRateLimiter(playerRequestsPerMinute, time.Minute, playerBurst, 10*time.Minute)
	r.Route("/api/player", func(r chi.Router) {
		r.Use(newSessionMiddleware(deps.Sessions, logger, unauthorized))
		r.Use(newRateLimitMiddleware(limiter, logger))
		r.Get("/", playerHandler.State)
		r.Post("/play", playerHandler.Play)
		r.Post("/pause", playerHandler.Pause)
		r.Get("/devices", playerHandler.Devices)
		r.Put("/device", playerHandler.Transfer)
		r.Get("/volume", playerHandler.Volume)
		r.Put("/volume", playerHandler.SetVolume)
		r.Post("/mute", playerHandler.ToggleMute)
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
