package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"nowplaying/internal/auth"
	"nowplaying/internal/config"
	"nowplaying/internal/downstream"
	transporthttp "nowplaying/internal/http"
	"nowplaying/internal/platform/cache"
	"nowplaying/internal/platform/database"
	"nowplaying/internal/platform/logging"
	"nowplaying/internal/platform/migrate"
	"nowplaying/internal/playback"
	"nowplaying/internal/spotify"
)

const (
	janitorInterval = 15 * time.Minute
	playerIdleTTL   = 30 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	repo, cleanup, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	apiClient := &http.Client{Timeout: 10 * time.Second}
	oauthConfig := auth.NewOAuthConfig(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.RedirectURL())

	refresher := auth.NewRefresher(oauthConfig, apiClient, logger)
	sessions := auth.NewManager(repo, refresher, downstream.NewMinter(cfg.DownstreamJWTSecret), cfg.SessionSecret, logger)
	authenticator := auth.NewSpotifyAuthenticator(oauthConfig, apiClient, cfg.SpotifyAPIBaseURL)

	clients := func(tokens auth.TokenSet) transporthttp.SpotifyAPI {
		return spotify.New(apiClient, cfg.SpotifyAPIBaseURL, tokens.TokenType, tokens.AccessToken)
	}
	players := playback.NewRegistry(ctx, transporthttp.NewPlayerSources(sessions, clients), logger)

	router := transporthttp.NewRouter(cfg, transporthttp.Dependencies{
		Authenticator: authenticator,
		Sessions:      sessions,
		Players:       players,
		Clients:       clients,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go runJanitor(ctx, sessions, players, logger)

	go func() {
		logger.Info("nowplaying listening", "addr", srv.Addr, "store", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	players.StopAll()
}

func buildRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.Repository, func(), error) {
	switch cfg.SessionStore {
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}

		cleanup := func() {
			_ = db.Close()
		}

		if err := migrate.Apply(ctx, db, logger); err != nil {
			cleanup()
			return nil, nil, err
		}

		logger.Info("connected to postgres")
		return auth.NewPostgresRepository(db), cleanup, nil

	case config.StoreRedis:
		client, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}

		logger.Info("connected to redis")
		return auth.NewRedisRepository(client, "nowplaying"), func() { _ = client.Close() }, nil

	default:
		logger.Info("using in-memory session store")
		return auth.NewMemoryRepository(), nil, nil
	}
}

// runJanitor drops sessions past their max age and players nobody has
// looked at for a while.
func runJanitor(ctx context.Context, sessions *auth.Manager, players *playback.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("session cleanup failed", "error", err)
			}
			reaped := players.ReapIdle(playerIdleTTL)
			if removed > 0 || reaped > 0 {
				logger.Info("janitor pass", "sessions_removed", removed, "players_reaped", reaped)
			}
		}
	}
}
