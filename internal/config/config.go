package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config aggregates runtime configuration for the nowplaying service.
type Config struct {
	Environment    string
	HTTPPort       int
	PublicURL      string
	LogLevel       string
	AllowedOrigins []string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyAPIBaseURL   string

	SessionSecret       string
	DownstreamJWTSecret string

	SessionStore string
	DatabaseURL  string
	RedisURL     string
}

// Load reads configuration from the environment. Missing credentials are fatal:
// the service refuses to start partially configured.
func Load() (Config, error) {
	secrets := map[string]string{
		"SPOTIFY_CLIENT_ID":     "/run/secrets/nowplaying_spotify_client_id",
		"SPOTIFY_CLIENT_SECRET": "/run/secrets/nowplaying_spotify_client_secret",
		"SESSION_SECRET":        "/run/secrets/nowplaying_session_secret",
		"SUPABASE_JWT_SECRET":   "/run/secrets/nowplaying_supabase_jwt_secret",
		"DATABASE_URL":          "/run/secrets/nowplaying_database_url",
		"REDIS_URL":             "/run/secrets/nowplaying_redis_url",
	}
	values := make(map[string]string, len(secrets))
	for key, path := range secrets {
		value, err := getEnvOrFile(key, path)
		if err != nil {
			return Config{}, err
		}
		values[key] = strings.TrimSpace(value)
	}

	cfg := Config{
		Environment:         strings.ToLower(getEnv("APP_ENV", "production")),
		PublicURL:           strings.TrimSuffix(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:      parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080")),
		SpotifyClientID:     values["SPOTIFY_CLIENT_ID"],
		SpotifyClientSecret: values["SPOTIFY_CLIENT_SECRET"],
		SpotifyAPIBaseURL:   strings.TrimSuffix(getEnv("SPOTIFY_API_BASE_URL", "https://api.spotify.com/v1"), "/"),
		SessionSecret:       values["SESSION_SECRET"],
		DownstreamJWTSecret: values["SUPABASE_JWT_SECRET"],
		SessionStore:        strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
		DatabaseURL:         values["DATABASE_URL"],
		RedisURL:            values["REDIS_URL"],
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"SPOTIFY_CLIENT_ID", c.SpotifyClientID},
		{"SPOTIFY_CLIENT_SECRET", c.SpotifyClientSecret},
		{"SUPABASE_JWT_SECRET", c.DownstreamJWTSecret},
		{"SESSION_SECRET", c.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("config: %s is required", r.name)
		}
	}

	switch c.SessionStore {
	case StoreMemory:
		if !c.IsDevelopment() {
			return fmt.Errorf("config: SESSION_STORE=memory is only allowed when APP_ENV=development")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: SESSION_STORE is postgres but DATABASE_URL is not set")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: SESSION_STORE is redis but REDIS_URL is not set")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.SessionStore)
	}

	if !c.IsDevelopment() {
		for _, origin := range c.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("config: ALLOWED_ORIGINS cannot contain wildcard outside development")
			}
		}
	}

	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// RedirectURL is the OAuth callback registered with Spotify.
func (c Config) RedirectURL() string {
	return c.PublicURL + "/api/auth/callback/spotify"
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
