package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"nowplaying/internal/auth"
)

const sessionCookieName = "nowplaying_session"

// SessionHandler exposes the current session and signs it out.
type SessionHandler struct {
	sessions     SessionManager
	players      PlayerRegistry
	logger       *slog.Logger
	secureCookie bool
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionManager, players PlayerRegistry, env string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		players:      players,
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
	}
}

type sessionUserResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Image           string `json:"image,omitempty"`
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresAt       int64  `json:"expires_at"`
	ExpiresIn       int64  `json:"expires_in"`
	Scope           string `json:"scope"`
	DownstreamToken string `json:"downstream_token,omitempty"`
}

type sessionResponse struct {
	User sessionUserResponse `json:"user"`
}

// Session handles GET /api/auth/session. The refresh token never leaves the
// server.
func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	var raw string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		raw = cookie.Value
	}

	session, err := h.sessions.Read(r.Context(), raw)
	if err != nil {
		h.logger.Error("session read error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	switch s := session.(type) {
	case auth.ValidSession:
		writeJSON(w, http.StatusOK, sessionResponse{User: sessionUserResponse{
			ID:              s.User.SpotifyID,
			UserID:          s.User.ID.String(),
			Name:            s.User.DisplayName,
			Email:           s.User.Email,
			Image:           s.User.AvatarURL,
			AccessToken:     s.Tokens.AccessToken,
			TokenType:       s.Tokens.TokenType,
			ExpiresAt:       s.Tokens.ExpiresAt,
			ExpiresIn:       s.Tokens.ExpiresIn,
			Scope:           s.Tokens.Scope,
			DownstreamToken: s.DownstreamToken,
		}})
	case auth.InvalidSession:
		unauthorized(w, r, s.Reason)
	default:
		unauthorized(w, r, auth.ReasonNoSession)
	}
}

// SignOut handles POST /api/auth/signout.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		id, err := h.sessions.SignOut(r.Context(), cookie.Value)
		if err != nil {
			h.logger.Error("sign out failed", "error", err)
		}
		if h.players != nil && id != uuid.Nil {
			h.players.Stop(id)
		}
	}

	clearSessionCookie(w, h.secureCookie)
	w.WriteHeader(http.StatusNoContent)
}

func setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
