package http

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nowplaying/internal/auth"
)

// oauthStatePayload holds the CSRF state and optional redirect path.
type oauthStatePayload struct {
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	// Decode to catch encoded bypass attempts like /%2f%2f
	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") || strings.HasPrefix(decoded, "/\\") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}

	return parsed.Scheme == "" && parsed.Host == ""
}

const (
	oauthStateCookieName = "nowplaying_oauth_state"
	oauthStateCookieTTL  = 10 * time.Minute
)

// OAuthHandler handles the Spotify sign-in endpoints.
type OAuthHandler struct {
	spotify      Authenticator
	sessions     SessionManager
	logger       *slog.Logger
	secureCookie bool
	publicURL    string
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(spotify Authenticator, sessions SessionManager, publicURL, env string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		spotify:      spotify,
		sessions:     sessions,
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
		publicURL:    strings.TrimSuffix(publicURL, "/"),
	}
}

// InitiateSpotify handles GET /api/auth/signin/spotify
// Redirects the user to Spotify's consent screen.
func (h *OAuthHandler) InitiateSpotify(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	})

	redirectTo := r.URL.Query().Get("redirectTo")
	payload := oauthStatePayload{State: state}
	if redirectTo != "" && isValidRedirectPath(redirectTo) {
		payload.RedirectTo = redirectTo
	}

	// Encode state as base64 JSON to avoid delimiter issues
	stateJSON, _ := json.Marshal(payload)
	fullState := base64.RawURLEncoding.EncodeToString(stateJSON)

	http.Redirect(w, r, h.spotify.AuthURL(fullState), http.StatusTemporaryRedirect)
}

// CallbackSpotify handles GET /api/auth/callback/spotify
// Exchanges the authorization code, opens a session and sets its cookie.
func (h *OAuthHandler) CallbackSpotify(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil {
		h.logger.Warn("oauth callback: missing state cookie")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	query := r.URL.Query()
	redirectTo := "/"

	stateBytes, err := base64.RawURLEncoding.DecodeString(query.Get("state"))
	if err != nil {
		h.logger.Warn("oauth callback: invalid state encoding")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	var statePayload oauthStatePayload
	if err := json.Unmarshal(stateBytes, &statePayload); err != nil {
		h.logger.Warn("oauth callback: invalid state JSON")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	if statePayload.RedirectTo != "" && isValidRedirectPath(statePayload.RedirectTo) {
		redirectTo = statePayload.RedirectTo
	}

	if subtle.ConstantTimeCompare([]byte(statePayload.State), []byte(stateCookie.Value)) != 1 {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
	})

	// Spotify reports a denied consent as ?error=access_denied
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("oauth callback: provider error", "error", errParam)
		h.redirectWithError(w, r, errParam)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectWithError(w, r, "invalid_request")
		return
	}

	grant, err := h.spotify.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", "error", err)
		h.redirectWithError(w, r, "exchange_error")
		return
	}

	cookie, session, err := h.sessions.SignIn(r.Context(), grant, auth.SessionMeta{
		UserAgent: r.UserAgent(),
		IPAddress: clientIPFromRequest(r),
	})
	if err != nil {
		h.logger.Error("oauth callback: session creation failed", "error", err)
		h.redirectWithError(w, r, "internal_error")
		return
	}

	setSessionCookie(w, cookie, h.sessions.MaxAge(), h.secureCookie)

	h.logger.Info("oauth login successful", "user_id", session.User.ID, "spotify_id", session.User.SpotifyID)

	http.Redirect(w, r, h.publicURL+redirectTo, http.StatusTemporaryRedirect)
}

// redirectWithError redirects to the login page with an error code.
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	target := h.publicURL + "/login?error=" + url.QueryEscape(code)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
