package http

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"nowplaying/internal/auth"
	"nowplaying/internal/playback"
	"nowplaying/internal/spotify"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"artists": joinArtists,
	"cover":   albumCover,
}).ParseFS(templateFiles, "templates/*.html"))

var loginErrorMessages = map[string]string{
	string(auth.ReasonRefreshFailed): "Your Spotify session expired. Please sign in again.",
	string(auth.ReasonExpired):       "Your session has ended. Please sign in again.",
	"access_denied":                  "Spotify sign-in was cancelled.",
}

// PageHandler renders the login screen and the dashboard.
type PageHandler struct {
	clients SpotifyClientFactory
	players PlayerRegistry
	debug   bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewPageHandler creates a new PageHandler. debug adds a state dump to the
// dashboard.
func NewPageHandler(clients SpotifyClientFactory, players PlayerRegistry, debug bool, logger *slog.Logger) *PageHandler {
	return &PageHandler{clients: clients, players: players, debug: debug, logger: logger, now: time.Now}
}

type loginPage struct {
	Error     string
	SignInURL string
}

// Login handles GET /login.
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	signIn := "/api/auth/signin/spotify"
	if redirectTo := query.Get("redirectTo"); isValidRedirectPath(redirectTo) {
		signIn += "?redirectTo=" + url.QueryEscape(redirectTo)
	}

	page := loginPage{SignInURL: signIn}
	if code := query.Get("error"); code != "" {
		page.Error = loginErrorMessages[code]
		if page.Error == "" {
			page.Error = "Sign-in failed. Please try again."
		}
	}

	h.render(w, "login.html", page)
}

type homePage struct {
	Profile         *spotify.User
	Track           *spotify.Track
	IsPlaying       bool
	ProgressPercent int
	Debug           bool
	DebugJSON       string
}

// Home handles GET /. It seeds the session's player from the currently
// playing item, or from the last played track when nothing is playing.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		redirectToLogin(w, r, auth.ReasonNoSession)
		return
	}

	client := h.clients(session.Tokens)

	var (
		current *spotify.PlaybackState
		profile *spotify.User
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		state, err := client.CurrentlyPlaying(ctx)
		if err != nil {
			h.logger.Warn("currently playing fetch failed", "session_id", session.ID, "error", err)
			return nil
		}
		current = state
		return nil
	})
	g.Go(func() error {
		user, err := client.Profile(ctx)
		if err != nil {
			h.logger.Warn("profile fetch failed", "session_id", session.ID, "error", err)
			return nil
		}
		profile = user
		return nil
	})
	_ = g.Wait()

	if current == nil {
		current = h.lastPlayed(r.Context(), client)
	}

	state := h.players.Ensure(session.ID, current).State()

	page := homePage{
		Profile:   profile,
		IsPlaying: state.IsPlaying,
		Debug:     h.debug,
	}
	if state.Track != nil {
		page.Track = state.Track.Item
	}
	if state.DurationMs > 0 {
		page.ProgressPercent = min(state.ProgressMs*100/state.DurationMs, 100)
	}
	if h.debug {
		page.DebugJSON = debugDump(session, state)
	}

	h.render(w, "home.html", page)
}

func (h *PageHandler) lastPlayed(ctx context.Context, client SpotifyAPI) *spotify.PlaybackState {
	items, err := client.RecentlyPlayed(ctx, 1)
	if err != nil {
		h.logger.Warn("recently played fetch failed", "error", err)
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	return playback.FromRecentlyPlayed(items[0], h.now())
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func debugDump(session auth.ValidSession, state playback.State) string {
	dump := map[string]any{
		"user":     session.User,
		"expires":  session.Tokens.ExpiresAt,
		"scope":    session.Tokens.Scope,
		"playback": state,
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func joinArtists(artists []spotify.Artist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func albumCover(album *spotify.Album) string {
	if album == nil || len(album.Images) == 0 {
		return ""
	}
	return album.Images[0].URL
}
