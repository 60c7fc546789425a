package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"nowplaying/internal/auth"
	"nowplaying/internal/playback"
	"nowplaying/internal/spotify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type refresherStub struct {
	refresh func(ctx context.Context, tokens auth.TokenSet) (auth.TokenSet, error)
}

func (r *refresherStub) Refresh(ctx context.Context, tokens auth.TokenSet) (auth.TokenSet, error) {
	if r.refresh != nil {
		return r.refresh(ctx, tokens)
	}
	return tokens, nil
}

func newTestManager(refresher *refresherStub, now func() time.Time) (*auth.Manager, *auth.MemoryRepository) {
	repo := auth.NewMemoryRepository()
	if refresher == nil {
		refresher = &refresherStub{}
	}
	if now == nil {
		now = time.Now
	}
	return auth.NewManager(repo, refresher, nil, "test-session-secret", discardLogger(), auth.WithClock(now)), repo
}

func testGrant() *auth.Grant {
	token := (&oauth2.Token{AccessToken: "A", TokenType: "Bearer", RefreshToken: "R"}).
		WithExtra(map[string]interface{}{"expires_in": float64(3600), "scope": "user-read-email"})
	return &auth.Grant{
		Token: token,
		Profile: spotify.User{
			ID:          "spotify-user",
			DisplayName: "Listener",
			Email:       "listener@example.com",
			Country:     "NZ",
			Followers:   spotify.Followers{Total: 7},
		},
	}
}

func signIn(t *testing.T, manager *auth.Manager) (*http.Cookie, auth.ValidSession) {
	t.Helper()
	raw, session, err := manager.SignIn(context.Background(), testGrant(), auth.SessionMeta{})
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: raw}, session
}

// fakeAPI is an in-memory Web API for one account.
type fakeAPI struct {
	mu sync.Mutex

	current    *spotify.PlaybackState
	currentErr error
	recent     []spotify.PlayHistory
	recentErr  error
	profile    *spotify.User
	devices    []spotify.Device
	playErr    error

	plays []string
}

func (f *fakeAPI) CurrentlyPlaying(context.Context) (*spotify.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeAPI) RecentlyPlayed(context.Context, int) ([]spotify.PlayHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent, f.recentErr
}

func (f *fakeAPI) Profile(context.Context) (*spotify.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, nil
}

func (f *fakeAPI) Devices(context.Context) ([]spotify.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, nil
}

func (f *fakeAPI) TransferPlayback(context.Context, string) error {
	return nil
}

func (f *fakeAPI) StartResumePlayback(_ context.Context, _ string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, uris...)
	return f.playErr
}

func (f *fakeAPI) PausePlayback(context.Context, string) error {
	return nil
}

func (f *fakeAPI) SetVolume(context.Context, int, string) error {
	return nil
}

func (f *fakeAPI) factory() SpotifyClientFactory {
	return func(auth.TokenSet) SpotifyAPI { return f }
}

// newTestRegistry builds a registry whose players never tick on their own.
func newTestRegistry(t *testing.T, manager *auth.Manager, api *fakeAPI) *playback.Registry {
	t.Helper()
	reg := playback.NewRegistry(context.Background(), NewPlayerSources(manager, api.factory()), discardLogger(), playback.WithInterval(time.Hour))
	t.Cleanup(reg.StopAll)
	return reg
}

type sessionManagerStub struct {
	signIn  func(ctx context.Context, grant *auth.Grant, meta auth.SessionMeta) (string, auth.ValidSession, error)
	read    func(ctx context.Context, cookie string) (auth.Session, error)
	signOut func(ctx context.Context, cookie string) (uuid.UUID, error)
}

func (s *sessionManagerStub) SignIn(ctx context.Context, grant *auth.Grant, meta auth.SessionMeta) (string, auth.ValidSession, error) {
	if s.signIn == nil {
		return "", auth.ValidSession{}, errors.New("signIn not implemented")
	}
	return s.signIn(ctx, grant, meta)
}

func (s *sessionManagerStub) Read(ctx context.Context, cookie string) (auth.Session, error) {
	if s.read == nil {
		return auth.InvalidSession{Reason: auth.ReasonNoSession}, nil
	}
	return s.read(ctx, cookie)
}

func (s *sessionManagerStub) SignOut(ctx context.Context, cookie string) (uuid.UUID, error) {
	if s.signOut == nil {
		return uuid.Nil, nil
	}
	return s.signOut(ctx, cookie)
}

func (s *sessionManagerStub) MaxAge() time.Duration {
	return time.Hour
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
