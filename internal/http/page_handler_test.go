package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nowplaying/internal/auth"
	"nowplaying/internal/spotify"
)

func TestPageHandlerLoginShowsErrorMessage(t *testing.T) {
	handler := NewPageHandler(nil, nil, false, discardLogger())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"refresh failure", "?error=" + auth.RefreshErrorTag, "Your Spotify session expired."},
		{"unknown code", "?error=exchange_error", "Sign-in failed. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Login(rec, httptest.NewRequest(http.MethodGet, "/login"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("expected body to contain %q", tt.want)
			}
		})
	}
}

func TestPageHandlerLoginWithoutError(t *testing.T) {
	handler := NewPageHandler(nil, nil, false, discardLogger())

	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodGet, "/login?redirectTo=/devices", nil))

	body := rec.Body.String()
	if strings.Contains(body, `role="alert"`) {
		t.Fatal("expected no error banner")
	}
	if !strings.Contains(body, "Continue with Spotify") {
		t.Fatal("expected sign-in button")
	}
	if !strings.Contains(body, "/api/auth/signin/spotify?redirectTo=%2fdevices") && !strings.Contains(body, "/api/auth/signin/spotify?redirectTo=%2Fdevices") {
		t.Fatalf("expected sign-in link to carry redirectTo, got %s", body)
	}
}

func TestPageHandlerHomeFallsBackToLastPlayed(t *testing.T) {
	manager, _ := newTestManager(nil, nil)
	_, session := signIn(t, manager)
	api := &fakeAPI{
		currentErr: errors.New("boom"),
		recent: []spotify.PlayHistory{{
			Track: spotify.Track{
				ID:         "last",
				Name:       "Last Song",
				DurationMs: 180000,
				Artists:    []spotify.Artist{{Name: "Band"}, {Name: "Guest"}},
			},
			PlayedAt: "2024-01-01T10:00:00Z",
		}},
		profile: &spotify.User{DisplayName: "Listener", Country: "NZ"},
	}
	players := newTestRegistry(t, manager, api)
	handler := NewPageHandler(api.factory(), players, false, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), sessionContextKey, session))
	rec := httptest.NewRecorder()

	handler.Home(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Last Song", "Band, Guest", "Listener", `data-playing="false"`, "width: 0%"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q", want)
		}
	}

	player, ok := players.Get(session.ID)
	if !ok {
		t.Fatal("expected page render to start a player")
	}
	state := player.State()
	if state.ActiveTrackID != "last" || state.IsPlaying || state.ProgressMs != 0 {
		t.Fatalf("unexpected seeded state %+v", state)
	}
}

func TestPageHandlerHomeRendersCurrentTrack(t *testing.T) {
	manager, _ := newTestManager(nil, nil)
	_, session := signIn(t, manager)
	api := &fakeAPI{
		current: &spotify.PlaybackState{
			IsPlaying:  true,
			ProgressMs: 50000,
			Item:       &spotify.Track{ID: "now", Name: "Now Song", DurationMs: 200000},
		},
	}
	players := newTestRegistry(t, manager, api)
	handler := NewPageHandler(api.factory(), players, true, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), sessionContextKey, session))
	rec := httptest.NewRecorder()

	handler.Home(rec, req)

	body := rec.Body.String()
	for _, want := range []string{"Now Song", `data-playing="true"`, "width: 25%", "Debug Info"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q", want)
		}
	}
	if strings.Contains(body, "refresh_token") {
		t.Fatal("expected debug dump to omit the refresh token")
	}
}

func TestPageHandlerHomeWithNothingPlayed(t *testing.T) {
	manager, _ := newTestManager(nil, nil)
	_, session := signIn(t, manager)
	api := &fakeAPI{}
	players := newTestRegistry(t, manager, api)
	handler := NewPageHandler(api.factory(), players, false, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), sessionContextKey, session))
	rec := httptest.NewRecorder()

	handler.Home(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `id="player"`) {
		t.Fatal("expected no player section without a track")
	}
}
