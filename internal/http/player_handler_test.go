package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nowplaying/internal/auth"
	"nowplaying/internal/playback"
	"nowplaying/internal/spotify"
)

type playerFixture struct {
	manager *auth.Manager
	repo    *auth.MemoryRepository
	api     *fakeAPI
	session auth.ValidSession
	handler *PlayerHandler
	players *playback.Registry
}

func newPlayerFixture(t *testing.T) *playerFixture {
	t.Helper()
	manager, repo := newTestManager(nil, nil)
	_, session := signIn(t, manager)
	api := &fakeAPI{devices: []spotify.Device{{ID: "d1", Name: "Desk", IsActive: true, SupportsVolume: true, VolumePercent: intPtr(40)}}}
	players := newTestRegistry(t, manager, api)
	return &playerFixture{
		manager: manager,
		repo:    repo,
		api:     api,
		session: session,
		handler: NewPlayerHandler(players, discardLogger()),
		players: players,
	}
}

func (f *playerFixture) request(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := context.WithValue(req.Context(), sessionContextKey, f.session)
	return req.WithContext(ctx)
}

func intPtr(v int) *int {
	return &v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

type stateBody struct {
	IsPlaying     bool   `json:"is_playing"`
	ActiveTrackID string `json:"active_track_id"`
	Phase         string `json:"phase"`
}

func TestPlayerHandlerPlayStartsTrack(t *testing.T) {
	f := newPlayerFixture(t)
	f.api.current = &spotify.PlaybackState{IsPlaying: true, Item: &spotify.Track{ID: "t1", DurationMs: 200000}}

	rec := httptest.NewRecorder()
	f.handler.Play(rec, f.request(http.MethodPost, "/api/player/play", `{"track_id":"t1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.api.plays) != 1 || f.api.plays[0] != "spotify:track:t1" {
		t.Fatalf("expected spotify:track:t1 to be played, got %v", f.api.plays)
	}
	var state stateBody
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !state.IsPlaying || state.ActiveTrackID != "t1" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestPlayerHandlerPlayRequiresTrack(t *testing.T) {
	f := newPlayerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Play(rec, f.request(http.MethodPost, "/api/player/play", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestPlayerHandlerMapsCommandErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(api *fakeAPI)
		wantStatus int
		wantCode   playback.Kind
	}{
		{
			name:       "no device",
			setup:      func(api *fakeAPI) { api.devices = nil },
			wantStatus: http.StatusConflict,
			wantCode:   playback.KindNoActiveDevice,
		},
		{
			name: "premium required",
			setup: func(api *fakeAPI) {
				api.playErr = &spotify.APIError{Status: http.StatusForbidden, Reason: "PREMIUM_REQUIRED", Message: "Player command failed: Premium required"}
			},
			wantStatus: http.StatusForbidden,
			wantCode:   playback.KindPremiumRequired,
		},
		{
			name: "expired token",
			setup: func(api *fakeAPI) {
				api.playErr = &spotify.APIError{Status: http.StatusUnauthorized, Message: "The access token expired"}
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   playback.KindSessionExpired,
		},
		{
			name: "other failure",
			setup: func(api *fakeAPI) {
				api.playErr = &spotify.APIError{Status: http.StatusBadGateway, Message: "Bad gateway"}
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   playback.KindFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlayerFixture(t)
			tt.setup(f.api)

			rec := httptest.NewRecorder()
			f.handler.Play(rec, f.request(http.MethodPost, "/api/player/play", `{"track_id":"t1"}`))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if body := decodeError(t, rec); body.Code != string(tt.wantCode) {
				t.Fatalf("expected code %q, got %q", tt.wantCode, body.Code)
			}
		})
	}
}

func TestPlayerHandlerRejectsDeletedSession(t *testing.T) {
	f := newPlayerFixture(t)
	if err := f.repo.DeleteSession(context.Background(), f.session.ID); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	f.handler.Pause(rec, f.request(http.MethodPost, "/api/player/pause", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestPlayerHandlerStateRequiresSession(t *testing.T) {
	f := newPlayerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.State(rec, httptest.NewRequest(http.MethodGet, "/api/player", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestPlayerHandlerStateReusesSeededPlayer(t *testing.T) {
	f := newPlayerFixture(t)
	f.players.Ensure(f.session.ID, &spotify.PlaybackState{IsPlaying: false, ProgressMs: 1000, Item: &spotify.Track{ID: "seeded", DurationMs: 5000}})

	rec := httptest.NewRecorder()
	f.handler.State(rec, f.request(http.MethodGet, "/api/player", ""))

	var state stateBody
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if state.ActiveTrackID != "seeded" || state.IsPlaying {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestPlayerHandlerSetVolumeValidatesLevel(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing", `{}`},
		{"negative", `{"volume":-1}`},
		{"too loud", `{"volume":150}`},
		{"wrong type", `{"volume":"loud"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlayerFixture(t)

			rec := httptest.NewRecorder()
			f.handler.SetVolume(rec, f.request(http.MethodPut, "/api/player/volume", tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestPlayerHandlerSetVolume(t *testing.T) {
	f := newPlayerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.SetVolume(rec, f.request(http.MethodPut, "/api/player/volume", `{"volume":70}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var vol playback.VolumeState
	if err := json.NewDecoder(rec.Body).Decode(&vol); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if vol.Volume != 70 || vol.PreviousVolume != 40 || vol.Muted {
		t.Fatalf("unexpected volume state %+v", vol)
	}
}

func TestPlayerHandlerTransferRequiresDevice(t *testing.T) {
	f := newPlayerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Transfer(rec, f.request(http.MethodPut, "/api/player/device", `{}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestPlayerHandlerTransfer(t *testing.T) {
	f := newPlayerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Transfer(rec, f.request(http.MethodPut, "/api/player/device", `{"device_id":"d2"}`))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
}
