package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"nowplaying/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func invalidSessions(reason auth.InvalidReason) *sessionManagerStub {
	return &sessionManagerStub{
		read: func(ctx context.Context, cookie string) (auth.Session, error) {
			return auth.InvalidSession{Reason: reason}, nil
		},
	}
}

func TestSessionMiddlewareRejectsMissingCookie(t *testing.T) {
	manager, _ := newTestManager(nil, nil)
	next := newSessionMiddleware(manager, discardLogger(), unauthorized)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/player", nil)
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != string(auth.ReasonNoSession) {
		t.Fatalf("expected code %q, got %q", auth.ReasonNoSession, body.Code)
	}
}

func TestSessionMiddlewareInjectsSession(t *testing.T) {
	manager, _ := newTestManager(nil, nil)
	cookie, signedIn := signIn(t, manager)

	var got auth.ValidSession
	next := newSessionMiddleware(manager, discardLogger(), unauthorized)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		got = session
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/player", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got.ID != signedIn.ID {
		t.Fatalf("expected session %s, got %s", signedIn.ID, got.ID)
	}
}

func TestSessionMiddlewareRejectsForgedCookie(t *testing.T) {
	manager, _ := newTestManager(nil, nil)
	next := newSessionMiddleware(manager, discardLogger(), unauthorized)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/player", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "not-a-jwt"})
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestSessionMiddlewareRedirectsPagesWithReason(t *testing.T) {
	next := newSessionMiddleware(invalidSessions(auth.ReasonRefreshFailed), discardLogger(), redirectToLogin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid location: %v", err)
	}
	if location.Path != "/login" {
		t.Fatalf("expected redirect to /login, got %q", location.Path)
	}
	if got := location.Query().Get("error"); got != auth.RefreshErrorTag {
		t.Fatalf("expected error %q, got %q", auth.RefreshErrorTag, got)
	}
}

func TestRedirectToLoginOmitsNoSessionReason(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()

	redirectToLogin(rec, req, auth.ReasonNoSession)

	if location := rec.Header().Get("Location"); location != "/login?redirectTo=%2Fdevices" {
		t.Fatalf("unexpected redirect %q", location)
	}
}

func TestSessionMiddlewareReportsRepositoryFailure(t *testing.T) {
	sessions := &sessionManagerStub{
		read: func(ctx context.Context, cookie string) (auth.Session, error) {
			return nil, errors.New("db down")
		},
	}
	next := newSessionMiddleware(sessions, discardLogger(), unauthorized)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/player", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestSessionFromContextWithoutSession(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatal("expected no session in empty context")
	}
	ctx := context.WithValue(context.Background(), sessionContextKey, auth.ValidSession{ID: uuid.New()})
	if _, ok := SessionFromContext(ctx); !ok {
		t.Fatal("expected session in context")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		env      string
		wantHSTS bool
	}{
		{"development", false},
		{"production", true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newSecurityHeadersMiddleware(tt.env)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Header().Get("X-Frame-Options") != "DENY" {
				t.Fatalf("expected X-Frame-Options DENY, got %q", rec.Header().Get("X-Frame-Options"))
			}
			hasHSTS := rec.Header().Get("Strict-Transport-Security") != ""
			if hasHSTS != tt.wantHSTS {
				t.Fatalf("expected HSTS %v, got %v", tt.wantHSTS, hasHSTS)
			}
		})
	}
}
