package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"nowplaying/internal/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", duration.String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionFromContext returns the session resolved by the session middleware.
func SessionFromContext(ctx context.Context) (auth.ValidSession, bool) {
	session, ok := ctx.Value(sessionContextKey).(auth.ValidSession)
	return session, ok
}

// invalidSessionFunc answers a request whose session cannot be used.
type invalidSessionFunc func(w http.ResponseWriter, r *http.Request, reason auth.InvalidReason)

// newSessionMiddleware resolves the session cookie on every request. The
// session manager refreshes expired tokens as part of the read.
func newSessionMiddleware(sessions SessionManager, logger *slog.Logger, onInvalid invalidSessionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw string
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				raw = cookie.Value
			}

			session, err := sessions.Read(r.Context(), raw)
			if err != nil {
				logger.Error("session read error", "error", err)
				writeError(w, http.StatusInternalServerError, "unexpected error")
				return
			}

			switch s := session.(type) {
			case auth.ValidSession:
				ctx := context.WithValue(r.Context(), sessionContextKey, s)
				next.ServeHTTP(w, r.WithContext(ctx))
			case auth.InvalidSession:
				onInvalid(w, r, s.Reason)
			default:
				onInvalid(w, r, auth.ReasonNoSession)
			}
		})
	}
}

// redirectToLogin sends page requests to the login screen with the reason.
func redirectToLogin(w http.ResponseWriter, r *http.Request, reason auth.InvalidReason) {
	target := "/login"
	query := url.Values{}
	if reason != auth.ReasonNoSession {
		query.Set("error", string(reason))
	}
	if r.URL.Path != "/" && isValidRedirectPath(r.URL.Path) {
		query.Set("redirectTo", r.URL.Path)
	}
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// unauthorized answers API requests without a usable session.
func unauthorized(w http.ResponseWriter, _ *http.Request, reason auth.InvalidReason) {
	w.Header().Set("WWW-Authenticate", `Cookie realm="nowplaying"`)
	writeCodedError(w, http.StatusUnauthorized, string(reason), "Session expired. Please sign in again.")
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
