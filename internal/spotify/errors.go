package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrUnauthorized = errors.New("spotify: unauthorized")
	ErrForbidden    = errors.New("spotify: forbidden")
	ErrNotFound     = errors.New("spotify: not found")
	ErrRateLimited  = errors.New("spotify: rate limited")
)

// APIError is a non-2xx response from the Web API.
type APIError struct {
	Status     int
	Reason     string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("spotify: %d %s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("spotify: %d: %s", e.Status, e.Message)
}

// Is lets callers match an APIError against the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// errorBody is the regular error object. The token endpoint uses a flat
// {"error": "...", "error_description": "..."} shape instead.
type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}
