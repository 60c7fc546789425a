package playback

import (
	"errors"
	"strings"

	"nowplaying/internal/spotify"
)

// ErrNoActiveDevice is returned when the account has no Connect device.
var ErrNoActiveDevice = errors.New("NO_ACTIVE_DEVICE")

// Kind classifies a failed playback command.
type Kind string

const (
	KindNoActiveDevice  Kind = "NO_ACTIVE_DEVICE"
	KindPremiumRequired Kind = "PREMIUM_REQUIRED"
	KindSessionExpired  Kind = "INVALID_AUTHENTICATION"
	KindFailed          Kind = "PLAYBACK_FAILED"
)

var kindMessages = map[Kind]string{
	KindNoActiveDevice:  "No active Spotify device found. Please open Spotify on a device.",
	KindPremiumRequired: "Premium required for playback control",
	KindSessionExpired:  "Session expired. Please sign in again.",
	KindFailed:          "Playback failed",
}

// CommandError is a classified playback failure ready to show to the user.
type CommandError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Classify maps a provider failure to a user-facing message by looking for
// the provider's reason codes in the error text. Classified errors are not
// retried.
func Classify(err error) *CommandError {
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}

	msg := err.Error()
	kind := KindFailed
	switch {
	case strings.Contains(msg, string(KindNoActiveDevice)):
		kind = KindNoActiveDevice
	case strings.Contains(msg, string(KindPremiumRequired)):
		kind = KindPremiumRequired
	case strings.Contains(msg, string(KindSessionExpired)), errors.Is(err, spotify.ErrUnauthorized):
		kind = KindSessionExpired
	}
	return &CommandError{Kind: kind, Message: kindMessages[kind], Err: err}
}
