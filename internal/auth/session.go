package auth

import "github.com/google/uuid"

// Session is the result of reading a browser session. It is either a
// ValidSession or an InvalidSession; switch on the concrete type.
type Session interface {
	session()
}

// ValidSession carries a usable token set.
type ValidSession struct {
	ID              uuid.UUID
	User            User
	Tokens          TokenSet
	DownstreamToken string
}

// InvalidReason explains why a session cannot be used.
type InvalidReason string

const (
	ReasonNoSession     InvalidReason = "no_session"
	ReasonExpired       InvalidReason = "session_expired"
	ReasonRefreshFailed InvalidReason = RefreshErrorTag
)

// InvalidSession forces re-authentication.
type InvalidSession struct {
	Reason InvalidReason
}

func (ValidSession) session()   {}
func (InvalidSession) session() {}
