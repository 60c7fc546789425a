// Package downstream mints the bearer token the secondary data store accepts
// for a signed-in user.
package downstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Audience = "authenticated"
	Role     = "authenticated"
	TTL      = 7 * 24 * time.Hour
)

var ErrNoSecret = errors.New("downstream: signing secret not configured")

// Claims is the verified payload of a downstream token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	Audience  string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Minter signs downstream tokens with a shared HS256 secret.
type Minter struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Minter.
type Option func(*Minter)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		m.now = now
	}
}

// NewMinter returns nil when secret is empty; a nil Minter mints nothing.
func NewMinter(secret string, opts ...Option) *Minter {
	if secret == "" {
		return nil
	}
	m := &Minter{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint derives a token for subject. It is stateless: every call produces a
// fresh expiry and nothing is persisted.
func (m *Minter) Mint(subject, email string) (string, error) {
	if m == nil {
		return "", ErrNoSecret
	}
	if subject == "" {
		return "", errors.New("downstream: subject is required")
	}

	now := m.now()
	var emailClaim any
	if email != "" {
		emailClaim = email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud":   Audience,
		"exp":   now.Add(TTL).Unix(),
		"iat":   now.Unix(),
		"sub":   subject,
		"email": emailClaim,
		"role":  Role,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("downstream: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token the way the consuming store does.
func (m *Minter) Verify(raw string) (Claims, error) {
	if m == nil {
		return Claims{}, ErrNoSecret
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("downstream: verify token: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("downstream: unexpected claims type")
	}

	claims := Claims{Audience: Audience}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Email, _ = mapClaims["email"].(string)
	claims.Role, _ = mapClaims["role"].(string)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	if claims.Role != Role {
		return Claims{}, fmt.Errorf("downstream: unexpected role %q", claims.Role)
	}

	return claims, nil
}
