package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCookie = errors.New("auth: invalid session cookie")

// cookieCodec signs the session id handed to the browser. The token set never
// leaves the server; the cookie only names the record.
type cookieCodec struct {
	secret []byte
	now    func() time.Time
}

func (c cookieCodec) encode(record SessionRecord) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        record.ID.String(),
		Subject:   record.User.ID.String(),
		IssuedAt:  jwt.NewNumericDate(record.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

func (c cookieCodec) decode(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, ErrInvalidCookie
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidCookie, err)
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidCookie, err)
	}
	return id, nil
}
