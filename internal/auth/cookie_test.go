package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCookieCodecRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := cookieCodec{secret: []byte("secret"), now: func() time.Time { return now }}
	record := SessionRecord{
		ID:        uuid.New(),
		User:      User{ID: uuid.New()},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	raw, err := codec.encode(record)
	if err != nil {
		t.Fatalf("encode returned error: %v", err)
	}
	id, err := codec.decode(raw)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if id != record.ID {
		t.Fatalf("expected %s, got %s", record.ID, id)
	}
}

func TestCookieCodecRejectsExpiredAndForeignCookies(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	record := SessionRecord{
		ID:        uuid.New(),
		User:      User{ID: uuid.New()},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	foreign := cookieCodec{secret: []byte("other"), now: func() time.Time { return now }}
	raw, err := foreign.encode(record)
	if err != nil {
		t.Fatalf("encode returned error: %v", err)
	}

	codec := cookieCodec{secret: []byte("secret"), now: func() time.Time { return now }}
	if _, err := codec.decode(raw); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie for foreign secret, got %v", err)
	}

	own, err := codec.encode(record)
	if err != nil {
		t.Fatalf("encode returned error: %v", err)
	}
	later := cookieCodec{secret: []byte("secret"), now: func() time.Time { return now.Add(2 * time.Hour) }}
	if _, err := later.decode(own); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie for expired cookie, got %v", err)
	}

	if _, err := codec.decode(""); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie for empty cookie, got %v", err)
	}
}
