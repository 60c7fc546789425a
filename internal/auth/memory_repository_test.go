package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryRepositoryUpsertKeepsIdentity(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	created := time.Unix(1_700_000_000, 0)

	first, err := repo.UpsertUser(ctx, User{ID: uuid.New(), SpotifyID: "abc", DisplayName: "Old", CreatedAt: created})
	if err != nil {
		t.Fatalf("UpsertUser returned error: %v", err)
	}
	second, err := repo.UpsertUser(ctx, User{ID: uuid.New(), SpotifyID: "abc", DisplayName: "New", CreatedAt: created.Add(time.Hour)})
	if err != nil {
		t.Fatalf("UpsertUser returned error: %v", err)
	}

	if second.ID != first.ID || !second.CreatedAt.Equal(created) {
		t.Fatalf("expected identity to be kept, got %+v", second)
	}
	if second.DisplayName != "New" {
		t.Fatalf("expected profile to be updated, got %q", second.DisplayName)
	}
}

func TestMemoryRepositorySessions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	missing, err := repo.FindSession(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil session, got %+v err=%v", missing, err)
	}

	live := SessionRecord{ID: uuid.New(), ExpiresAt: now.Add(time.Hour), Tokens: TokenSet{AccessToken: "A"}}
	stale := SessionRecord{ID: uuid.New(), ExpiresAt: now}
	for _, record := range []SessionRecord{live, stale} {
		if err := repo.SaveSession(ctx, record); err != nil {
			t.Fatalf("SaveSession returned error: %v", err)
		}
	}

	removed, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	found, err := repo.FindSession(ctx, live.ID)
	if err != nil || found == nil || found.Tokens.AccessToken != "A" {
		t.Fatalf("expected live session, got %+v err=%v", found, err)
	}

	if err := repo.DeleteSession(ctx, live.ID); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	if found, _ := repo.FindSession(ctx, live.ID); found != nil {
		t.Fatal("expected session to be gone")
	}
}
