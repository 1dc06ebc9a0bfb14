package db

import (
	"context"
	"testing"
	"time"

	"github.com/ironrift/server/internal/model"
)

func mustAccount(t *testing.T, repo *PostgresAccountRepository, username string) *model.Account {
	t.Helper()
	acc, err := repo.Create(context.Background(), username, "hash", "")
	if err != nil || acc == nil {
		t.Fatalf("creating fixture account %q: %v", username, err)
	}
	return acc
}

func TestSessionRepository_CreateAndFetch(t *testing.T) {
	pool := setupTestDB(t)
	accounts := NewPostgresAccountRepository(pool)
	sessions := NewPostgresSessionRepository(pool)
	ctx := context.Background()

	acc := mustAccount(t, accounts, "player1")
	now := time.Now().Truncate(time.Millisecond)
	s := &model.Session{
		Token:     "tok-abc",
		AccountID: acc.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := sessions.ByToken(ctx, "tok-abc")
	if err != nil {
		t.Fatalf("by token failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.AccountID != acc.ID {
		t.Errorf("expected account %d, got %d", acc.ID, got.AccountID)
	}
	if got.Expired(now) {
		t.Error("fresh session must not be expired")
	}

	missing, err := sessions.ByToken(ctx, "tok-none")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown token, got %+v", missing)
	}
}

func TestSessionRepository_Delete(t *testing.T) {
	pool := setupTestDB(t)
	accounts := NewPostgresAccountRepository(pool)
	sessions := NewPostgresSessionRepository(pool)
	ctx := context.Background()

	acc := mustAccount(t, accounts, "player2")
	s := &model.Session{Token: "tok-del", AccountID: acc.ID, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	deleted, err := sessions.Delete(ctx, "tok-del")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report success")
	}

	again, err := sessions.Delete(ctx, "tok-del")
	if err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if again {
		t.Error("expected second delete to report no rows")
	}
}

func TestSessionRepository_DeleteByAccount(t *testing.T) {
	pool := setupTestDB(t)
	accounts := NewPostgresAccountRepository(pool)
	sessions := NewPostgresSessionRepository(pool)
	ctx := context.Background()

	acc := mustAccount(t, accounts, "player3")
	other := mustAccount(t, accounts, "player3b")
	now := time.Now()
	for _, s := range []*model.Session{
		{Token: "tok-1", AccountID: acc.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Token: "tok-2", AccountID: acc.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Token: "tok-other", AccountID: other.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create %s failed: %v", s.Token, err)
		}
	}

	ended, err := sessions.DeleteByAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("delete by account failed: %v", err)
	}
	if ended != 2 {
		t.Errorf("expected 2 ended sessions, got %d", ended)
	}

	// Чужая сессия не задета
	kept, err := sessions.ByToken(ctx, "tok-other")
	if err != nil || kept == nil {
		t.Fatalf("unrelated session lost: %v", err)
	}
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	pool := setupTestDB(t)
	accounts := NewPostgresAccountRepository(pool)
	sessions := NewPostgresSessionRepository(pool)
	ctx := context.Background()

	acc := mustAccount(t, accounts, "player4")
	now := time.Now()
	fixtures := []struct {
		token   string
		expires time.Time
	}{
		{"tok-old-1", now.Add(-time.Hour)},
		{"tok-old-2", now.Add(-time.Minute)},
		{"tok-live", now.Add(time.Hour)},
	}
	for _, f := range fixtures {
		s := &model.Session{Token: f.token, AccountID: acc.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: f.expires}
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create %s failed: %v", f.token, err)
		}
	}

	removed, err := sessions.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed sessions, got %d", removed)
	}

	live, err := sessions.ByToken(ctx, "tok-live")
	if err != nil || live == nil {
		t.Fatalf("live session lost: %v", err)
	}
}
