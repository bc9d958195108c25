package idempotency

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func exerciseStore(t *testing.T, store Store, key string) {
	t.Helper()
	ctx := context.Background()
	hash := HashRequest([]byte(`{"wallet_id":"w-1","actual_kwh":1.1}`))

	existing, err := store.Reserve(ctx, key, hash)
	if err != nil || existing != nil {
		t.Fatalf("first reserve: %v %+v", err, existing)
	}
	if _, err := store.Reserve(ctx, key, hash); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}
	if _, err := store.Reserve(ctx, key, HashRequest([]byte(`{}`))); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	body := []byte(`{"earnings":"1.02"}`)
	if err := store.Complete(ctx, key, 201, body); err != nil {
		t.Fatalf("complete: %v", err)
	}
	replay, err := store.Reserve(ctx, key, hash)
	if err != nil {
		t.Fatalf("replay reserve: %v", err)
	}
	if replay == nil || replay.Status != StatusCompleted || replay.ResponseStatus != 201 || string(replay.ResponseBody) != string(body) {
		t.Fatalf("unexpected replay: %+v", replay)
	}

	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := store.Reserve(ctx, key, hash)
	if err != nil || again != nil {
		t.Fatalf("reserve after release: %v %+v", err, again)
	}
	_ = store.Release(ctx, key)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute), "key-1")
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if _, err := store.Reserve(context.Background(), "key-1", "a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	now = now.Add(2 * time.Minute)
	existing, err := store.Reserve(context.Background(), "key-1", "b")
	if err != nil || existing != nil {
		t.Fatalf("expected expired key to be reusable, got %v %+v", err, existing)
	}
}

func TestMemoryStoreSweepsExpiredKeys(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if _, err := store.Reserve(ctx, key, "h"); err != nil {
			t.Fatalf("reserve %s: %v", key, err)
		}
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Reserve(ctx, "d", "h"); err != nil {
		t.Fatalf("reserve d: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected expired keys to be swept, got %d entries", len(store.entries))
	}
}

func TestHashRequestIsStable(t *testing.T) {
	if HashRequest([]byte("x")) != HashRequest([]byte("x")) || HashRequest([]byte("x")) == HashRequest([]byte("y")) {
		t.Fatalf("unexpected hash behaviour")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	store, err := NewRedisStore(url, time.Minute, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store, "test-"+uuid.NewString())
}
