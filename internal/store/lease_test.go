package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestAcquireLease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	ok, err := s.AcquireLease(ctx, "replay", "a", time.Second, now)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v; want true", ok, err)
	}

	// Another owner is refused while the lease is live.
	ok, err = s.AcquireLease(ctx, "replay", "b", time.Second, now.Add(500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second owner acquired a live lease")
	}

	// The holder can renew.
	ok, err = s.AcquireLease(ctx, "replay", "a", time.Second, now.Add(500*time.Millisecond))
	if err != nil || !ok {
		t.Fatalf("renew = %v, %v; want true", ok, err)
	}

	// After expiry anyone can take it.
	ok, err = s.AcquireLease(ctx, "replay", "b", time.Second, now.Add(2*time.Second))
	if err != nil || !ok {
		t.Fatalf("takeover = %v, %v; want true", ok, err)
	}

	l, err := s.ReadLease(ctx, "replay")
	if err != nil {
		t.Fatal(err)
	}
	if l.Owner != "b" {
		t.Errorf("owner = %q, want b", l.Owner)
	}
	if !l.ExpiresAt.Equal(now.Add(3 * time.Second)) {
		t.Errorf("expires_at = %v, want %v", l.ExpiresAt, now.Add(3*time.Second))
	}
}

func TestAcquireLease_InvalidTTL(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.AcquireLease(context.Background(), "replay", "a", 0, time.Now()); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestReleaseLease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.AcquireLease(ctx, "replay", "a", time.Minute, now); err != nil {
		t.Fatal(err)
	}

	released, err := s.ReleaseLease(ctx, "replay", "b")
	if err != nil {
		t.Fatal(err)
	}
	if released {
		t.Error("non-owner released the lease")
	}

	released, err = s.ReleaseLease(ctx, "replay", "a")
	if err != nil {
		t.Fatal(err)
	}
	if !released {
		t.Error("owner could not release the lease")
	}

	if _, err := s.ReadLease(ctx, "replay"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadLease after release error = %v, want sql.ErrNoRows", err)
	}

	ok, err := s.AcquireLease(ctx, "replay", "b", time.Minute, now)
	if err != nil || !ok {
		t.Fatalf("acquire after release = %v, %v; want true", ok, err)
	}
}
