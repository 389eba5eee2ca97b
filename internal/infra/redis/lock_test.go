//go:build !integration

// File: internal/infra/redis/lock_test.go
package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"media-cardkey-platform/internal/domain"
)

func TestRedisLocker_MutualExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	locker := NewLocker(newTestClient(t))

	token, err := locker.TryLock(ctx, "lock:test", 30*time.Second)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := locker.TryLock(ctx, "lock:test", 30*time.Second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second TryLock: want ErrConflict, got %v", err)
	}

	// a foreign token must not release the lock
	if err := locker.Unlock(ctx, "lock:test", "not-the-token"); err != nil {
		t.Fatalf("Unlock with wrong token: %v", err)
	}
	if _, err := locker.TryLock(ctx, "lock:test", 30*time.Second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("lock was released by wrong token")
	}

	if err := locker.Unlock(ctx, "lock:test", token); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := locker.TryLock(ctx, "lock:test", 30*time.Second); err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
}
