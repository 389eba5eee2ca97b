//go:build integration

// File: internal/infra/db/postgres/postgres_activation_code_repo_test.go
package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

func TestPostgresActivationCodeRepo_Lifecycle(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewActivationCodeRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	code, err := model.NewActivationCode("PGCODE11-PGCODE22-PGCODE33-PGCODE44", "admin", now)
	if err != nil {
		t.Fatalf("NewActivationCode: %v", err)
	}
	if err := repo.Save(ctx, repository.NoTX, code); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, repository.NoTX, code); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate Save: want ErrAlreadyExists, got %v", err)
	}

	got, err := repo.Find(ctx, repository.NoTX, code.Code)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Status != model.ActivationCodeStatusUnused || got.CreatedBy != "admin" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if _, err := repo.Find(ctx, repository.NoTX, "ABSENT"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("absent Find: want ErrCodeNotFound, got %v", err)
	}

	if err := repo.MarkUsed(ctx, repository.NoTX, code.Code, "alice", now); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if err := repo.MarkUsed(ctx, repository.NoTX, code.Code, "bob", now); !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("second MarkUsed: want ErrCodeAlreadyUsed, got %v", err)
	}
	if err := repo.MarkUsed(ctx, repository.NoTX, "ABSENT", "bob", now); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("absent MarkUsed: want ErrCodeNotFound, got %v", err)
	}

	got, _ = repo.Find(ctx, repository.NoTX, code.Code)
	if got.UsedBy != "alice" || got.UsedAt == nil {
		t.Fatalf("use metadata not recorded: %+v", got)
	}

	// Used codes stay for audit.
	if ok, err := repo.Delete(ctx, repository.NoTX, code.Code); err != nil || ok {
		t.Fatalf("Delete of used code: got %v, %v", ok, err)
	}

	fresh, _ := model.NewActivationCode("PGFRESH1-PGFRESH2-PGFRESH3-PGFRESH4", "admin", now)
	if err := repo.Save(ctx, repository.NoTX, fresh); err != nil {
		t.Fatalf("Save fresh: %v", err)
	}
	if ok, err := repo.Delete(ctx, repository.NoTX, fresh.Code); err != nil || !ok {
		t.Fatalf("Delete of unused code: got %v, %v", ok, err)
	}

	all, err := repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 || all[0].Code != code.Code {
		t.Fatalf("unexpected ListAll: %+v", all)
	}
}

func TestPostgresActivationCodeRepo_ConcurrentUseAtMostOnce(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewActivationCodeRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	code, _ := model.NewActivationCode("PGRACE11-PGRACE22-PGRACE33-PGRACE44", "admin", now)
	if err := repo.Save(ctx, repository.NoTX, code); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	okCount := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := string(rune('a' + n))
			if err := repo.MarkUsed(ctx, repository.NoTX, code.Code, user, time.Now()); err == nil {
				okCount <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(okCount)

	wins := 0
	for range okCount {
		wins++
	}
	if wins != 1 {
		t.Fatalf("code consumed %d times, want exactly once", wins)
	}
}
