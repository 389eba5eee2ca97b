//go:build !integration

// File: internal/infra/redis/points_repo_test.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

func TestPointsRepo_CreateAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewPointsRepo(newTestClient(t))
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := repo.FindPoints(ctx, repository.NoTX, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	p, _ := model.NewUserPoints("alice", now)
	p.InvitationCode = "ALICECODE1234567"
	if err := repo.CreatePoints(ctx, repository.NoTX, p); err != nil {
		t.Fatalf("CreatePoints: %v", err)
	}
	if err := repo.CreatePoints(ctx, repository.NoTX, p); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate CreatePoints: want ErrAlreadyExists, got %v", err)
	}

	got, err := repo.FindByInvitationCode(ctx, repository.NoTX, "ALICECODE1234567")
	if err != nil {
		t.Fatalf("FindByInvitationCode: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("code resolved to %q", got.Username)
	}
}

func TestPointsRepo_ListAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewPointsRepo(newTestClient(t))
	now := time.Now().UTC().Truncate(time.Second)

	for _, name := range []string{"zoe", "amy", "mia"} {
		p, _ := model.NewUserPoints(name, now)
		if err := repo.CreatePoints(ctx, repository.NoTX, p); err != nil {
			t.Fatalf("CreatePoints(%s): %v", name, err)
		}
	}

	accounts, err := repo.ListAccounts(ctx, repository.NoTX)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("want 3 accounts, got %d", len(accounts))
	}
	for i, want := range []string{"amy", "mia", "zoe"} {
		if accounts[i].Username != want {
			t.Fatalf("accounts not sorted by username: %+v", accounts)
		}
	}
}

func TestPointsRepo_CompareAndSave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewPointsRepo(newTestClient(t))
	now := time.Now().UTC().Truncate(time.Second)

	p, _ := model.NewUserPoints("bob", now)
	if err := repo.CreatePoints(ctx, repository.NoTX, p); err != nil {
		t.Fatalf("CreatePoints: %v", err)
	}

	updated := *p
	updated.Balance = 100
	updated.TotalEarned = 100
	updated.UpdatedAt = now.Add(time.Second)
	rec := &model.PointsRecord{
		ID:        ulid.Make().String(),
		Username:  "bob",
		Type:      model.PointsRecordTypeEarn,
		Amount:    100,
		Reason:    "earn",
		CreatedAt: updated.UpdatedAt,
	}
	ok, err := repo.CompareAndSavePoints(ctx, repository.NoTX, p, &updated, rec)
	if err != nil || !ok {
		t.Fatalf("CompareAndSavePoints: ok=%v err=%v", ok, err)
	}

	// stale expected record must lose, and its ledger entry must not land
	stale := *p
	stale2 := stale
	stale2.Balance = 999
	staleRec := &model.PointsRecord{
		ID:       ulid.Make().String(),
		Username: "bob",
		Type:     model.PointsRecordTypeEarn,
		Amount:   999,
	}
	ok, err = repo.CompareAndSavePoints(ctx, repository.NoTX, &stale, &stale2, staleRec)
	if err != nil {
		t.Fatalf("CompareAndSavePoints: %v", err)
	}
	if ok {
		t.Fatal("stale write must be rejected")
	}

	got, err := repo.FindPoints(ctx, repository.NoTX, "bob")
	if err != nil {
		t.Fatalf("FindPoints: %v", err)
	}
	if got.Balance != 100 || got.TotalEarned != 100 {
		t.Fatalf("unexpected account: %+v", got)
	}

	// exactly the winning write's entry is in the ledger
	recs, err := repo.ListRecords(ctx, repository.NoTX, "bob", 1, 10)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != rec.ID || recs[0].Amount != 100 {
		t.Fatalf("unexpected ledger: %+v", recs)
	}
}

func TestPointsRepo_LedgerPagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewPointsRepo(newTestClient(t))
	now := time.Now().UTC().Truncate(time.Second)

	account, _ := model.NewUserPoints("carol", now)
	if err := repo.CreatePoints(ctx, repository.NoTX, account); err != nil {
		t.Fatalf("CreatePoints: %v", err)
	}
	for i := 0; i < 5; i++ {
		updated := *account
		updated.Balance += int64(i + 1)
		updated.TotalEarned += int64(i + 1)
		updated.UpdatedAt = now.Add(time.Duration(i) * time.Second)
		rec := &model.PointsRecord{
			ID:        ulid.Make().String(),
			Username:  "carol",
			Type:      model.PointsRecordTypeEarn,
			Amount:    int64(i + 1),
			Reason:    fmt.Sprintf("earn %d", i+1),
			CreatedAt: updated.UpdatedAt,
		}
		ok, err := repo.CompareAndSavePoints(ctx, repository.NoTX, account, &updated, rec)
		if err != nil || !ok {
			t.Fatalf("CompareAndSavePoints: ok=%v err=%v", ok, err)
		}
		account = &updated
	}

	page1, err := repo.ListRecords(ctx, repository.NoTX, "carol", 1, 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(page1) != 2 || page1[0].Amount != 5 || page1[1].Amount != 4 {
		t.Fatalf("page 1 not newest-first: %+v", page1)
	}

	page3, err := repo.ListRecords(ctx, repository.NoTX, "carol", 3, 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(page3) != 1 || page3[0].Amount != 1 {
		t.Fatalf("unexpected last page: %+v", page3)
	}

	empty, err := repo.ListRecords(ctx, repository.NoTX, "carol", 4, 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("past-the-end page must be empty, got %+v", empty)
	}
}
