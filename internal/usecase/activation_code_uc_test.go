//go:build !integration

// File: internal/usecase/activation_code_uc_test.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"media-cardkey-platform/internal/domain"
)

func newActivationCodeFixture() (*activationCodeUC, *memActivationCodeRepo) {
	repo := newMemActivationCodeRepo()
	return NewActivationCodeUseCase(repo, testLogger()), repo
}

func TestActivationCodeUC_CreateValidatesInput(t *testing.T) {
	t.Parallel()
	uc, _ := newActivationCodeFixture()
	ctx := context.Background()

	cases := []struct {
		name      string
		count     int
		createdBy string
	}{
		{"zero count", 0, "admin"},
		{"over batch limit", 1001, "admin"},
		{"missing creator", 10, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := uc.CreateCodes(ctx, tc.count, tc.createdBy); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestActivationCodeUC_Lifecycle(t *testing.T) {
	t.Parallel()
	uc, _ := newActivationCodeFixture()
	ctx := context.Background()

	codes, err := uc.CreateCodes(ctx, 5, "admin")
	if err != nil {
		t.Fatalf("CreateCodes: %v", err)
	}
	if len(codes) != 5 {
		t.Fatalf("expected 5 codes, got %d", len(codes))
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if seen[c.Code] {
			t.Fatalf("duplicate code minted: %s", c.Code)
		}
		seen[c.Code] = true
	}

	code := codes[0].Code
	if ok, _ := uc.Validate(ctx, code); !ok {
		t.Fatal("fresh code must validate")
	}

	if err := uc.Use(ctx, code, "alice"); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if ok, _ := uc.Validate(ctx, code); ok {
		t.Fatal("used code must not validate")
	}
	if err := uc.Use(ctx, code, "bob"); !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("second use: expected ErrCodeAlreadyUsed, got %v", err)
	}
	if err := uc.Use(ctx, "UNKNOWN-CODE", "carol"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("unknown code: expected ErrCodeNotFound, got %v", err)
	}
	if err := uc.Use(ctx, "", "carol"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty code: expected ErrInvalidArgument, got %v", err)
	}

	t.Run("delete keeps used codes", func(t *testing.T) {
		if ok, err := uc.Delete(ctx, code); err != nil || ok {
			t.Fatalf("used code must not delete, got %v, %v", ok, err)
		}
		if ok, err := uc.Delete(ctx, codes[1].Code); err != nil || !ok {
			t.Fatalf("unused code should delete, got %v, %v", ok, err)
		}
	})

	all, err := uc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 codes after delete, got %d", len(all))
	}
}

func TestActivationCodeUC_ExportCSV(t *testing.T) {
	t.Parallel()
	uc, _ := newActivationCodeFixture()
	ctx := context.Background()

	codes, err := uc.CreateCodes(ctx, 2, "admin")
	if err != nil {
		t.Fatalf("CreateCodes: %v", err)
	}
	if err := uc.Use(ctx, codes[0].Code, "alice"); err != nil {
		t.Fatalf("Use: %v", err)
	}

	csv, err := uc.ExportCSV(ctx)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	if lines[0] != "卡密,状态,创建时间,使用时间,使用用户,创建者" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("expected 2 data rows, got %d", len(lines)-1)
	}

	var usedRow, unusedRow string
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, codes[0].Code+",") {
			usedRow = line
		} else if strings.HasPrefix(line, codes[1].Code+",") {
			unusedRow = line
		}
	}
	if usedRow == "" || unusedRow == "" {
		t.Fatalf("rows missing: %q", csv)
	}

	usedFields := strings.Split(usedRow, ",")
	if len(usedFields) != 6 || usedFields[1] != "已使用" || usedFields[4] != "alice" || usedFields[5] != "admin" {
		t.Fatalf("unexpected used row: %q", usedRow)
	}
	unusedFields := strings.Split(unusedRow, ",")
	if unusedFields[1] != "未使用" || unusedFields[3] != "" || unusedFields[4] != "" {
		t.Fatalf("unexpected unused row: %q", unusedRow)
	}
}
