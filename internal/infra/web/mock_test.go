//go:build !integration

// File: internal/infra/web/mock_test.go
package web

import (
	"context"

	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/usecase"
)

// Function-field fakes for the use-case ports. Handlers under test only
// touch the fields a test sets; anything else panics loudly.

type fakeCardKeyUC struct {
	usecase.CardKeyUseCase
	CreateFn         func(ctx context.Context, keyType model.CardKeyType, count int) ([]*model.CardKey, error)
	BindFn           func(ctx context.Context, plain, username string) error
	GetUserCardKeyFn func(ctx context.Context, username string) (*model.CardKeyView, error)
	ListFn           func(ctx context.Context) ([]*model.CardKey, error)
	CountFn          func(ctx context.Context) (map[model.CardKeyStatus]int, error)
	CleanupExpiredFn func(ctx context.Context) (int, error)
	DeleteUnusedFn   func(ctx context.Context, hash string) (bool, error)
	ExportCSVFn      func(ctx context.Context) (string, error)
}

func (f *fakeCardKeyUC) Create(ctx context.Context, keyType model.CardKeyType, count int) ([]*model.CardKey, error) {
	return f.CreateFn(ctx, keyType, count)
}
func (f *fakeCardKeyUC) Bind(ctx context.Context, plain, username string) error {
	return f.BindFn(ctx, plain, username)
}
func (f *fakeCardKeyUC) GetUserCardKey(ctx context.Context, username string) (*model.CardKeyView, error) {
	return f.GetUserCardKeyFn(ctx, username)
}
func (f *fakeCardKeyUC) List(ctx context.Context) ([]*model.CardKey, error) { return f.ListFn(ctx) }
func (f *fakeCardKeyUC) Count(ctx context.Context) (map[model.CardKeyStatus]int, error) {
	return f.CountFn(ctx)
}
func (f *fakeCardKeyUC) CleanupExpired(ctx context.Context) (int, error) {
	return f.CleanupExpiredFn(ctx)
}
func (f *fakeCardKeyUC) DeleteUnused(ctx context.Context, hash string) (bool, error) {
	return f.DeleteUnusedFn(ctx, hash)
}
func (f *fakeCardKeyUC) ExportCSV(ctx context.Context) (string, error) { return f.ExportCSVFn(ctx) }

type fakeActivationCodeUC struct {
	usecase.ActivationCodeUseCase
	ValidateFn func(ctx context.Context, code string) (bool, error)
	UseFn      func(ctx context.Context, code, username string) error
}

func (f *fakeActivationCodeUC) Validate(ctx context.Context, code string) (bool, error) {
	return f.ValidateFn(ctx, code)
}
func (f *fakeActivationCodeUC) Use(ctx context.Context, code, username string) error {
	return f.UseFn(ctx, code, username)
}

type fakePointsUC struct {
	usecase.PointsUseCase
	GetBalanceFn   func(ctx context.Context, username string) (int64, error)
	AdminAdjustFn  func(ctx context.Context, username, adjustType string, amount int64, reason, adminUsername string) error
	GetHistoryFn   func(ctx context.Context, username string, page, pageSize int) ([]*model.PointsRecord, error)
	ListAccountsFn func(ctx context.Context) ([]*model.UserPoints, error)
}

func (f *fakePointsUC) GetBalance(ctx context.Context, username string) (int64, error) {
	return f.GetBalanceFn(ctx, username)
}
func (f *fakePointsUC) AdminAdjust(ctx context.Context, username, adjustType string, amount int64, reason, adminUsername string) error {
	return f.AdminAdjustFn(ctx, username, adjustType, amount, reason, adminUsername)
}
func (f *fakePointsUC) GetHistory(ctx context.Context, username string, page, pageSize int) ([]*model.PointsRecord, error) {
	return f.GetHistoryFn(ctx, username, page, pageSize)
}
func (f *fakePointsUC) ListAccounts(ctx context.Context) ([]*model.UserPoints, error) {
	return f.ListAccountsFn(ctx)
}

type fakeRedeemUC struct {
	RedeemFn func(ctx context.Context, username string) (*usecase.RedeemResult, error)
}

func (f *fakeRedeemUC) RedeemForCardKey(ctx context.Context, username string) (*usecase.RedeemResult, error) {
	return f.RedeemFn(ctx, username)
}

type fakeInvitationUC struct {
	usecase.InvitationUseCase
	ValidateCodeFn func(ctx context.Context, code string) (bool, string, error)
	InfoFn         func(ctx context.Context, username string) (*model.UserInvitationInfo, error)
}

func (f *fakeInvitationUC) ValidateCode(ctx context.Context, code string) (bool, string, error) {
	return f.ValidateCodeFn(ctx, code)
}
func (f *fakeInvitationUC) GetUserInvitationInfo(ctx context.Context, username string) (*model.UserInvitationInfo, error) {
	return f.InfoFn(ctx, username)
}
