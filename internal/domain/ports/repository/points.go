package repository

import (
	"context"

	"media-cardkey-platform/internal/domain/model"
)

// PointsRepository is the port for the per-user points account and its
// append-only ledger.
type PointsRepository interface {
	// FindPoints returns the user's account or ErrNotFound.
	FindPoints(ctx context.Context, tx Tx, username string) (*model.UserPoints, error)
	// CreatePoints inserts a fresh account; ErrAlreadyExists if present.
	CreatePoints(ctx context.Context, tx Tx, p *model.UserPoints) error

	// CompareAndSavePoints writes `updated` only if the stored record still
	// matches `expected` (optimistic concurrency), and appends rec to the
	// ledger in the same atomic step when rec is non-nil. The balance never
	// moves without its ledger entry, even on backends without real
	// transactions. Returns false on a lost race so callers can re-read and
	// retry; a lost race writes nothing.
	CompareAndSavePoints(ctx context.Context, tx Tx, expected, updated *model.UserPoints, rec *model.PointsRecord) (bool, error)

	// FindByInvitationCode resolves the account holding a given invitation
	// code, or ErrNotFound.
	FindByInvitationCode(ctx context.Context, tx Tx, code string) (*model.UserPoints, error)

	// ListAccounts returns every points account ordered by username.
	ListAccounts(ctx context.Context, tx Tx) ([]*model.UserPoints, error)
	// ListRecords pages through a user's ledger newest-first.
	ListRecords(ctx context.Context, tx Tx, username string, page, pageSize int) ([]*model.PointsRecord, error)
}
