package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
	"media-cardkey-platform/internal/infra/logging"
	"media-cardkey-platform/internal/infra/metrics"
)

// Compile-time check
var _ PointsUseCase = (*pointsUC)(nil)

// PointsUseCase maintains per-user point balances and the append-only
// ledger behind them.
type PointsUseCase interface {
	// GetBalance returns 0 for users without a points record.
	GetBalance(ctx context.Context, username string) (int64, error)
	// AddPoints credits a user, lazily creating the points record on the
	// first credit so an inviter's first referral reward is never lost.
	AddPoints(ctx context.Context, username string, amount int64, reason, relatedUser string) error
	// DeductPoints debits a user; ErrInsufficientPoints when balance < amount.
	DeductPoints(ctx context.Context, username string, amount int64, reason, cardKeyID string) error
	// AdminAdjust credits or debits on behalf of an administrator.
	AdminAdjust(ctx context.Context, username, adjustType string, amount int64, reason, adminUsername string) error
	// GetHistory pages the user's ledger newest-first.
	GetHistory(ctx context.Context, username string, page, pageSize int) ([]*model.PointsRecord, error)
	// ListAccounts returns every points account for the admin overview.
	ListAccounts(ctx context.Context) ([]*model.UserPoints, error)
}

const (
	// casRetries bounds optimistic-concurrency retries on a lost race.
	casRetries = 3

	pointsLockTTL = 10 * time.Second
)

func pointsLockKey(username string) string { return "lock:points:" + username }

type pointsUC struct {
	points repository.PointsRepository
	tm     repository.TransactionManager
	locker repository.Locker
	log    *zerolog.Logger
}

func NewPointsUseCase(points repository.PointsRepository, tm repository.TransactionManager, locker repository.Locker, logger *zerolog.Logger) *pointsUC {
	return &pointsUC{points: points, tm: tm, locker: locker, log: logger}
}

func (u *pointsUC) GetBalance(ctx context.Context, username string) (int64, error) {
	p, err := u.points.FindPoints(ctx, repository.NoTX, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.Balance, nil
}

func (u *pointsUC) AddPoints(ctx context.Context, username string, amount int64, reason, relatedUser string) error {
	defer logging.TraceDuration(u.log, "PointsUC.AddPoints")()

	if username == "" || amount <= 0 {
		return domain.ErrInvalidArgument
	}
	rec := &model.PointsRecord{
		Type:        model.PointsRecordTypeEarn,
		Amount:      amount,
		Reason:      reason,
		RelatedUser: relatedUser,
	}
	if err := u.mutate(ctx, username, amount, rec); err != nil {
		return err
	}
	metrics.AddPointsEarned(amount)
	u.log.Info().Str("username", username).Int64("amount", amount).Str("reason", reason).Msg("points credited")
	return nil
}

func (u *pointsUC) DeductPoints(ctx context.Context, username string, amount int64, reason, cardKeyID string) error {
	defer logging.TraceDuration(u.log, "PointsUC.DeductPoints")()

	if username == "" || amount <= 0 {
		return domain.ErrInvalidArgument
	}
	rec := &model.PointsRecord{
		Type:      model.PointsRecordTypeRedeem,
		Amount:    -amount,
		Reason:    reason,
		CardKeyID: cardKeyID,
	}
	if err := u.mutate(ctx, username, -amount, rec); err != nil {
		return err
	}
	metrics.AddPointsRedeemed(amount)
	u.log.Info().Str("username", username).Int64("amount", amount).Str("reason", reason).Msg("points debited")
	return nil
}

func (u *pointsUC) AdminAdjust(ctx context.Context, username, adjustType string, amount int64, reason, adminUsername string) error {
	defer logging.TraceDuration(u.log, "PointsUC.AdminAdjust")()

	if username == "" || adminUsername == "" || amount <= 0 {
		return domain.ErrInvalidArgument
	}
	if len(reason) == 0 || len(reason) > 200 {
		return domain.ErrInvalidArgument
	}

	var delta int64
	switch adjustType {
	case "add":
		delta = amount
	case "deduct":
		delta = -amount
	default:
		return domain.ErrInvalidArgument
	}

	rec := &model.PointsRecord{
		Type:          model.PointsRecordTypeAdminAdjust,
		Amount:        delta,
		Reason:        reason,
		AdminUsername: adminUsername,
	}
	if err := u.mutate(ctx, username, delta, rec); err != nil {
		return err
	}
	u.log.Info().Str("username", username).Str("admin", adminUsername).Int64("delta", delta).Msg("points adjusted by admin")
	return nil
}

func (u *pointsUC) GetHistory(ctx context.Context, username string, page, pageSize int) ([]*model.PointsRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return u.points.ListRecords(ctx, repository.NoTX, username, page, pageSize)
}

func (u *pointsUC) ListAccounts(ctx context.Context) ([]*model.UserPoints, error) {
	return u.points.ListAccounts(ctx, repository.NoTX)
}

// mutate applies a signed balance delta and appends the matching ledger
// record as one logical transaction, serialized per username by the Locker
// and guarded by an optimistic compare-and-save retry loop.
func (u *pointsUC) mutate(ctx context.Context, username string, delta int64, rec *model.PointsRecord) error {
	token, err := u.locker.TryLock(ctx, pointsLockKey(username), pointsLockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = u.locker.Unlock(ctx, pointsLockKey(username), token) }()

	return u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for attempt := 0; attempt < casRetries; attempt++ {
			now := time.Now()

			current, err := u.points.FindPoints(ctx, tx, username)
			if errors.Is(err, domain.ErrNotFound) {
				if delta < 0 {
					return domain.ErrInsufficientPoints
				}
				fresh, err := model.NewUserPoints(username, now)
				if err != nil {
					return err
				}
				if err := u.points.CreatePoints(ctx, tx, fresh); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
					return err
				}
				current, err = u.points.FindPoints(ctx, tx, username)
				if err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			if current.Balance+delta < 0 {
				return domain.ErrInsufficientPoints
			}

			updated := *current
			updated.Balance += delta
			if delta > 0 {
				updated.TotalEarned += delta
			} else {
				updated.TotalRedeemed += -delta
			}
			updated.UpdatedAt = now

			entry := *rec
			entry.ID = ulid.Make().String()
			entry.Username = username
			entry.CreatedAt = now

			ok, err := u.points.CompareAndSavePoints(ctx, tx, current, &updated, &entry)
			if err != nil {
				return err
			}
			if !ok {
				continue // lost the race, re-read and retry
			}
			return nil
		}
		return domain.ErrConflict
	})
}
