package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/ports/repository"
	"media-cardkey-platform/internal/infra/logging"
	"media-cardkey-platform/internal/infra/metrics"
)

// Compile-time check
var _ RedeemUseCase = (*redeemUC)(nil)

// RedeemResult is the typed outcome of a redemption attempt. Domain
// failures (insufficient balance, missing config) come back as
// Success=false with a user-facing message, not as an error.
type RedeemResult struct {
	Success bool   `json:"success"`
	CardKey string `json:"cardKey,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RedeemUseCase exchanges accumulated points for a freshly minted card key.
type RedeemUseCase interface {
	RedeemForCardKey(ctx context.Context, username string) (*RedeemResult, error)
}

const redeemLockTTL = 30 * time.Second

func redeemLockKey(username string) string { return "lock:redeem:" + username }

type redeemUC struct {
	configUC InvitationConfigUseCase
	pointsUC PointsUseCase
	keysUC   CardKeyUseCase
	locker   repository.Locker
	log      *zerolog.Logger
}

func NewRedeemUseCase(
	configUC InvitationConfigUseCase,
	pointsUC PointsUseCase,
	keysUC CardKeyUseCase,
	locker repository.Locker,
	logger *zerolog.Logger,
) *redeemUC {
	return &redeemUC{configUC: configUC, pointsUC: pointsUC, keysUC: keysUC, locker: locker, log: logger}
}

// RedeemForCardKey debits the configured threshold, then mints one key of
// the configured type owned by the user. The debit is the commit point; a
// mint failure afterwards triggers a compensating credit so a crash can
// never leave points gone with no key.
func (u *redeemUC) RedeemForCardKey(ctx context.Context, username string) (*RedeemResult, error) {
	defer logging.TraceDuration(u.log, "RedeemUC.RedeemForCardKey")()

	if username == "" {
		return nil, domain.ErrInvalidArgument
	}

	cfg, err := u.configUC.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConfigMissing) || errors.Is(err, domain.ErrNotFound) {
			return &RedeemResult{Success: false, Error: "邀请配置未设置"}, nil
		}
		return nil, err
	}

	// One redemption at a time per user; a second concurrent request waits
	// or fails rather than double-debiting.
	token, err := u.locker.TryLock(ctx, redeemLockKey(username), redeemLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(ctx, redeemLockKey(username), token) }()

	balance, err := u.pointsUC.GetBalance(ctx, username)
	if err != nil {
		return nil, err
	}
	if balance < cfg.RedeemThreshold {
		return &RedeemResult{
			Success: false,
			Error:   fmt.Sprintf("积分不足，当前余额: %d，需要: %d", balance, cfg.RedeemThreshold),
		}, nil
	}

	if err := u.pointsUC.DeductPoints(ctx, username, cfg.RedeemThreshold, "兑换卡密", ""); err != nil {
		if errors.Is(err, domain.ErrInsufficientPoints) {
			return &RedeemResult{
				Success: false,
				Error:   fmt.Sprintf("积分不足，当前余额: %d，需要: %d", balance, cfg.RedeemThreshold),
			}, nil
		}
		return nil, err
	}

	key, err := u.keysUC.CreateOwned(ctx, cfg.CardKeyType, username, "redeem")
	if err != nil {
		// Compensating credit: the debit already landed.
		if refundErr := u.pointsUC.AddPoints(ctx, username, cfg.RedeemThreshold, "兑换失败退还", ""); refundErr != nil {
			u.log.Error().Err(refundErr).Str("username", username).
				Int64("amount", cfg.RedeemThreshold).
				Msg("refund after failed mint also failed; manual reconciliation required")
			return nil, refundErr
		}
		u.log.Warn().Err(err).Str("username", username).Msg("card key mint failed, points refunded")
		return nil, err
	}

	metrics.IncRedemptions(string(cfg.CardKeyType))
	u.log.Info().Str("username", username).Str("type", string(cfg.CardKeyType)).Msg("points redeemed for card key")

	// The plaintext leaves the system exactly here; only the hash and
	// metadata remain queryable afterwards.
	return &RedeemResult{Success: true, CardKey: key.Key}, nil
}
