package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
	"media-cardkey-platform/internal/infra/logging"
	"media-cardkey-platform/internal/infra/metrics"
)

// Compile-time check
var _ InvitationUseCase = (*invitationUC)(nil)

// InvitationUseCase manages invitation codes, referral relations and the
// one-per-IP reward gate.
type InvitationUseCase interface {
	// EnsureCode returns the user's invitation code, minting and storing
	// one on first access.
	EnsureCode(ctx context.Context, username string) (string, error)
	// ValidateCode resolves a code to its owning inviter.
	ValidateCode(ctx context.Context, code string) (valid bool, inviter string, err error)
	// CreateReferral records the invitee -> inviter relation; first write
	// wins per invitee.
	CreateReferral(ctx context.Context, inviter, invitee, code, ip string) error
	// RewardForInvitation credits the inviter once per IP address.
	RewardForInvitation(ctx context.Context, inviter, invitee, ip string) (rewarded bool, err error)
	// CheckIPRewarded reports whether an address already received a reward.
	CheckIPRewarded(ctx context.Context, ip string) (bool, error)
	// GetUserInvitationInfo aggregates the "my invitation" page data.
	GetUserInvitationInfo(ctx context.Context, username string) (*model.UserInvitationInfo, error)
}

type invitationUC struct {
	invitations repository.InvitationRepository
	points      repository.PointsRepository
	config      repository.InvitationConfigRepository
	pointsUC    PointsUseCase
	locker      repository.Locker
	baseURL     string
	log         *zerolog.Logger
}

func NewInvitationUseCase(
	invitations repository.InvitationRepository,
	points repository.PointsRepository,
	config repository.InvitationConfigRepository,
	pointsUC PointsUseCase,
	locker repository.Locker,
	baseURL string,
	logger *zerolog.Logger,
) *invitationUC {
	return &invitationUC{
		invitations: invitations,
		points:      points,
		config:      config,
		pointsUC:    pointsUC,
		locker:      locker,
		baseURL:     baseURL,
		log:         logger,
	}
}

func (u *invitationUC) EnsureCode(ctx context.Context, username string) (string, error) {
	defer logging.TraceDuration(u.log, "InvitationUC.EnsureCode")()

	if username == "" {
		return "", domain.ErrInvalidArgument
	}

	// Serialize per user so two parallel "my invitation" requests cannot
	// mint two different codes.
	token, err := u.locker.TryLock(ctx, pointsLockKey(username), pointsLockTTL)
	if err != nil {
		return "", err
	}
	defer func() { _ = u.locker.Unlock(ctx, pointsLockKey(username), token) }()

	current, err := u.points.FindPoints(ctx, repository.NoTX, username)
	if errors.Is(err, domain.ErrNotFound) {
		fresh, err := model.NewUserPoints(username, time.Now())
		if err != nil {
			return "", err
		}
		if err := u.points.CreatePoints(ctx, repository.NoTX, fresh); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
		current, err = u.points.FindPoints(ctx, repository.NoTX, username)
		if err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	if current.InvitationCode != "" {
		return current.InvitationCode, nil
	}

	code, err := u.mintCode(ctx)
	if err != nil {
		return "", err
	}

	updated := *current
	updated.InvitationCode = code
	updated.UpdatedAt = time.Now()
	// no ledger record: assigning a code moves no points
	ok, err := u.points.CompareAndSavePoints(ctx, repository.NoTX, current, &updated, nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrConflict
	}
	u.log.Info().Str("username", username).Msg("invitation code assigned")
	return code, nil
}

// mintCode generates an invitation code not yet held by any user.
func (u *invitationUC) mintCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := generateInvitationCode()
		if err != nil {
			return "", err
		}
		_, err = u.points.FindByInvitationCode(ctx, repository.NoTX, code)
		if errors.Is(err, domain.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", domain.ErrGenerationExhausted
}

func (u *invitationUC) ValidateCode(ctx context.Context, code string) (bool, string, error) {
	if code == "" {
		return false, "", nil
	}
	p, err := u.points.FindByInvitationCode(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, p.Username, nil
}

func (u *invitationUC) CreateReferral(ctx context.Context, inviter, invitee, code, ip string) error {
	defer logging.TraceDuration(u.log, "InvitationUC.CreateReferral")()

	inv, err := model.NewInvitation(uuid.NewString(), inviter, invitee, code, ip, time.Now())
	if err != nil {
		return err
	}
	// First write wins: the repository rejects a second relation for the
	// same invitee.
	if err := u.invitations.Save(ctx, repository.NoTX, inv); err != nil {
		return err
	}
	u.log.Info().Str("inviter", inviter).Str("invitee", invitee).Msg("referral created")
	return nil
}

func (u *invitationUC) CheckIPRewarded(ctx context.Context, ip string) (bool, error) {
	_, err := u.invitations.FindIPReward(ctx, repository.NoTX, ip)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RewardForInvitation credits the inviter at most once per IP address. The
// gate record is inserted before the credit (insert-if-absent), so two
// racing registrations from the same address cannot both pass the check.
func (u *invitationUC) RewardForInvitation(ctx context.Context, inviter, invitee, ip string) (bool, error) {
	defer logging.TraceDuration(u.log, "InvitationUC.RewardForInvitation")()

	cfg, err := u.config.Get(ctx, repository.NoTX)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, domain.ErrConfigMissing
		}
		return false, err
	}
	if !cfg.Enabled {
		return false, nil
	}

	rec := &model.IPRewardRecord{
		ID:         uuid.NewString(),
		IPAddress:  ip,
		Inviter:    inviter,
		Invitee:    invitee,
		RewardTime: time.Now(),
	}
	if err := u.invitations.CreateIPReward(ctx, repository.NoTX, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			u.log.Debug().Str("ip", ip).Msg("ip already rewarded, skipping credit")
			return false, nil
		}
		return false, err
	}

	reason := fmt.Sprintf("邀请好友 %s 注册", invitee)
	if err := u.pointsUC.AddPoints(ctx, inviter, cfg.RewardPoints, reason, invitee); err != nil {
		// Compensate so a transient credit failure does not permanently
		// burn the address.
		if delErr := u.invitations.DeleteIPReward(ctx, repository.NoTX, ip); delErr != nil {
			u.log.Error().Err(delErr).Str("ip", ip).Msg("failed to roll back ip reward record")
		}
		return false, err
	}

	if err := u.invitations.MarkRewarded(ctx, repository.NoTX, invitee, time.Now()); err != nil {
		// The credit landed; the relation flag is presentation-only, so
		// log and carry on.
		u.log.Error().Err(err).Str("invitee", invitee).Msg("failed to mark invitation rewarded")
	}

	metrics.IncInvitationRewards()
	u.log.Info().Str("inviter", inviter).Str("invitee", invitee).Int64("points", cfg.RewardPoints).Msg("invitation reward granted")
	return true, nil
}

func (u *invitationUC) GetUserInvitationInfo(ctx context.Context, username string) (*model.UserInvitationInfo, error) {
	code, err := u.EnsureCode(ctx, username)
	if err != nil {
		return nil, err
	}

	invitations, err := u.invitations.ListByInviter(ctx, repository.NoTX, username)
	if err != nil {
		return nil, err
	}

	totalInvites := 0
	totalRewards := 0
	for _, inv := range invitations {
		if inv.Invitee == "" {
			continue
		}
		totalInvites++
		if inv.Rewarded {
			totalRewards++
		}
	}

	balance := int64(0)
	if p, err := u.points.FindPoints(ctx, repository.NoTX, username); err == nil {
		balance = p.Balance
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	info := &model.UserInvitationInfo{
		Code:         code,
		TotalInvites: totalInvites,
		TotalRewards: totalRewards,
		Balance:      balance,
	}
	if u.baseURL != "" {
		info.InviteLink = fmt.Sprintf("%s/register?invite=%s", u.baseURL, code)
	}
	return info, nil
}
