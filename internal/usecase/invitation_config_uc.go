package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ InvitationConfigUseCase = (*invitationConfigUC)(nil)

// InvitationConfigUseCase manages the singleton invitation economy config.
type InvitationConfigUseCase interface {
	// Get returns the config, initializing defaults on first access.
	Get(ctx context.Context) (*model.InvitationConfig, error)
	// Update validates and persists admin changes.
	Update(ctx context.Context, cfg *model.InvitationConfig) (*model.InvitationConfig, error)
}

type invitationConfigUC struct {
	repo repository.InvitationConfigRepository
	log  *zerolog.Logger
}

func NewInvitationConfigUseCase(repo repository.InvitationConfigRepository, logger *zerolog.Logger) *invitationConfigUC {
	return &invitationConfigUC{repo: repo, log: logger}
}

func (u *invitationConfigUC) Get(ctx context.Context) (*model.InvitationConfig, error) {
	cfg, err := u.repo.Get(ctx, repository.NoTX)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	cfg = model.DefaultInvitationConfig(time.Now())
	if err := u.repo.Set(ctx, repository.NoTX, cfg); err != nil {
		return nil, err
	}
	u.log.Info().Msg("invitation config initialized with defaults")
	return cfg, nil
}

func (u *invitationConfigUC) Update(ctx context.Context, cfg *model.InvitationConfig) (*model.InvitationConfig, error) {
	if cfg == nil {
		return nil, domain.ErrInvalidArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.UpdatedAt = time.Now()
	if err := u.repo.Set(ctx, repository.NoTX, cfg); err != nil {
		return nil, err
	}
	u.log.Info().
		Int64("reward_points", cfg.RewardPoints).
		Int64("redeem_threshold", cfg.RedeemThreshold).
		Str("card_key_type", string(cfg.CardKeyType)).
		Msg("invitation config updated")
	return cfg, nil
}
