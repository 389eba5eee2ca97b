package repository

import (
	"context"
	"time"

	"media-cardkey-platform/internal/domain/model"
)

// InvitationRepository is the port for referral relations and the per-IP
// reward gate.
type InvitationRepository interface {
	// Save creates the invitee -> inviter relation. First write wins:
	// ErrAlreadyExists when the invitee already has a relation.
	Save(ctx context.Context, tx Tx, inv *model.Invitation) error
	// FindByInvitee returns the relation or ErrNotFound.
	FindByInvitee(ctx context.Context, tx Tx, invitee string) (*model.Invitation, error)
	ListByInviter(ctx context.Context, tx Tx, inviter string) ([]*model.Invitation, error)
	// MarkRewarded flips rewarded false -> true for the invitee's relation.
	MarkRewarded(ctx context.Context, tx Tx, invitee string, now time.Time) error

	// CreateIPReward is the anti-abuse gate: an insert-if-absent keyed by
	// IP address. ErrAlreadyExists means the address was rewarded before
	// and no points may be credited.
	CreateIPReward(ctx context.Context, tx Tx, rec *model.IPRewardRecord) error
	// FindIPReward returns the record for an address or ErrNotFound.
	FindIPReward(ctx context.Context, tx Tx, ip string) (*model.IPRewardRecord, error)
	// DeleteIPReward removes the gate record. Only used as compensation
	// when crediting fails after the insert succeeded.
	DeleteIPReward(ctx context.Context, tx Tx, ip string) error
}

// InvitationConfigRepository stores the singleton economy config.
type InvitationConfigRepository interface {
	// Get returns the config or ErrNotFound when never initialized.
	Get(ctx context.Context, tx Tx) (*model.InvitationConfig, error)
	Set(ctx context.Context, tx Tx, cfg *model.InvitationConfig) error
}
