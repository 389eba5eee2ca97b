package model

import (
	"time"

	"media-cardkey-platform/internal/domain"
)

// UserPoints is the per-user points account. The balance invariant
// balance == totalEarned - totalRedeemed holds after every mutation and is
// reconstructable from the PointsRecord ledger.
type UserPoints struct {
	Username       string    `json:"username"`
	Balance        int64     `json:"balance"`
	TotalEarned    int64     `json:"totalEarned"`
	TotalRedeemed  int64     `json:"totalRedeemed"`
	InvitationCode string    `json:"invitationCode,omitempty"` // assigned lazily
	UpdatedAt      time.Time `json:"updatedAt"`
}

func NewUserPoints(username string, now time.Time) (*UserPoints, error) {
	if username == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &UserPoints{Username: username, UpdatedAt: now}, nil
}

type PointsRecordType string

const (
	PointsRecordTypeEarn        PointsRecordType = "earn"
	PointsRecordTypeRedeem      PointsRecordType = "redeem"
	PointsRecordTypeAdminAdjust PointsRecordType = "admin_adjust"
)

// PointsRecord is an immutable, append-only ledger entry. Amount is signed:
// positive for credits, negative for debits.
type PointsRecord struct {
	ID            string           `json:"id"`
	Username      string           `json:"username"`
	Type          PointsRecordType `json:"type"`
	Amount        int64            `json:"amount"`
	Reason        string           `json:"reason"`
	RelatedUser   string           `json:"relatedUser,omitempty"`
	CardKeyID     string           `json:"cardKeyId,omitempty"`
	AdminUsername string           `json:"adminUsername,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}
