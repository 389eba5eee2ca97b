package model

import (
	"time"

	"media-cardkey-platform/internal/domain"
)

// Invitation records the invitee -> inviter relation created at registration.
// At most one row exists per invitee.
type Invitation struct {
	ID             string     `json:"id"`
	Inviter        string     `json:"inviter"`
	Invitee        string     `json:"invitee"`
	InvitationCode string     `json:"invitationCode"`
	IPAddress      string     `json:"ipAddress"`
	Rewarded       bool       `json:"rewarded"`
	RewardTime     *time.Time `json:"rewardTime,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func NewInvitation(id, inviter, invitee, code, ip string, now time.Time) (*Invitation, error) {
	if id == "" || inviter == "" || invitee == "" || code == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Invitation{
		ID:             id,
		Inviter:        inviter,
		Invitee:        invitee,
		InvitationCode: code,
		IPAddress:      ip,
		CreatedAt:      now,
	}, nil
}

// IPRewardRecord is the one-per-IP anti-abuse marker. Its existence blocks
// any further invitation rewards from the same address.
type IPRewardRecord struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ipAddress"`
	Inviter    string    `json:"inviter"`
	Invitee    string    `json:"invitee"`
	RewardTime time.Time `json:"rewardTime"`
}

// InvitationConfig is the admin-managed singleton controlling the
// invitation/points economy.
type InvitationConfig struct {
	Enabled         bool        `json:"enabled"`
	RewardPoints    int64       `json:"rewardPoints"`
	RedeemThreshold int64       `json:"redeemThreshold"`
	CardKeyType     CardKeyType `json:"cardKeyType"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// DefaultInvitationConfig mirrors the defaults applied on first access.
func DefaultInvitationConfig(now time.Time) *InvitationConfig {
	return &InvitationConfig{
		Enabled:         true,
		RewardPoints:    100,
		RedeemThreshold: 500,
		CardKeyType:     CardKeyTypeWeek,
		UpdatedAt:       now,
	}
}

// Validate checks admin-supplied config updates.
func (c *InvitationConfig) Validate() error {
	if c.RewardPoints <= 0 {
		return domain.ErrInvalidArgument
	}
	if c.RedeemThreshold <= 0 {
		return domain.ErrInvalidArgument
	}
	if !c.CardKeyType.Valid() {
		return domain.ErrInvalidArgument
	}
	return nil
}

// UserInvitationInfo is the aggregate shown on the "my invitation" page.
type UserInvitationInfo struct {
	Code         string `json:"code"`
	InviteLink   string `json:"inviteLink,omitempty"`
	TotalInvites int    `json:"totalInvites"`
	TotalRewards int    `json:"totalRewards"`
	Balance      int64  `json:"balance"`
}
