package model

import (
	"time"

	"media-cardkey-platform/internal/domain"
)

type ActivationCodeStatus string

const (
	ActivationCodeStatusUnused ActivationCodeStatus = "unused"
	ActivationCodeStatusUsed   ActivationCodeStatus = "used"
)

// ActivationCode is a single-use registration/renewal gate token. Unlike a
// CardKey it has no type-based expiry; its state machine is unused -> used.
type ActivationCode struct {
	Code      string               `json:"code"`
	Status    ActivationCodeStatus `json:"status"`
	CreatedBy string               `json:"createdBy"`
	CreatedAt time.Time            `json:"createdAt"`
	UsedBy    string               `json:"usedBy,omitempty"`
	UsedAt    *time.Time           `json:"usedAt,omitempty"`
}

func NewActivationCode(code, createdBy string, now time.Time) (*ActivationCode, error) {
	if code == "" || createdBy == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ActivationCode{
		Code:      code,
		Status:    ActivationCodeStatusUnused,
		CreatedBy: createdBy,
		CreatedAt: now,
	}, nil
}
