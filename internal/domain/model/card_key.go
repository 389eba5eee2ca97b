package model

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"media-cardkey-platform/internal/domain"
)

// CardKeyType determines the access duration granted when a key is bound.
type CardKeyType string

const (
	CardKeyTypeWeek    CardKeyType = "week"
	CardKeyTypeMonth   CardKeyType = "month"
	CardKeyTypeQuarter CardKeyType = "quarter"
	CardKeyTypeYear    CardKeyType = "year"
)

func (t CardKeyType) Valid() bool {
	switch t {
	case CardKeyTypeWeek, CardKeyTypeMonth, CardKeyTypeQuarter, CardKeyTypeYear:
		return true
	}
	return false
}

// Duration returns the validity window granted by this key type.
func (t CardKeyType) Duration() time.Duration {
	switch t {
	case CardKeyTypeWeek:
		return 7 * 24 * time.Hour
	case CardKeyTypeMonth:
		return 30 * 24 * time.Hour
	case CardKeyTypeQuarter:
		return 90 * 24 * time.Hour
	case CardKeyTypeYear:
		return 365 * 24 * time.Hour
	}
	return 0
}

type CardKeyStatus string

const (
	CardKeyStatusUnused  CardKeyStatus = "unused"
	CardKeyStatusUsed    CardKeyStatus = "used"
	CardKeyStatusExpired CardKeyStatus = "expired"
)

// CardKey is a prepaid token granting time-limited account access.
// The plaintext Key is shown to a user exactly once; KeyHash is the
// stable identifier used for all lookups.
type CardKey struct {
	Key       string        `json:"key"`
	KeyHash   string        `json:"keyHash"`
	KeyType   CardKeyType   `json:"keyType"`
	Status    CardKeyStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"` // fixed at creation, never recalculated
	BoundTo   string        `json:"boundTo,omitempty"`
	BoundAt   *time.Time    `json:"boundAt,omitempty"`
	Owner     string        `json:"owner,omitempty"`  // set for keys minted via points redemption
	Source    string        `json:"source,omitempty"` // "admin" | "redeem"
}

// HashKey derives the stable lookup identifier from a plaintext key.
func HashKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func NewCardKey(plain string, keyType CardKeyType, now time.Time) (*CardKey, error) {
	if plain == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !keyType.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return &CardKey{
		Key:       plain,
		KeyHash:   HashKey(plain),
		KeyType:   keyType,
		Status:    CardKeyStatusUnused,
		CreatedAt: now,
		ExpiresAt: now.Add(keyType.Duration()),
		Source:    "admin",
	}, nil
}

// Bindable reports whether the key can still be bound at the given instant.
func (k *CardKey) Bindable(now time.Time) error {
	if k.Status != CardKeyStatusUnused {
		return domain.ErrCardKeyAlreadyUsed
	}
	if !k.ExpiresAt.After(now) {
		return domain.ErrCardKeyExpired
	}
	return nil
}

// UserCardKeyBinding is the per-user pointer to the currently bound key.
type UserCardKeyBinding struct {
	Username     string    `json:"username"`
	BoundKeyHash string    `json:"boundKeyHash"`
	BoundAt      time.Time `json:"boundAt"`
	ExpiresAt    time.Time `json:"expiresAt"` // copied from the CardKey at bind time
}

// CardKeyView is the user-facing projection of a binding plus its key.
type CardKeyView struct {
	PlainKey      string      `json:"plainKey"`
	KeyHash       string      `json:"keyHash"`
	KeyType       CardKeyType `json:"keyType"`
	BoundAt       time.Time   `json:"boundAt"`
	ExpiresAt     time.Time   `json:"expiresAt"`
	DaysRemaining int         `json:"daysRemaining"`
	IsExpired     bool        `json:"isExpired"`
	IsExpiring    bool        `json:"isExpiring"`
}

// NewCardKeyView computes the display fields relative to now.
func NewCardKeyView(key *CardKey, b *UserCardKeyBinding, now time.Time) *CardKeyView {
	days := int(math.Ceil(b.ExpiresAt.Sub(now).Hours() / 24))
	expired := b.ExpiresAt.Before(now)
	return &CardKeyView{
		PlainKey:      key.Key,
		KeyHash:       key.KeyHash,
		KeyType:       key.KeyType,
		BoundAt:       b.BoundAt,
		ExpiresAt:     b.ExpiresAt,
		DaysRemaining: days,
		IsExpired:     expired,
		IsExpiring:    !expired && days <= 30,
	}
}
