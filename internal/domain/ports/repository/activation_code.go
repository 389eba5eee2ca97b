package repository

import (
	"context"
	"time"

	"media-cardkey-platform/internal/domain/model"
)

// ActivationCodeRepository is the port for managing activation codes.
type ActivationCodeRepository interface {
	// Save creates an activation code. Fails with ErrAlreadyExists if the
	// code is already present (collision check for the generator).
	Save(ctx context.Context, tx Tx, code *model.ActivationCode) error
	// Find returns the code record or ErrCodeNotFound.
	Find(ctx context.Context, tx Tx, code string) (*model.ActivationCode, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.ActivationCode, error)

	// MarkUsed transitions unused -> used as a conditional write. Returns
	// ErrCodeAlreadyUsed when the code was consumed first by a concurrent
	// caller and ErrCodeNotFound when it does not exist.
	MarkUsed(ctx context.Context, tx Tx, code, username string, now time.Time) error

	// Delete removes an unused code; returns false for used codes.
	Delete(ctx context.Context, tx Tx, code string) (bool, error)
}
