package repository

import (
	"context"
	"time"

	"media-cardkey-platform/internal/domain/model"
)

// CardKeyRepository is the port for card keys and per-user bindings.
//
// Bind and MarkExpired are conditional state transitions: implementations
// MUST perform them as a single compare-and-set against the store (Lua
// script on Redis, conditional UPDATE on Postgres), never as a read-then-
// write pair in application code.
type CardKeyRepository interface {
	// Save creates a card key record. Fails with ErrAlreadyExists on a
	// hash collision.
	Save(ctx context.Context, tx Tx, key *model.CardKey) error
	// FindByHash returns the key or ErrCardKeyNotFound.
	FindByHash(ctx context.Context, tx Tx, hash string) (*model.CardKey, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.CardKey, error)
	ListByStatus(ctx context.Context, tx Tx, status model.CardKeyStatus) ([]*model.CardKey, error)
	// ListByOwner returns keys minted for a user via points redemption.
	ListByOwner(ctx context.Context, tx Tx, username string) ([]*model.CardKey, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.CardKeyStatus]int, error)

	// Bind flips the key to used and writes the user's binding in one
	// atomic step, conditioned on status=unused. Returns
	// ErrCardKeyAlreadyUsed when the conditional write loses the race and
	// ErrCardKeyNotFound when the hash does not resolve.
	Bind(ctx context.Context, tx Tx, hash, username string, now time.Time) error

	// MarkExpired transitions unused -> expired, conditioned on
	// status=unused. Returns false without error when the key was already
	// used or expired (sweep/bind race loser).
	MarkExpired(ctx context.Context, tx Tx, hash string) (bool, error)

	// Delete removes the key only while status=unused; returns false
	// otherwise (used/expired keys are the audit trail).
	Delete(ctx context.Context, tx Tx, hash string) (bool, error)

	// FindBinding returns the user's current binding or ErrNotFound.
	FindBinding(ctx context.Context, tx Tx, username string) (*model.UserCardKeyBinding, error)
}
