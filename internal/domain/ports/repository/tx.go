package repository

import (
	"context"
	"time"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must gracefully accept NoTX for the
// non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager executes a function within a storage transaction,
// passing the backend's tx handle via `tx`.
//
// The Postgres implementation opens a real transaction; the Redis
// implementation runs fn with NoTX, because its repositories make each
// mutating operation individually atomic (Lua conditional writes) and
// cross-record grouping is handled by a Locker at the use-case level.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Locker is a distributed mutual-exclusion primitive used to serialize
// multi-step operations on the same entity (per-username balance mutation,
// per-user redemption).
type Locker interface {
	// TryLock acquires the lock or fails after a bounded number of attempts.
	// The returned token must be passed to Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
