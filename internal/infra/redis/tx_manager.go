// File: internal/infra/redis/tx_manager.go
package redis

import (
	"context"

	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager is the Redis rendition of repository.TransactionManager. There
// is no multi-statement transaction to open: every mutating repository
// operation is individually atomic (Lua conditional write), and multi-step
// flows are serialized by a Locker at the use-case level. The callback runs
// with NoTX.
type TxManager struct{}

func NewTxManager() *TxManager { return &TxManager{} }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}
