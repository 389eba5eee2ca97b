// File: internal/infra/db/postgres/lock.go
package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.Locker = (*PgLocker)(nil)

// PgLocker serializes multi-step flows with session-level advisory locks.
// Each held lock pins one pooled connection until Unlock releases it; the
// lock disappears with the session, so a crashed holder cannot wedge the
// key forever. The ttl argument is ignored for that reason.
type PgLocker struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[string]*pgxpool.Conn // token -> pinned connection
}

func NewLocker(pool *pgxpool.Pool) *PgLocker {
	return &PgLocker{pool: pool, held: make(map[string]*pgxpool.Conn)}
}

func (l *PgLocker) TryLock(ctx context.Context, key string, _ time.Duration) (string, error) {
	for i := 0; i < 5; i++ { // 5 tries
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return "", err
		}
		var ok bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1));`, key).Scan(&ok); err != nil {
			conn.Release()
			return "", err
		}
		if ok {
			token := uuid.NewString()
			l.mu.Lock()
			l.held[token] = conn
			l.mu.Unlock()
			return token, nil
		}
		conn.Release()
		time.Sleep(50 * time.Millisecond)
	}
	return "", domain.ErrConflict
}

func (l *PgLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	conn, ok := l.held[token]
	delete(l.held, token)
	l.mu.Unlock()
	if !ok {
		return nil // unknown token, nothing held
	}
	_, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1));`, key)
	conn.Release()
	return err
}
