// File: internal/infra/db/postgres/postgres_card_key_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.CardKeyRepository = (*PostgresCardKeyRepo)(nil)

type PostgresCardKeyRepo struct {
	pool *pgxpool.Pool
}

func NewCardKeyRepo(pool *pgxpool.Pool) *PostgresCardKeyRepo {
	return &PostgresCardKeyRepo{pool: pool}
}

const cardKeyColumns = `key_hash, key_type, status, created_at, expires_at, bound_to, bound_at, owner_username, source`

func scanCardKey(row pgx.Row) (*model.CardKey, error) {
	var (
		k       model.CardKey
		boundTo *string
		owner   *string
	)
	if err := row.Scan(&k.KeyHash, &k.KeyType, &k.Status, &k.CreatedAt, &k.ExpiresAt, &boundTo, &k.BoundAt, &owner, &k.Source); err != nil {
		return nil, err
	}
	if boundTo != nil {
		k.BoundTo = *boundTo
	}
	if owner != nil {
		k.Owner = *owner
	}
	return &k, nil
}

func (r *PostgresCardKeyRepo) Save(ctx context.Context, tx repository.Tx, key *model.CardKey) error {
	// plaintext key is never persisted
	const q = `
INSERT INTO card_keys (key_hash, key_type, status, created_at, expires_at, owner_username, source)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7);
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, key.KeyHash, key.KeyType, key.Status, key.CreatedAt, key.ExpiresAt, key.Owner, key.Source)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *PostgresCardKeyRepo) FindByHash(ctx context.Context, tx repository.Tx, hash string) (*model.CardKey, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	k, err := scanCardKey(exec.QueryRow(ctx, `SELECT `+cardKeyColumns+` FROM card_keys WHERE key_hash=$1;`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCardKeyNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return k, nil
}

func (r *PostgresCardKeyRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.CardKey, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CardKey
	for rows.Next() {
		k, err := scanCardKey(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *PostgresCardKeyRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.CardKey, error) {
	return r.list(ctx, tx, `SELECT `+cardKeyColumns+` FROM card_keys ORDER BY created_at DESC;`)
}

func (r *PostgresCardKeyRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.CardKeyStatus) ([]*model.CardKey, error) {
	return r.list(ctx, tx, `SELECT `+cardKeyColumns+` FROM card_keys WHERE status=$1 ORDER BY created_at DESC;`, status)
}

func (r *PostgresCardKeyRepo) ListByOwner(ctx context.Context, tx repository.Tx, username string) ([]*model.CardKey, error) {
	return r.list(ctx, tx, `SELECT `+cardKeyColumns+` FROM card_keys WHERE owner_username=$1 ORDER BY created_at DESC;`, username)
}

func (r *PostgresCardKeyRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.CardKeyStatus]int, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, `SELECT status, COUNT(*) FROM card_keys GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.CardKeyStatus]int{
		model.CardKeyStatusUnused:  0,
		model.CardKeyStatusUsed:    0,
		model.CardKeyStatusExpired: 0,
	}
	for rows.Next() {
		var st model.CardKeyStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// Bind flips the key and upserts the user's binding in a single statement,
// so the status guard and both writes commit or fail together.
func (r *PostgresCardKeyRepo) Bind(ctx context.Context, tx repository.Tx, hash, username string, now time.Time) error {
	const q = `
WITH flipped AS (
  UPDATE card_keys
     SET status='used', bound_to=$2, bound_at=$3
   WHERE key_hash=$1 AND status='unused'
  RETURNING key_hash, expires_at
)
INSERT INTO card_key_bindings (username, bound_key_hash, bound_at, expires_at)
SELECT $2, key_hash, $3, expires_at FROM flipped
ON CONFLICT (username) DO UPDATE SET
  bound_key_hash=EXCLUDED.bound_key_hash, bound_at=EXCLUDED.bound_at, expires_at=EXCLUDED.expires_at
RETURNING username;
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	var bound string
	err = exec.QueryRow(ctx, q, hash, username, now).Scan(&bound)
	if errors.Is(err, pgx.ErrNoRows) {
		// guard lost: key missing or already consumed
		var status model.CardKeyStatus
		err = exec.QueryRow(ctx, `SELECT status FROM card_keys WHERE key_hash=$1;`, hash).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrCardKeyNotFound
		}
		if err != nil {
			return domain.ErrReadDatabaseRow
		}
		return domain.ErrCardKeyAlreadyUsed
	}
	return err
}

func (r *PostgresCardKeyRepo) MarkExpired(ctx context.Context, tx repository.Tx, hash string) (bool, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	tag, err := exec.Exec(ctx, `UPDATE card_keys SET status='expired' WHERE key_hash=$1 AND status='unused';`, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresCardKeyRepo) Delete(ctx context.Context, tx repository.Tx, hash string) (bool, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	tag, err := exec.Exec(ctx, `DELETE FROM card_keys WHERE key_hash=$1 AND status='unused';`, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresCardKeyRepo) FindBinding(ctx context.Context, tx repository.Tx, username string) (*model.UserCardKeyBinding, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var b model.UserCardKeyBinding
	err = exec.QueryRow(ctx,
		`SELECT username, bound_key_hash, bound_at, expires_at FROM card_key_bindings WHERE username=$1;`, username,
	).Scan(&b.Username, &b.BoundKeyHash, &b.BoundAt, &b.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &b, nil
}
