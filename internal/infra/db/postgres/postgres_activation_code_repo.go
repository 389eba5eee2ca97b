// File: internal/infra/db/postgres/postgres_activation_code_repo.go
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

var _ repository.ActivationCodeRepository = (*PostgresActivationCodeRepo)(nil)

type PostgresActivationCodeRepo struct {
	pool *pgxpool.Pool
}

func NewActivationCodeRepo(pool *pgxpool.Pool) *PostgresActivationCodeRepo {
	return &PostgresActivationCodeRepo{pool: pool}
}

func scanActivationCode(row pgx.Row) (*model.ActivationCode, error) {
	var (
		ac     model.ActivationCode
		usedBy *string
	)
	if err := row.Scan(&ac.Code, &ac.Status, &ac.CreatedBy, &ac.CreatedAt, &usedBy, &ac.UsedAt); err != nil {
		return nil, err
	}
	if usedBy != nil {
		ac.UsedBy = *usedBy
	}
	return &ac, nil
}

func (r *PostgresActivationCodeRepo) Save(ctx context.Context, tx repository.Tx, code *model.ActivationCode) error {
	const q = `
INSERT INTO activation_codes (code, status, created_by, created_at)
VALUES ($1, $2, $3, $4);
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, code.Code, code.Status, code.CreatedBy, code.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *PostgresActivationCodeRepo) Find(ctx context.Context, tx repository.Tx, code string) (*model.ActivationCode, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	ac, err := scanActivationCode(exec.QueryRow(ctx,
		`SELECT code, status, created_by, created_at, used_by, used_at FROM activation_codes WHERE code=$1;`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return ac, nil
}

func (r *PostgresActivationCodeRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.ActivationCode, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx,
		`SELECT code, status, created_by, created_at, used_by, used_at FROM activation_codes ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ActivationCode
	for rows.Next() {
		ac, err := scanActivationCode(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

func (r *PostgresActivationCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code, username string, now time.Time) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx,
		`UPDATE activation_codes SET status='used', used_by=$2, used_at=$3 WHERE code=$1 AND status='unused';`,
		code, username, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// guard lost: missing or already consumed
	var status model.ActivationCodeStatus
	err = exec.QueryRow(ctx, `SELECT status FROM activation_codes WHERE code=$1;`, code).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCodeNotFound
	}
	if err != nil {
		return domain.ErrReadDatabaseRow
	}
	return domain.ErrCodeAlreadyUsed
}

func (r *PostgresActivationCodeRepo) Delete(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	tag, err := exec.Exec(ctx, `DELETE FROM activation_codes WHERE code=$1 AND status='unused';`, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
