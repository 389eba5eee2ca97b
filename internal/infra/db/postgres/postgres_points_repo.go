// File: internal/infra/db/postgres/postgres_points_repo.go
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.PointsRepository = (*PostgresPointsRepo)(nil)

type PostgresPointsRepo struct {
	pool *pgxpool.Pool
}

func NewPointsRepo(pool *pgxpool.Pool) *PostgresPointsRepo {
	return &PostgresPointsRepo{pool: pool}
}

func scanUserPoints(row pgx.Row) (*model.UserPoints, error) {
	var (
		p    model.UserPoints
		code *string
	)
	if err := row.Scan(&p.Username, &p.Balance, &p.TotalEarned, &p.TotalRedeemed, &code, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if code != nil {
		p.InvitationCode = *code
	}
	return &p, nil
}

const userPointsColumns = `username, balance, total_earned, total_redeemed, invitation_code, updated_at`

func (r *PostgresPointsRepo) FindPoints(ctx context.Context, tx repository.Tx, username string) (*model.UserPoints, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	p, err := scanUserPoints(exec.QueryRow(ctx,
		`SELECT `+userPointsColumns+` FROM user_points WHERE username=$1;`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *PostgresPointsRepo) CreatePoints(ctx context.Context, tx repository.Tx, p *model.UserPoints) error {
	const q = `
INSERT INTO user_points (username, balance, total_earned, total_redeemed, invitation_code, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6);
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, p.Username, p.Balance, p.TotalEarned, p.TotalRedeemed, p.InvitationCode, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

// CompareAndSavePoints is a guarded UPDATE: the write lands only when the
// stored row still carries the expected balance counters. With a ledger
// record it becomes a single CTE statement so the balance and its entry
// commit together even outside an explicit transaction.
func (r *PostgresPointsRepo) CompareAndSavePoints(ctx context.Context, tx repository.Tx, expected, updated *model.UserPoints, rec *model.PointsRecord) (bool, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		const q = `
UPDATE user_points
   SET balance=$2, total_earned=$3, total_redeemed=$4, invitation_code=NULLIF($5, ''), updated_at=$6
 WHERE username=$1
   AND balance=$7 AND total_earned=$8 AND total_redeemed=$9
   AND COALESCE(invitation_code, '')=$10;
`
		tag, err := exec.Exec(ctx, q,
			updated.Username, updated.Balance, updated.TotalEarned, updated.TotalRedeemed, updated.InvitationCode, updated.UpdatedAt,
			expected.Balance, expected.TotalEarned, expected.TotalRedeemed, expected.InvitationCode,
		)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() == 1, nil
	}

	const q = `
WITH saved AS (
	UPDATE user_points
	   SET balance=$2, total_earned=$3, total_redeemed=$4, invitation_code=NULLIF($5, ''), updated_at=$6
	 WHERE username=$1
	   AND balance=$7 AND total_earned=$8 AND total_redeemed=$9
	   AND COALESCE(invitation_code, '')=$10
	RETURNING username
)
INSERT INTO points_records (id, username, record_type, amount, reason, related_user, card_key_id, admin_username, created_at)
SELECT $11, username, $12, $13, $14, NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), $18
  FROM saved;
`
	tag, err := exec.Exec(ctx, q,
		updated.Username, updated.Balance, updated.TotalEarned, updated.TotalRedeemed, updated.InvitationCode, updated.UpdatedAt,
		expected.Balance, expected.TotalEarned, expected.TotalRedeemed, expected.InvitationCode,
		rec.ID, rec.Type, rec.Amount, rec.Reason, rec.RelatedUser, rec.CardKeyID, rec.AdminUsername, rec.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPointsRepo) FindByInvitationCode(ctx context.Context, tx repository.Tx, code string) (*model.UserPoints, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	p, err := scanUserPoints(exec.QueryRow(ctx,
		`SELECT `+userPointsColumns+` FROM user_points WHERE invitation_code=$1;`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *PostgresPointsRepo) ListAccounts(ctx context.Context, tx repository.Tx) ([]*model.UserPoints, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx,
		`SELECT `+userPointsColumns+` FROM user_points ORDER BY username;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UserPoints
	for rows.Next() {
		var (
			p    model.UserPoints
			code *string
		)
		if err := rows.Scan(&p.Username, &p.Balance, &p.TotalEarned, &p.TotalRedeemed, &code, &p.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if code != nil {
			p.InvitationCode = *code
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PostgresPointsRepo) ListRecords(ctx context.Context, tx repository.Tx, username string, page, pageSize int) ([]*model.PointsRecord, error) {
	// IDs are ULIDs, so ordering by id descends through time
	const q = `
SELECT id, username, record_type, amount, reason, related_user, card_key_id, admin_username, created_at
  FROM points_records
 WHERE username=$1
 ORDER BY id DESC
 LIMIT $2 OFFSET $3;
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, q, username, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PointsRecord
	for rows.Next() {
		var (
			rec     model.PointsRecord
			related *string
			keyID   *string
			admin   *string
		)
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Type, &rec.Amount, &rec.Reason, &related, &keyID, &admin, &rec.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if related != nil {
			rec.RelatedUser = *related
		}
		if keyID != nil {
			rec.CardKeyID = *keyID
		}
		if admin != nil {
			rec.AdminUsername = *admin
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
