// File: internal/infra/db/postgres/postgres_invitation_repo.go
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

var _ repository.InvitationRepository = (*PostgresInvitationRepo)(nil)

type PostgresInvitationRepo struct {
	pool *pgxpool.Pool
}

func NewInvitationRepo(pool *pgxpool.Pool) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{pool: pool}
}

func scanInvitation(row pgx.Row) (*model.Invitation, error) {
	var (
		inv model.Invitation
		ip  *string
	)
	if err := row.Scan(&inv.ID, &inv.Inviter, &inv.Invitee, &inv.InvitationCode, &ip, &inv.Rewarded, &inv.RewardTime, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if ip != nil {
		inv.IPAddress = *ip
	}
	return &inv, nil
}

const invitationColumns = `id, inviter, invitee, invitation_code, ip_address, rewarded, reward_time, created_at`

func (r *PostgresInvitationRepo) Save(ctx context.Context, tx repository.Tx, inv *model.Invitation) error {
	// the UNIQUE constraint on invitee makes the first relation win
	const q = `
INSERT INTO invitations (id, inviter, invitee, invitation_code, ip_address, rewarded, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7);
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, inv.ID, inv.Inviter, inv.Invitee, inv.InvitationCode, inv.IPAddress, inv.Rewarded, inv.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *PostgresInvitationRepo) FindByInvitee(ctx context.Context, tx repository.Tx, invitee string) (*model.Invitation, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	inv, err := scanInvitation(exec.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE invitee=$1;`, invitee))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return inv, nil
}

func (r *PostgresInvitationRepo) ListByInviter(ctx context.Context, tx repository.Tx, inviter string) ([]*model.Invitation, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE inviter=$1 ORDER BY created_at DESC;`, inviter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PostgresInvitationRepo) MarkRewarded(ctx context.Context, tx repository.Tx, invitee string, now time.Time) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx,
		`UPDATE invitations SET rewarded=TRUE, reward_time=$2 WHERE invitee=$1;`, invitee, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresInvitationRepo) CreateIPReward(ctx context.Context, tx repository.Tx, rec *model.IPRewardRecord) error {
	const q = `
INSERT INTO ip_reward_records (id, ip_address, inviter, invitee, reward_time)
VALUES ($1, $2, $3, $4, $5);
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, rec.ID, rec.IPAddress, rec.Inviter, rec.Invitee, rec.RewardTime)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *PostgresInvitationRepo) FindIPReward(ctx context.Context, tx repository.Tx, ip string) (*model.IPRewardRecord, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var rec model.IPRewardRecord
	err = exec.QueryRow(ctx,
		`SELECT id, ip_address, inviter, invitee, reward_time FROM ip_reward_records WHERE ip_address=$1;`, ip,
	).Scan(&rec.ID, &rec.IPAddress, &rec.Inviter, &rec.Invitee, &rec.RewardTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &rec, nil
}

func (r *PostgresInvitationRepo) DeleteIPReward(ctx context.Context, tx repository.Tx, ip string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, `DELETE FROM ip_reward_records WHERE ip_address=$1;`, ip)
	return err
}

var _ repository.InvitationConfigRepository = (*PostgresInvitationConfigRepo)(nil)

// PostgresInvitationConfigRepo manages the single invitation_config row.
type PostgresInvitationConfigRepo struct {
	pool *pgxpool.Pool
}

func NewInvitationConfigRepo(pool *pgxpool.Pool) *PostgresInvitationConfigRepo {
	return &PostgresInvitationConfigRepo{pool: pool}
}

func (r *PostgresInvitationConfigRepo) Get(ctx context.Context, tx repository.Tx) (*model.InvitationConfig, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var cfg model.InvitationConfig
	err = exec.QueryRow(ctx,
		`SELECT enabled, reward_points, redeem_threshold, card_key_type, updated_at FROM invitation_config WHERE id=1;`,
	).Scan(&cfg.Enabled, &cfg.RewardPoints, &cfg.RedeemThreshold, &cfg.CardKeyType, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &cfg, nil
}

func (r *PostgresInvitationConfigRepo) Set(ctx context.Context, tx repository.Tx, cfg *model.InvitationConfig) error {
	const q = `
INSERT INTO invitation_config (id, enabled, reward_points, redeem_threshold, card_key_type, updated_at)
VALUES (1, $1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  enabled=EXCLUDED.enabled, reward_points=EXCLUDED.reward_points,
  redeem_threshold=EXCLUDED.redeem_threshold, card_key_type=EXCLUDED.card_key_type,
  updated_at=EXCLUDED.updated_at;
`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, cfg.Enabled, cfg.RewardPoints, cfg.RedeemThreshold, cfg.CardKeyType, cfg.UpdatedAt)
	return err
}
