// File: internal/infra/redis/points_repo.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/go-redis/redis/v8"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.PointsRepository = (*PointsRepo)(nil)

// PointsRepo stores accounts under points:user:<username>, the invitation
// code index under points:code:<code>, the set of all account usernames
// under points:users, and the ledger as a list under
// points:records:<username> (newest first).
//
// CompareAndSavePoints compares the raw stored bytes against the marshal of
// the expected record. All writers go through this repo, so the stored
// bytes are always the output of the same encoder and plain byte equality
// is a sound optimistic check.
type PointsRepo struct {
	cli *redis.Client
}

func NewPointsRepo(c *Client) *PointsRepo {
	return &PointsRepo{cli: c.cli}
}

func pointsUserKey(username string) string { return "points:user:" + username }

func pointsCodeKey(code string) string { return "points:code:" + code }

func pointsRecordsKey(username string) string { return "points:records:" + username }

const pointsIndexKey = "points:users"

func (r *PointsRepo) FindPoints(ctx context.Context, _ repository.Tx, username string) (*model.UserPoints, error) {
	raw, err := r.cli.Get(ctx, pointsUserKey(username)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p model.UserPoints
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// luaCreatePoints inserts the account and its index entries in one
// server-side step so a crash cannot leave an account invisible to
// ListAccounts or FindByInvitationCode.
var luaCreatePoints = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call("SADD", KEYS[2], ARGV[2])
if ARGV[3] ~= "" then redis.call("SET", KEYS[3], ARGV[2]) end
return 1`)

func (r *PointsRepo) CreatePoints(ctx context.Context, _ repository.Tx, p *model.UserPoints) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := luaCreatePoints.Run(ctx, r.cli,
		[]string{pointsUserKey(p.Username), pointsIndexKey, pointsCodeKey(p.InvitationCode)},
		string(data), p.Username, p.InvitationCode,
	).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// luaComparePoints is the whole optimistic write: compare, swap, append the
// ledger entry, refresh the code index. One script run, so the balance and
// its ledger entry land together or not at all.
var luaComparePoints = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2])
if ARGV[3] ~= "" then redis.call("LPUSH", KEYS[2], ARGV[3]) end
if ARGV[4] ~= "" then redis.call("SET", KEYS[3], ARGV[4]) end
return 1`)

func (r *PointsRepo) CompareAndSavePoints(ctx context.Context, _ repository.Tx, expected, updated *model.UserPoints, rec *model.PointsRecord) (bool, error) {
	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		return false, err
	}
	updatedJSON, err := json.Marshal(updated)
	if err != nil {
		return false, err
	}
	recJSON := ""
	if rec != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return false, err
		}
		recJSON = string(data)
	}
	codeOwner := ""
	if updated.InvitationCode != "" && updated.InvitationCode != expected.InvitationCode {
		codeOwner = updated.Username
	}
	res, err := luaComparePoints.Run(ctx, r.cli,
		[]string{pointsUserKey(updated.Username), pointsRecordsKey(updated.Username), pointsCodeKey(updated.InvitationCode)},
		string(expectedJSON), string(updatedJSON), recJSON, codeOwner,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *PointsRepo) FindByInvitationCode(ctx context.Context, tx repository.Tx, code string) (*model.UserPoints, error) {
	username, err := r.cli.Get(ctx, pointsCodeKey(code)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.FindPoints(ctx, tx, username)
}

func (r *PointsRepo) ListAccounts(ctx context.Context, tx repository.Tx) ([]*model.UserPoints, error) {
	usernames, err := r.cli.SMembers(ctx, pointsIndexKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(usernames)
	out := make([]*model.UserPoints, 0, len(usernames))
	for _, username := range usernames {
		p, err := r.FindPoints(ctx, tx, username)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PointsRepo) ListRecords(ctx context.Context, _ repository.Tx, username string, page, pageSize int) ([]*model.PointsRecord, error) {
	start := int64(page-1) * int64(pageSize)
	stop := start + int64(pageSize) - 1
	raws, err := r.cli.LRange(ctx, pointsRecordsKey(username), start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.PointsRecord, 0, len(raws))
	for _, raw := range raws {
		var rec model.PointsRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, nil
}
