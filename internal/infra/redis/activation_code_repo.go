// File: internal/infra/redis/activation_code_repo.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.ActivationCodeRepository = (*ActivationCodeRepo)(nil)

// ActivationCodeRepo stores codes under ackey:code:<code> with a set of all
// codes under ackey:all. Consumption is a Lua conditional write.
type ActivationCodeRepo struct {
	cli *redis.Client
}

func NewActivationCodeRepo(c *Client) *ActivationCodeRepo {
	return &ActivationCodeRepo{cli: c.cli}
}

func activationCodeKey(code string) string { return "ackey:code:" + code }

const activationCodeIndexKey = "ackey:all"

// luaSaveCode writes the record and its index entry in one server-side
// step, so a saved code is always visible to ListAll.
var luaSaveCode = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call("SADD", KEYS[2], ARGV[2])
return 1`)

func (r *ActivationCodeRepo) Save(ctx context.Context, _ repository.Tx, code *model.ActivationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return err
	}
	res, err := luaSaveCode.Run(ctx, r.cli,
		[]string{activationCodeKey(code.Code), activationCodeIndexKey},
		string(data), code.Code,
	).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *ActivationCodeRepo) Find(ctx context.Context, _ repository.Tx, code string) (*model.ActivationCode, error) {
	raw, err := r.cli.Get(ctx, activationCodeKey(code)).Result()
	if err == redis.Nil {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	var ac model.ActivationCode
	if err := json.Unmarshal([]byte(raw), &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

func (r *ActivationCodeRepo) ListAll(ctx context.Context, _ repository.Tx) ([]*model.ActivationCode, error) {
	codes, err := r.cli.SMembers(ctx, activationCodeIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}
	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = activationCodeKey(c)
	}
	raws, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.ActivationCode, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var ac model.ActivationCode
		if err := json.Unmarshal([]byte(s), &ac); err != nil {
			return nil, err
		}
		out = append(out, &ac)
	}
	return out, nil
}

var luaMarkCodeUsed = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return "missing" end
local rec = cjson.decode(raw)
if rec.status ~= "unused" then return "taken" end
rec.status = "used"
rec.usedBy = ARGV[1]
rec.usedAt = ARGV[2]
redis.call("SET", KEYS[1], cjson.encode(rec))
return "ok"`)

func (r *ActivationCodeRepo) MarkUsed(ctx context.Context, _ repository.Tx, code, username string, now time.Time) error {
	usedAt, err := now.MarshalText()
	if err != nil {
		return err
	}
	res, err := luaMarkCodeUsed.Run(ctx, r.cli,
		[]string{activationCodeKey(code)},
		username, string(usedAt),
	).Result()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "taken":
		return domain.ErrCodeAlreadyUsed
	case "missing":
		return domain.ErrCodeNotFound
	}
	return fmt.Errorf("mark activation code used: unexpected script result %v", res)
}

var luaDeleteUnusedCode = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local rec = cjson.decode(raw)
if rec.status ~= "unused" then return 0 end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return 1`)

func (r *ActivationCodeRepo) Delete(ctx context.Context, _ repository.Tx, code string) (bool, error) {
	res, err := luaDeleteUnusedCode.Run(ctx, r.cli,
		[]string{activationCodeKey(code), activationCodeIndexKey},
		code,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
