// File: internal/infra/redis/card_key_repo.go
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

var _ repository.CardKeyRepository = (*CardKeyRepo)(nil)

// CardKeyRepo stores card keys under cardkey:hash:<hash>, maintains one set
// of hashes per status under cardkey:status:<status>, an ownership set per
// user under cardkey:owner:<username>, and the per-user binding under
// cardkey:user:<username>. State transitions run as Lua scripts so the
// status check and the write are one atomic step.
type CardKeyRepo struct {
	cli *redis.Client
}

func NewCardKeyRepo(c *Client) *CardKeyRepo {
	return &CardKeyRepo{cli: c.cli}
}

func cardKeyHashKey(hash string) string { return "cardkey:hash:" + hash }

func cardKeyStatusKey(status model.CardKeyStatus) string {
	return "cardkey:status:" + string(status)
}

func cardKeyOwnerKey(username string) string { return "cardkey:owner:" + username }

func cardKeyBindingKey(username string) string { return "cardkey:user:" + username }

func marshalCardKey(key *model.CardKey) ([]byte, error) {
	stored := *key
	stored.Key = "" // plaintext is never persisted
	return json.Marshal(&stored)
}

// luaSaveCardKey inserts the record and its status/owner index entries in
// one server-side step, so a saved key is always visible to the listings.
var luaSaveCardKey = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call("SADD", KEYS[2], ARGV[2])
if ARGV[3] ~= "" then redis.call("SADD", KEYS[3], ARGV[2]) end
return 1`)

func (r *CardKeyRepo) Save(ctx context.Context, _ repository.Tx, key *model.CardKey) error {
	data, err := marshalCardKey(key)
	if err != nil {
		return err
	}
	res, err := luaSaveCardKey.Run(ctx, r.cli,
		[]string{cardKeyHashKey(key.KeyHash), cardKeyStatusKey(key.Status), cardKeyOwnerKey(key.Owner)},
		string(data), key.KeyHash, key.Owner,
	).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *CardKeyRepo) FindByHash(ctx context.Context, _ repository.Tx, hash string) (*model.CardKey, error) {
	raw, err := r.cli.Get(ctx, cardKeyHashKey(hash)).Result()
	if err == redis.Nil {
		return nil, domain.ErrCardKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	var key model.CardKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *CardKeyRepo) listByHashes(ctx context.Context, hashes []string) ([]*model.CardKey, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = cardKeyHashKey(h)
	}
	raws, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.CardKey, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue // record deleted under us
		}
		var key model.CardKey
		if err := json.Unmarshal([]byte(s), &key); err != nil {
			return nil, err
		}
		out = append(out, &key)
	}
	return out, nil
}

func (r *CardKeyRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.CardKey, error) {
	var out []*model.CardKey
	for _, st := range []model.CardKeyStatus{model.CardKeyStatusUnused, model.CardKeyStatusUsed, model.CardKeyStatusExpired} {
		keys, err := r.ListByStatus(ctx, tx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
	}
	return out, nil
}

func (r *CardKeyRepo) ListByStatus(ctx context.Context, _ repository.Tx, status model.CardKeyStatus) ([]*model.CardKey, error) {
	hashes, err := r.cli.SMembers(ctx, cardKeyStatusKey(status)).Result()
	if err != nil {
		return nil, err
	}
	return r.listByHashes(ctx, hashes)
}

func (r *CardKeyRepo) ListByOwner(ctx context.Context, _ repository.Tx, username string) ([]*model.CardKey, error) {
	hashes, err := r.cli.SMembers(ctx, cardKeyOwnerKey(username)).Result()
	if err != nil {
		return nil, err
	}
	return r.listByHashes(ctx, hashes)
}

func (r *CardKeyRepo) CountByStatus(ctx context.Context, _ repository.Tx) (map[model.CardKeyStatus]int, error) {
	counts := make(map[model.CardKeyStatus]int, 3)
	for _, st := range []model.CardKeyStatus{model.CardKeyStatusUnused, model.CardKeyStatusUsed, model.CardKeyStatusExpired} {
		n, err := r.cli.SCard(ctx, cardKeyStatusKey(st)).Result()
		if err != nil {
			return nil, err
		}
		counts[st] = int(n)
	}
	return counts, nil
}

// luaBind flips the key record to used, moves its hash between the status
// sets, and writes the user's binding, all conditioned on status=unused.
var luaBind = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return "missing" end
local rec = cjson.decode(raw)
if rec.status ~= "unused" then return "taken" end
rec.status = "used"
rec.boundTo = ARGV[1]
rec.boundAt = ARGV[2]
redis.call("SET", KEYS[1], cjson.encode(rec))
redis.call("SMOVE", KEYS[2], KEYS[3], ARGV[3])
redis.call("SET", KEYS[4], ARGV[4])
return "ok"`)

func (r *CardKeyRepo) Bind(ctx context.Context, tx repository.Tx, hash, username string, now time.Time) error {
	// ExpiresAt is immutable after creation, so reading it outside the
	// script is safe.
	key, err := r.FindByHash(ctx, tx, hash)
	if err != nil {
		return err
	}
	binding := model.UserCardKeyBinding{
		Username:     username,
		BoundKeyHash: hash,
		BoundAt:      now,
		ExpiresAt:    key.ExpiresAt,
	}
	bindingJSON, err := json.Marshal(&binding)
	if err != nil {
		return err
	}
	boundAt, err := now.MarshalText()
	if err != nil {
		return err
	}
	res, err := luaBind.Run(ctx, r.cli,
		[]string{
			cardKeyHashKey(hash),
			cardKeyStatusKey(model.CardKeyStatusUnused),
			cardKeyStatusKey(model.CardKeyStatusUsed),
			cardKeyBindingKey(username),
		},
		username, string(boundAt), hash, string(bindingJSON),
	).Result()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "taken":
		return domain.ErrCardKeyAlreadyUsed
	case "missing":
		return domain.ErrCardKeyNotFound
	}
	return fmt.Errorf("bind card key: unexpected script result %v", res)
}

var luaMarkExpired = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local rec = cjson.decode(raw)
if rec.status ~= "unused" then return 0 end
rec.status = "expired"
redis.call("SET", KEYS[1], cjson.encode(rec))
redis.call("SMOVE", KEYS[2], KEYS[3], ARGV[1])
return 1`)

func (r *CardKeyRepo) MarkExpired(ctx context.Context, _ repository.Tx, hash string) (bool, error) {
	res, err := luaMarkExpired.Run(ctx, r.cli,
		[]string{
			cardKeyHashKey(hash),
			cardKeyStatusKey(model.CardKeyStatusUnused),
			cardKeyStatusKey(model.CardKeyStatusExpired),
		},
		hash,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

var luaDeleteUnused = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local rec = cjson.decode(raw)
if rec.status ~= "unused" then return 0 end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if rec.owner and rec.owner ~= "" then
	redis.call("SREM", "cardkey:owner:" .. rec.owner, ARGV[1])
end
return 1`)

func (r *CardKeyRepo) Delete(ctx context.Context, _ repository.Tx, hash string) (bool, error) {
	res, err := luaDeleteUnused.Run(ctx, r.cli,
		[]string{cardKeyHashKey(hash), cardKeyStatusKey(model.CardKeyStatusUnused)},
		hash,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *CardKeyRepo) FindBinding(ctx context.Context, _ repository.Tx, username string) (*model.UserCardKeyBinding, error) {
	raw, err := r.cli.Get(ctx, cardKeyBindingKey(username)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b model.UserCardKeyBinding
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, err
	}
	return &b, nil
}
