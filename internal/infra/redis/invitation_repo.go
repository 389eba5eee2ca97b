// File: internal/infra/redis/invitation_repo.go
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

var _ repository.InvitationRepository = (*InvitationRepo)(nil)

// InvitationRepo stores the relation under invite:invitee:<invitee> (at
// most one per invitee, enforced with SetNX), a per-inviter set of invitee
// usernames under invite:inviter:<inviter>, and the IP reward gate under
// invite:ip:<ip>.
type InvitationRepo struct {
	cli *redis.Client
}

func NewInvitationRepo(c *Client) *InvitationRepo {
	return &InvitationRepo{cli: c.cli}
}

func inviteeKey(invitee string) string { return "invite:invitee:" + invitee }

func inviterKey(inviter string) string { return "invite:inviter:" + inviter }

func ipRewardKey(ip string) string { return "invite:ip:" + ip }

func (r *InvitationRepo) Save(ctx context.Context, _ repository.Tx, inv *model.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	ok, err := r.cli.SetNX(ctx, inviteeKey(inv.Invitee), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return r.cli.SAdd(ctx, inviterKey(inv.Inviter), inv.Invitee).Err()
}

func (r *InvitationRepo) FindByInvitee(ctx context.Context, _ repository.Tx, invitee string) (*model.Invitation, error) {
	raw, err := r.cli.Get(ctx, inviteeKey(invitee)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var inv model.Invitation
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepo) ListByInviter(ctx context.Context, _ repository.Tx, inviter string) ([]*model.Invitation, error) {
	invitees, err := r.cli.SMembers(ctx, inviterKey(inviter)).Result()
	if err != nil {
		return nil, err
	}
	if len(invitees) == 0 {
		return nil, nil
	}
	keys := make([]string, len(invitees))
	for i, u := range invitees {
		keys[i] = inviteeKey(u)
	}
	raws, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Invitation, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var inv model.Invitation
		if err := json.Unmarshal([]byte(s), &inv); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, nil
}

var luaMarkRewarded = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return "missing" end
local rec = cjson.decode(raw)
rec.rewarded = true
rec.rewardTime = ARGV[1]
redis.call("SET", KEYS[1], cjson.encode(rec))
return "ok"`)

func (r *InvitationRepo) MarkRewarded(ctx context.Context, _ repository.Tx, invitee string, now time.Time) error {
	ts, err := now.MarshalText()
	if err != nil {
		return err
	}
	res, err := luaMarkRewarded.Run(ctx, r.cli, []string{inviteeKey(invitee)}, string(ts)).Result()
	if err != nil {
		return err
	}
	if res == "missing" {
		return domain.ErrNotFound
	}
	return nil
}

func (r *InvitationRepo) CreateIPReward(ctx context.Context, _ repository.Tx, rec *model.IPRewardRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := r.cli.SetNX(ctx, ipRewardKey(rec.IPAddress), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *InvitationRepo) FindIPReward(ctx context.Context, _ repository.Tx, ip string) (*model.IPRewardRecord, error) {
	raw, err := r.cli.Get(ctx, ipRewardKey(ip)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec model.IPRewardRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *InvitationRepo) DeleteIPReward(ctx context.Context, _ repository.Tx, ip string) error {
	return r.cli.Del(ctx, ipRewardKey(ip)).Err()
}

var _ repository.InvitationConfigRepository = (*InvitationConfigRepo)(nil)

// InvitationConfigRepo stores the singleton economy config at invite:config.
type InvitationConfigRepo struct {
	cli *redis.Client
}

func NewInvitationConfigRepo(c *Client) *InvitationConfigRepo {
	return &InvitationConfigRepo{cli: c.cli}
}

const invitationConfigKey = "invite:config"

func (r *InvitationConfigRepo) Get(ctx context.Context, _ repository.Tx) (*model.InvitationConfig, error) {
	raw, err := r.cli.Get(ctx, invitationConfigKey).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg model.InvitationConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *InvitationConfigRepo) Set(ctx context.Context, _ repository.Tx, cfg *model.InvitationConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.cli.Set(ctx, invitationConfigKey, data, 0).Err()
}
