//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- In-memory fakes for the repository ports ---

type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// memLocker provides real mutual exclusion so concurrency tests exercise
// the same serialization the production lockers give.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string // key -> token
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	for i := 0; i < 200; i++ {
		l.mu.Lock()
		if _, busy := l.held[key]; !busy {
			token := uuid.NewString()
			l.held[key] = token
			l.mu.Unlock()
			return token, nil
		}
		l.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", domain.ErrConflict
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// --- card keys ---

type memCardKeyRepo struct {
	mu       sync.Mutex
	keys     map[string]*model.CardKey            // by hash
	bindings map[string]*model.UserCardKeyBinding // by username
	SaveErr  error                                // injected failure
}

func newMemCardKeyRepo() *memCardKeyRepo {
	return &memCardKeyRepo{
		keys:     make(map[string]*model.CardKey),
		bindings: make(map[string]*model.UserCardKeyBinding),
	}
}

func (m *memCardKeyRepo) Save(_ context.Context, _ repository.Tx, key *model.CardKey) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key.KeyHash]; ok {
		return domain.ErrAlreadyExists
	}
	stored := *key
	stored.Key = ""
	m.keys[key.KeyHash] = &stored
	return nil
}

func (m *memCardKeyRepo) FindByHash(_ context.Context, _ repository.Tx, hash string) (*model.CardKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[hash]
	if !ok {
		return nil, domain.ErrCardKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *memCardKeyRepo) ListAll(_ context.Context, _ repository.Tx) ([]*model.CardKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.CardKey, 0, len(m.keys))
	for _, k := range m.keys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyHash < out[j].KeyHash })
	return out, nil
}

func (m *memCardKeyRepo) ListByStatus(_ context.Context, _ repository.Tx, status model.CardKeyStatus) ([]*model.CardKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CardKey
	for _, k := range m.keys {
		if k.Status == status {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCardKeyRepo) ListByOwner(_ context.Context, _ repository.Tx, username string) ([]*model.CardKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CardKey
	for _, k := range m.keys {
		if k.Owner == username {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCardKeyRepo) CountByStatus(_ context.Context, _ repository.Tx) (map[model.CardKeyStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.CardKeyStatus]int{
		model.CardKeyStatusUnused:  0,
		model.CardKeyStatusUsed:    0,
		model.CardKeyStatusExpired: 0,
	}
	for _, k := range m.keys {
		counts[k.Status]++
	}
	return counts, nil
}

func (m *memCardKeyRepo) Bind(_ context.Context, _ repository.Tx, hash, username string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[hash]
	if !ok {
		return domain.ErrCardKeyNotFound
	}
	if k.Status != model.CardKeyStatusUnused {
		return domain.ErrCardKeyAlreadyUsed
	}
	k.Status = model.CardKeyStatusUsed
	k.BoundTo = username
	boundAt := now
	k.BoundAt = &boundAt
	m.bindings[username] = &model.UserCardKeyBinding{
		Username:     username,
		BoundKeyHash: hash,
		BoundAt:      now,
		ExpiresAt:    k.ExpiresAt,
	}
	return nil
}

func (m *memCardKeyRepo) MarkExpired(_ context.Context, _ repository.Tx, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[hash]
	if !ok || k.Status != model.CardKeyStatusUnused {
		return false, nil
	}
	k.Status = model.CardKeyStatusExpired
	return true, nil
}

func (m *memCardKeyRepo) Delete(_ context.Context, _ repository.Tx, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[hash]
	if !ok || k.Status != model.CardKeyStatusUnused {
		return false, nil
	}
	delete(m.keys, hash)
	return true, nil
}

func (m *memCardKeyRepo) FindBinding(_ context.Context, _ repository.Tx, username string) (*model.UserCardKeyBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// dropKey simulates a corrupted store for the orphan-binding path.
func (m *memCardKeyRepo) dropKey(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, hash)
}

// --- activation codes ---

type memActivationCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*model.ActivationCode
}

func newMemActivationCodeRepo() *memActivationCodeRepo {
	return &memActivationCodeRepo{codes: make(map[string]*model.ActivationCode)}
}

func (m *memActivationCodeRepo) Save(_ context.Context, _ repository.Tx, code *model.ActivationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code.Code]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *code
	m.codes[code.Code] = &cp
	return nil
}

func (m *memActivationCodeRepo) Find(_ context.Context, _ repository.Tx, code string) (*model.ActivationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memActivationCodeRepo) ListAll(_ context.Context, _ repository.Tx) ([]*model.ActivationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ActivationCode, 0, len(m.codes))
	for _, c := range m.codes {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memActivationCodeRepo) MarkUsed(_ context.Context, _ repository.Tx, code, username string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return domain.ErrCodeNotFound
	}
	if c.Status != model.ActivationCodeStatusUnused {
		return domain.ErrCodeAlreadyUsed
	}
	c.Status = model.ActivationCodeStatusUsed
	c.UsedBy = username
	usedAt := now
	c.UsedAt = &usedAt
	return nil
}

func (m *memActivationCodeRepo) Delete(_ context.Context, _ repository.Tx, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.Status != model.ActivationCodeStatusUnused {
		return false, nil
	}
	delete(m.codes, code)
	return true, nil
}

// --- points ---

type memPointsRepo struct {
	mu      sync.Mutex
	points  map[string]*model.UserPoints
	records map[string][]*model.PointsRecord // newest first
}

func newMemPointsRepo() *memPointsRepo {
	return &memPointsRepo{
		points:  make(map[string]*model.UserPoints),
		records: make(map[string][]*model.PointsRecord),
	}
}

func (m *memPointsRepo) FindPoints(_ context.Context, _ repository.Tx, username string) (*model.UserPoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPointsRepo) CreatePoints(_ context.Context, _ repository.Tx, p *model.UserPoints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.points[p.Username]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.points[p.Username] = &cp
	return nil
}

func (m *memPointsRepo) CompareAndSavePoints(_ context.Context, _ repository.Tx, expected, updated *model.UserPoints, rec *model.PointsRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.points[updated.Username]
	if !ok {
		return false, nil
	}
	if *current != *expected {
		return false, nil
	}
	cp := *updated
	m.points[updated.Username] = &cp
	if rec != nil {
		rc := *rec
		m.records[rec.Username] = append([]*model.PointsRecord{&rc}, m.records[rec.Username]...)
	}
	return true, nil
}

func (m *memPointsRepo) FindByInvitationCode(_ context.Context, _ repository.Tx, code string) (*model.UserPoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.points {
		if p.InvitationCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPointsRepo) ListAccounts(_ context.Context, _ repository.Tx) ([]*model.UserPoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	usernames := make([]string, 0, len(m.points))
	for u := range m.points {
		usernames = append(usernames, u)
	}
	sort.Strings(usernames)
	out := make([]*model.UserPoints, 0, len(usernames))
	for _, u := range usernames {
		cp := *m.points[u]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memPointsRepo) ListRecords(_ context.Context, _ repository.Tx, username string, page, pageSize int) ([]*model.PointsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[username]
	start := (page - 1) * pageSize
	if start >= len(recs) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(recs) {
		end = len(recs)
	}
	out := make([]*model.PointsRecord, 0, end-start)
	for _, r := range recs[start:end] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// --- invitations ---

type memInvitationRepo struct {
	mu        sync.Mutex
	byInvitee map[string]*model.Invitation
	ipRewards map[string]*model.IPRewardRecord
}

func newMemInvitationRepo() *memInvitationRepo {
	return &memInvitationRepo{
		byInvitee: make(map[string]*model.Invitation),
		ipRewards: make(map[string]*model.IPRewardRecord),
	}
}

func (m *memInvitationRepo) Save(_ context.Context, _ repository.Tx, inv *model.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byInvitee[inv.Invitee]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *inv
	m.byInvitee[inv.Invitee] = &cp
	return nil
}

func (m *memInvitationRepo) FindByInvitee(_ context.Context, _ repository.Tx, invitee string) (*model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byInvitee[invitee]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvitationRepo) ListByInviter(_ context.Context, _ repository.Tx, inviter string) ([]*model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Invitation
	for _, inv := range m.byInvitee {
		if inv.Inviter == inviter {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInvitationRepo) MarkRewarded(_ context.Context, _ repository.Tx, invitee string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byInvitee[invitee]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Rewarded = true
	t := now
	inv.RewardTime = &t
	return nil
}

func (m *memInvitationRepo) CreateIPReward(_ context.Context, _ repository.Tx, rec *model.IPRewardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ipRewards[rec.IPAddress]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *rec
	m.ipRewards[rec.IPAddress] = &cp
	return nil
}

func (m *memInvitationRepo) FindIPReward(_ context.Context, _ repository.Tx, ip string) (*model.IPRewardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.ipRewards[ip]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memInvitationRepo) DeleteIPReward(_ context.Context, _ repository.Tx, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ipRewards, ip)
	return nil
}

type memInvitationConfigRepo struct {
	mu  sync.Mutex
	cfg *model.InvitationConfig
}

func (m *memInvitationConfigRepo) Get(_ context.Context, _ repository.Tx) (*model.InvitationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, domain.ErrNotFound
	}
	cp := *m.cfg
	return &cp, nil
}

func (m *memInvitationConfigRepo) Set(_ context.Context, _ repository.Tx, cfg *model.InvitationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.cfg = &cp
	return nil
}
