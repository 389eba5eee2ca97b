package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/domain"
	"media-cardkey-platform/internal/domain/model"
	"media-cardkey-platform/internal/domain/ports/repository"
	"media-cardkey-platform/internal/infra/logging"
	"media-cardkey-platform/internal/infra/metrics"
)

// Compile-time check
var _ CardKeyUseCase = (*cardKeyUC)(nil)

// CardKeyUseCase manages the card-key lifecycle: minting, binding, expiry
// sweeps and admin maintenance.
type CardKeyUseCase interface {
	// Create mints count keys of the given type; count must be in [1,100].
	Create(ctx context.Context, keyType model.CardKeyType, count int) ([]*model.CardKey, error)
	// CreateOwned mints a single key owned by (but not bound to) a user.
	// Used by the points redemption flow.
	CreateOwned(ctx context.Context, keyType model.CardKeyType, owner, source string) (*model.CardKey, error)
	// Validate reports whether the plaintext resolves to a bindable key.
	Validate(ctx context.Context, plain string) (bool, error)
	// Bind consumes a key for a user.
	Bind(ctx context.Context, plain, username string) error
	// GetUserCardKey returns the user's active key view, or nil when the
	// user has no binding or the referenced key record is missing.
	GetUserCardKey(ctx context.Context, username string) (*model.CardKeyView, error)
	// ListByUser returns keys a user owns via redemption.
	ListByUser(ctx context.Context, username string) ([]*model.CardKey, error)
	List(ctx context.Context) ([]*model.CardKey, error)
	Count(ctx context.Context) (map[model.CardKeyStatus]int, error)
	// CleanupExpired sweeps unused keys past their expiry; returns the
	// number transitioned to expired.
	CleanupExpired(ctx context.Context) (int, error)
	// DeleteUnused hard-deletes an unused key; no-op false otherwise.
	DeleteUnused(ctx context.Context, hash string) (bool, error)
	ExportCSV(ctx context.Context) (string, error)
}

const maxCardKeyBatch = 100

type cardKeyUC struct {
	keys repository.CardKeyRepository
	log  *zerolog.Logger
}

func NewCardKeyUseCase(keys repository.CardKeyRepository, logger *zerolog.Logger) *cardKeyUC {
	return &cardKeyUC{keys: keys, log: logger}
}

func (u *cardKeyUC) Create(ctx context.Context, keyType model.CardKeyType, count int) ([]*model.CardKey, error) {
	defer logging.TraceDuration(u.log, "CardKeyUC.Create")()

	if !keyType.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if count < 1 || count > maxCardKeyBatch {
		return nil, domain.ErrInvalidArgument
	}

	out := make([]*model.CardKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := u.mint(ctx, keyType, "", "admin")
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	metrics.AddCardKeysCreated(string(keyType), count)
	u.log.Info().Str("type", string(keyType)).Int("count", count).Msg("card keys created")
	return out, nil
}

func (u *cardKeyUC) CreateOwned(ctx context.Context, keyType model.CardKeyType, owner, source string) (*model.CardKey, error) {
	if !keyType.Valid() || owner == "" {
		return nil, domain.ErrInvalidArgument
	}
	key, err := u.mint(ctx, keyType, owner, source)
	if err != nil {
		return nil, err
	}
	metrics.AddCardKeysCreated(string(keyType), 1)
	return key, nil
}

// mint generates a fresh collision-checked key and persists it.
func (u *cardKeyUC) mint(ctx context.Context, keyType model.CardKeyType, owner, source string) (*model.CardKey, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		plain, err := generateCardKey()
		if err != nil {
			return nil, err
		}
		key, err := model.NewCardKey(plain, keyType, time.Now())
		if err != nil {
			return nil, err
		}
		key.Owner = owner
		if source != "" {
			key.Source = source
		}
		err = u.keys.Save(ctx, repository.NoTX, key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, domain.ErrGenerationExhausted
}

func (u *cardKeyUC) Validate(ctx context.Context, plain string) (bool, error) {
	key, err := u.keys.FindByHash(ctx, repository.NoTX, model.HashKey(plain))
	if err != nil {
		if errors.Is(err, domain.ErrCardKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return key.Bindable(time.Now()) == nil, nil
}

func (u *cardKeyUC) Bind(ctx context.Context, plain, username string) error {
	defer logging.TraceDuration(u.log, "CardKeyUC.Bind")()
	start := time.Now()

	if plain == "" || username == "" {
		return domain.ErrInvalidArgument
	}

	hash := model.HashKey(plain)
	key, err := u.keys.FindByHash(ctx, repository.NoTX, hash)
	if err != nil {
		return err
	}
	if err := key.Bindable(time.Now()); err != nil {
		return err
	}

	// The repository flips the key and writes the binding in one atomic
	// conditional step; a concurrent bind or expiry sweep losing the race
	// surfaces here as ErrCardKeyAlreadyUsed.
	if err := u.keys.Bind(ctx, repository.NoTX, hash, username, time.Now()); err != nil {
		return err
	}

	metrics.IncCardKeysBound(string(key.KeyType))
	metrics.ObserveBindLatency(time.Since(start))
	u.log.Info().Str("username", username).Str("type", string(key.KeyType)).Msg("card key bound")
	return nil
}

func (u *cardKeyUC) GetUserCardKey(ctx context.Context, username string) (*model.CardKeyView, error) {
	binding, err := u.keys.FindBinding(ctx, repository.NoTX, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	key, err := u.keys.FindByHash(ctx, repository.NoTX, binding.BoundKeyHash)
	if err != nil {
		if errors.Is(err, domain.ErrCardKeyNotFound) {
			// Corrupt binding: the referenced key record is gone. Treated
			// as "no card key", not as an error.
			u.log.Warn().Str("username", username).Msg("binding references missing card key")
			return nil, nil
		}
		return nil, err
	}

	return model.NewCardKeyView(key, binding, time.Now()), nil
}

func (u *cardKeyUC) ListByUser(ctx context.Context, username string) ([]*model.CardKey, error) {
	return u.keys.ListByOwner(ctx, repository.NoTX, username)
}

func (u *cardKeyUC) List(ctx context.Context) ([]*model.CardKey, error) {
	return u.keys.ListAll(ctx, repository.NoTX)
}

func (u *cardKeyUC) Count(ctx context.Context) (map[model.CardKeyStatus]int, error) {
	return u.keys.CountByStatus(ctx, repository.NoTX)
}

func (u *cardKeyUC) CleanupExpired(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "CardKeyUC.CleanupExpired")()

	unused, err := u.keys.ListByStatus(ctx, repository.NoTX, model.CardKeyStatusUnused)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	cleaned := 0
	for _, key := range unused {
		if key.ExpiresAt.After(now) {
			continue
		}
		ok, err := u.keys.MarkExpired(ctx, repository.NoTX, key.KeyHash)
		if err != nil {
			return cleaned, err
		}
		// ok==false means a concurrent bind won the race; not counted.
		if ok {
			cleaned++
		}
	}
	if cleaned > 0 {
		metrics.AddCardKeysExpired(cleaned)
		u.log.Info().Int("count", cleaned).Msg("expired card keys swept")
	}
	return cleaned, nil
}

func (u *cardKeyUC) DeleteUnused(ctx context.Context, hash string) (bool, error) {
	ok, err := u.keys.Delete(ctx, repository.NoTX, hash)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.IncCardKeysDeleted()
	}
	return ok, nil
}

// ExportCSV renders all keys in the admin export format. Plaintext keys
// are not retrievable after minting, so the 卡密 column carries the hash.
func (u *cardKeyUC) ExportCSV(ctx context.Context) (string, error) {
	keys, err := u.keys.ListAll(ctx, repository.NoTX)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("卡密,类型,状态,创建时间,过期时间,绑定用户\n")
	for _, k := range keys {
		status := "未使用"
		switch k.Status {
		case model.CardKeyStatusUsed:
			status = "已使用"
		case model.CardKeyStatusExpired:
			status = "已过期"
		}
		b.WriteString(k.KeyHash)
		b.WriteByte(',')
		b.WriteString(string(k.KeyType))
		b.WriteByte(',')
		b.WriteString(status)
		b.WriteByte(',')
		b.WriteString(k.CreatedAt.Format(csvTimeLayout))
		b.WriteByte(',')
		b.WriteString(k.ExpiresAt.Format(csvTimeLayout))
		b.WriteByte(',')
		b.WriteString(k.BoundTo)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
