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
)

// Compile-time check
var _ ActivationCodeUseCase = (*activationCodeUC)(nil)

// ActivationCodeUseCase manages single-use registration/renewal codes.
type ActivationCodeUseCase interface {
	// CreateCodes mints count fresh codes; count must be in [1,1000].
	CreateCodes(ctx context.Context, count int, createdBy string) ([]*model.ActivationCode, error)
	// Validate reports whether the code exists and is still unused.
	Validate(ctx context.Context, code string) (bool, error)
	// Use consumes a code for a user; at-most-once per code.
	Use(ctx context.Context, code, username string) error
	List(ctx context.Context) ([]*model.ActivationCode, error)
	// Delete removes an unused code; used codes are kept for audit.
	Delete(ctx context.Context, code string) (bool, error)
	// ExportCSV renders all codes in the admin export format.
	ExportCSV(ctx context.Context) (string, error)
}

const maxActivationCodeBatch = 1000

type activationCodeUC struct {
	codes repository.ActivationCodeRepository
	log   *zerolog.Logger
}

func NewActivationCodeUseCase(codes repository.ActivationCodeRepository, logger *zerolog.Logger) *activationCodeUC {
	return &activationCodeUC{codes: codes, log: logger}
}

func (u *activationCodeUC) CreateCodes(ctx context.Context, count int, createdBy string) ([]*model.ActivationCode, error) {
	defer logging.TraceDuration(u.log, "ActivationCodeUC.CreateCodes")()

	if count < 1 || count > maxActivationCodeBatch {
		return nil, domain.ErrInvalidArgument
	}
	if createdBy == "" {
		return nil, domain.ErrInvalidArgument
	}

	out := make([]*model.ActivationCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := u.createOne(ctx, createdBy)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	u.log.Info().Int("count", count).Str("created_by", createdBy).Msg("activation codes created")
	return out, nil
}

// createOne generates and persists a single code, retrying on the rare
// collision until the attempt limit runs out.
func (u *activationCodeUC) createOne(ctx context.Context, createdBy string) (*model.ActivationCode, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		raw, err := generateActivationCode()
		if err != nil {
			return nil, err
		}
		code, err := model.NewActivationCode(raw, createdBy, time.Now())
		if err != nil {
			return nil, err
		}
		err = u.codes.Save(ctx, repository.NoTX, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, domain.ErrGenerationExhausted
}

func (u *activationCodeUC) Validate(ctx context.Context, code string) (bool, error) {
	ac, err := u.codes.Find(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return ac.Status == model.ActivationCodeStatusUnused, nil
}

func (u *activationCodeUC) Use(ctx context.Context, code, username string) error {
	defer logging.TraceDuration(u.log, "ActivationCodeUC.Use")()

	if code == "" || username == "" {
		return domain.ErrInvalidArgument
	}
	// The repository performs the unused->used flip as a conditional write,
	// so two concurrent callers can never both consume the same code.
	if err := u.codes.MarkUsed(ctx, repository.NoTX, code, username, time.Now()); err != nil {
		return err
	}
	u.log.Info().Str("username", username).Msg("activation code consumed")
	return nil
}

func (u *activationCodeUC) List(ctx context.Context) ([]*model.ActivationCode, error) {
	return u.codes.ListAll(ctx, repository.NoTX)
}

func (u *activationCodeUC) Delete(ctx context.Context, code string) (bool, error) {
	return u.codes.Delete(ctx, repository.NoTX, code)
}

const csvTimeLayout = "2006-01-02 15:04:05"

// ExportCSV keeps the legacy admin export format byte-for-byte: Chinese
// header, comma separation, no quoting of embedded commas.
func (u *activationCodeUC) ExportCSV(ctx context.Context) (string, error) {
	codes, err := u.codes.ListAll(ctx, repository.NoTX)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("卡密,状态,创建时间,使用时间,使用用户,创建者\n")
	for _, c := range codes {
		status := "未使用"
		if c.Status == model.ActivationCodeStatusUsed {
			status = "已使用"
		}
		usedAt := ""
		if c.UsedAt != nil {
			usedAt = c.UsedAt.Format(csvTimeLayout)
		}
		b.WriteString(c.Code)
		b.WriteByte(',')
		b.WriteString(status)
		b.WriteByte(',')
		b.WriteString(c.CreatedAt.Format(csvTimeLayout))
		b.WriteByte(',')
		b.WriteString(usedAt)
		b.WriteByte(',')
		b.WriteString(c.UsedBy)
		b.WriteByte(',')
		b.WriteString(c.CreatedBy)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
