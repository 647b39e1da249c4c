package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
	"telegram-media-downloader/internal/infra/logging"
)

// UserUseCase keeps the user roster current and answers priority questions.
type UserUseCase struct {
	userRepo repository.UserRepository
	log      *zerolog.Logger
}

func NewUserUseCase(userRepo repository.UserRepository, logger *zerolog.Logger) *UserUseCase {
	l := logger.With().Str("component", "UserUseCase").Logger()
	return &UserUseCase{userRepo: userRepo, log: &l}
}

// EnsureUser registers the Telegram user on first contact and refreshes the
// stored names on subsequent contacts. Returns the stored row.
func (uc *UserUseCase) EnsureUser(ctx context.Context, tgID int64, username, firstName string) (*model.User, error) {
	defer logging.TraceDuration(uc.log, "UserUC.EnsureUser")()
	existing, err := uc.userRepo.FindByID(ctx, repository.NoTX, tgID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if (username != "" && username != existing.Username) ||
			(firstName != "" && firstName != existing.FirstName) {
			existing.Username = username
			existing.FirstName = firstName
			if err := uc.userRepo.Save(ctx, repository.NoTX, existing); err != nil {
				uc.log.Warn().Err(err).Int64("user_id", tgID).Msg("failed to refresh user names")
			}
		}
		return existing, nil
	}

	u, err := model.NewUser(tgID, username, firstName)
	if err != nil {
		return nil, err
	}
	if err := uc.userRepo.Save(ctx, repository.NoTX, u); err != nil {
		return nil, err
	}
	uc.log.Info().Int64("user_id", tgID).Str("username", username).Msg("registered new user")
	return u, nil
}

func (uc *UserUseCase) Get(ctx context.Context, tgID int64) (*model.User, error) {
	return uc.userRepo.FindByID(ctx, repository.NoTX, tgID)
}
