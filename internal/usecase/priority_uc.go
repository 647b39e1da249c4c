package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
	"telegram-media-downloader/internal/infra/logging"
	"telegram-media-downloader/internal/infra/metrics"
)

// PriorityUseCase covers the paid-priority lifecycle: purchase requests,
// admin decisions, and direct admin grants.
type PriorityUseCase struct {
	purchaseRepo repository.PurchaseRepository
	userRepo     repository.UserRepository
	txManager    repository.TransactionManager

	days     int
	priceUSD float64
	log      *zerolog.Logger
}

func NewPriorityUseCase(
	purchaseRepo repository.PurchaseRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	days int,
	priceUSD float64,
	logger *zerolog.Logger,
) *PriorityUseCase {
	l := logger.With().Str("component", "PriorityUseCase").Logger()
	if days <= 0 {
		days = 30
	}
	return &PriorityUseCase{
		purchaseRepo: purchaseRepo,
		userRepo:     userRepo,
		txManager:    txManager,
		days:         days,
		priceUSD:     priceUSD,
		log:          &l,
	}
}

func (uc *PriorityUseCase) Days() int         { return uc.days }
func (uc *PriorityUseCase) PriceUSD() float64 { return uc.priceUSD }

// RequestPurchase records a pending purchase awaiting an admin decision.
func (uc *PriorityUseCase) RequestPurchase(ctx context.Context, userID int64) (*model.PriorityPurchase, error) {
	p, err := model.NewPriorityPurchase(userID, uc.priceUSD)
	if err != nil {
		return nil, err
	}
	if err := uc.purchaseRepo.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("purchase_id", p.ID).Int64("user_id", userID).Msg("priority purchase requested")
	return p, nil
}

// Decide resolves a pending purchase. Approval resolves the purchase and
// extends the buyer's priority window in one transaction; the purchase can
// only be resolved once, so a double-tap of the admin button surfaces
// ErrAlreadyResolved instead of granting twice. An unbounded user keeps the
// unbounded variant; the approval is recorded against it without demoting.
func (uc *PriorityUseCase) Decide(ctx context.Context, purchaseID string, approve bool) (*model.PriorityPurchase, error) {
	defer logging.TraceDuration(uc.log, "PriorityUC.Decide")()
	var out *model.PriorityPurchase
	err := uc.txManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := uc.purchaseRepo.FindByID(ctx, tx, purchaseID)
		if err != nil {
			return err
		}

		if !approve {
			if err := uc.purchaseRepo.Resolve(ctx, tx, purchaseID, model.PurchaseStatusRejected, nil); err != nil {
				return err
			}
			p.Status = model.PurchaseStatusRejected
			out = p
			return nil
		}

		user, err := uc.userRepo.FindByID(ctx, tx, p.UserID)
		if err != nil {
			return err
		}

		next := extendPriority(user.Priority, uc.days, time.Now())
		until := next.Until
		var untilPtr *time.Time
		if next.Tier == model.PriorityUntil {
			untilPtr = &until
		}
		if err := uc.purchaseRepo.Resolve(ctx, tx, purchaseID, model.PurchaseStatusConfirmed, untilPtr); err != nil {
			return err
		}
		if err := uc.userRepo.SetPriority(ctx, tx, p.UserID, next); err != nil {
			return err
		}

		p.Status = model.PurchaseStatusConfirmed
		p.PriorityUntil = untilPtr
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if approve {
		metrics.IncPurchaseDecision("confirmed")
	} else {
		metrics.IncPurchaseDecision("rejected")
	}
	uc.log.Info().Str("purchase_id", purchaseID).Bool("approved", approve).Msg("priority purchase decided")
	return out, nil
}

// extendPriority stacks a new window on top of whatever is left of the old
// one. Unbounded is sticky.
func extendPriority(current model.Priority, days int, now time.Time) model.Priority {
	if current.Unbounded() {
		return current
	}
	base := now
	if current.Tier == model.PriorityUntil && current.Until.After(now) {
		base = current.Until
	}
	return model.PriorityUntilTime(base.Add(time.Duration(days) * 24 * time.Hour))
}

// Grant sets a user's priority directly, bypassing the purchase flow.
// Negative days grant the unbounded variant, zero revokes, positive days set
// a window counted from now.
func (uc *PriorityUseCase) Grant(ctx context.Context, userID int64, days int) (model.Priority, error) {
	var p model.Priority
	switch {
	case days < 0:
		p = model.UnboundedPriority()
	case days == 0:
		p = model.NoPriority()
	default:
		p = model.PriorityUntilTime(time.Now().Add(time.Duration(days) * 24 * time.Hour))
	}
	if err := uc.userRepo.SetPriority(ctx, repository.NoTX, userID, p); err != nil {
		return model.Priority{}, err
	}
	uc.log.Info().Int64("user_id", userID).Int("days", days).Msg("priority granted by admin")
	return p, nil
}

func (uc *PriorityUseCase) Revoke(ctx context.Context, userID int64) error {
	if err := uc.userRepo.SetPriority(ctx, repository.NoTX, userID, model.NoPriority()); err != nil {
		return err
	}
	uc.log.Info().Int64("user_id", userID).Msg("priority revoked")
	return nil
}

func (uc *PriorityUseCase) ListPendingPurchases(ctx context.Context) ([]*model.PriorityPurchase, error) {
	return uc.purchaseRepo.ListPending(ctx, repository.NoTX)
}

func (uc *PriorityUseCase) GetPurchase(ctx context.Context, purchaseID string) (*model.PriorityPurchase, error) {
	return uc.purchaseRepo.FindByID(ctx, repository.NoTX, purchaseID)
}

// ListPriorityUsers returns every user holding a non-none priority.
func (uc *PriorityUseCase) ListPriorityUsers(ctx context.Context) ([]*model.User, error) {
	return uc.userRepo.ListWithPriority(ctx, repository.NoTX)
}
