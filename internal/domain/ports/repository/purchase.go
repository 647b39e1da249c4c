package repository

import (
	"context"
	"time"

	"telegram-media-downloader/internal/domain/model"
)

// -----------------------------
// Priority purchases
// -----------------------------

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PriorityPurchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PriorityPurchase, error)
	ListPending(ctx context.Context, tx Tx) ([]*model.PriorityPurchase, error)
	// Resolve terminal-resolves a pending purchase. Returns ErrAlreadyResolved
	// when the purchase left pending before this call; a purchase is resolved
	// exactly once.
	Resolve(ctx context.Context, tx Tx, id string, status model.PurchaseStatus, priorityUntil *time.Time) error
}
