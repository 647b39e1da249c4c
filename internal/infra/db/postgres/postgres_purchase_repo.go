package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `id, user_id, amount_usd, status, confirmed_at, priority_until, created_at`

func (r *purchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.PriorityPurchase) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO priority_purchases (id, user_id, amount_usd, status, confirmed_at, priority_until, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.AmountUSD, p.Status, p.ConfirmedAt, p.PriorityUntil, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PriorityPurchase, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+purchaseColumns+` FROM priority_purchases WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) ListPending(ctx context.Context, tx repository.Tx) ([]*model.PriorityPurchase, error) {
	const q = `
SELECT ` + purchaseColumns + `
  FROM priority_purchases
 WHERE status='pending'
 ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PriorityPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Resolve terminal-resolves the purchase; the status guard makes resolution
// exactly-once.
func (r *purchaseRepo) Resolve(ctx context.Context, tx repository.Tx, id string, status model.PurchaseStatus, priorityUntil *time.Time) error {
	var confirmedAt *time.Time
	if status == model.PurchaseStatusConfirmed {
		now := time.Now()
		confirmedAt = &now
	}
	const q = `
UPDATE priority_purchases
   SET status=$1, confirmed_at=$2, priority_until=$3
 WHERE id=$4 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, status, confirmedAt, priorityUntil, id)
	if err != nil {
		return fmt.Errorf("resolve purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the id is unknown or the purchase already left pending.
		if _, ferr := r.FindByID(ctx, tx, id); ferr != nil {
			return ferr
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

func scanPurchase(row pgx.Row) (*model.PriorityPurchase, error) {
	var (
		p      model.PriorityPurchase
		status string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.AmountUSD, &status, &p.ConfirmedAt, &p.PriorityUntil, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = model.PurchaseStatus(status)
	return &p, nil
}
