package model

import (
	"time"

	"telegram-media-downloader/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusConfirmed PurchaseStatus = "confirmed"
	PurchaseStatusRejected  PurchaseStatus = "rejected"
)

// PriorityPurchase records a user's request to buy queue priority, awaiting
// an admin decision. Resolved exactly once; immutable afterwards.
type PriorityPurchase struct {
	ID            string
	UserID        int64
	AmountUSD     float64
	Status        PurchaseStatus
	ConfirmedAt   *time.Time
	PriorityUntil *time.Time // expiry granted on confirmation; nil until then
	CreatedAt     time.Time
}

func NewPriorityPurchase(userID int64, amountUSD float64) (*PriorityPurchase, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PriorityPurchase{
		UserID:    userID,
		AmountUSD: amountUSD,
		Status:    PurchaseStatusPending,
		CreatedAt: time.Now(),
	}, nil
}

func (p *PriorityPurchase) Resolved() bool {
	return p.Status != PurchaseStatusPending
}
