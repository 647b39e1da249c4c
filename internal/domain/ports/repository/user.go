package repository

import (
	"context"

	"telegram-media-downloader/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Save upserts the user. Username/first name are only overwritten when
	// non-empty, so a bare id reference never clobbers known names.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
	// SetPriority replaces the user's priority variant.
	SetPriority(ctx context.Context, tx Tx, id int64, p model.Priority) error
	// AddDownloadStats bumps the cumulative counters after a completed job.
	AddDownloadStats(ctx context.Context, tx Tx, id int64, bytes int64) error
	// ListWithPriority returns users whose priority is not none, unbounded first.
	ListWithPriority(ctx context.Context, tx Tx) ([]*model.User, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)
}
