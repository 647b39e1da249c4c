package repository

import (
	"context"

	"telegram-media-downloader/internal/domain/model"
)

// -----------------------------
// Downloads
// -----------------------------

type DownloadRepository interface {
	Create(ctx context.Context, tx Tx, d *model.Download) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Download, error)

	// UpdateProgress writes the latest progress snapshot. Latest write wins;
	// values are clamped to 0-100 but regressions are not rejected.
	UpdateProgress(ctx context.Context, tx Tx, id string, pct int, speedMBps float64, etaSeconds int) error

	// SetStatus performs a plain status transition (e.g. downloading ->
	// converting, completed -> sending during delivery). completed_at is set
	// when the new status is completed and not already recorded.
	SetStatus(ctx context.Context, tx Tx, id string, status model.DownloadStatus) error

	// MarkDownloading is the admission step: a single conditional update that
	// succeeds only while the job is still pending. Returns false when another
	// caller won the race, so admission is exactly-once.
	MarkDownloading(ctx context.Context, tx Tx, id string) (bool, error)

	// Complete records the artifact and stamps completed_at.
	Complete(ctx context.Context, tx Tx, id string, filePath string, sizeBytes int64) error

	// Fail records the failure classification and a truncated diagnostic.
	Fail(ctx context.Context, tx Tx, id string, kind model.FailureKind, detail string) error

	// ListPending returns pending jobs ordered for admission: the owner's
	// current priority tier first (unbounded, then unexpired time-bounded,
	// then none), then creation time. The tier is joined live against users,
	// never cached on the job.
	ListPending(ctx context.Context, tx Tx) ([]*model.Download, error)

	ListActiveForUser(ctx context.Context, tx Tx, userID int64) ([]*model.Download, error)

	// CountActive counts jobs occupying a concurrency slot
	// (downloading/converting/sending).
	CountActive(ctx context.Context, tx Tx) (int, error)

	// FindCompletedBySource returns the newest completed job for the
	// (source, quality) pair, or ErrNotFound.
	FindCompletedBySource(ctx context.Context, tx Tx, sourceURL, quality string) (*model.Download, error)

	// FindActiveBySource returns the user's own non-terminal job for the
	// (source, quality) pair, used as a duplicate-submission guard.
	FindActiveBySource(ctx context.Context, tx Tx, userID int64, sourceURL, quality string) (*model.Download, error)
}
