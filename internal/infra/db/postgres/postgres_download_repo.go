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

var _ repository.DownloadRepository = (*downloadRepo)(nil)

type downloadRepo struct {
	pool *pgxpool.Pool
}

func NewDownloadRepo(pool *pgxpool.Pool) *downloadRepo {
	return &downloadRepo{pool: pool}
}

const downloadColumns = `
id, user_id, source_url, title, quality, status, progress, speed_mbps, eta_seconds,
file_path, file_size_bytes, failure_kind, failure_detail, created_at, completed_at`

const prefixedDownloadColumns = `
d.id, d.user_id, d.source_url, d.title, d.quality, d.status, d.progress, d.speed_mbps, d.eta_seconds,
d.file_path, d.file_size_bytes, d.failure_kind, d.failure_detail, d.created_at, d.completed_at`

func (r *downloadRepo) Create(ctx context.Context, tx repository.Tx, d *model.Download) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO downloads (id, user_id, source_url, title, quality, status, progress, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err := execSQL(ctx, r.pool, tx, q,
		d.ID, d.UserID, d.SourceURL, d.Title, d.Quality, d.Status, d.Progress, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create download: %w", err)
	}
	return nil
}

func (r *downloadRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Download, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+downloadColumns+` FROM downloads WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanDownload(row)
}

func (r *downloadRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, pct int, speedMBps float64, etaSeconds int) error {
	// Latest write wins; clamp but never reject regressions.
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE downloads SET progress=$1, speed_mbps=$2, eta_seconds=$3 WHERE id=$4;`,
		pct, speedMBps, etaSeconds, id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (r *downloadRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.DownloadStatus) error {
	const q = `
UPDATE downloads
   SET status=$1,
       completed_at = CASE WHEN $1 = 'completed' THEN COALESCE(completed_at, now()) ELSE completed_at END
 WHERE id=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, status, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDownloading is the admission step: the WHERE clause makes the
// pending->downloading transition exactly-once under concurrent schedulers.
func (r *downloadRepo) MarkDownloading(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE downloads SET status='downloading' WHERE id=$1 AND status='pending';`, id)
	if err != nil {
		return false, fmt.Errorf("mark downloading: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *downloadRepo) Complete(ctx context.Context, tx repository.Tx, id string, filePath string, sizeBytes int64) error {
	const q = `
UPDATE downloads
   SET status='completed', progress=100, file_path=$1, file_size_bytes=$2,
       failure_kind=NULL, failure_detail=NULL, completed_at=now()
 WHERE id=$3;`
	tag, err := execSQL(ctx, r.pool, tx, q, filePath, sizeBytes, id)
	if err != nil {
		return fmt.Errorf("complete download: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *downloadRepo) Fail(ctx context.Context, tx repository.Tx, id string, kind model.FailureKind, detail string) error {
	const q = `
UPDATE downloads
   SET status='failed', failure_kind=$1, failure_detail=$2,
       file_path=NULL, file_size_bytes=NULL
 WHERE id=$3;`
	tag, err := execSQL(ctx, r.pool, tx, q, kind, detail, id)
	if err != nil {
		return fmt.Errorf("fail download: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListPending joins against the owner's live priority state so grants and
// expiries between submission and admission are honored.
func (r *downloadRepo) ListPending(ctx context.Context, tx repository.Tx) ([]*model.Download, error) {
	const q = `
SELECT ` + prefixedDownloadColumns + `
  FROM downloads d
  JOIN users u ON u.id = d.user_id
 WHERE d.status = 'pending'
 ORDER BY
   CASE WHEN u.priority_unbounded THEN 0
        WHEN u.priority_until IS NOT NULL AND u.priority_until > now() THEN 1
        ELSE 2 END,
   d.created_at;`
	return r.queryDownloads(ctx, tx, q)
}

func (r *downloadRepo) ListActiveForUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Download, error) {
	const q = `
SELECT ` + downloadColumns + `
  FROM downloads
 WHERE user_id=$1 AND status IN ('pending','downloading','converting','sending')
 ORDER BY created_at;`
	return r.queryDownloads(ctx, tx, q, userID)
}

func (r *downloadRepo) CountActive(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COUNT(*) FROM downloads WHERE status IN ('downloading','converting','sending');`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

func (r *downloadRepo) FindCompletedBySource(ctx context.Context, tx repository.Tx, sourceURL, quality string) (*model.Download, error) {
	const q = `
SELECT ` + downloadColumns + `
  FROM downloads
 WHERE source_url=$1 AND quality=$2 AND status='completed' AND file_path IS NOT NULL
 ORDER BY completed_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, sourceURL, quality)
	if err != nil {
		return nil, err
	}
	return scanDownload(row)
}

func (r *downloadRepo) FindActiveBySource(ctx context.Context, tx repository.Tx, userID int64, sourceURL, quality string) (*model.Download, error) {
	const q = `
SELECT ` + downloadColumns + `
  FROM downloads
 WHERE user_id=$1 AND source_url=$2 AND quality=$3
   AND status IN ('pending','downloading','converting','sending')
 ORDER BY created_at
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, sourceURL, quality)
	if err != nil {
		return nil, err
	}
	return scanDownload(row)
}

func (r *downloadRepo) queryDownloads(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Download, error) {
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDownload(row pgx.Row) (*model.Download, error) {
	var (
		d        model.Download
		status   string
		speed    *float64
		eta      *int
		path     *string
		size     *int64
		failKind *string
		failText *string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.SourceURL, &d.Title, &d.Quality, &status,
		&d.Progress, &speed, &eta, &path, &size, &failKind, &failText,
		&d.CreatedAt, &d.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	d.Status = model.DownloadStatus(status)
	if speed != nil {
		d.SpeedMBps = *speed
	}
	if eta != nil {
		d.ETASeconds = *eta
	}
	if path != nil {
		d.FilePath = *path
	}
	if size != nil {
		d.FileSizeBytes = *size
	}
	if failKind != nil {
		d.FailureKind = model.FailureKind(*failKind)
	}
	if failText != nil {
		d.FailureDetail = *failText
	}
	return &d, nil
}
