package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

// priorityColumns flattens the tagged Priority variant into the two columns
// backing it: an unbounded flag and a nullable expiry. Exactly one of the
// non-none shapes sets a column.
func priorityColumns(p model.Priority) (unbounded bool, until *time.Time) {
	switch p.Tier {
	case model.PriorityUnbounded:
		return true, nil
	case model.PriorityUntil:
		u := p.Until
		return false, &u
	default:
		return false, nil
	}
}

func priorityFromColumns(unbounded bool, until *time.Time) model.Priority {
	switch {
	case unbounded:
		return model.UnboundedPriority()
	case until != nil:
		return model.PriorityUntilTime(*until)
	default:
		return model.NoPriority()
	}
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	unbounded, until := priorityColumns(u.Priority)
	const q = `
INSERT INTO users (id, username, first_name, joined_at, priority_unbounded, priority_until, total_downloads, total_bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
  username   = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
  first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name);`

	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.Username, u.FirstName, u.JoinedAt, unbounded, until, u.TotalDownloads, u.TotalBytes)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	const q = `
SELECT id, username, first_name, joined_at, priority_unbounded, priority_until, total_downloads, total_bytes
  FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) SetPriority(ctx context.Context, tx repository.Tx, id int64, p model.Priority) error {
	unbounded, until := priorityColumns(p)
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE users SET priority_unbounded=$1, priority_until=$2 WHERE id=$3;`,
		unbounded, until, id)
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) AddDownloadStats(ctx context.Context, tx repository.Tx, id int64, bytes int64) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE users SET total_downloads = total_downloads + 1, total_bytes = total_bytes + $1 WHERE id=$2;`,
		bytes, id)
	if err != nil {
		return fmt.Errorf("add download stats: %w", err)
	}
	return nil
}

func (r *userRepo) ListWithPriority(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	const q = `
SELECT id, username, first_name, joined_at, priority_unbounded, priority_until, total_downloads, total_bytes
  FROM users
 WHERE priority_unbounded OR priority_until IS NOT NULL
 ORDER BY priority_unbounded DESC, priority_until DESC;`
	rows, err := pickRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *userRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u         model.User
		unbounded bool
		until     *time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.JoinedAt, &unbounded, &until, &u.TotalDownloads, &u.TotalBytes); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	u.Priority = priorityFromColumns(unbounded, until)
	return &u, nil
}
