//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memUserRepo is a small in-memory implementation used by unit tests.
type memUserRepo struct {
	mu      sync.RWMutex
	store   map[int64]*model.User
	saveErr error // used by tests to simulate save failures
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[int64]*model.User)}
}

func (m *memUserRepo) Save(ctx context.Context, _ repository.Tx, u *model.User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, _ repository.Tx, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) SetPriority(ctx context.Context, _ repository.Tx, id int64, p model.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Priority = p
	return nil
}

func (m *memUserRepo) AddDownloadStats(ctx context.Context, _ repository.Tx, id int64, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.TotalDownloads++
	u.TotalBytes += bytes
	return nil
}

func (m *memUserRepo) ListWithPriority(ctx context.Context, _ repository.Tx) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.User
	for _, u := range m.store {
		if u.Priority.Tier != model.PriorityNone {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUserRepo) CountUsers(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

// rank reproduces the live priority join: rank by the owner's current tier.
func (m *memUserRepo) rank(userID int64, now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.store[userID]; ok {
		return u.Priority.Rank(now)
	}
	return 2
}

// memDownloadRepo holds downloads in memory. The users repo is consulted for
// admission ordering the same way the SQL join does.
type memDownloadRepo struct {
	mu    sync.Mutex
	store map[string]*model.Download
	users *memUserRepo
	seq   int
}

func newMemDownloadRepo(users *memUserRepo) *memDownloadRepo {
	return &memDownloadRepo{store: make(map[string]*model.Download), users: users}
}

func (m *memDownloadRepo) Create(ctx context.Context, _ repository.Tx, d *model.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if d.ID == "" {
		d.ID = fmt.Sprintf("dl-%d", m.seq)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	}
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *memDownloadRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDownloadRepo) UpdateProgress(ctx context.Context, _ repository.Tx, id string, pct int, speedMBps float64, etaSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	d.Progress = pct
	d.SpeedMBps = speedMBps
	d.ETASeconds = etaSeconds
	return nil
}

func (m *memDownloadRepo) SetStatus(ctx context.Context, _ repository.Tx, id string, status model.DownloadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = status
	if status == model.DownloadStatusCompleted && d.CompletedAt == nil {
		now := time.Now()
		d.CompletedAt = &now
	}
	return nil
}

func (m *memDownloadRepo) MarkDownloading(ctx context.Context, _ repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return false, nil
	}
	if d.Status != model.DownloadStatusPending {
		return false, nil
	}
	d.Status = model.DownloadStatusDownloading
	return true, nil
}

func (m *memDownloadRepo) Complete(ctx context.Context, _ repository.Tx, id string, filePath string, sizeBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	d.Status = model.DownloadStatusCompleted
	d.Progress = 100
	d.FilePath = filePath
	d.FileSizeBytes = sizeBytes
	d.FailureKind = ""
	d.FailureDetail = ""
	d.CompletedAt = &now
	return nil
}

func (m *memDownloadRepo) Fail(ctx context.Context, _ repository.Tx, id string, kind model.FailureKind, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	d.Status = model.DownloadStatusFailed
	d.FailureKind = kind
	d.FailureDetail = detail
	d.FilePath = ""
	d.FileSizeBytes = 0
	d.CompletedAt = &now
	return nil
}

func (m *memDownloadRepo) ListPending(ctx context.Context, _ repository.Tx) ([]*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*model.Download
	for _, d := range m.store {
		if d.Status == model.DownloadStatusPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := m.users.rank(out[i].UserID, now), m.users.rank(out[j].UserID, now)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memDownloadRepo) ListActiveForUser(ctx context.Context, _ repository.Tx, userID int64) ([]*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Download
	for _, d := range m.store {
		if d.UserID == userID && !d.Status.IsTerminal() {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memDownloadRepo) CountActive(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cnt := 0
	for _, d := range m.store {
		if d.Status.IsActive() {
			cnt++
		}
	}
	return cnt, nil
}

func (m *memDownloadRepo) FindCompletedBySource(ctx context.Context, _ repository.Tx, sourceURL, quality string) (*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *model.Download
	for _, d := range m.store {
		if d.SourceURL != sourceURL || d.Quality != quality {
			continue
		}
		if d.Status != model.DownloadStatusCompleted || d.FilePath == "" {
			continue
		}
		if newest == nil || (d.CompletedAt != nil && newest.CompletedAt != nil && d.CompletedAt.After(*newest.CompletedAt)) {
			cp := *d
			newest = &cp
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	return newest, nil
}

func (m *memDownloadRepo) FindActiveBySource(ctx context.Context, _ repository.Tx, userID int64, sourceURL, quality string) (*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.store {
		if d.UserID == userID && d.SourceURL == sourceURL && d.Quality == quality && !d.Status.IsTerminal() {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// memPurchaseRepo keeps purchases in memory with single-resolution semantics.
type memPurchaseRepo struct {
	mu    sync.Mutex
	store map[string]*model.PriorityPurchase
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{store: make(map[string]*model.PriorityPurchase)}
}

func (m *memPurchaseRepo) Save(ctx context.Context, _ repository.Tx, p *model.PriorityPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPurchaseRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PriorityPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPurchaseRepo) ListPending(ctx context.Context, _ repository.Tx) ([]*model.PriorityPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PriorityPurchase
	for _, p := range m.store {
		if p.Status == model.PurchaseStatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memPurchaseRepo) Resolve(ctx context.Context, _ repository.Tx, id string, status model.PurchaseStatus, priorityUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != model.PurchaseStatusPending {
		return domain.ErrAlreadyResolved
	}
	now := time.Now()
	p.Status = status
	p.ConfirmedAt = &now
	p.PriorityUntil = priorityUntil
	return nil
}

// memTxManager runs the callback directly; the in-memory repos ignore the
// handle anyway.
type memTxManager struct{}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}
