package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
	"telegram-media-downloader/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memDownloadRepo is the in-memory store for scheduler and observer tests.
// Ranks for pending ordering are seeded directly per user.
type memDownloadRepo struct {
	mu    sync.Mutex
	store map[string]*model.Download
	ranks map[int64]int
}

func newMemDownloadRepo() *memDownloadRepo {
	return &memDownloadRepo{store: map[string]*model.Download{}, ranks: map[int64]int{}}
}

func (m *memDownloadRepo) put(d *model.Download) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.store[d.ID] = &cp
}

func (m *memDownloadRepo) get(id string) *model.Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.store[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (m *memDownloadRepo) Create(ctx context.Context, _ repository.Tx, d *model.Download) error {
	m.put(d)
	return nil
}

func (m *memDownloadRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Download, error) {
	if d := m.get(id); d != nil {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memDownloadRepo) UpdateProgress(ctx context.Context, _ repository.Tx, id string, pct int, speedMBps float64, etaSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
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
	return nil
}

func (m *memDownloadRepo) MarkDownloading(ctx context.Context, _ repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok || d.Status != model.DownloadStatusPending {
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
	d.Status = model.DownloadStatusFailed
	d.FailureKind = kind
	d.FailureDetail = detail
	return nil
}

func (m *memDownloadRepo) ListPending(ctx context.Context, _ repository.Tx) ([]*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Download
	for _, d := range m.store {
		if d.Status == model.DownloadStatusPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := m.ranks[out[i].UserID], m.ranks[out[j].UserID]
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memDownloadRepo) ListActiveForUser(ctx context.Context, _ repository.Tx, userID int64) ([]*model.Download, error) {
	return nil, nil
}

func (m *memDownloadRepo) CountActive(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.store {
		if d.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *memDownloadRepo) FindCompletedBySource(ctx context.Context, _ repository.Tx, sourceURL, quality string) (*model.Download, error) {
	return nil, domain.ErrNotFound
}

func (m *memDownloadRepo) FindActiveBySource(ctx context.Context, _ repository.Tx, userID int64, sourceURL, quality string) (*model.Download, error) {
	return nil, domain.ErrNotFound
}

// event records one notifier call.
type event struct {
	kind     string // "progress", "inline", "link", "failure"
	status   model.DownloadStatus
	progress int
	cached   bool
	url      string
	category adapter.FailureCategory
}

// recordingNotifier captures notifier calls for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingNotifier) record(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingNotifier) byKind(kind string) []event {
	var out []event
	for _, e := range r.all() {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingNotifier) NotifyProgress(ctx context.Context, ref adapter.MessageRef, d *model.Download) error {
	r.record(event{kind: "progress", status: d.Status, progress: d.Progress})
	return nil
}

func (r *recordingNotifier) DeliverInline(ctx context.Context, ref adapter.MessageRef, d *model.Download, cached bool) error {
	r.record(event{kind: "inline", cached: cached})
	return nil
}

func (r *recordingNotifier) DeliverLink(ctx context.Context, ref adapter.MessageRef, d *model.Download, url string, cached bool) error {
	r.record(event{kind: "link", cached: cached, url: url})
	return nil
}

func (r *recordingNotifier) NotifyFailure(ctx context.Context, ref adapter.MessageRef, d *model.Download, category adapter.FailureCategory) error {
	r.record(event{kind: "failure", category: category})
	return nil
}

// stubPublisher returns a fixed link.
type stubPublisher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubPublisher) Publish(filePath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.calls++
	return "http://files.example/d/token", nil
}
