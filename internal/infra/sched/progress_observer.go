package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
	"telegram-media-downloader/internal/domain/ports/repository"
)

// ObserverManager runs one watcher goroutine per live job. The watcher polls
// the job's persisted state and re-renders the user's progress message when
// something worth showing changed; the job's message ref lives only here.
type ObserverManager struct {
	downloadRepo repository.DownloadRepository
	notifier     adapter.Notifier
	deliverer    *Deliverer
	cfg          *config.DownloadsConfig
	log          *zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	wg     sync.WaitGroup
	closed bool
}

func NewObserverManager(
	downloadRepo repository.DownloadRepository,
	notifier adapter.Notifier,
	deliverer *Deliverer,
	cfg *config.DownloadsConfig,
	logger *zerolog.Logger,
) *ObserverManager {
	l := logger.With().Str("component", "ObserverManager").Logger()
	return &ObserverManager{
		downloadRepo: downloadRepo,
		notifier:     notifier,
		deliverer:    deliverer,
		cfg:          cfg,
		log:          &l,
	}
}

// Start binds the manager to its lifecycle context. Watch calls before Start
// are rejected.
func (m *ObserverManager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
}

// Stop waits for every watcher to finish. Call after cancelling the context
// passed to Start.
func (m *ObserverManager) Stop() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}

// Watch observes one job until it reaches a terminal state.
func (m *ObserverManager) Watch(jobID string, ref adapter.MessageRef) {
	m.mu.Lock()
	ctx := m.ctx
	closed := m.closed
	if !closed && ctx != nil {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if closed || ctx == nil {
		m.log.Warn().Str("download_id", jobID).Msg("watch rejected, manager not running")
		return
	}

	go func() {
		defer m.wg.Done()
		m.watchJob(ctx, jobID, ref)
	}()
}

func (m *ObserverManager) watchJob(ctx context.Context, jobID string, ref adapter.MessageRef) {
	log := m.log.With().Str("download_id", jobID).Logger()

	poll := m.cfg.ObserverPoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var (
		lastStatus   model.DownloadStatus
		lastProgress = -1
		lastEmit     time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d, err := m.downloadRepo.FindByID(ctx, repository.NoTX, jobID)
		if err != nil {
			log.Warn().Err(err).Msg("observed job vanished")
			return
		}

		if d.Status.IsTerminal() {
			m.finish(ctx, ref, d, &log)
			return
		}

		// Emit when the state moved, or periodically so a stalled
		// download still looks alive.
		changed := d.Status != lastStatus || d.Progress != lastProgress
		if !changed && time.Since(lastEmit) < m.cfg.NotifyInterval {
			continue
		}
		lastStatus, lastProgress, lastEmit = d.Status, d.Progress, time.Now()

		if err := m.notifier.NotifyProgress(ctx, ref, d); err != nil {
			log.Debug().Err(err).Msg("progress notify failed")
		}
	}
}

func (m *ObserverManager) finish(ctx context.Context, ref adapter.MessageRef, d *model.Download, log *zerolog.Logger) {
	switch d.Status {
	case model.DownloadStatusCompleted:
		m.deliverer.DeliverFresh(ctx, ref, d)
	case model.DownloadStatusFailed:
		if err := m.notifier.NotifyFailure(ctx, ref, d, failureCategory(d.FailureKind)); err != nil {
			log.Warn().Err(err).Msg("failure notify failed")
		}
	}
}

// failureCategory translates the stored failure kind into the notifier's
// user-facing vocabulary.
func failureCategory(kind model.FailureKind) adapter.FailureCategory {
	switch kind {
	case model.FailureGeoRestricted:
		return adapter.FailureCategoryGeoRestricted
	case model.FailurePrivate:
		return adapter.FailureCategoryPrivate
	case model.FailureUnavailable:
		return adapter.FailureCategoryUnavailable
	case model.FailureTimeout:
		return adapter.FailureCategoryTimeout
	default:
		return adapter.FailureCategoryUnknown
	}
}
