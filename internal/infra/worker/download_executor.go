package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
	"telegram-media-downloader/internal/domain/ports/repository"
	"telegram-media-downloader/internal/infra/logging"
	"telegram-media-downloader/internal/infra/metrics"
)

// DownloadExecutor runs one admitted job end to end: fetch, progress
// persistence, terminal bookkeeping. It never touches the front end; the
// observer does that from the persisted state.
type DownloadExecutor struct {
	downloadRepo repository.DownloadRepository
	userRepo     repository.UserRepository
	fetcher      adapter.MediaFetcher
	cfg          *config.DownloadsConfig
	log          *zerolog.Logger
}

func NewDownloadExecutor(
	downloadRepo repository.DownloadRepository,
	userRepo repository.UserRepository,
	fetcher adapter.MediaFetcher,
	cfg *config.DownloadsConfig,
	logger *zerolog.Logger,
) *DownloadExecutor {
	l := logger.With().Str("component", "DownloadExecutor").Logger()
	return &DownloadExecutor{
		downloadRepo: downloadRepo,
		userRepo:     userRepo,
		fetcher:      fetcher,
		cfg:          cfg,
		log:          &l,
	}
}

// Execute processes a job that was already marked downloading. The job's row
// is the single source of truth: progress and terminal state land there, and
// the observer picks them up.
func (e *DownloadExecutor) Execute(ctx context.Context, d *model.Download) (err error) {
	ctx = logging.WithJobID(logging.WithUserID(ctx, d.UserID), d.ID)
	log := *logging.With(ctx, e.log)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("executor panicked")
			e.failJob(d.ID, model.FailureOther, fmt.Sprintf("internal error: %v", r))
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	destDir := filepath.Join(e.cfg.StorageDir, strconv.FormatInt(d.UserID, 10))
	if mkErr := os.MkdirAll(destDir, 0o755); mkErr != nil {
		e.failJob(d.ID, model.FailureOther, "storage unavailable")
		return fmt.Errorf("create dest dir: %w", mkErr)
	}

	fetchCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	relay := newProgressRelay(e.downloadRepo, d.ID, e.cfg.ProgressWrite, &log)

	result, fetchErr := e.fetcher.Fetch(fetchCtx, d.SourceURL, d.Quality, destDir, relay.onProgress)
	if fetchErr != nil {
		kind, detail := model.FailureOther, fetchErr.Error()
		var fe *adapter.FetchError
		if errors.As(fetchErr, &fe) {
			kind, detail = fe.Kind, fe.Detail
		}
		e.failJob(d.ID, kind, detail)
		log.Warn().Str("kind", string(kind)).Dur("took", time.Since(start)).Msg("download failed")
		return nil
	}

	// Terminal writes use a fresh context so shutdown does not lose them.
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.downloadRepo.Complete(finCtx, repository.NoTX, d.ID, result.FilePath, result.SizeBytes); err != nil {
		log.Error().Err(err).Msg("failed to record completion")
		return err
	}
	if err := e.userRepo.AddDownloadStats(finCtx, repository.NoTX, d.UserID, result.SizeBytes); err != nil {
		log.Warn().Err(err).Msg("failed to bump user stats")
	}

	metrics.IncDownloadFinished("completed")
	log.Info().Int64("bytes", result.SizeBytes).Dur("took", time.Since(start)).Msg("download completed")
	return nil
}

func (e *DownloadExecutor) failJob(id string, kind model.FailureKind, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.downloadRepo.Fail(ctx, repository.NoTX, id, kind, detail); err != nil {
		e.log.Error().Err(err).Str("download_id", id).Msg("failed to record failure")
		return
	}
	metrics.IncDownloadFinished("failed")
	metrics.IncDownloadFailure(string(kind))
}

// progressRelay throttles progress persistence: percent updates are written
// at most once per interval, stage changes go through immediately.
type progressRelay struct {
	repo       repository.DownloadRepository
	downloadID string
	interval   time.Duration
	log        *zerolog.Logger

	mu        sync.Mutex
	lastWrite time.Time
	lastStage model.DownloadStatus
}

func newProgressRelay(repo repository.DownloadRepository, downloadID string, interval time.Duration, log *zerolog.Logger) *progressRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &progressRelay{
		repo:       repo,
		downloadID: downloadID,
		interval:   interval,
		log:        log,
		lastStage:  model.DownloadStatusDownloading,
	}
}

func (p *progressRelay) onProgress(stage model.DownloadStatus, pct int, speedMBps float64, etaSeconds int) {
	p.mu.Lock()
	stageChanged := stage != p.lastStage
	throttled := !stageChanged && time.Since(p.lastWrite) < p.interval
	if !throttled {
		p.lastWrite = time.Now()
		p.lastStage = stage
	}
	p.mu.Unlock()

	if throttled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if stageChanged {
		if err := p.repo.SetStatus(ctx, repository.NoTX, p.downloadID, stage); err != nil {
			p.log.Warn().Err(err).Msg("failed to persist stage change")
		}
	}
	if err := p.repo.UpdateProgress(ctx, repository.NoTX, p.downloadID, pct, speedMBps, etaSeconds); err != nil {
		p.log.Warn().Err(err).Msg("failed to persist progress")
	}
}
