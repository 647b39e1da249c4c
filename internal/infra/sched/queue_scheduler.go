package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
	"telegram-media-downloader/internal/infra/metrics"
	"telegram-media-downloader/internal/infra/worker"
)

// QueueScheduler is the single admission point of the download queue. Each
// tick it admits at most one job: the head of the priority-ordered pending
// list, and only while the active count is under the cap. Admission itself
// is a conditional update, so a job is handed to a worker exactly once even
// with competing schedulers.
type QueueScheduler struct {
	downloadRepo repository.DownloadRepository
	pool         *worker.Pool
	executor     *worker.DownloadExecutor
	cfg          *config.DownloadsConfig
	log          *zerolog.Logger
}

func NewQueueScheduler(
	downloadRepo repository.DownloadRepository,
	pool *worker.Pool,
	executor *worker.DownloadExecutor,
	cfg *config.DownloadsConfig,
	logger *zerolog.Logger,
) *QueueScheduler {
	schedLog := logger.With().Str("component", "QueueScheduler").Logger()
	return &QueueScheduler{
		downloadRepo: downloadRepo,
		pool:         pool,
		executor:     executor,
		cfg:          cfg,
		log:          &schedLog,
	}
}

func (s *QueueScheduler) Run(ctx context.Context) error {
	s.log.Info().Int("cap", s.cfg.MaxConcurrent).Dur("tick", s.cfg.PollInterval).Msg("Starting queue scheduler")
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Stopping queue scheduler")
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				metrics.IncSchedulerTickError()
				s.log.Error().Err(err).Msg("scheduler tick failed")
				// A failing store would otherwise be hammered every tick.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (s *QueueScheduler) tick(ctx context.Context) error {
	active, err := s.downloadRepo.CountActive(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	metrics.SetActiveDownloads(active)
	if active >= s.cfg.MaxConcurrent {
		return nil
	}

	pending, err := s.downloadRepo.ListPending(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	metrics.SetPendingDownloads(len(pending))
	if len(pending) == 0 {
		return nil
	}

	head := pending[0]
	admitted, err := s.downloadRepo.MarkDownloading(ctx, repository.NoTX, head.ID)
	if err != nil {
		return err
	}
	if !admitted {
		// Someone else won the conditional update; the job is theirs.
		return nil
	}

	metrics.IncDownloadAdmitted()
	s.log.Info().Str("download_id", head.ID).Int64("user_id", head.UserID).Msg("job admitted")

	job := head
	if err := s.pool.Submit(func(ctx context.Context) error {
		return s.executor.Execute(ctx, job)
	}); err != nil {
		// The pool refused the task; put the job back so a later tick
		// can admit it again.
		s.log.Warn().Err(err).Str("download_id", head.ID).Msg("pool refused job, requeueing")
		return s.downloadRepo.SetStatus(ctx, repository.NoTX, head.ID, model.DownloadStatusPending)
	}
	return nil
}
