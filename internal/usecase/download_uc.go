package usecase

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/repository"
	"telegram-media-downloader/internal/infra/logging"
	"telegram-media-downloader/internal/infra/metrics"
)

// SubmitResult reports what Submit decided: either a fresh job was enqueued
// (Download, Cached=false) or a previous job's artifact can be re-served
// (Download is that completed job, Cached=true, nothing was enqueued).
type SubmitResult struct {
	Download *model.Download
	Cached   bool
}

// DownloadUseCase owns the submission path of the queue: duplicate guarding,
// artifact-cache lookup, and enqueueing.
type DownloadUseCase struct {
	downloadRepo repository.DownloadRepository
	log          *zerolog.Logger
}

func NewDownloadUseCase(downloadRepo repository.DownloadRepository, logger *zerolog.Logger) *DownloadUseCase {
	l := logger.With().Str("component", "DownloadUseCase").Logger()
	return &DownloadUseCase{downloadRepo: downloadRepo, log: &l}
}

// Submit enqueues a download request. In order:
//  1. the user must not already have a live job for the same (url, quality),
//  2. a completed job with a still-present artifact for the same (url,
//     quality) short-circuits to a cache hit,
//  3. otherwise a pending job is created.
//
// A completed row whose file has since been cleaned up counts as a miss.
func (uc *DownloadUseCase) Submit(ctx context.Context, userID int64, sourceURL, title, quality string) (*SubmitResult, error) {
	defer logging.TraceDuration(uc.log, "DownloadUC.Submit")()
	if sourceURL == "" || quality == "" {
		return nil, domain.ErrInvalidArgument
	}

	dup, err := uc.downloadRepo.FindActiveBySource(ctx, repository.NoTX, userID, sourceURL, quality)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if dup != nil {
		return nil, domain.ErrDuplicateDownload
	}

	cached, err := uc.downloadRepo.FindCompletedBySource(ctx, repository.NoTX, sourceURL, quality)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if cached != nil {
		if _, statErr := os.Stat(cached.FilePath); statErr == nil {
			metrics.IncArtifactCache("hit")
			uc.log.Info().Str("download_id", cached.ID).Str("url", sourceURL).Msg("artifact cache hit")
			return &SubmitResult{Download: cached, Cached: true}, nil
		}
		metrics.IncArtifactCache("stale")
		uc.log.Debug().Str("download_id", cached.ID).Msg("cached artifact gone from disk, re-downloading")
	} else {
		metrics.IncArtifactCache("miss")
	}

	d, err := model.NewDownload(userID, sourceURL, title, quality)
	if err != nil {
		return nil, err
	}
	if err := uc.downloadRepo.Create(ctx, repository.NoTX, d); err != nil {
		return nil, err
	}
	uc.log.Info().Str("download_id", d.ID).Int64("user_id", userID).Str("quality", quality).Msg("download enqueued")
	return &SubmitResult{Download: d}, nil
}

// QueuePosition returns the 1-based position of a pending job in admission
// order, or 0 when the job is no longer pending.
func (uc *DownloadUseCase) QueuePosition(ctx context.Context, downloadID string) (int, error) {
	pending, err := uc.downloadRepo.ListPending(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	for i, d := range pending {
		if d.ID == downloadID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (uc *DownloadUseCase) Get(ctx context.Context, downloadID string) (*model.Download, error) {
	return uc.downloadRepo.FindByID(ctx, repository.NoTX, downloadID)
}

// ActiveForUser lists the user's jobs that are not yet terminal, for /status.
func (uc *DownloadUseCase) ActiveForUser(ctx context.Context, userID int64) ([]*model.Download, error) {
	return uc.downloadRepo.ListActiveForUser(ctx, repository.NoTX, userID)
}
