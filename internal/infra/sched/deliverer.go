package sched

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
	"telegram-media-downloader/internal/domain/ports/repository"
)

// Deliverer hands a completed artifact to the user: inline through the bot
// when it fits under the configured limit, as a time-bounded link otherwise.
//
// A fresh inline delivery removes the artifact from disk afterwards; Telegram
// hosts the copy from then on, and a later identical request simply becomes a
// cache miss. Link-delivered and cache-served files stay on disk for the
// cleanup worker to age out.
type Deliverer struct {
	downloadRepo repository.DownloadRepository
	notifier     adapter.Notifier
	links        adapter.LinkPublisher
	inlineLimit  int64
	log          *zerolog.Logger
}

func NewDeliverer(
	downloadRepo repository.DownloadRepository,
	notifier adapter.Notifier,
	links adapter.LinkPublisher,
	inlineLimitBytes int64,
	logger *zerolog.Logger,
) *Deliverer {
	l := logger.With().Str("component", "Deliverer").Logger()
	return &Deliverer{
		downloadRepo: downloadRepo,
		notifier:     notifier,
		links:        links,
		inlineLimit:  inlineLimitBytes,
		log:          &l,
	}
}

// DeliverFresh sends a just-completed job's artifact. The job is moved to
// sending for the duration of the upload, so it keeps its concurrency slot
// until the bytes are out, then back to completed. Delivery faults are
// logged, not propagated: the job itself is done.
func (dl *Deliverer) DeliverFresh(ctx context.Context, ref adapter.MessageRef, d *model.Download) {
	log := dl.log.With().Str("download_id", d.ID).Logger()

	if err := dl.downloadRepo.SetStatus(ctx, repository.NoTX, d.ID, model.DownloadStatusSending); err != nil {
		log.Warn().Err(err).Msg("failed to mark sending")
	}
	d.Status = model.DownloadStatusSending
	_ = dl.notifier.NotifyProgress(ctx, ref, d)

	if d.FileSizeBytes > dl.inlineLimit {
		dl.deliverLink(ctx, ref, d, false, &log)
	} else {
		if dl.deliverInline(ctx, ref, d, false, &log) {
			if err := os.Remove(d.FilePath); err != nil {
				log.Warn().Err(err).Str("file", d.FilePath).Msg("failed to remove sent artifact")
			}
		}
	}

	if err := dl.downloadRepo.SetStatus(ctx, repository.NoTX, d.ID, model.DownloadStatusCompleted); err != nil {
		log.Warn().Err(err).Msg("failed to restore completed status")
	}
}

// DeliverCached re-serves a previous job's artifact to a new requester. No
// status transitions and the file always stays for the next hit.
func (dl *Deliverer) DeliverCached(ctx context.Context, ref adapter.MessageRef, d *model.Download) error {
	log := dl.log.With().Str("download_id", d.ID).Logger()
	if d.FileSizeBytes > dl.inlineLimit {
		dl.deliverLink(ctx, ref, d, true, &log)
	} else {
		dl.deliverInline(ctx, ref, d, true, &log)
	}
	return nil
}

func (dl *Deliverer) deliverInline(ctx context.Context, ref adapter.MessageRef, d *model.Download, cached bool, log *zerolog.Logger) bool {
	if err := dl.notifier.DeliverInline(ctx, ref, d, cached); err != nil {
		log.Error().Err(err).Msg("inline delivery failed")
		return false
	}
	log.Info().Bool("cached", cached).Msg("artifact delivered inline")
	return true
}

func (dl *Deliverer) deliverLink(ctx context.Context, ref adapter.MessageRef, d *model.Download, cached bool, log *zerolog.Logger) {
	url, err := dl.links.Publish(d.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to publish link")
		_ = dl.notifier.NotifyFailure(ctx, ref, d, adapter.FailureCategoryUnknown)
		return
	}
	if err := dl.notifier.DeliverLink(ctx, ref, d, url, cached); err != nil {
		log.Error().Err(err).Msg("link delivery failed")
		return
	}
	log.Info().Bool("cached", cached).Int64("bytes", d.FileSizeBytes).Msg("artifact delivered as link")
}
