package sched

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/infra/metrics"
)

// CleanupWorker ages artifacts out of the storage directory. Anything older
// than the max age goes, which also bounds how long the artifact cache can
// serve a given file.
type CleanupWorker struct {
	cfg *config.DownloadsConfig
	log *zerolog.Logger
}

func NewCleanupWorker(cfg *config.DownloadsConfig, logger *zerolog.Logger) *CleanupWorker {
	cleanLog := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{cfg: cfg, log: &cleanLog}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("max_age", w.cfg.CleanupMaxAge).Msg("Starting cleanup worker")
	ticker := time.NewTicker(w.cfg.CleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sweep()
			if err != nil {
				w.log.Error().Err(err).Msg("cleanup sweep failed")
				continue
			}
			if n > 0 {
				metrics.AddFilesCleaned(n)
				w.log.Info().Int("removed", n).Msg("old artifacts removed")
			}
		}
	}
}

// sweep removes files older than the max age and any user directories left
// empty afterwards.
func (w *CleanupWorker) sweep() (int, error) {
	cutoff := time.Now().Add(-w.cfg.CleanupMaxAge)
	removed := 0

	err := filepath.WalkDir(w.cfg.StorageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr != nil {
				w.log.Warn().Err(rmErr).Str("file", path).Msg("failed to remove old artifact")
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	w.removeEmptyUserDirs()
	return removed, nil
}

func (w *CleanupWorker) removeEmptyUserDirs() {
	entries, err := os.ReadDir(w.cfg.StorageDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(w.cfg.StorageDir, e.Name())
		children, err := os.ReadDir(dir)
		if err == nil && len(children) == 0 {
			_ = os.Remove(dir)
		}
	}
}
