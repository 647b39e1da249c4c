package usecase

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Totals(ctx context.Context) (users int, activeJobs int, pendingJobs int, err error)
	// StorageUsage reports retained artifacts on disk: file count and bytes.
	StorageUsage() (files int, bytes int64, err error)
}

type statsUC struct {
	users      repository.UserRepository
	downloads  repository.DownloadRepository
	storageDir string

	log *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, downloads repository.DownloadRepository, storageDir string, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, downloads: downloads, storageDir: storageDir, log: logger}
}

func (s *statsUC) Totals(ctx context.Context) (int, int, int, error) {
	users, err := s.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return 0, 0, 0, err
	}
	active, err := s.downloads.CountActive(ctx, repository.NoTX)
	if err != nil {
		return 0, 0, 0, err
	}
	pending, err := s.downloads.ListPending(ctx, repository.NoTX)
	if err != nil {
		return 0, 0, 0, err
	}
	return users, active, len(pending), nil
}

func (s *statsUC) StorageUsage() (int, int64, error) {
	var files int
	var bytes int64
	err := filepath.WalkDir(s.storageDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		// A storage dir that does not exist yet simply holds nothing.
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return files, bytes, nil
}
