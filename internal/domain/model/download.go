package model

import (
	"time"

	"telegram-media-downloader/internal/domain"
)

type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusConverting  DownloadStatus = "converting"
	DownloadStatusSending     DownloadStatus = "sending"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// IsActive reports whether the download occupies a concurrency slot.
func (s DownloadStatus) IsActive() bool {
	switch s {
	case DownloadStatusDownloading, DownloadStatusConverting, DownloadStatusSending:
		return true
	}
	return false
}

func (s DownloadStatus) IsTerminal() bool {
	return s == DownloadStatusCompleted || s == DownloadStatusFailed
}

// FailureKind classifies a terminal download failure.
type FailureKind string

const (
	FailureGeoRestricted FailureKind = "geo_restricted"
	FailurePrivate       FailureKind = "private"
	FailureUnavailable   FailureKind = "unavailable"
	FailureTimeout       FailureKind = "timeout"
	FailureOther         FailureKind = "other"
)

// Download is the central entity: one accepted request to fetch a source
// at a given quality. Progress fields are meaningful only while the status
// is downloading/converting/sending; FilePath+FileSizeBytes are set only on
// completion and FailureKind/FailureDetail only on failure.
type Download struct {
	ID            string
	UserID        int64
	SourceURL     string
	Title         string
	Quality       string
	Status        DownloadStatus
	Progress      int // 0-100
	SpeedMBps     float64
	ETASeconds    int
	FilePath      string
	FileSizeBytes int64
	FailureKind   FailureKind
	FailureDetail string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

func NewDownload(userID int64, sourceURL, title, quality string) (*Download, error) {
	if userID <= 0 || sourceURL == "" || quality == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Download{
		UserID:    userID,
		SourceURL: sourceURL,
		Title:     title,
		Quality:   quality,
		Status:    DownloadStatusPending,
		CreatedAt: time.Now(),
	}, nil
}
