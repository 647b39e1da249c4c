package adapter

import (
	"context"
	"fmt"

	"telegram-media-downloader/internal/domain/model"
)

// ProgressFunc relays fetch progress. stage is downloading or converting;
// pct is 0-100, speed in MB/s, eta in seconds. Invoked zero or more times
// before Fetch returns; implementations must tolerate bursts.
type ProgressFunc func(stage model.DownloadStatus, pct int, speedMBps float64, etaSeconds int)

type FetchResult struct {
	FilePath  string
	SizeBytes int64
}

// FetchError carries the failure classification from the fetch engine.
type FetchError struct {
	Kind   model.FailureKind
	Detail string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%s): %s", e.Kind, e.Detail)
}

// MediaFetcher downloads a source at the requested quality into destDir.
// The call blocks until the artifact is ready or the context expires; the
// engine is expected to fail loudly rather than hang.
type MediaFetcher interface {
	Fetch(ctx context.Context, sourceURL, quality, destDir string, onProgress ProgressFunc) (*FetchResult, error)
}

type QualityOption struct {
	Label     string `json:"label"`  // "4K", "1080p", "mp3", ...
	Height    int    `json:"height"` // 0 for audio
	SizeBytes int64  `json:"size_bytes"`
}

type MediaInfo struct {
	Title           string          `json:"title"`
	DurationSeconds int             `json:"duration_seconds"`
	Qualities       []QualityOption `json:"qualities"`
}

// MediaProber looks up source metadata without downloading. Results are
// cacheable by locator for a bounded duration.
type MediaProber interface {
	Probe(ctx context.Context, sourceURL string) (*MediaInfo, error)
}
