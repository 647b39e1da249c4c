package fetch

import (
	"context"
	"os"
	"path/filepath"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

var (
	_ adapter.MediaFetcher = (*NoOpFetcher)(nil)
	_ adapter.MediaProber  = (*NoOpFetcher)(nil)
)

// NoOpFetcher writes a tiny placeholder artifact instead of talking to
// yt-dlp. Used in dev mode.
type NoOpFetcher struct{}

func NewNoOpFetcher() *NoOpFetcher { return &NoOpFetcher{} }

func (f *NoOpFetcher) Fetch(ctx context.Context, sourceURL, quality, destDir string, onProgress adapter.ProgressFunc) (*adapter.FetchResult, error) {
	if onProgress != nil {
		onProgress(model.DownloadStatusDownloading, 50, 1.0, 1)
		onProgress(model.DownloadStatusConverting, 100, 0, 0)
	}
	path := filepath.Join(destDir, "placeholder.mp4")
	if err := os.WriteFile(path, []byte("noop"), 0o644); err != nil {
		return nil, &adapter.FetchError{Kind: model.FailureOther, Detail: err.Error()}
	}
	return &adapter.FetchResult{FilePath: path, SizeBytes: 4}, nil
}

func (f *NoOpFetcher) Probe(ctx context.Context, sourceURL string) (*adapter.MediaInfo, error) {
	return &adapter.MediaInfo{
		Title:           "placeholder",
		DurationSeconds: 60,
		Qualities: []adapter.QualityOption{
			{Label: "720p", Height: 720, SizeBytes: 10 << 20},
			{Label: "360p", Height: 360, SizeBytes: 3 << 20},
		},
	}, nil
}
