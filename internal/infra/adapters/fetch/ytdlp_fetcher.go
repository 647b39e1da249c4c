package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

var (
	_ adapter.MediaFetcher = (*YtdlpFetcher)(nil)
	_ adapter.MediaProber  = (*YtdlpFetcher)(nil)
)

// YtdlpFetcher implements the fetch and probe capabilities on top of yt-dlp.
type YtdlpFetcher struct {
	log *zerolog.Logger
}

func NewYtdlpFetcher(logger *zerolog.Logger) *YtdlpFetcher {
	l := logger.With().Str("component", "YtdlpFetcher").Logger()
	return &YtdlpFetcher{log: &l}
}

// QualityHeight maps a quality label to the yt-dlp height cap. Unknown labels
// fall back to 720p. Audio ("mp3") has no height.
func QualityHeight(quality string) int {
	switch quality {
	case "4K":
		return 2160
	case "2K":
		return 1440
	}
	if strings.HasSuffix(quality, "p") {
		if h, err := strconv.Atoi(strings.TrimSuffix(quality, "p")); err == nil {
			return h
		}
	}
	return 720
}

// QualityLabel names a video height the way the keyboard shows it.
func QualityLabel(height int) string {
	switch {
	case height >= 2160:
		return "4K"
	case height >= 1440:
		return "2K"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height >= 360:
		return "360p"
	case height >= 240:
		return "240p"
	case height >= 144:
		return "144p"
	default:
		return fmt.Sprintf("%dp", height)
	}
}

func (f *YtdlpFetcher) Fetch(ctx context.Context, sourceURL, quality, destDir string, onProgress adapter.ProgressFunc) (*adapter.FetchResult, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(destDir, "%(title)s.%(ext)s"))

	if quality == "mp3" {
		dl = dl.ExtractAudio().AudioFormat("mp3")
	} else {
		h := QualityHeight(quality)
		dl = dl.
			Format(fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", h, h)).
			MergeOutputFormat("mp4")
	}

	if onProgress != nil {
		dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			relayProgress(update, onProgress)
		})
	}

	f.log.Info().Str("url", sourceURL).Str("quality", quality).Msg("starting fetch")
	result, err := dl.Run(ctx, sourceURL)
	if err != nil {
		return nil, classify(ctx, err)
	}

	path := artifactPath(result, destDir)
	if path == "" {
		return nil, &adapter.FetchError{Kind: model.FailureOther, Detail: "downloaded file not found"}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &adapter.FetchError{Kind: model.FailureOther, Detail: "downloaded file not found"}
	}

	if onProgress != nil {
		onProgress(model.DownloadStatusConverting, 100, 0, 0)
	}
	f.log.Info().Str("file", path).Int64("bytes", fi.Size()).Msg("fetch completed")
	return &adapter.FetchResult{FilePath: path, SizeBytes: fi.Size()}, nil
}

// relayProgress translates a yt-dlp progress update into the capability's
// (stage, pct, speed, eta) shape. Once all bytes are in, yt-dlp is merging or
// transcoding, which we surface as the converting stage.
func relayProgress(update ytdlp.ProgressUpdate, onProgress adapter.ProgressFunc) {
	pct := 0
	if update.TotalBytes > 0 {
		pct = int(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100)
	}

	stage := model.DownloadStatusDownloading
	if update.TotalBytes > 0 && update.DownloadedBytes >= update.TotalBytes {
		stage = model.DownloadStatusConverting
	}

	speedMBps := 0.0
	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started).Seconds()
		if elapsed > 0 {
			speedMBps = float64(update.DownloadedBytes) / elapsed / 1024 / 1024
		}
	}

	etaSeconds := 0
	if eta := update.ETA(); eta > 0 {
		etaSeconds = int(eta.Seconds())
	}

	onProgress(stage, pct, speedMBps, etaSeconds)
}

// artifactPath resolves the produced file: yt-dlp's own idea first, then the
// newest media file in the destination (post-processing can rename).
func artifactPath(result *ytdlp.Result, destDir string) string {
	if result != nil {
		if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 {
			if info[0].Filename != nil && *info[0].Filename != "" {
				if _, err := os.Stat(*info[0].Filename); err == nil {
					return *info[0].Filename
				}
			}
		}
	}
	return newestMediaFile(destDir)
}

var mediaExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mp3": true, ".m4a": true,
}

func newestMediaFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var (
		newest     string
		newestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !mediaExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(newestTime) {
			newestTime = fi.ModTime()
			newest = filepath.Join(dir, e.Name())
		}
	}
	return newest
}

func (f *YtdlpFetcher) Probe(ctx context.Context, sourceURL string) (*adapter.MediaInfo, error) {
	dl := ytdlp.New().
		SkipDownload().
		DumpSingleJSON()

	result, err := dl.Run(ctx, sourceURL)
	if err != nil {
		return nil, classify(ctx, err)
	}
	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		return nil, &adapter.FetchError{Kind: model.FailureOther, Detail: "no metadata returned"}
	}
	return buildMediaInfo(infos[0]), nil
}

// buildMediaInfo condenses the format list into one entry per quality label
// with an estimated artifact size (best video stream at that height plus the
// best audio stream; bitrate estimate when yt-dlp reports no sizes).
func buildMediaInfo(info *ytdlp.ExtractedInfo) *adapter.MediaInfo {
	out := &adapter.MediaInfo{}
	if info.Title != nil {
		out.Title = *info.Title
	}
	duration := 0.0
	if info.Duration != nil {
		duration = *info.Duration
		out.DurationSeconds = int(duration)
	}

	heightSizes := map[int]int64{}
	var bestAudio int64
	for _, fmtInfo := range info.Formats {
		if fmtInfo == nil {
			continue
		}
		size := formatSize(fmtInfo)
		height := 0
		if fmtInfo.Height != nil {
			height = int(*fmtInfo.Height)
		}
		hasVideo := fmtInfo.VCodec != nil && *fmtInfo.VCodec != "none"
		hasAudio := fmtInfo.ACodec != nil && *fmtInfo.ACodec != "none"

		if hasVideo && height > 0 {
			if size > heightSizes[height] {
				heightSizes[height] = size
			}
		}
		if hasAudio && !hasVideo && size > bestAudio {
			bestAudio = size
		}
	}

	heights := make([]int, 0, len(heightSizes))
	for h := range heightSizes {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	seen := map[string]bool{}
	for _, h := range heights {
		label := QualityLabel(h)
		if seen[label] {
			continue
		}
		seen[label] = true

		size := heightSizes[h] + bestAudio
		if size == bestAudio && duration > 0 {
			size = estimateSize(h, duration)
		}
		out.Qualities = append(out.Qualities, adapter.QualityOption{
			Label:     label,
			Height:    h,
			SizeBytes: size,
		})
		if len(out.Qualities) == 8 {
			break
		}
	}
	return out
}

func formatSize(f *ytdlp.ExtractedFormat) int64 {
	if f.FileSize != nil && *f.FileSize > 0 {
		return int64(*f.FileSize)
	}
	if f.FileSizeApprox != nil && *f.FileSizeApprox > 0 {
		return int64(*f.FileSizeApprox)
	}
	return 0
}

// estimateSize falls back to a nominal bitrate per resolution.
func estimateSize(height int, durationSeconds float64) int64 {
	var mbps float64
	switch {
	case height >= 2160:
		mbps = 15.0
	case height >= 1440:
		mbps = 10.0
	case height >= 1080:
		mbps = 5.0
	case height >= 720:
		mbps = 2.5
	case height >= 480:
		mbps = 1.5
	default:
		mbps = 0.8
	}
	return int64(durationSeconds * mbps * 1024 * 1024 / 8)
}
