package telegram

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

// timeNow is swapped in tests.
var timeNow = time.Now

const progressBarWidth = 20

// progressBar renders a fixed-width bar for a 0-100 percentage.
func progressBar(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * progressBarWidth / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
}

// renderProgress composes the live progress view for one job.
func renderProgress(d *model.Download) string {
	title := d.Title
	if title == "" {
		title = d.SourceURL
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📥 %s\n", title)
	switch d.Status {
	case model.DownloadStatusPending:
		b.WriteString("⏳ Waiting in queue...")
	case model.DownloadStatusDownloading:
		fmt.Fprintf(&b, "%s %d%%\n", progressBar(d.Progress), d.Progress)
		if d.SpeedMBps > 0 {
			fmt.Fprintf(&b, "🚀 %.1f MB/s", d.SpeedMBps)
			if d.ETASeconds > 0 {
				fmt.Fprintf(&b, " · ⏱ %s left", formatETA(d.ETASeconds))
			}
		}
	case model.DownloadStatusConverting:
		fmt.Fprintf(&b, "%s %d%%\n⚙️ Converting...", progressBar(d.Progress), d.Progress)
	case model.DownloadStatusSending:
		b.WriteString("📤 Uploading to Telegram...")
	case model.DownloadStatusCompleted:
		b.WriteString("✅ Done")
	case model.DownloadStatusFailed:
		b.WriteString("❌ Failed")
	}
	return strings.TrimRight(b.String(), "\n")
}

// failureText maps a failure category to the user-facing explanation.
func failureText(category adapter.FailureCategory) string {
	switch category {
	case adapter.FailureCategoryGeoRestricted:
		return "🌍 This video is not available in the server's region."
	case adapter.FailureCategoryPrivate:
		return "🔒 This video is private."
	case adapter.FailureCategoryUnavailable:
		return "🚫 This video is unavailable or has been removed."
	case adapter.FailureCategoryTimeout:
		return "⏱ The download took too long and was cancelled."
	default:
		return "⚠️ The download failed."
	}
}

func formatSize(bytes int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.0f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatETA(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// formatDuration prints a media duration clock-style.
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatRemaining prints a priority window in whole days/hours.
func formatRemaining(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

var youTubeRe = regexp.MustCompile(`(?i)^https?://(?:www\.|m\.|music\.)?(?:youtube\.com|youtu\.be)/`)

func isYouTubeURL(s string) bool {
	return youTubeRe.MatchString(s)
}

var httpURLRe = regexp.MustCompile(`https?://(?:[-\w]+\.)+[a-zA-Z]{2,}(?:/[^\s\\\n]*)?`)

func extractFirstURL(s string) string {
	if s == "" {
		return ""
	}
	loc := httpURLRe.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	return s[loc[0]:loc[1]]
}

// bestQuality resolves the top video quality from a probe for sources
// confirmed without a picker. Probe results are ordered best first; a failed
// probe or an audio-only listing falls back to a safe default.
func bestQuality(info *adapter.MediaInfo) string {
	if info != nil {
		for _, q := range info.Qualities {
			if q.Height > 0 {
				return q.Label
			}
		}
	}
	return "720p"
}

// mediaKind decides how an artifact is attached: video, audio or document.
func mediaKind(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp4", ".mkv", ".webm":
		return "video"
	case ".mp3", ".m4a":
		return "audio"
	default:
		return "document"
	}
}
