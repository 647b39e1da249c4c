package fetch

import (
	"context"
	"errors"
	"strings"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

// classify folds a yt-dlp failure into one of the failure kinds users are
// told about. Context expiry always wins over message sniffing.
func classify(ctx context.Context, err error) *adapter.FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &adapter.FetchError{Kind: model.FailureTimeout, Detail: "download timed out"}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "geo restriction", "geo-restricted", "not available in your country", "blocked it in your country", "not made this video available"):
		return &adapter.FetchError{Kind: model.FailureGeoRestricted, Detail: trimDetail(err)}
	case containsAny(msg, "private video", "this video is private", "sign in to confirm"):
		return &adapter.FetchError{Kind: model.FailurePrivate, Detail: trimDetail(err)}
	case containsAny(msg, "video unavailable", "no longer available", "has been removed", "account associated with this video has been terminated", "unsupported url", "404"):
		return &adapter.FetchError{Kind: model.FailureUnavailable, Detail: trimDetail(err)}
	case containsAny(msg, "timed out", "timeout"):
		return &adapter.FetchError{Kind: model.FailureTimeout, Detail: trimDetail(err)}
	default:
		return &adapter.FetchError{Kind: model.FailureOther, Detail: trimDetail(err)}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// trimDetail keeps failure details short enough for a chat message and a
// database column.
func trimDetail(err error) string {
	detail := err.Error()
	if len(detail) > 500 {
		detail = detail[:500]
	}
	return detail
}
