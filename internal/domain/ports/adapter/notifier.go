package adapter

import (
	"context"

	"telegram-media-downloader/internal/domain/model"
)

// MessageRef identifies the front-end message a job's progress is rendered
// into. It is owned by the per-job observer, never by a process-wide map.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// FailureCategory is the small user-facing vocabulary failures are translated
// into before they reach the front end.
type FailureCategory string

const (
	FailureCategoryGeoRestricted FailureCategory = "geo_restricted"
	FailureCategoryPrivate       FailureCategory = "private"
	FailureCategoryUnavailable   FailureCategory = "unavailable"
	FailureCategoryTimeout       FailureCategory = "timeout"
	FailureCategoryUnknown       FailureCategory = "unknown"
)

// Notifier is the front-end capability receiving job-state events. How the
// messages are composed or buttons drawn is the implementation's business.
// Delivery faults are the caller's to log and swallow; the job itself already
// completed or failed.
type Notifier interface {
	// NotifyProgress re-renders the progress view for the job's current state.
	NotifyProgress(ctx context.Context, ref MessageRef, d *model.Download) error
	// DeliverInline hands the artifact bytes to the front end. cached marks a
	// result served from a previous job's artifact.
	DeliverInline(ctx context.Context, ref MessageRef, d *model.Download, cached bool) error
	// DeliverLink surfaces a time-bounded fetch link instead of raw bytes.
	DeliverLink(ctx context.Context, ref MessageRef, d *model.Download, url string, cached bool) error
	// NotifyFailure renders the terminal failure with a friendly category and
	// a short truncated diagnostic from d.FailureDetail.
	NotifyFailure(ctx context.Context, ref MessageRef, d *model.Download, category FailureCategory) error
}
