package telegram

import (
	"context"
	"log"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier implements adapter.Notifier for local/dev runs. It logs the
// events instead of talking to Telegram.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) NotifyProgress(ctx context.Context, ref adapter.MessageRef, d *model.Download) error {
	log.Printf("[noop-telegram] chat %d: %s %d%%", ref.ChatID, d.Status, d.Progress)
	return nil
}

func (n *NoopNotifier) DeliverInline(ctx context.Context, ref adapter.MessageRef, d *model.Download, cached bool) error {
	log.Printf("[noop-telegram] chat %d: deliver inline %s (cached=%t)", ref.ChatID, d.FilePath, cached)
	return nil
}

func (n *NoopNotifier) DeliverLink(ctx context.Context, ref adapter.MessageRef, d *model.Download, url string, cached bool) error {
	log.Printf("[noop-telegram] chat %d: deliver link %s (cached=%t)", ref.ChatID, url, cached)
	return nil
}

func (n *NoopNotifier) NotifyFailure(ctx context.Context, ref adapter.MessageRef, d *model.Download, category adapter.FailureCategory) error {
	log.Printf("[noop-telegram] chat %d: failure %s", ref.ChatID, category)
	return nil
}
