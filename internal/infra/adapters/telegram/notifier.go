package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*RealTelegramBotAdapter)(nil)

// NotifyProgress re-renders the job's progress message in place. Telegram
// rejects edits that change nothing; those are not errors for us.
func (r *RealTelegramBotAdapter) NotifyProgress(ctx context.Context, ref adapter.MessageRef, d *model.Download) error {
	if ref.MessageID == 0 {
		return nil
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, renderProgress(d))
	if _, err := r.bot.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	return nil
}

// DeliverInline uploads the artifact as video, audio or document depending on
// the extension, then removes the progress message.
func (r *RealTelegramBotAdapter) DeliverInline(ctx context.Context, ref adapter.MessageRef, d *model.Download, cached bool) error {
	caption := d.Title
	if cached {
		caption = strings.TrimSpace(caption + "\n⚡ from cache")
	}

	file := tgbotapi.FilePath(d.FilePath)
	var msg tgbotapi.Chattable
	switch mediaKind(d.FilePath) {
	case "video":
		v := tgbotapi.NewVideo(ref.ChatID, file)
		v.Caption = caption
		v.SupportsStreaming = true
		msg = v
	case "audio":
		a := tgbotapi.NewAudio(ref.ChatID, file)
		a.Caption = caption
		msg = a
	default:
		doc := tgbotapi.NewDocument(ref.ChatID, file)
		doc.Caption = caption
		msg = doc
	}

	if _, err := r.bot.Send(msg); err != nil {
		return err
	}
	r.deleteProgressMessage(ref)
	return nil
}

// DeliverLink replaces the progress message with a time-bounded download link.
func (r *RealTelegramBotAdapter) DeliverLink(ctx context.Context, ref adapter.MessageRef, d *model.Download, url string, cached bool) error {
	title := d.Title
	if title == "" {
		title = d.SourceURL
	}
	text := fmt.Sprintf(
		"✅ %s\n\nThe file is too large to send here (%s). Download it directly:\n%s\n\nThe link expires after a while.",
		title, formatSize(d.FileSizeBytes), url)
	if cached {
		text += "\n⚡ from cache"
	}

	if ref.MessageID != 0 {
		if _, err := r.bot.Send(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)); err == nil {
			return nil
		}
	}
	return r.sendMessage(ref.ChatID, text)
}

// NotifyFailure replaces the progress message with the terminal failure.
func (r *RealTelegramBotAdapter) NotifyFailure(ctx context.Context, ref adapter.MessageRef, d *model.Download, category adapter.FailureCategory) error {
	title := d.Title
	if title == "" {
		title = d.SourceURL
	}
	text := fmt.Sprintf("❌ %s\n\n%s", title, failureText(category))
	if d.FailureDetail != "" && category == adapter.FailureCategoryUnknown {
		detail := d.FailureDetail
		if len(detail) > 200 {
			detail = detail[:200]
		}
		text += "\n\n" + detail
	}

	if ref.MessageID != 0 {
		if _, err := r.bot.Send(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)); err == nil {
			return nil
		}
	}
	return r.sendMessage(ref.ChatID, text)
}

func (r *RealTelegramBotAdapter) deleteProgressMessage(ref adapter.MessageRef) {
	if ref.MessageID == 0 {
		return
	}
	if _, err := r.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		r.log.Debug().Err(err).Int64("chat_id", ref.ChatID).Msg("failed to delete progress message")
	}
}
