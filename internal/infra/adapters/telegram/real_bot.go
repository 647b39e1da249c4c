package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
	"telegram-media-downloader/internal/domain/ports/adapter"
	red "telegram-media-downloader/internal/infra/redis"
	"telegram-media-downloader/internal/usecase"
)

// JobWatcher attaches a progress observer to a freshly enqueued job.
type JobWatcher interface {
	Watch(jobID string, ref adapter.MessageRef)
}

// CachedDeliverer re-serves a completed job's artifact without enqueueing.
type CachedDeliverer interface {
	DeliverCached(ctx context.Context, ref adapter.MessageRef, d *model.Download) error
}

// RealTelegramBotAdapter uses tgbotapi to poll updates and drives the
// download flow. It also implements the Notifier port, so the observer and
// deliverer talk back to users through the same bot instance.
type RealTelegramBotAdapter struct {
	bot *tgbotapi.BotAPI
	cfg *config.BotConfig

	userUC     *usecase.UserUseCase
	downloadUC *usecase.DownloadUseCase
	priorityUC *usecase.PriorityUseCase
	statsUC    usecase.StatsUseCase

	prober       adapter.MediaProber
	pendingLinks *red.PendingLinkStore
	watcher      JobWatcher
	cached       CachedDeliverer

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
	log           *zerolog.Logger
}

func NewRealTelegramBotAdapter(
	cfg *config.BotConfig,
	userUC *usecase.UserUseCase,
	downloadUC *usecase.DownloadUseCase,
	priorityUC *usecase.PriorityUseCase,
	statsUC usecase.StatsUseCase,
	prober adapter.MediaProber,
	pendingLinks *red.PendingLinkStore,
	watcher JobWatcher,
	cached CachedDeliverer,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if downloadUC == nil || userUC == nil || priorityUC == nil {
		return nil, errors.New("usecases are nil")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	adminMap := map[int64]struct{}{}
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}

	l := logger.With().Str("component", "TelegramBot").Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		userUC:        userUC,
		downloadUC:    downloadUC,
		priorityUC:    priorityUC,
		statsUC:       statsUC,
		prober:        prober,
		pendingLinks:  pendingLinks,
		watcher:       watcher,
		cached:        cached,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
		log:           &l,
	}, nil
}

// BindPipeline wires the job watcher and cached deliverer after construction.
// The delivery side needs the bot as its notifier, so the two are built in
// sequence and joined here before polling starts.
func (r *RealTelegramBotAdapter) BindPipeline(watcher JobWatcher, cached CachedDeliverer) {
	r.watcher = watcher
	r.cached = cached
}

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Warn().Err(err).Int("worker", id).Msg("update handling failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) isAdmin(id int64) bool {
	_, ok := r.adminIDsMap[id]
	return ok
}

func (r *RealTelegramBotAdapter) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealTelegramBotAdapter) sendButtons(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	tgUser := update.Message.From
	chatID := update.Message.Chat.ID
	if _, err := r.userUC.EnsureUser(ctx, tgUser.ID, tgUser.UserName, tgUser.FirstName); err != nil {
		r.log.Error().Err(err).Int64("user_id", tgUser.ID).Msg("failed to ensure user")
		return r.sendMessage(chatID, "Something went wrong. Please try again.")
	}

	fields := strings.Fields(update.Message.Text)
	command := ""
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		command = strings.TrimSuffix(fields[0], "@"+r.cfg.Username)
		if i := strings.Index(command, "@"); i > 0 {
			command = command[:i]
		}
	}

	switch command {
	case "/start":
		return r.sendMessage(chatID,
			"👋 Hi! Send me a video link and I'll download it for you.\n\n"+
				"YouTube links get a quality picker; other sites are fetched at the best available quality.\n\n"+
				"/status — your downloads\n"+
				"/buy — queue priority\n"+
				"/help — all commands")

	case "/help":
		help := "Commands:\n" +
			"/start - intro\n" +
			"/status - your active downloads and stats\n" +
			"/buy - buy queue priority\n" +
			"/help - this message"
		if r.isAdmin(tgUser.ID) {
			help += "\n\nAdmin:\n" +
				"/grant <user_id> <days> - grant priority (negative days = unlimited)\n" +
				"/revoke <user_id> - revoke priority\n" +
				"/priority_list - users with priority\n" +
				"/admin - queue stats and pending purchases"
		}
		return r.sendMessage(chatID, help)

	case "/status":
		return r.sendStatus(ctx, chatID, tgUser.ID)

	case "/buy":
		return r.sendBuyMenu(chatID)

	case "/grant":
		if !r.isAdmin(tgUser.ID) {
			return r.sendMessage(chatID, "Unknown command. See /help.")
		}
		if len(fields) < 3 {
			return r.sendMessage(chatID, "Usage: /grant <user_id> <days>")
		}
		targetID, err1 := strconv.ParseInt(fields[1], 10, 64)
		days, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return r.sendMessage(chatID, "Usage: /grant <user_id> <days>")
		}
		return r.handleGrant(ctx, chatID, targetID, days)

	case "/revoke":
		if !r.isAdmin(tgUser.ID) {
			return r.sendMessage(chatID, "Unknown command. See /help.")
		}
		if len(fields) < 2 {
			return r.sendMessage(chatID, "Usage: /revoke <user_id>")
		}
		targetID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return r.sendMessage(chatID, "Usage: /revoke <user_id>")
		}
		if err := r.priorityUC.Revoke(ctx, targetID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return r.sendMessage(chatID, "No such user.")
			}
			return r.sendMessage(chatID, "Failed to revoke priority.")
		}
		_ = r.sendMessage(targetID, "Your queue priority has been revoked.")
		return r.sendMessage(chatID, fmt.Sprintf("Priority revoked for %d.", targetID))

	case "/priority_list":
		if !r.isAdmin(tgUser.ID) {
			return r.sendMessage(chatID, "Unknown command. See /help.")
		}
		return r.sendPriorityList(ctx, chatID)

	case "/admin":
		if !r.isAdmin(tgUser.ID) {
			return r.sendMessage(chatID, "Unknown command. See /help.")
		}
		return r.sendAdminPanel(ctx, chatID)

	default:
		if url := extractFirstURL(update.Message.Text); url != "" {
			return r.handleIncomingLink(ctx, chatID, tgUser.ID, url)
		}
		if command != "" {
			return r.sendMessage(chatID, "Unknown command. See /help.")
		}
		return r.sendMessage(chatID, "Send me a video link to download it.")
	}
}

// handleIncomingLink starts the selection flow: YouTube links get a quality
// keyboard backed by a probe; anything else needs an explicit confirmation
// before we fetch it at best quality.
func (r *RealTelegramBotAdapter) handleIncomingLink(ctx context.Context, chatID, userID int64, url string) error {
	if err := r.pendingLinks.Set(ctx, userID, url); err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Msg("failed to store pending link")
		return r.sendMessage(chatID, "Something went wrong. Please try again.")
	}

	if !isYouTubeURL(url) {
		rows := [][]tgbotapi.InlineKeyboardButton{
			{tgbotapi.NewInlineKeyboardButtonData("⬇️ Download anyway", "dlbest")},
			{tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "cancel")},
		}
		return r.sendButtons(chatID,
			"This is not a YouTube link. I can try to fetch it at the best available quality.", rows)
	}

	info, err := r.prober.Probe(ctx, url)
	if err != nil {
		r.log.Warn().Err(err).Str("url", url).Msg("probe failed, offering default qualities")
		return r.sendQualityKeyboard(chatID, nil, url)
	}
	return r.sendQualityKeyboard(chatID, info, url)
}

func (r *RealTelegramBotAdapter) sendQualityKeyboard(chatID int64, info *adapter.MediaInfo, url string) error {
	var header string
	var rows [][]tgbotapi.InlineKeyboardButton

	if info != nil && len(info.Qualities) > 0 {
		header = fmt.Sprintf("🎬 %s\n⏳ %s\n\nPick a quality:", info.Title, formatDuration(info.DurationSeconds))
		for _, q := range info.Qualities {
			label := q.Label
			if q.SizeBytes > 0 {
				label = fmt.Sprintf("%s (~%s)", q.Label, formatSize(q.SizeBytes))
			}
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(label, "dl:"+q.Label),
			})
		}
	} else {
		header = "Pick a quality:"
		for _, q := range []string{"1080p", "720p", "480p", "360p"} {
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(q, "dl:"+q),
			})
		}
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🎵 Audio only (mp3)", "dl:mp3"),
	})
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "cancel"),
	})
	return r.sendButtons(chatID, header, rows)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	userID := query.From.ID
	chatID := userID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	data := strings.TrimSpace(query.Data)

	switch {
	case data == "cancel":
		_ = r.pendingLinks.Clear(ctx, userID)
		return r.sendMessage(chatID, "Cancelled.")

	case data == "dlbest":
		return r.startFromPendingLink(ctx, chatID, userID, qualityBest)

	case strings.HasPrefix(data, "dl:"):
		return r.startFromPendingLink(ctx, chatID, userID, strings.TrimPrefix(data, "dl:"))

	case data == "buyp":
		return r.handlePurchaseRequest(ctx, chatID, userID, query.From.UserName)

	case strings.HasPrefix(data, "pay:ok:"):
		if !r.isAdmin(userID) {
			return nil
		}
		return r.handlePurchaseDecision(ctx, chatID, strings.TrimPrefix(data, "pay:ok:"), true)

	case strings.HasPrefix(data, "pay:no:"):
		if !r.isAdmin(userID) {
			return nil
		}
		return r.handlePurchaseDecision(ctx, chatID, strings.TrimPrefix(data, "pay:no:"), false)

	default:
		return fmt.Errorf("unknown callback data %q", data)
	}
}

// qualityBest asks startFromPendingLink to resolve the top probed quality,
// used when the source was confirmed without a picker.
const qualityBest = "best"

// startFromPendingLink resolves the user's stored locator and submits the
// job. The stored link is cleared on success so a stray second tap of an old
// keyboard cannot re-submit.
func (r *RealTelegramBotAdapter) startFromPendingLink(ctx context.Context, chatID, userID int64, quality string) error {
	url, err := r.pendingLinks.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.sendMessage(chatID, "That selection expired. Send the link again.")
		}
		return err
	}

	title := ""
	info, probeErr := r.prober.Probe(ctx, url)
	if probeErr == nil {
		title = info.Title
	}
	if quality == qualityBest {
		quality = bestQuality(info)
	}

	res, err := r.downloadUC.Submit(ctx, userID, url, title, quality)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateDownload):
			return r.sendMessage(chatID, "You already have this download in progress.")
		default:
			r.log.Error().Err(err).Int64("user_id", userID).Msg("submit failed")
			return r.sendMessage(chatID, "Failed to queue the download. Please try again.")
		}
	}
	_ = r.pendingLinks.Clear(ctx, userID)

	if res.Cached {
		_ = r.sendMessage(chatID, "⚡ Found in cache, sending right away.")
		return r.cached.DeliverCached(ctx, adapter.MessageRef{ChatID: chatID}, res.Download)
	}

	pos, _ := r.downloadUC.QueuePosition(ctx, res.Download.ID)
	text := renderProgress(res.Download)
	if pos > 1 {
		text = fmt.Sprintf("%s (position %d)", text, pos)
	}
	sent, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return err
	}
	r.watcher.Watch(res.Download.ID, adapter.MessageRef{ChatID: chatID, MessageID: sent.MessageID})
	return nil
}

func (r *RealTelegramBotAdapter) sendStatus(ctx context.Context, chatID, userID int64) error {
	user, err := r.userUC.Get(ctx, userID)
	if err != nil {
		return r.sendMessage(chatID, "Failed to load your status.")
	}

	var b strings.Builder
	b.WriteString("📊 Your status\n\n")
	switch {
	case user.Priority.Unbounded():
		b.WriteString("⭐ Priority: unlimited\n")
	default:
		if rem, ok := user.Priority.Remaining(timeNow()); ok {
			fmt.Fprintf(&b, "⭐ Priority: %s left\n", formatRemaining(rem))
		} else {
			b.WriteString("Priority: none (/buy)\n")
		}
	}
	fmt.Fprintf(&b, "Downloads: %d (%s total)\n", user.TotalDownloads, formatSize(user.TotalBytes))

	active, err := r.downloadUC.ActiveForUser(ctx, userID)
	if err != nil {
		return r.sendMessage(chatID, "Failed to load your downloads.")
	}
	if len(active) == 0 {
		b.WriteString("\nNo downloads in progress.")
	} else {
		b.WriteString("\nIn progress:\n")
		for _, d := range active {
			title := d.Title
			if title == "" {
				title = d.SourceURL
			}
			fmt.Fprintf(&b, "· %s — %s %d%%\n", title, d.Status, d.Progress)
		}
	}
	return r.sendMessage(chatID, b.String())
}

func (r *RealTelegramBotAdapter) sendBuyMenu(chatID int64) error {
	text := fmt.Sprintf(
		"⭐ Queue priority\n\nYour downloads start before non-priority users' for %d days.\nPrice: $%.2f, confirmed manually by an admin.",
		r.priorityUC.Days(), r.priorityUC.PriceUSD())
	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Buy for $%.2f", r.priorityUC.PriceUSD()), "buyp")},
		{tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "cancel")},
	}
	return r.sendButtons(chatID, text, rows)
}

func (r *RealTelegramBotAdapter) handlePurchaseRequest(ctx context.Context, chatID, userID int64, username string) error {
	p, err := r.priorityUC.RequestPurchase(ctx, userID)
	if err != nil {
		return r.sendMessage(chatID, "Failed to create the purchase request.")
	}

	who := strconv.FormatInt(userID, 10)
	if username != "" {
		who = "@" + username + " (" + who + ")"
	}
	adminText := fmt.Sprintf("💰 Priority purchase from %s — $%.2f", who, p.AmountUSD)
	rows := [][]tgbotapi.InlineKeyboardButton{{
		tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", "pay:ok:"+p.ID),
		tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "pay:no:"+p.ID),
	}}
	for adminID := range r.adminIDsMap {
		if err := r.sendButtons(adminID, adminText, rows); err != nil {
			r.log.Warn().Err(err).Int64("admin_id", adminID).Msg("failed to notify admin of purchase")
		}
	}
	return r.sendMessage(chatID, "Your purchase request was sent. You'll be notified once an admin confirms the payment.")
}

func (r *RealTelegramBotAdapter) handlePurchaseDecision(ctx context.Context, adminChatID int64, purchaseID string, approve bool) error {
	p, err := r.priorityUC.Decide(ctx, purchaseID, approve)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			return r.sendMessage(adminChatID, "This purchase was already decided.")
		}
		r.log.Error().Err(err).Str("purchase_id", purchaseID).Msg("purchase decision failed")
		return r.sendMessage(adminChatID, "Failed to decide the purchase.")
	}

	if approve {
		_ = r.sendMessage(p.UserID, fmt.Sprintf("✅ Payment confirmed. You now have queue priority for %d days.", r.priorityUC.Days()))
		return r.sendMessage(adminChatID, "Purchase confirmed.")
	}
	_ = r.sendMessage(p.UserID, "❌ Your priority purchase was rejected. Contact support if you already paid.")
	return r.sendMessage(adminChatID, "Purchase rejected.")
}

func (r *RealTelegramBotAdapter) handleGrant(ctx context.Context, adminChatID, targetID int64, days int) error {
	p, err := r.priorityUC.Grant(ctx, targetID, days)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.sendMessage(adminChatID, "No such user.")
		}
		return r.sendMessage(adminChatID, "Failed to grant priority.")
	}
	switch {
	case p.Unbounded():
		_ = r.sendMessage(targetID, "⭐ You've been granted unlimited queue priority.")
		return r.sendMessage(adminChatID, fmt.Sprintf("Unlimited priority granted to %d.", targetID))
	case p.Tier == model.PriorityNone:
		_ = r.sendMessage(targetID, "Your queue priority has been revoked.")
		return r.sendMessage(adminChatID, fmt.Sprintf("Priority revoked for %d.", targetID))
	default:
		_ = r.sendMessage(targetID, fmt.Sprintf("⭐ You've been granted queue priority for %d days.", days))
		return r.sendMessage(adminChatID, fmt.Sprintf("Priority granted to %d for %d days.", targetID, days))
	}
}

func (r *RealTelegramBotAdapter) sendPriorityList(ctx context.Context, chatID int64) error {
	users, err := r.priorityUC.ListPriorityUsers(ctx)
	if err != nil {
		return r.sendMessage(chatID, "Failed to load the priority list.")
	}
	if len(users) == 0 {
		return r.sendMessage(chatID, "No users with priority.")
	}
	var b strings.Builder
	b.WriteString("⭐ Priority users:\n")
	for _, u := range users {
		name := u.Username
		if name == "" {
			name = strconv.FormatInt(u.ID, 10)
		}
		if u.Priority.Unbounded() {
			fmt.Fprintf(&b, "· %s — unlimited\n", name)
		} else if rem, ok := u.Priority.Remaining(timeNow()); ok {
			fmt.Fprintf(&b, "· %s — %s left\n", name, formatRemaining(rem))
		} else {
			fmt.Fprintf(&b, "· %s — expired\n", name)
		}
	}
	return r.sendMessage(chatID, b.String())
}

func (r *RealTelegramBotAdapter) sendAdminPanel(ctx context.Context, chatID int64) error {
	users, active, pending, err := r.statsUC.Totals(ctx)
	if err != nil {
		return r.sendMessage(chatID, "Failed to load stats.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🛠 Admin\n\nUsers: %d\nActive downloads: %d\nQueued: %d\n", users, active, pending)
	if files, bytes, err := r.statsUC.StorageUsage(); err == nil {
		fmt.Fprintf(&b, "Storage: %d files, %s\n", files, formatSize(bytes))
	}

	purchases, err := r.priorityUC.ListPendingPurchases(ctx)
	if err == nil && len(purchases) > 0 {
		fmt.Fprintf(&b, "\nPending purchases: %d\n", len(purchases))
		if err := r.sendMessage(chatID, b.String()); err != nil {
			return err
		}
		for _, p := range purchases {
			rows := [][]tgbotapi.InlineKeyboardButton{{
				tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", "pay:ok:"+p.ID),
				tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "pay:no:"+p.ID),
			}}
			text := fmt.Sprintf("💰 From %d — $%.2f (%s)", p.UserID, p.AmountUSD, p.CreatedAt.Format("Jan 2 15:04"))
			if err := r.sendButtons(chatID, text, rows); err != nil {
				return err
			}
		}
		return nil
	}
	return r.sendMessage(chatID, b.String())
}
