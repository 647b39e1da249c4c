// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/domain/ports/adapter"
	"telegram-media-downloader/internal/infra/adapters/fetch"
	tele "telegram-media-downloader/internal/infra/adapters/telegram"
	pg "telegram-media-downloader/internal/infra/db/postgres"
	"telegram-media-downloader/internal/infra/fileserver"
	"telegram-media-downloader/internal/infra/logging"
	"telegram-media-downloader/internal/infra/metrics"
	red "telegram-media-downloader/internal/infra/redis"
	"telegram-media-downloader/internal/infra/sched"
	"telegram-media-downloader/internal/infra/worker"
	"telegram-media-downloader/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (placeholder fetcher, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	pendingLinks := red.NewPendingLinkStore(redisClient, cfg.Downloads.ProbeCacheTTL)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	downloadRepo := pg.NewDownloadRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, logger)
	downloadUC := usecase.NewDownloadUseCase(downloadRepo, logger)
	priorityUC := usecase.NewPriorityUseCase(purchaseRepo, userRepo, txManager, cfg.Priority.Days, cfg.Priority.PriceUSD, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, downloadRepo, cfg.Downloads.StorageDir, logger)

	// ---- Media engine ----
	var fetcher adapter.MediaFetcher
	var prober adapter.MediaProber
	if cfg.Runtime.Dev {
		noop := fetch.NewNoOpFetcher()
		fetcher, prober = noop, noop
		logger.Warn().Msg("media engine: no-op (dev)")
	} else {
		yt := fetch.NewYtdlpFetcher(logger)
		fetcher, prober = yt, yt
	}
	prober = red.NewProbeCache(redisClient, prober, cfg.Downloads.ProbeCacheTTL, logger)

	// ---- File server ----
	files := fileserver.New(&cfg.FileServer, logger)
	router := files.Router()
	router.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := files.Start(ctx, router); err != nil {
			logger.Error().Err(err).Msg("file server stopped")
		}
	}()

	// ---- Download pipeline ----
	dlPool := worker.NewPool(cfg.Downloads.MaxConcurrent, logger)
	dlPool.Start(ctx)
	executor := worker.NewDownloadExecutor(downloadRepo, userRepo, fetcher, &cfg.Downloads, logger)
	scheduler := sched.NewQueueScheduler(downloadRepo, dlPool, executor, &cfg.Downloads, logger)
	go func() { _ = scheduler.Run(ctx) }()

	cleaner := sched.NewCleanupWorker(&cfg.Downloads, logger)
	go func() { _ = cleaner.Run(ctx) }()

	// ---- Telegram ----
	var notifier adapter.Notifier
	var botAdapter *tele.RealTelegramBotAdapter
	if cfg.Bot.Token == "" {
		notifier = tele.NewNoopNotifier()
		logger.Warn().Msg("bot.token empty, telegram disabled (noop notifier)")
	} else {
		botAdapter, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, userUC, downloadUC, priorityUC, statsUC, prober, pendingLinks, nil, nil, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		notifier = botAdapter
	}

	deliverer := sched.NewDeliverer(downloadRepo, notifier, files, cfg.Downloads.InlineLimitBytes(), logger)
	observer := sched.NewObserverManager(downloadRepo, notifier, deliverer, &cfg.Downloads, logger)
	observer.Start(ctx)

	if botAdapter != nil {
		botAdapter.BindPipeline(observer, deliverer)
		go func() {
			if err := botAdapter.StartPolling(ctx); err != nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	observer.Stop()
	dlPool.Stop()
}
