package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"ai-news-digest/internal/adapters/feeds"
	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/adapters/repo"
	"ai-news-digest/internal/adapters/summarizer"
	"ai-news-digest/internal/adapters/telegram"
	"ai-news-digest/internal/infra/cache"
	"ai-news-digest/internal/infra/config"
	"ai-news-digest/internal/infra/db"
	applog "ai-news-digest/internal/infra/log"
	"ai-news-digest/internal/infra/metrics"
	"ai-news-digest/internal/infra/queue"
	digestusecase "ai-news-digest/internal/usecase/digest"
	"ai-news-digest/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	jobs, closer, err := queue.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось инициализировать очередь")
	}
	defer closer.Close()

	viewCache, closeCache, err := cache.Open(ctx, cfg.RedisAddr, "news:")
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось подключиться к кэшу")
	}
	defer closeCache()

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("collector: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось создать бота")
	}
	notifier := telegram.NewNotifier(botAPI)

	engine, err := ranker.LoadEngine(cfg.Relevance.DictionaryPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: некорректный словарь релевантности")
	}

	digestService := digestusecase.NewService(repoAdapter, repoAdapter, engine, summarizer.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout, logger), notifier, viewCache,
		digestusecase.Config{
			MaxItems:   cfg.Limits.DigestMax,
			TopTags:    cfg.Limits.TopTags,
			WindowDays: cfg.Limits.Window,
			CacheTTL:   cfg.Cache.TTL,
		}, logger.With().Str("component", "digest").Logger())
	ingestService := ingest.NewService(repoAdapter, repoAdapter, feeds.NewRSS(cfg.Feeds.Timeout, cfg.Feeds.UserAgent),
		digestService, logger.With().Str("component", "ingest").Logger())

	worker := &jobWorker{
		log:        logger,
		queue:      jobs,
		statuses:   repoAdapter,
		locks:      viewCache,
		ingest:     ingestService,
		digests:    digestService,
		notifier:   notifier,
		chatID:     cfg.Telegram.DigestChatID,
		lockTTL:    10 * time.Minute,
		retryDelay: 5 * time.Second,
		now:        time.Now,
	}

	logger.Info().Msg("collector: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("collector: остановлен")
}
