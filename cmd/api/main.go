package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ai-news-digest/internal/adapters/api"
	"ai-news-digest/internal/adapters/feeds"
	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/adapters/repo"
	"ai-news-digest/internal/adapters/summarizer"
	"ai-news-digest/internal/infra/cache"
	"ai-news-digest/internal/infra/config"
	"ai-news-digest/internal/infra/db"
	httpinfra "ai-news-digest/internal/infra/http"
	applog "ai-news-digest/internal/infra/log"
	"ai-news-digest/internal/infra/metrics"
	"ai-news-digest/internal/infra/queue"
	"ai-news-digest/internal/usecase/digest"
	"ai-news-digest/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	viewCache, closeCache, err := cache.Open(ctx, cfg.RedisAddr, "news:")
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось подключиться к кэшу")
	}
	defer closeCache()

	jobs, closer, err := queue.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь")
	}
	defer closer.Close()

	engine, err := ranker.LoadEngine(cfg.Relevance.DictionaryPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: некорректный словарь релевантности")
	}

	digestService := digest.NewService(repoAdapter, repoAdapter, engine, summarizer.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout, logger), nil, viewCache,
		digest.Config{
			MaxItems:   cfg.Limits.DigestMax,
			TopTags:    cfg.Limits.TopTags,
			WindowDays: cfg.Limits.Window,
			CacheTTL:   cfg.Cache.TTL,
		}, logger.With().Str("component", "digest").Logger())
	ingestService := ingest.NewService(repoAdapter, repoAdapter, feeds.NewRSS(cfg.Feeds.Timeout, cfg.Feeds.UserAgent),
		digestService, logger.With().Str("component", "ingest").Logger())

	server := httpinfra.NewServer(logger)
	api.NewHandler(digestService, ingestService, engine, jobs, cfg.API.Token, logger.With().Str("component", "api").Logger()).
		Mount(server.Router)

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
