package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"ai-news-digest/internal/adapters/repo"
	"ai-news-digest/internal/infra/config"
	"ai-news-digest/internal/infra/db"
	applog "ai-news-digest/internal/infra/log"
	"ai-news-digest/internal/infra/metrics"
	"ai-news-digest/internal/infra/queue"
	"ai-news-digest/internal/usecase/schedule"
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
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	jobs, closer, err := queue.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь")
	}
	defer closer.Close()

	scheduler, err := schedule.NewService(cfg.TZ, repo.NewPostgres(pool), jobs, cfg.Telegram.DigestChatID,
		logger.With().Str("component", "scheduler").Logger())
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("scheduler: некорректный часовой пояс")
	}
	if err := scheduler.Register(ctx, cfg.Schedule.CollectCron, cfg.Schedule.DigestCron); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректное расписание")
	}

	logger.Info().
		Str("collect", cfg.Schedule.CollectCron).
		Str("digest", cfg.Schedule.DigestCron).
		Int("entries", scheduler.Entries()).
		Msg("scheduler: старт")
	scheduler.Run(ctx)
	logger.Info().Msg("scheduler: остановлен")
}
