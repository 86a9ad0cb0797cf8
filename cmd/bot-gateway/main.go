package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"ai-news-digest/internal/adapters/bot"
	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/adapters/repo"
	"ai-news-digest/internal/adapters/summarizer"
	"ai-news-digest/internal/adapters/telegram"
	"ai-news-digest/internal/infra/cache"
	"ai-news-digest/internal/infra/config"
	"ai-news-digest/internal/infra/db"
	httpinfra "ai-news-digest/internal/infra/http"
	applog "ai-news-digest/internal/infra/log"
	"ai-news-digest/internal/infra/metrics"
	"ai-news-digest/internal/infra/queue"
	"ai-news-digest/internal/usecase/digest"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	jobs, closer, err := queue.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось инициализировать очередь")
	}
	defer closer.Close()

	viewCache, closeCache, err := cache.Open(ctx, cfg.RedisAddr, "news:")
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось подключиться к кэшу")
	}
	defer closeCache()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}
	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: некорректный адрес вебхука")
		}
		start := time.Now()
		_, err = botAPI.Request(wh)
		metrics.ObserveNetworkRequest("telegram_bot", "set_webhook", cfg.Telegram.WebhookURL, start, err)
		if err != nil {
			logger.Error().Err(err).Msg("bot: не удалось зарегистрировать вебхук")
		}
	}

	engine, err := ranker.LoadEngine(cfg.Relevance.DictionaryPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: некорректный словарь релевантности")
	}
	digestService := digest.NewService(repoAdapter, repoAdapter, engine, summarizer.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout, logger), telegram.NewNotifier(botAPI), viewCache,
		digest.Config{
			MaxItems:   cfg.Limits.DigestMax,
			TopTags:    cfg.Limits.TopTags,
			WindowDays: cfg.Limits.Window,
			CacheTTL:   cfg.Cache.TTL,
		}, logger.With().Str("component", "digest").Logger())

	h := bot.NewHandler(botAPI, logger.With().Str("component", "bot").Logger(), digestService, jobs, cfg.Limits.DigestMax)

	server := httpinfra.NewServer(logger)
	server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		logger.Info().Msg("bot: гейтвей запущен")
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
