package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_fetch_errors_total",
		Help: "Ошибки при загрузке лент",
	}, []string{"feed"})
	ArticlesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "articles_ingested_total",
		Help: "Количество сохранённых статей по лентам",
	}, []string{"feed"})
	ArticlesEnriched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "articles_enriched_total",
		Help: "Количество обогащённых статей по профилю и кластеру",
	}, []string{"profile", "cluster"})
	DigestBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_build_seconds",
		Help:    "Время построения дайджеста",
		Buckets: prometheus.DefBuckets,
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	DigestRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_requests_total",
		Help: "Запросы на построение дайджеста по причине",
	}, []string{"cause"})

	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Обработанные задачи по типу и результату",
	}, []string{"kind", "status"})

	LLMTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Токены, израсходованные на суммаризацию",
	}, []string{"model", "kind"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedFetchErrors,
		ArticlesIngested,
		ArticlesEnriched,
		DigestBuildSeconds,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		DigestRequestsTotal,
		JobsProcessed,
		LLMTokens,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveEnrichment учитывает обогащённые статьи по кластерам.
func ObserveEnrichment(profile string, clusters ...string) {
	if profile == "" {
		profile = "default"
	}
	for _, cluster := range clusters {
		ArticlesEnriched.WithLabelValues(profile, cluster).Inc()
	}
}

// ObserveIngest учитывает результат загрузки ленты.
func ObserveIngest(feed string, saved int, err error) {
	if err != nil {
		FeedFetchErrors.WithLabelValues(feed).Inc()
		return
	}
	ArticlesIngested.WithLabelValues(feed).Add(float64(saved))
}

// IncDigest увеличивает счётчик запросов на дайджест.
func IncDigest(cause string) {
	if cause == "" {
		cause = "unknown"
	}
	DigestRequestsTotal.WithLabelValues(cause).Inc()
}

// ObserveJob учитывает обработанную задачу.
func ObserveJob(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	JobsProcessed.WithLabelValues(kind, status).Inc()
}

// ObserveLLMUsage учитывает токены одного ответа модели.
func ObserveLLMUsage(model string, prompt, completion int) {
	if model == "" {
		model = "unknown"
	}
	LLMTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	LLMTokens.WithLabelValues(model, "completion").Add(float64(completion))
}
