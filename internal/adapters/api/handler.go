package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/domain"
	httpinfra "ai-news-digest/internal/infra/http"
	"ai-news-digest/internal/infra/metrics"
	"ai-news-digest/internal/usecase/digest"
	"ai-news-digest/internal/usecase/ingest"
)

const (
	maxLimit       = 200
	maxScoreBatch  = 500
	maxRequestBody = 1 << 20
)

// Articles — запросы к обогащённым статьям.
type Articles interface {
	Query(ctx context.Context, q digest.Query) ([]domain.EnrichedArticle, error)
	Top(ctx context.Context, n, days int) ([]domain.EnrichedArticle, error)
	Stats(ctx context.Context, days int) ([]domain.ClusterStat, error)
	Highlights(ctx context.Context, profile string, n, days int) ([]domain.EnrichedArticle, error)
}

// Feeds — управление лентами и ручными статьями.
type Feeds interface {
	AddFeed(ctx context.Context, name, rawURL string) (domain.Feed, error)
	GetFeed(ctx context.Context, feedID int64) (domain.Feed, error)
	ListFeeds(ctx context.Context) ([]domain.Feed, error)
	AddArticle(ctx context.Context, a domain.Article) (domain.Article, error)
}

// Handler обслуживает /api/v1.
type Handler struct {
	articles Articles
	feeds    Feeds
	enricher domain.Enricher
	jobs     domain.JobQueue
	token    string
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler создаёт обработчик. Пустой token отключает авторизацию изменяющих запросов.
func NewHandler(articles Articles, feeds Feeds, enricher domain.Enricher, jobs domain.JobQueue, token string, logger zerolog.Logger) *Handler {
	return &Handler{
		articles: articles,
		feeds:    feeds,
		enricher: enricher,
		jobs:     jobs,
		token:    token,
		log:      logger,
		now:      time.Now,
	}
}

// Mount регистрирует маршруты в r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/articles", h.listArticles)
		r.Get("/articles/top", h.topArticles)
		r.Get("/clusters", h.clusters)
		r.Get("/highlights", h.highlights)
		r.Post("/score", h.score)

		r.Group(func(protected chi.Router) {
			protected.Use(httpinfra.TokenAuthMiddleware(h.token))
			protected.Post("/articles", h.addArticle)
			protected.Get("/feeds", h.listFeeds)
			protected.Post("/feeds", h.addFeed)
			protected.Post("/feeds/{id}/refresh", h.refreshFeed)
		})
	})
}

type listResponse struct {
	Count int                      `json:"count"`
	Items []domain.EnrichedArticle `json:"items"`
}

func newList(items []domain.EnrichedArticle) listResponse {
	if items == nil {
		items = []domain.EnrichedArticle{}
	}
	return listResponse{Count: len(items), Items: items}
}

func (h *Handler) listArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortField, err := ranker.ParseSortField(q.Get("sort"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(q.Get("limit"), 0, maxLimit)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
		return
	}
	days, err := intParam(q.Get("days"), 0, 365)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("days: %w", err))
		return
	}
	items, err := h.articles.Query(r.Context(), digest.Query{
		Filter: ranker.Filter{Query: q.Get("q"), Cluster: q.Get("cluster"), Tag: q.Get("tag")},
		Sort:   sortField,
		Limit:  limit,
		Days:   days,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newList(items))
}

func (h *Handler) topArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := intParam(q.Get("n"), 0, maxLimit)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("n: %w", err))
		return
	}
	days, err := intParam(q.Get("days"), 0, 365)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("days: %w", err))
		return
	}
	items, err := h.articles.Top(r.Context(), n, days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newList(items))
}

func (h *Handler) clusters(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"), 0, 365)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("days: %w", err))
		return
	}
	stats, err := h.articles.Stats(r.Context(), days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if stats == nil {
		stats = []domain.ClusterStat{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"clusters": stats})
}

func (h *Handler) highlights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	profile := strings.TrimSpace(q.Get("profile"))
	if profile == "" {
		profile = ranker.StudentsProfile
	}
	n, err := intParam(q.Get("n"), 0, maxLimit)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("n: %w", err))
		return
	}
	days, err := intParam(q.Get("days"), 0, 365)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("days: %w", err))
		return
	}
	items, err := h.articles.Highlights(r.Context(), profile, n, days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := newList(items)
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"profile": profile, "count": resp.Count, "items": resp.Items})
}

type scoreRequest struct {
	Profile  string           `json:"profile"`
	Articles []domain.Article `json:"articles"`
}

// score обогащает присланные статьи без сохранения. Ядро не возвращает ошибок,
// поэтому любые записи, включая пустые, получают оценку.
func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Articles) > maxScoreBatch {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("too many articles: %d > %d", len(req.Articles), maxScoreBatch))
		return
	}
	items, ok := h.enricher.EnrichWithProfile(req.Profile, req.Articles)
	if !ok {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", digest.ErrUnknownProfile, req.Profile))
		return
	}
	observeEnriched(req.Profile, items)
	httpinfra.WriteJSON(w, http.StatusOK, newList(items))
}

func (h *Handler) addArticle(w http.ResponseWriter, r *http.Request) {
	var a domain.Article
	if err := decodeJSON(w, r, &a); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := h.feeds.AddArticle(r.Context(), a)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := h.enricher.Enrich([]domain.Article{saved})
	observeEnriched(domain.DefaultProfile, items)
	httpinfra.WriteJSON(w, http.StatusCreated, items[0])
}

func (h *Handler) listFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.ListFeeds(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if feeds == nil {
		feeds = []domain.Feed{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"feeds": feeds})
}

type addFeedRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (h *Handler) addFeed(w http.ResponseWriter, r *http.Request) {
	var req addFeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	feed, err := h.feeds.AddFeed(r.Context(), req.Name, req.URL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, feed)
}

func (h *Handler) refreshFeed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("invalid feed id"))
		return
	}
	feed, err := h.feeds.GetFeed(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !feed.Enabled {
		httpinfra.WriteError(w, http.StatusConflict, ingest.ErrFeedDisabled)
		return
	}
	now := h.now().UTC()
	job := domain.Job{
		ID:          uuid.NewString(),
		Kind:        domain.JobRefreshFeed,
		FeedID:      feed.ID,
		Date:        now,
		RequestedAt: now,
		Cause:       domain.JobCauseManual,
	}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.writeServiceError(w, r, fmt.Errorf("постановка задачи: %w", err))
		return
	}
	h.log.Info().Int64("feed", feed.ID).Str("job_id", job.ID).Msg("api: обновление ленты поставлено в очередь")
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "job_id": job.ID})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingest.ErrFeedURLInvalid),
		errors.Is(err, ingest.ErrArticleInvalid),
		errors.Is(err, digest.ErrUnknownProfile):
		httpinfra.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled):
		httpinfra.WriteError(w, http.StatusRequestTimeout, err)
	default:
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: ошибка обработки запроса")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// intParam разбирает неотрицательное число; пустая строка даёт def, значение ограничено upper.
func intParam(raw string, def, upper int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative: %d", n)
	}
	return min(n, upper), nil
}

func observeEnriched(profile string, items []domain.EnrichedArticle) {
	for _, item := range items {
		metrics.ObserveEnrichment(profile, item.Cluster)
	}
}
