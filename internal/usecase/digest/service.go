package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

// ErrNoArticles возвращается, если в окне нет ни одной статьи.
var ErrNoArticles = errors.New("нет статей за выбранный период")

// ErrUnknownProfile возвращается для незнакомого профиля релевантности.
var ErrUnknownProfile = errors.New("неизвестный профиль релевантности")

const (
	defaultWindowDays = 7
	sectionItems      = 3
	viewVersionKey    = "view:version"
)

// Enricher обогащает статьи и отдаёт словарь, по которому работает.
type Enricher interface {
	domain.Enricher
	Dictionary() domain.Dictionary
}

// Config задаёт лимиты сервиса.
type Config struct {
	MaxItems   int
	TopTags    int
	WindowDays int
	CacheTTL   time.Duration
}

// Query описывает выборку статей для выдачи.
type Query struct {
	Filter ranker.Filter
	Sort   ranker.SortField
	Limit  int
	Days   int
}

// Service строит представления обогащённых статей и еженедельный дайджест.
type Service struct {
	articles   domain.ArticleRepo
	digests    domain.DigestRepo
	enricher   Enricher
	summarizer domain.Summarizer
	notifier   domain.Notifier
	cache      domain.Cache
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис дайджестов. cache и notifier могут быть nil.
func NewService(articles domain.ArticleRepo, digests domain.DigestRepo, enricher Enricher, summarizer domain.Summarizer, notifier domain.Notifier, cache domain.Cache, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 10
	}
	if cfg.TopTags <= 0 {
		cfg.TopTags = ranker.DefaultTopTags
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = defaultWindowDays
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Service{
		articles:   articles,
		digests:    digests,
		enricher:   enricher,
		summarizer: summarizer,
		notifier:   notifier,
		cache:      cache,
		cfg:        cfg,
		log:        logger,
		now:        time.Now,
	}
}

// MaxItems возвращает размер топа по умолчанию.
func (s *Service) MaxItems() int {
	return s.cfg.MaxItems
}

// Since возвращает начало окна в days дней; days <= 0 даёт окно по умолчанию.
func (s *Service) Since(days int) time.Time {
	if days <= 0 {
		days = s.cfg.WindowDays
	}
	return s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Truncate(time.Hour)
}

// Enriched загружает статьи окна, удаляет дубликаты и обогащает их профилем profile.
func (s *Service) Enriched(ctx context.Context, profile string, since time.Time) ([]domain.EnrichedArticle, error) {
	key := s.viewKey(ctx, profile, since)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var items []domain.EnrichedArticle
			if err := json.Unmarshal(raw, &items); err == nil {
				return items, nil
			}
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			s.log.Warn().Err(err).Msg("digest: чтение кэша")
		}
	}

	articles, err := s.articles.ListArticles(ctx, domain.ArticleQuery{Since: since})
	if err != nil {
		return nil, fmt.Errorf("получение статей: %w", err)
	}
	articles = ranker.Dedupe(articles)
	items, ok := s.enricher.EnrichWithProfile(profile, articles)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	observeEnriched(profile, items)

	if s.cache != nil {
		if raw, err := json.Marshal(items); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
				s.log.Warn().Err(err).Msg("digest: запись кэша")
			}
		}
	}
	return items, nil
}

// Invalidate сбрасывает закэшированные представления.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	version := strconv.FormatInt(s.now().UnixNano(), 10)
	return s.cache.Set(ctx, viewVersionKey, []byte(version), 0)
}

func (s *Service) viewKey(ctx context.Context, profile string, since time.Time) string {
	if profile == "" {
		profile = domain.DefaultProfile
	}
	version := "0"
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, viewVersionKey); err == nil {
			version = string(raw)
		}
	}
	return fmt.Sprintf("view:%s:%s:%d", version, profile, since.Unix())
}

// Query ищет и сортирует статьи.
func (s *Service) Query(ctx context.Context, q Query) ([]domain.EnrichedArticle, error) {
	items, err := s.Enriched(ctx, domain.DefaultProfile, s.Since(q.Days))
	if err != nil {
		return nil, err
	}
	return ranker.TopN(ranker.Search(items, q.Filter), q.Sort, q.Limit), nil
}

// Top возвращает n самых релевантных статей; n <= 0 даёт MaxItems.
func (s *Service) Top(ctx context.Context, n, days int) ([]domain.EnrichedArticle, error) {
	if n <= 0 {
		n = s.cfg.MaxItems
	}
	items, err := s.Enriched(ctx, domain.DefaultProfile, s.Since(days))
	if err != nil {
		return nil, err
	}
	return ranker.TopN(items, ranker.SortRelevance, n), nil
}

// Stats возвращает статистику по кластерам.
func (s *Service) Stats(ctx context.Context, days int) ([]domain.ClusterStat, error) {
	items, err := s.Enriched(ctx, domain.DefaultProfile, s.Since(days))
	if err != nil {
		return nil, err
	}
	return ranker.ClusterStats(items, s.cfg.TopTags), nil
}

// Highlights возвращает лучшие статьи по профилю, отбрасывая статьи с минимальной оценкой.
func (s *Service) Highlights(ctx context.Context, profile string, n, days int) ([]domain.EnrichedArticle, error) {
	cfg, ok := s.enricher.Dictionary().Profile(profile)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	floor := max(cfg.MinScore, 1)
	items, err := s.Enriched(ctx, profile, s.Since(days))
	if err != nil {
		return nil, err
	}
	relevant := make([]domain.EnrichedArticle, 0, len(items))
	for _, item := range items {
		if item.RelevanceScore > floor {
			relevant = append(relevant, item)
		}
	}
	if n <= 0 {
		n = s.cfg.MaxItems
	}
	return ranker.TopN(relevant, ranker.SortRelevance, n), nil
}

// BuildWeekly собирает дайджест за семь дней до now.
func (s *Service) BuildWeekly(ctx context.Context, now time.Time) (domain.Digest, error) {
	start := time.Now()
	defer func() { metrics.DigestBuildSeconds.Observe(time.Since(start).Seconds()) }()

	from, to := WeekWindow(now)
	items, err := s.Enriched(ctx, domain.DefaultProfile, from)
	if err != nil {
		return domain.Digest{}, err
	}
	if len(items) == 0 {
		return domain.Digest{}, ErrNoArticles
	}

	top, err := s.digestItems(ranker.TopN(items, ranker.SortRelevance, s.cfg.MaxItems))
	if err != nil {
		return domain.Digest{}, err
	}

	stats := ranker.ClusterStats(items, s.cfg.TopTags)
	sections := make([]domain.DigestSection, 0, len(stats))
	for _, stat := range stats {
		members := ranker.Search(items, ranker.Filter{Cluster: stat.Cluster})
		sectionTop, err := s.digestItems(ranker.TopN(members, ranker.SortCluster, sectionItems))
		if err != nil {
			return domain.Digest{}, err
		}
		sections = append(sections, domain.DigestSection{Stat: stat, Items: sectionTop})
	}
	return domain.Digest{From: from, To: to, Top: top, Sections: sections}, nil
}

func (s *Service) digestItems(items []domain.EnrichedArticle) ([]domain.DigestItem, error) {
	out := make([]domain.DigestItem, 0, len(items))
	for idx, item := range items {
		summary, err := s.summarizer.Summarize(item.Article)
		if err != nil {
			return nil, fmt.Errorf("суммаризация: %w", err)
		}
		out = append(out, domain.DigestItem{Article: item, Summary: summary, Rank: idx + 1})
	}
	return out, nil
}

// SendWeekly строит, сохраняет и отправляет дайджест в chatID. Если на текущей
// ISO-неделе дайджест уже доставлялся, возвращает false без повторной отправки.
func (s *Service) SendWeekly(ctx context.Context, chatID int64, now time.Time) (bool, error) {
	if s.notifier == nil {
		return false, errors.New("notifier не настроен")
	}
	week := WeekStart(now)
	delivered, err := s.digests.WasDelivered(ctx, week)
	if err != nil {
		return false, fmt.Errorf("проверка доставки: %w", err)
	}
	if delivered {
		s.log.Info().Time("week", week).Msg("digest: на этой неделе уже доставлен")
		return false, nil
	}
	d, err := s.BuildWeekly(ctx, now)
	if err != nil {
		return false, err
	}
	saved, err := s.digests.SaveDigest(ctx, d)
	if err != nil {
		return false, fmt.Errorf("сохранение дайджеста: %w", err)
	}
	if err := s.notifier.SendDigest(ctx, chatID, FormatDigest(saved)); err != nil {
		return false, fmt.Errorf("отправка дайджеста: %w", err)
	}
	if err := s.digests.MarkDelivered(ctx, saved.ID, s.now().UTC()); err != nil {
		return true, fmt.Errorf("отметка доставки: %w", err)
	}
	return true, nil
}

// WeekWindow возвращает начало (полночь UTC семь дней назад) и конец окна.
func WeekWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	from := now.AddDate(0, 0, -7)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	return from, now
}

// WeekStart возвращает понедельник 00:00 UTC ISO-недели, в которую попадает now.
func WeekStart(now time.Time) time.Time {
	now = now.UTC()
	offset := (int(now.Weekday()) + 6) % 7
	day := now.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

func observeEnriched(profile string, items []domain.EnrichedArticle) {
	clusters := make([]string, 0, len(items))
	for _, item := range items {
		clusters = append(clusters, item.Cluster)
	}
	metrics.ObserveEnrichment(profile, clusters...)
}
