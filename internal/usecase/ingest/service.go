package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

var (
	ErrFeedURLInvalid = errors.New("некорректный адрес ленты")
	ErrArticleInvalid = errors.New("у статьи нет заголовка")
	ErrFeedDisabled   = errors.New("лента отключена")
)

// Invalidator сбрасывает кэшированные представления после записи.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Result описывает итог сбора всех лент.
type Result struct {
	Feeds  int `json:"feeds"`
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}

// Service загружает статьи из лент и принимает статьи, добавленные вручную.
type Service struct {
	feeds    domain.FeedRepo
	articles domain.ArticleRepo
	source   domain.FeedSource
	views    Invalidator
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис. views может быть nil.
func NewService(feeds domain.FeedRepo, articles domain.ArticleRepo, source domain.FeedSource, views Invalidator, logger zerolog.Logger) *Service {
	return &Service{feeds: feeds, articles: articles, source: source, views: views, log: logger, now: time.Now}
}

// ParseFeedURL проверяет, что адрес абсолютный http(s).
func ParseFeedURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrFeedURLInvalid
	}
	return u.String(), nil
}

// AddFeed регистрирует ленту. Пустое имя заменяется хостом.
func (s *Service) AddFeed(ctx context.Context, name, rawURL string) (domain.Feed, error) {
	parsed, err := ParseFeedURL(rawURL)
	if err != nil {
		return domain.Feed{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		u, _ := url.Parse(parsed)
		name = strings.TrimPrefix(u.Hostname(), "www.")
	}
	feed, err := s.feeds.UpsertFeed(ctx, domain.Feed{Name: name, URL: parsed, Enabled: true})
	if err != nil {
		return domain.Feed{}, fmt.Errorf("сохранение ленты: %w", err)
	}
	return feed, nil
}

// ListFeeds возвращает все ленты.
func (s *Service) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	feeds, err := s.feeds.ListFeeds(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("список лент: %w", err)
	}
	return feeds, nil
}

// GetFeed возвращает ленту по идентификатору.
func (s *Service) GetFeed(ctx context.Context, feedID int64) (domain.Feed, error) {
	feed, err := s.feeds.GetFeed(ctx, feedID)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("получение ленты %d: %w", feedID, err)
	}
	return feed, nil
}

// CollectFeed загружает одну ленту и возвращает число сохранённых статей.
func (s *Service) CollectFeed(ctx context.Context, feedID int64) (int, error) {
	feed, err := s.feeds.GetFeed(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("получение ленты %d: %w", feedID, err)
	}
	if !feed.Enabled {
		return 0, ErrFeedDisabled
	}
	saved, err := s.collect(ctx, feed)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return saved, nil
}

// CollectAll обходит включённые ленты. Ошибка одной ленты не прерывает обход.
func (s *Service) CollectAll(ctx context.Context) (Result, error) {
	feeds, err := s.feeds.ListFeeds(ctx, true)
	if err != nil {
		return Result{}, fmt.Errorf("список лент: %w", err)
	}
	res := Result{Feeds: len(feeds)}
	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		saved, err := s.collect(ctx, feed)
		if err != nil {
			res.Failed++
			s.log.Error().Err(err).Int64("feed", feed.ID).Str("url", feed.URL).Msg("ingest: лента пропущена")
			continue
		}
		res.Saved += saved
	}
	if res.Saved > 0 {
		s.invalidate(ctx)
	}
	return res, nil
}

func (s *Service) collect(ctx context.Context, feed domain.Feed) (int, error) {
	articles, err := s.source.Fetch(ctx, feed)
	if err != nil {
		metrics.ObserveIngest(feed.Name, 0, err)
		return 0, fmt.Errorf("загрузка ленты %s: %w", feed.Name, err)
	}
	for i := range articles {
		articles[i].FeedID = feed.ID
		if articles[i].SourceName == "" {
			articles[i].SourceName = feed.Name
		}
	}
	saved, err := s.articles.SaveArticles(ctx, articles)
	metrics.ObserveIngest(feed.Name, saved, err)
	if err != nil {
		return saved, fmt.Errorf("сохранение статей %s: %w", feed.Name, err)
	}
	if err := s.feeds.MarkFetched(ctx, feed.ID, s.now().UTC()); err != nil {
		s.log.Warn().Err(err).Int64("feed", feed.ID).Msg("ingest: не удалось отметить загрузку")
	}
	s.log.Info().Int64("feed", feed.ID).Int("saved", saved).Msg("ingest: лента загружена")
	return saved, nil
}

// AddArticle сохраняет статью, добавленную вручную. Источник всегда domain.CustomSource.
func (s *Service) AddArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return domain.Article{}, ErrArticleInvalid
	}
	a.SourceName = domain.CustomSource
	a.FeedID = 0
	if strings.TrimSpace(a.PubDate) == "" {
		a.PubDate = s.now().UTC().Format(time.RFC3339)
	}
	if a.Key() == "" {
		a.GUID = "eigener-" + uuid.NewString()
	}
	if _, err := s.articles.SaveArticles(ctx, []domain.Article{a}); err != nil {
		return domain.Article{}, fmt.Errorf("сохранение статьи: %w", err)
	}
	s.invalidate(ctx)
	return a, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.views == nil {
		return
	}
	if err := s.views.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("ingest: не удалось сбросить кэш")
	}
}
