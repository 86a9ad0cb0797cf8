package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound возвращается репозиториями, если запись отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrCacheMiss возвращается кэшем, если ключ не задан.
	ErrCacheMiss = errors.New("cache miss")
)

// ArticleQuery ограничивает выборку статей из хранилища.
type ArticleQuery struct {
	Since  time.Time
	Source string
	Limit  int
}

// FeedSource загружает статьи из внешней ленты.
type FeedSource interface {
	Fetch(ctx context.Context, feed Feed) ([]Article, error)
}

// Enricher считает релевантность и кластер для списка статей.
type Enricher interface {
	Enrich(articles []Article) []EnrichedArticle
	EnrichWithProfile(profile string, articles []Article) ([]EnrichedArticle, bool)
}

// Summarizer строит краткое содержание статьи.
type Summarizer interface {
	Summarize(article Article) (Summary, error)
}

// Notifier доставляет отформатированный дайджест.
type Notifier interface {
	SendDigest(ctx context.Context, chatID int64, text string) error
}

// ArticleRepo хранит загруженные статьи.
type ArticleRepo interface {
	SaveArticles(ctx context.Context, articles []Article) (int, error)
	ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error)
}

// FeedRepo управляет списком лент.
type FeedRepo interface {
	UpsertFeed(ctx context.Context, feed Feed) (Feed, error)
	GetFeed(ctx context.Context, id int64) (Feed, error)
	ListFeeds(ctx context.Context, enabledOnly bool) ([]Feed, error)
	MarkFetched(ctx context.Context, id int64, at time.Time) error
}

// DigestRepo сохраняет и возвращает дайджесты.
type DigestRepo interface {
	SaveDigest(ctx context.Context, digest Digest) (Digest, error)
	MarkDelivered(ctx context.Context, digestID int64, at time.Time) error
	// WasDelivered сообщает, был ли доставлен хоть один дайджест начиная с since.
	WasDelivered(ctx context.Context, since time.Time) (bool, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}
