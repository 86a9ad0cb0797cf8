package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ArticleRepo   = (*Postgres)(nil)
	_ domain.FeedRepo      = (*Postgres)(nil)
	_ domain.DigestRepo    = (*Postgres)(nil)
	_ domain.JobStatusRepo = (*Postgres)(nil)
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveArticles сохраняет статьи пачкой. Статьи с тем же ключом обновляются.
func (p *Postgres) SaveArticles(ctx context.Context, articles []domain.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, a := range articles {
		batch.Queue(`
INSERT INTO articles (feed_id, article_key, guid, link, title, description, pub_date, published_at, source_name, categories, language)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (article_key) DO UPDATE SET
    title=EXCLUDED.title,
    description=EXCLUDED.description,
    pub_date=EXCLUDED.pub_date,
    published_at=EXCLUDED.published_at,
    source_name=EXCLUDED.source_name,
    categories=EXCLUDED.categories,
    language=EXCLUDED.language
`, nullableID(a.FeedID), nullableKey(a.Key()), a.GUID, a.Link, a.Title, a.Description, a.PubDate,
			publishedAt(a.PubDate), a.SourceName, categoriesOrEmpty(a.Categories), a.Language)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "articles_send_batch", "articles", start, nil)
	defer br.Close()
	saved := 0
	for range articles {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "articles_batch_exec", "articles", start, err)
		if err != nil {
			return saved, fmt.Errorf("save article: %w", err)
		}
		saved++
	}
	return saved, nil
}

// ListArticles возвращает статьи по фильтру, свежие первыми.
func (p *Postgres) ListArticles(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
	query, args, err := listArticlesQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "articles_list", "articles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var articles []domain.Article
	for rows.Next() {
		var (
			a      domain.Article
			feedID sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &feedID, &a.GUID, &a.Link, &a.Title, &a.Description, &a.PubDate, &a.SourceName, &a.Categories, &a.Language); err != nil {
			return nil, err
		}
		a.FeedID = feedID.Int64
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func listArticlesQuery(q domain.ArticleQuery) sq.SelectBuilder {
	b := psql.Select("id", "feed_id", "guid", "link", "title", "description", "pub_date", "source_name", "categories", "language").
		From("articles").
		OrderBy("published_at DESC NULLS LAST", "id DESC")
	if !q.Since.IsZero() {
		b = b.Where(sq.Or{
			sq.GtOrEq{"published_at": q.Since},
			sq.And{sq.Eq{"published_at": nil}, sq.GtOrEq{"created_at": q.Since}},
		})
	}
	if src := strings.TrimSpace(q.Source); src != "" {
		b = b.Where(sq.Eq{"source_name": src})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b
}

// UpsertFeed добавляет ленту или обновляет её по URL.
func (p *Postgres) UpsertFeed(ctx context.Context, feed domain.Feed) (domain.Feed, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var lastFetched sql.NullTime
	err := p.pool.QueryRow(ctx, `
INSERT INTO feeds (name, url, enabled)
VALUES ($1,$2,$3)
ON CONFLICT (url) DO UPDATE SET name=EXCLUDED.name, enabled=EXCLUDED.enabled
RETURNING id, last_fetched_at, created_at
`, feed.Name, feed.URL, feed.Enabled).Scan(&feed.ID, &lastFetched, &feed.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "feeds_upsert", "feeds", start, err)
	if err != nil {
		return domain.Feed{}, err
	}
	feed.LastFetchedAt = lastFetched.Time
	return feed, nil
}

// GetFeed возвращает ленту по идентификатору или domain.ErrNotFound.
func (p *Postgres) GetFeed(ctx context.Context, id int64) (domain.Feed, error) {
	query, args, err := listFeedsQuery(false).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Feed{}, fmt.Errorf("build query: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	feed, err := scanFeed(p.pool.QueryRow(ctx, query, args...))
	metrics.ObserveNetworkRequest("postgres", "feeds_get", "feeds", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Feed{}, domain.ErrNotFound
	}
	return feed, err
}

// ListFeeds возвращает ленты в порядке добавления.
func (p *Postgres) ListFeeds(ctx context.Context, enabledOnly bool) ([]domain.Feed, error) {
	query, args, err := listFeedsQuery(enabledOnly).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "feeds_list", "feeds", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var feeds []domain.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func listFeedsQuery(enabledOnly bool) sq.SelectBuilder {
	b := psql.Select("id", "name", "url", "enabled", "last_fetched_at", "created_at").
		From("feeds").
		OrderBy("id")
	if enabledOnly {
		b = b.Where(sq.Eq{"enabled": true})
	}
	return b
}

func scanFeed(row pgx.Row) (domain.Feed, error) {
	var (
		feed        domain.Feed
		lastFetched sql.NullTime
	)
	if err := row.Scan(&feed.ID, &feed.Name, &feed.URL, &feed.Enabled, &lastFetched, &feed.CreatedAt); err != nil {
		return domain.Feed{}, err
	}
	feed.LastFetchedAt = lastFetched.Time
	return feed, nil
}

// MarkFetched фиксирует время последней загрузки ленты.
func (p *Postgres) MarkFetched(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE feeds SET last_fetched_at=$2 WHERE id=$1`, id, at)
	metrics.ObserveNetworkRequest("postgres", "feeds_mark_fetched", "feeds", start, err)
	return err
}

// SaveDigest сохраняет дайджест за период; повторное сохранение перезаписывает содержимое.
func (p *Postgres) SaveDigest(ctx context.Context, d domain.Digest) (domain.Digest, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("marshal digest: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO digests (period_from, period_to, payload)
VALUES ($1,$2,$3)
ON CONFLICT (period_from) DO UPDATE SET period_to=EXCLUDED.period_to, payload=EXCLUDED.payload
RETURNING id
`, d.From, d.To, payload).Scan(&d.ID)
	metrics.ObserveNetworkRequest("postgres", "digests_upsert", "digests", start, err)
	if err != nil {
		return domain.Digest{}, err
	}
	return d, nil
}

// MarkDelivered помечает доставку.
func (p *Postgres) MarkDelivered(ctx context.Context, digestID int64, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE digests SET delivered_at=$2 WHERE id=$1`, digestID, at)
	metrics.ObserveNetworkRequest("postgres", "digests_mark_delivered", "digests", start, err)
	return err
}

// WasDelivered проверяет, доставлялся ли дайджест начиная с since.
func (p *Postgres) WasDelivered(ctx context.Context, since time.Time) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM digests WHERE delivered_at >= $1)`, since).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "digests_was_delivered", "digests", start, err)
	return exists, err
}

// EnsureJob регистрирует попытку обработки задачи.
func (p *Postgres) EnsureJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		done     sql.NullTime
		attempts int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO job_runs (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = job_runs.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "job_runs_upsert", "job_runs", start, err)
	if err != nil {
		return false, 0, err
	}
	return done.Valid, attempts, nil
}

// MarkJobDone помечает задачу как обработанную.
func (p *Postgres) MarkJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE job_runs
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "job_runs_mark_done", "job_runs", start, err)
	return err
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func nullableKey(key string) *string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &key
}

func publishedAt(raw string) *time.Time {
	t, ok := ranker.ParsePubDate(raw)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

func categoriesOrEmpty(categories []string) []string {
	if categories == nil {
		return []string{}
	}
	return categories
}
