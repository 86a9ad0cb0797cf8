package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pemistahl/lingua-go"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

// RSS загружает RSS/Atom-ленты и превращает элементы в статьи.
type RSS struct {
	parser   *gofeed.Parser
	detector lingua.LanguageDetector
	timeout  time.Duration
}

var _ domain.FeedSource = (*RSS)(nil)

// NewRSS создаёт загрузчик с таймаутом на одну ленту.
func NewRSS(timeout time.Duration, userAgent string) *RSS {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.German).
		WithMinimumRelativeDistance(0.1).
		Build()
	return &RSS{parser: parser, detector: detector, timeout: timeout}
}

// Fetch загружает ленту и возвращает её элементы в исходном порядке.
func (r *RSS) Fetch(ctx context.Context, feed domain.Feed) ([]domain.Article, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	parsed, err := r.parser.ParseURLWithContext(feed.URL, ctx)
	metrics.ObserveNetworkRequest("rss", "fetch", feed.Name, start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.URL, err)
	}
	return r.Convert(feed, parsed), nil
}

// Parse разбирает содержимое ленты без сетевого запроса.
func (r *RSS) Parse(feed domain.Feed, body string) ([]domain.Article, error) {
	parsed, err := r.parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return r.Convert(feed, parsed), nil
}

// Convert отображает элементы gofeed в статьи.
func (r *RSS) Convert(feed domain.Feed, parsed *gofeed.Feed) []domain.Article {
	source := feed.Name
	if source == "" && parsed != nil {
		source = parsed.Title
	}
	if parsed == nil {
		return nil
	}
	articles := make([]domain.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(StripHTML(item.Title))
		if title == "" {
			continue
		}
		description := StripHTML(item.Description)
		if description == "" {
			description = StripHTML(item.Content)
		}
		articles = append(articles, domain.Article{
			GUID:        strings.TrimSpace(item.GUID),
			Link:        strings.TrimSpace(item.Link),
			Title:       title,
			Description: description,
			PubDate:     pubDate(item),
			SourceName:  source,
			Categories:  item.Categories,
			Language:    r.DetectLanguage(title + ". " + description),
			FeedID:      feed.ID,
		})
	}
	return articles
}

// DetectLanguage возвращает ISO 639-1 код (en, de) или пустую строку.
func (r *RSS) DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lang, ok := r.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// StripHTML убирает разметку и схлопывает пробелы.
func StripHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.ContainsAny(raw, "<&") {
		return strings.Join(strings.Fields(raw), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	doc.Find("script,style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func pubDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	case item.Published != "":
		return item.Published
	default:
		return item.Updated
	}
}
