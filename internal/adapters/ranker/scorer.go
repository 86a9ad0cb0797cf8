package ranker

import (
	"sort"
	"strings"
	"time"

	"ai-news-digest/internal/domain"
)

// Option настраивает скорер и движок.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Scorer считает релевантность статьи по ключевым словам, свежести и источнику.
type Scorer struct {
	cfg      domain.RelevanceConfig
	keywords *matcher
	buckets  []domain.RecencyBucket
	trusted  map[string]struct{}
	now      func() time.Time
}

// NewScorer создаёт скорер с заданной конфигурацией.
func NewScorer(cfg domain.RelevanceConfig, opts ...Option) *Scorer {
	o := buildOptions(opts)
	if cfg.MinScore < 1 {
		cfg.MinScore = 1
	}
	buckets := append([]domain.RecencyBucket(nil), cfg.RecencyBuckets...)
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].MaxDays < buckets[j].MaxDays })
	trusted := make(map[string]struct{}, len(cfg.TrustedSources))
	for _, src := range cfg.TrustedSources {
		if key := normalizeSource(src); key != "" {
			trusted[key] = struct{}{}
		}
	}
	return &Scorer{
		cfg:      cfg,
		keywords: newMatcher(cfg.Keywords),
		buckets:  buckets,
		trusted:  trusted,
		now:      o.now,
	}
}

// Score возвращает релевантность статьи; результат не меньше MinScore.
func (s *Scorer) Score(a domain.Article) int {
	score := 0
	score += len(s.keywords.Match(a.Title)) * s.cfg.TitleWeight
	score += len(s.keywords.Match(a.Description)) * s.cfg.DescriptionWeight

	if published, ok := ParsePubDate(a.PubDate); ok {
		score += s.RecencyBonus(DaysSince(s.now(), published))
	}

	source := normalizeSource(a.SourceName)
	if s.cfg.CustomSource != "" && a.SourceName == s.cfg.CustomSource {
		score += s.cfg.CustomSourceBonus
	}
	if _, ok := s.trusted[source]; ok && source != "" {
		score += s.cfg.TrustedSourceBonus
	}

	if score < s.cfg.MinScore {
		return s.cfg.MinScore
	}
	return score
}

// RecencyBonus возвращает бонус первой подходящей корзины свежести.
func (s *Scorer) RecencyBonus(days int) int {
	for _, b := range s.buckets {
		if days <= b.MaxDays {
			return b.Bonus
		}
	}
	return 0
}

func normalizeSource(src string) string {
	return strings.ToLower(strings.TrimSpace(src))
}
