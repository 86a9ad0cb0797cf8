package summarizer

import (
	"strings"
	"unicode/utf8"

	"ai-news-digest/internal/domain"
)

const (
	headlineLimit = 120
	bulletWords   = 25
	bulletLimit   = 160
	maxBullets    = 2
)

// SimpleSummarizer реализует доменный интерфейс Summarizer эвристикой.
type SimpleSummarizer struct{}

var _ domain.Summarizer = (*SimpleSummarizer)(nil)

// NewSimple создаёт Summarizer.
func NewSimple() *SimpleSummarizer {
	return &SimpleSummarizer{}
}

// Summarize берёт заголовок статьи и до двух коротких реплик из описания.
func (s *SimpleSummarizer) Summarize(article domain.Article) (domain.Summary, error) {
	headline := strings.Join(strings.Fields(article.Title), " ")
	words := strings.Fields(article.Description)
	if headline == "" && len(words) == 0 {
		return domain.Summary{Headline: "Без текста", Bullets: []string{}}, nil
	}
	if headline == "" {
		n := min(len(words), 12)
		headline = strings.Join(words[:n], " ")
		words = words[n:]
	}
	bullets := []string{}
	for len(words) > 0 && len(bullets) < maxBullets {
		n := min(len(words), bulletWords)
		bullets = append(bullets, truncate(strings.Join(words[:n], " "), bulletLimit))
		words = words[n:]
	}
	return domain.Summary{Headline: truncate(headline, headlineLimit), Bullets: bullets}, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
