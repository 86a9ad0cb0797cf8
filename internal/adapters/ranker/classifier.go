package ranker

import (
	"strings"

	"ai-news-digest/internal/domain"
)

type keywordRef struct {
	cluster int
	term    string
	weight  int
}

// Classifier относит статью к кластеру с максимальной суммой весов ключевых слов.
type Classifier struct {
	labels   []string
	refs     []keywordRef
	terms    *matcher
	fallback string
}

// NewClassifier создаёт классификатор. Кластер с меткой fallback не участвует в подсчёте.
func NewClassifier(clusters []domain.TopicCluster, fallback string) *Classifier {
	if strings.TrimSpace(fallback) == "" {
		fallback = FallbackCluster
	}
	c := &Classifier{fallback: fallback}
	var terms []string
	for _, cl := range clusters {
		if strings.EqualFold(cl.Label, fallback) {
			continue
		}
		idx := len(c.labels)
		c.labels = append(c.labels, cl.Label)
		for _, kw := range cl.Keywords {
			weight := int(kw.Tier)
			if weight <= 0 {
				weight = int(domain.TierLow)
			}
			c.refs = append(c.refs, keywordRef{cluster: idx, term: kw.Term, weight: weight})
			terms = append(terms, kw.Term)
		}
	}
	c.terms = newMatcher(terms)
	return c
}

// Labels возвращает метки кластеров в порядке определения, включая запасной.
func (c *Classifier) Labels() []string {
	out := append([]string(nil), c.labels...)
	return append(out, c.fallback)
}

// Classify выбирает кластер для заголовка и описания статьи.
func (c *Classifier) Classify(title, description string) domain.Classification {
	text := title + " " + description
	hits := c.terms.Match(text)

	scores := make([]int, len(c.labels))
	for _, h := range hits {
		ref := c.refs[h]
		scores[ref.cluster] += ref.weight
	}

	best, bestScore := -1, 0
	for i, score := range scores {
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return domain.Classification{Cluster: c.fallback, Score: 0, MatchedTags: []string{}}
	}

	tags := make([]string, 0, len(hits))
	for _, h := range hits {
		if ref := c.refs[h]; ref.cluster == best {
			tags = append(tags, ref.term)
		}
	}
	return domain.Classification{Cluster: c.labels[best], Score: bestScore, MatchedTags: tags}
}
