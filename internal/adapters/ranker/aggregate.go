package ranker

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ai-news-digest/internal/domain"
)

// SortField задаёт поле сортировки выдачи.
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortCluster   SortField = "cluster"
	SortDate      SortField = "date"
)

// DefaultTopTags — сколько самых частых тегов попадает в статистику кластера.
const DefaultTopTags = 5

// ParseSortField разбирает имя поля сортировки; пустая строка даёт SortRelevance.
func ParseSortField(raw string) (SortField, error) {
	switch SortField(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortCluster, "clusterrelevance":
		return SortCluster, nil
	case SortDate, "pubdate":
		return SortDate, nil
	default:
		return "", fmt.Errorf("unknown sort field %q", raw)
	}
}

type keyed interface {
	Key() string
}

// Dedupe удаляет дубликаты по GUID (или ссылке). При совпадении ключа побеждает
// последняя запись, но она занимает позицию первой. Записи без ключа сохраняются.
func Dedupe[T keyed](items []T) []T {
	seen := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := item.Key()
		if key == "" {
			out = append(out, item)
			continue
		}
		if idx, ok := seen[key]; ok {
			out[idx] = item
			continue
		}
		seen[key] = len(out)
		out = append(out, item)
	}
	return out
}

// Rank возвращает копию items, устойчиво отсортированную по убыванию field.
// Статьи с некорректной датой при сортировке по дате идут последними.
func Rank(items []domain.EnrichedArticle, field SortField) []domain.EnrichedArticle {
	out := append([]domain.EnrichedArticle(nil), items...)
	switch field {
	case SortCluster:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ClusterRelevance > out[j].ClusterRelevance })
	case SortDate:
		type dated struct {
			item domain.EnrichedArticle
			at   time.Time
			ok   bool
		}
		tmp := make([]dated, len(out))
		for i, item := range out {
			at, ok := ParsePubDate(item.PubDate)
			tmp[i] = dated{item: item, at: at, ok: ok}
		}
		sort.SliceStable(tmp, func(i, j int) bool {
			if tmp[i].ok != tmp[j].ok {
				return tmp[i].ok
			}
			return tmp[i].at.After(tmp[j].at)
		})
		for i := range tmp {
			out[i] = tmp[i].item
		}
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	}
	return out
}

// TopN возвращает первые n статей после Rank. n <= 0 означает все.
func TopN(items []domain.EnrichedArticle, field SortField, n int) []domain.EnrichedArticle {
	ranked := Rank(items, field)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// ClusterStats считает статистику для каждого кластера, в котором есть статьи.
// Порядок: по убыванию количества, при равенстве — по первому появлению.
func ClusterStats(items []domain.EnrichedArticle, topTags int) []domain.ClusterStat {
	if topTags <= 0 {
		topTags = DefaultTopTags
	}
	type group struct {
		label  string
		count  int
		sum    int
		tags   map[string]int
		order  []string
		latest time.Time
	}
	groups := make(map[string]*group)
	var order []string
	for _, item := range items {
		g, ok := groups[item.Cluster]
		if !ok {
			g = &group{label: item.Cluster, tags: make(map[string]int)}
			groups[item.Cluster] = g
			order = append(order, item.Cluster)
		}
		g.count++
		g.sum += item.RelevanceScore
		for _, tag := range item.MatchedTags {
			if _, seen := g.tags[tag]; !seen {
				g.order = append(g.order, tag)
			}
			g.tags[tag]++
		}
		if at, ok := ParsePubDate(item.PubDate); ok && at.After(g.latest) {
			g.latest = at
		}
	}

	stats := make([]domain.ClusterStat, 0, len(order))
	for _, label := range order {
		g := groups[label]
		tags := make([]string, 0, len(g.order))
		tags = append(tags, g.order...)
		sort.SliceStable(tags, func(i, j int) bool { return g.tags[tags[i]] > g.tags[tags[j]] })
		if len(tags) > topTags {
			tags = tags[:topTags]
		}
		stats = append(stats, domain.ClusterStat{
			Cluster:      g.label,
			Count:        g.count,
			AvgRelevance: int(math.Round(float64(g.sum) / float64(g.count))),
			TopTags:      tags,
			LatestDate:   g.latest,
		})
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	return stats
}

// Filter описывает поиск по обогащённым статьям. Пустые поля не учитываются.
type Filter struct {
	Query   string
	Cluster string
	Tag     string
}

// Active сообщает, задан ли хотя бы один фильтр.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.Query) != "" || strings.TrimSpace(f.Cluster) != "" || strings.TrimSpace(f.Tag) != ""
}

// Search оставляет статьи, удовлетворяющие всем активным фильтрам, в исходном порядке.
func Search(items []domain.EnrichedArticle, f Filter) []domain.EnrichedArticle {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	clusterName := strings.TrimSpace(f.Cluster)
	tag := strings.TrimSpace(f.Tag)

	out := make([]domain.EnrichedArticle, 0, len(items))
	for _, item := range items {
		if query != "" && !matchesQuery(item, query) {
			continue
		}
		if clusterName != "" && !strings.EqualFold(item.Cluster, clusterName) {
			continue
		}
		if tag != "" && !hasTag(item.MatchedTags, tag) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchesQuery(item domain.EnrichedArticle, query string) bool {
	if strings.Contains(strings.ToLower(item.Title), query) || strings.Contains(strings.ToLower(item.Description), query) {
		return true
	}
	for _, t := range item.MatchedTags {
		if strings.Contains(strings.ToLower(t), query) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
