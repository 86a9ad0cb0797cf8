package domain

import (
	"encoding/json"
	"time"
)

// CustomSource — источник статей, добавленных вручную через API.
const CustomSource = "Eigener"

// Feed описывает RSS/Atom-ленту, из которой собираются статьи.
type Feed struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Enabled       bool      `json:"enabled"`
	LastFetchedAt time.Time `json:"lastFetchedAt,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Article — входная запись статьи после загрузки из ленты.
// PubDate хранится строкой как пришла из источника: разбор делает ядро.
type Article struct {
	ID          int64    `json:"-"`
	GUID        string   `json:"guid,omitempty"`
	Link        string   `json:"link"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	PubDate     string   `json:"pubDate,omitempty"`
	SourceName  string   `json:"sourceName,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Language    string   `json:"language,omitempty"`
	FeedID      int64    `json:"-"`
}

// Key возвращает ключ дедупликации: GUID, а при его отсутствии ссылку.
func (a Article) Key() string {
	if a.GUID != "" {
		return a.GUID
	}
	return a.Link
}

// EnrichedArticle — статья с результатами скоринга и кластеризации.
type EnrichedArticle struct {
	Article
	Cluster          string   `json:"cluster"`
	MatchedTags      []string `json:"matchedTags"`
	RelevanceScore   int      `json:"relevanceScore"`
	ClusterRelevance int      `json:"clusterRelevance"`
}

// ClusterStat — агрегированная статистика по кластеру.
type ClusterStat struct {
	Cluster      string    `json:"cluster"`
	Count        int       `json:"count"`
	AvgRelevance int       `json:"avgRelevance"`
	TopTags      []string  `json:"topTags"`
	LatestDate   time.Time `json:"-"`
}

// Summary содержит краткое содержание статьи для дайджеста.
type Summary struct {
	Headline string
	Bullets  []string
}

// DigestItem описывает одну позицию в дайджесте.
type DigestItem struct {
	Article EnrichedArticle
	Summary Summary
	Rank    int
}

// DigestSection группирует статьи одного кластера.
type DigestSection struct {
	Stat  ClusterStat
	Items []DigestItem
}

// Digest представляет собой еженедельную рассылку.
type Digest struct {
	ID          int64
	From        time.Time
	To          time.Time
	Top         []DigestItem
	Sections    []DigestSection
	DeliveredAt *time.Time
}

// MarshalJSON отдаёт LatestDate в ISO-8601; пустая строка, если дат не было.
func (s ClusterStat) MarshalJSON() ([]byte, error) {
	type alias ClusterStat
	latest := ""
	if !s.LatestDate.IsZero() {
		latest = s.LatestDate.UTC().Format(time.RFC3339)
	}
	return json.Marshal(struct {
		alias
		LatestDate string `json:"latestDate"`
	}{alias: alias(s), LatestDate: latest})
}
