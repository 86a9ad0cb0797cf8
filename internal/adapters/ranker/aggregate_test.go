package ranker

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"ai-news-digest/internal/domain"
)

func enriched(guid, cluster string, score, clusterScore int, pubDate string, tags ...string) domain.EnrichedArticle {
	return domain.EnrichedArticle{
		Article:          domain.Article{GUID: guid, Title: guid, PubDate: pubDate},
		Cluster:          cluster,
		RelevanceScore:   score,
		ClusterRelevance: clusterScore,
		MatchedTags:      tags,
	}
}

func guids(items []domain.EnrichedArticle) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.GUID)
	}
	return out
}

func TestDedupeLastWinsAtFirstPosition(t *testing.T) {
	in := []domain.Article{
		{GUID: "a", Title: "first"},
		{GUID: "b", Title: "b"},
		{GUID: "a", Title: "second"},
		{Title: "no key 1"},
		{Title: "no key 2"},
		{Link: "https://example.com/x", Title: "by link"},
		{Link: "https://example.com/x", Title: "by link again"},
	}

	got := Dedupe(in)

	titles := make([]string, 0, len(got))
	for _, a := range got {
		titles = append(titles, a.Title)
	}
	want := []string{"second", "b", "no key 1", "no key 2", "by link again"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("Dedupe() = %v, want %v", titles, want)
	}
	if in[0].Title != "first" {
		t.Fatal("input must not be modified")
	}
}

func TestDedupeEnriched(t *testing.T) {
	in := []domain.EnrichedArticle{enriched("a", "X", 1, 0, ""), enriched("a", "Y", 2, 0, "")}

	got := Dedupe(in)

	if len(got) != 1 || got[0].Cluster != "Y" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestRankIsStable(t *testing.T) {
	items := []domain.EnrichedArticle{
		enriched("a", "X", 3, 1, "2024-05-01T00:00:00Z"),
		enriched("b", "X", 5, 1, "bad date"),
		enriched("c", "X", 3, 4, "2024-05-03T00:00:00Z"),
		enriched("d", "X", 5, 4, ""),
		enriched("e", "X", 1, 2, "2024-05-03T00:00:00Z"),
	}

	cases := []struct {
		field SortField
		want  []string
	}{
		{SortRelevance, []string{"b", "d", "a", "c", "e"}},
		{SortCluster, []string{"c", "d", "e", "a", "b"}},
		{SortDate, []string{"c", "e", "a", "b", "d"}},
	}
	for _, tc := range cases {
		if got := guids(Rank(items, tc.field)); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Rank(%s) = %v, want %v", tc.field, got, tc.want)
		}
	}
	if got := guids(items); !reflect.DeepEqual(got, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("input reordered: %v", got)
	}
}

func TestTopN(t *testing.T) {
	items := []domain.EnrichedArticle{enriched("a", "X", 1, 0, ""), enriched("b", "X", 3, 0, ""), enriched("c", "X", 2, 0, "")}

	if got := guids(TopN(items, SortRelevance, 2)); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("TopN(2) = %v", got)
	}
	if got := TopN(items, SortRelevance, 10); len(got) != 3 {
		t.Fatalf("TopN(10) returned %d items", len(got))
	}
	if got := TopN(items, SortRelevance, 0); len(got) != 3 {
		t.Fatalf("TopN(0) returned %d items", len(got))
	}
	if got := TopN(nil, SortRelevance, 5); len(got) != 0 {
		t.Fatalf("TopN(nil) returned %d items", len(got))
	}
}

func TestTopNOfFifteen(t *testing.T) {
	scores := []int{7, 3, 12, 1, 9, 9, 4, 15, 2, 6, 11, 5, 8, 10, 14}
	items := make([]domain.EnrichedArticle, 0, len(scores))
	input := make(map[string]bool, len(scores))
	for i, score := range scores {
		guid := fmt.Sprintf("g%02d", i)
		input[guid] = true
		items = append(items, enriched(guid, "X", score, 0, ""))
	}

	got := TopN(items, SortRelevance, 10)

	if len(got) != 10 {
		t.Fatalf("TopN(10) of 15 returned %d items", len(got))
	}
	for i, item := range got {
		if !input[item.GUID] {
			t.Fatalf("item %q is not from the input", item.GUID)
		}
		if i > 0 && got[i-1].RelevanceScore < item.RelevanceScore {
			t.Fatalf("not sorted descending at %d: %d < %d", i, got[i-1].RelevanceScore, item.RelevanceScore)
		}
	}
	if got[0].RelevanceScore != 15 || got[9].RelevanceScore != 6 {
		t.Fatalf("unexpected bounds: first %d, last %d", got[0].RelevanceScore, got[9].RelevanceScore)
	}
	if got[5].GUID != "g04" || got[6].GUID != "g05" {
		t.Fatalf("equal scores must keep input order: %v", guids(got))
	}
}

func TestClusterStats(t *testing.T) {
	items := []domain.EnrichedArticle{
		enriched("x1", "A", 3, 0, "2024-05-01T00:00:00Z", "t1", "t2"),
		enriched("x2", "B", 5, 0, "bad date"),
		enriched("x3", "A", 4, 0, "2024-05-03T00:00:00Z", "t2", "t3"),
		enriched("x4", "B", 4, 0, "2024-05-02T00:00:00Z"),
		enriched("x5", "C", 1, 0, ""),
		enriched("x6", "C", 1, 0, "nope"),
		enriched("x7", "C", 2, 0, "", "t9"),
	}

	got := ClusterStats(items, 0)

	want := []domain.ClusterStat{
		{Cluster: "C", Count: 3, AvgRelevance: 1, TopTags: []string{"t9"}},
		{Cluster: "A", Count: 2, AvgRelevance: 4, TopTags: []string{"t2", "t1", "t3"}, LatestDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)},
		{Cluster: "B", Count: 2, AvgRelevance: 5, TopTags: []string{}, LatestDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d clusters, got %d", len(want), len(got))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Cluster != w.Cluster || g.Count != w.Count || g.AvgRelevance != w.AvgRelevance || !g.LatestDate.Equal(w.LatestDate) {
			t.Fatalf("stat %d = %+v, want %+v", i, g, w)
		}
		if !reflect.DeepEqual(g.TopTags, w.TopTags) {
			t.Fatalf("stat %d tags = %v, want %v", i, g.TopTags, w.TopTags)
		}
	}
}

func TestClusterStatsRoundsMean(t *testing.T) {
	items := []domain.EnrichedArticle{
		enriched("a", "A", 2, 0, ""),
		enriched("b", "A", 4, 0, ""),
		enriched("c", "A", 5, 0, ""),
	}

	got := ClusterStats(items, 0)

	if len(got) != 1 || got[0].AvgRelevance != 4 {
		t.Fatalf("avg of [2 4 5] = %+v, want 4", got)
	}
}

func TestClusterStatsFallbackTagsEncodeAsArray(t *testing.T) {
	engine := NewEngine(DefaultDictionary(), fixedClock())
	items := engine.Enrich([]domain.Article{{GUID: "x", Title: "Gardening tips"}})

	stats := ClusterStats(items, 0)

	if len(stats) != 1 || stats[0].Cluster != FallbackCluster {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats[0].TopTags == nil {
		t.Fatal("TopTags must be an empty slice, not nil")
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"topTags":[]`) {
		t.Fatalf("topTags must encode as []: %s", raw)
	}
}

func TestClusterStatsLimitsTags(t *testing.T) {
	items := []domain.EnrichedArticle{
		enriched("a", "A", 1, 0, "", "t1", "t2", "t3"),
		enriched("b", "A", 1, 0, "", "t3"),
	}

	got := ClusterStats(items, 2)

	if !reflect.DeepEqual(got[0].TopTags, []string{"t3", "t1"}) {
		t.Fatalf("TopTags = %v", got[0].TopTags)
	}
}

func TestClusterStatsEmpty(t *testing.T) {
	if got := ClusterStats(nil, 5); len(got) != 0 {
		t.Fatalf("expected no stats, got %v", got)
	}
}

func TestParseSortField(t *testing.T) {
	cases := map[string]SortField{
		"":                 SortRelevance,
		"relevance":        SortRelevance,
		" Cluster ":        SortCluster,
		"clusterRelevance": SortCluster,
		"date":             SortDate,
		"pubDate":          SortDate,
	}
	for raw, want := range cases {
		got, err := ParseSortField(raw)
		if err != nil || got != want {
			t.Fatalf("ParseSortField(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseSortField("title"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestSearch(t *testing.T) {
	items := []domain.EnrichedArticle{
		{Article: domain.Article{GUID: "a", Title: "EU passes AI Act"}, Cluster: "Governance & Ethics", MatchedTags: []string{"AI Act"}},
		{Article: domain.Article{GUID: "b", Title: "New model", Description: "Trained on regulation texts"}, Cluster: "Model Development", MatchedTags: []string{"model"}},
		{Article: domain.Article{GUID: "c", Title: "Chip news"}, Cluster: "Tools & Infrastructure", MatchedTags: []string{"chip", "GPU"}},
	}

	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter keeps all", Filter{}, []string{"a", "b", "c"}},
		{"title case insensitive", Filter{Query: "ai act"}, []string{"a"}},
		{"description", Filter{Query: "REGULATION"}, []string{"b"}},
		{"tag substring", Filter{Query: "gp"}, []string{"c"}},
		{"cluster exact", Filter{Cluster: "model development"}, []string{"b"}},
		{"cluster is not substring", Filter{Cluster: "Model"}, []string{}},
		{"tag exact", Filter{Tag: "gpu"}, []string{"c"}},
		{"tag is not substring", Filter{Tag: "gp"}, []string{}},
		{"filters combine", Filter{Query: "news", Tag: "chip"}, []string{"c"}},
		{"filters combine to nothing", Filter{Query: "news", Cluster: "Governance & Ethics"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := guids(Search(items, tc.filter)); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Search(%+v) = %v, want %v", tc.filter, got, tc.want)
			}
		})
	}
}

func TestFilterActive(t *testing.T) {
	if (Filter{Query: "  "}).Active() {
		t.Fatal("blank query must not activate filter")
	}
	if !(Filter{Tag: "GPU"}).Active() {
		t.Fatal("tag must activate filter")
	}
}
