package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/adapters/summarizer"
	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/cache"
	"ai-news-digest/internal/infra/metrics"
)

var testNow = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

type stubArticles struct {
	articles []domain.Article
	calls    int
	lastQ    domain.ArticleQuery
	err      error
}

func (s *stubArticles) SaveArticles(context.Context, []domain.Article) (int, error) { return 0, nil }
func (s *stubArticles) ListArticles(_ context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
	s.calls++
	s.lastQ = q
	return s.articles, s.err
}

type stubDigests struct {
	delivered   bool
	saved       []domain.Digest
	deliveredID int64
	deliveredAt []time.Time
	sinceAsked  []time.Time
}

func (s *stubDigests) SaveDigest(_ context.Context, d domain.Digest) (domain.Digest, error) {
	d.ID = 7
	s.saved = append(s.saved, d)
	return d, nil
}
func (s *stubDigests) MarkDelivered(_ context.Context, id int64, at time.Time) error {
	s.deliveredID = id
	s.deliveredAt = append(s.deliveredAt, at)
	return nil
}
func (s *stubDigests) WasDelivered(_ context.Context, since time.Time) (bool, error) {
	s.sinceAsked = append(s.sinceAsked, since)
	if s.delivered {
		return true, nil
	}
	for _, at := range s.deliveredAt {
		if !at.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	chatID int64
	texts  []string
}

func (n *recordingNotifier) SendDigest(_ context.Context, chatID int64, text string) error {
	n.chatID = chatID
	n.texts = append(n.texts, text)
	return nil
}

func sampleArticles() []domain.Article {
	return []domain.Article{
		{GUID: "a1", Link: "https://example.com/a1", Title: "OpenAI releases GPT-4", SourceName: domain.CustomSource, PubDate: "2024-05-08T08:00:00Z"},
		{GUID: "a2", Link: "https://example.com/a2", Title: "EU AI Act regulation passes", Description: "New privacy rules", SourceName: "wired", PubDate: "2024-05-06T12:00:00Z"},
		{GUID: "a3", Link: "https://example.com/a3", Title: "Weather update for Berlin", PubDate: "2024-04-20T00:00:00Z"},
		{GUID: "a1", Link: "https://example.com/a1", Title: "OpenAI releases GPT-4 with RAG support", SourceName: domain.CustomSource, PubDate: "2024-05-08T08:00:00Z"},
	}
}

func newTestService(articles *stubArticles, digests *stubDigests, notifier domain.Notifier, c domain.Cache) *Service {
	engine := ranker.NewEngine(ranker.DefaultDictionary(), ranker.WithClock(func() time.Time { return testNow }))
	s := NewService(articles, digests, engine, summarizer.NewSimple(), notifier, c, Config{MaxItems: 10}, zerolog.Nop())
	s.now = func() time.Time { return testNow }
	return s
}

func TestTopDedupesAndRanks(t *testing.T) {
	articles := &stubArticles{articles: sampleArticles()}
	s := newTestService(articles, &stubDigests{}, nil, nil)

	top, err := s.Top(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("ожидали 2 статьи, получили %d", len(top))
	}
	if top[0].GUID != "a1" || top[0].Title != "OpenAI releases GPT-4 with RAG support" {
		t.Fatalf("ожидали последнюю версию a1 первой, получили %+v", top[0].Article)
	}
	if top[0].RelevanceScore != 16 || top[0].Cluster != "Model Development" || top[0].ClusterRelevance != 9 {
		t.Fatalf("неожиданная оценка a1: %d %s %d", top[0].RelevanceScore, top[0].Cluster, top[0].ClusterRelevance)
	}
	if top[1].GUID != "a2" || top[1].RelevanceScore != 8 || top[1].Cluster != "Governance & Ethics" {
		t.Fatalf("неожиданная вторая статья: %+v", top[1])
	}
	wantSince := testNow.Add(-7 * 24 * time.Hour)
	if !articles.lastQ.Since.Equal(wantSince) {
		t.Fatalf("окно по умолчанию: ожидали %v, получили %v", wantSince, articles.lastQ.Since)
	}
}

func enrichedCount(t *testing.T, profile, cluster string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.ArticlesEnriched.WithLabelValues(profile, cluster).Write(&m); err != nil {
		t.Fatalf("чтение счётчика: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestEnrichedCountsArticles(t *testing.T) {
	s := newTestService(&stubArticles{articles: sampleArticles()}, &stubDigests{}, nil, nil)
	before := enrichedCount(t, domain.DefaultProfile, "Model Development")

	if _, err := s.Enriched(context.Background(), "", testNow.Add(-7*24*time.Hour)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if got := enrichedCount(t, domain.DefaultProfile, "Model Development") - before; got != 1 {
		t.Fatalf("ожидали одну учтённую статью кластера, получили %v", got)
	}
}

func TestStats(t *testing.T) {
	s := newTestService(&stubArticles{articles: sampleArticles()}, &stubDigests{}, nil, nil)

	stats, err := s.Stats(context.Background(), 30)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []struct {
		cluster string
		avg     int
	}{{"Model Development", 16}, {"Governance & Ethics", 8}, {ranker.FallbackCluster, 1}}
	if len(stats) != len(want) {
		t.Fatalf("ожидали %d кластера, получили %d", len(want), len(stats))
	}
	for i, w := range want {
		if stats[i].Cluster != w.cluster || stats[i].Count != 1 || stats[i].AvgRelevance != w.avg {
			t.Fatalf("кластер %d: %+v", i, stats[i])
		}
	}
	if strings.Join(stats[1].TopTags, ",") != "AI Act,regulation,privacy" {
		t.Fatalf("теги: %v", stats[1].TopTags)
	}
}

func TestQueryFiltersAndSorts(t *testing.T) {
	s := newTestService(&stubArticles{articles: sampleArticles()}, &stubDigests{}, nil, nil)
	ctx := context.Background()

	byCluster, err := s.Query(ctx, Query{Filter: ranker.Filter{Cluster: "governance & ethics"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(byCluster) != 1 || byCluster[0].GUID != "a2" {
		t.Fatalf("фильтр по кластеру: %+v", byCluster)
	}

	byText, _ := s.Query(ctx, Query{Filter: ranker.Filter{Query: "berlin"}})
	if len(byText) != 1 || byText[0].GUID != "a3" {
		t.Fatalf("поиск по тексту: %+v", byText)
	}

	byDate, _ := s.Query(ctx, Query{Sort: ranker.SortDate, Limit: 2})
	if len(byDate) != 2 || byDate[0].GUID != "a1" || byDate[1].GUID != "a2" {
		t.Fatalf("сортировка по дате: %+v", byDate)
	}
}

func TestHighlightsUsesProfile(t *testing.T) {
	s := newTestService(&stubArticles{articles: sampleArticles()}, &stubDigests{}, nil, nil)

	items, err := s.Highlights(context.Background(), ranker.StudentsProfile, 5, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("статья с минимальной оценкой должна быть отброшена, получили %d", len(items))
	}
	if items[0].GUID != "a1" || items[0].RelevanceScore != 10 {
		t.Fatalf("неожиданная первая статья: %s %d", items[0].GUID, items[0].RelevanceScore)
	}
	if items[1].RelevanceScore != 6 {
		t.Fatalf("wired не доверенный источник в профиле студентов: %d", items[1].RelevanceScore)
	}

	if _, err := s.Highlights(context.Background(), "nope", 5, 0); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("ожидали ErrUnknownProfile, получили %v", err)
	}
}

func TestEnrichedUsesCache(t *testing.T) {
	articles := &stubArticles{articles: sampleArticles()}
	s := newTestService(articles, &stubDigests{}, nil, cache.NewMemory())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Top(ctx, 3, 0); err != nil {
			t.Fatalf("top: %v", err)
		}
	}
	if articles.calls != 1 {
		t.Fatalf("ожидали одно обращение к хранилищу, получили %d", articles.calls)
	}

	s.now = func() time.Time { return testNow.Add(time.Second) }
	if err := s.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	s.now = func() time.Time { return testNow }
	top, err := s.Top(ctx, 3, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if articles.calls != 2 {
		t.Fatalf("после сброса кэша ожидали повторное чтение, получили %d", articles.calls)
	}
	if top[0].RelevanceScore != 16 {
		t.Fatalf("данные из кэша искажены: %+v", top[0])
	}
}

func TestEnrichedWrapsStorageError(t *testing.T) {
	boom := errors.New("db down")
	s := newTestService(&stubArticles{err: boom}, &stubDigests{}, nil, nil)
	if _, err := s.Top(context.Background(), 3, 0); !errors.Is(err, boom) {
		t.Fatalf("ожидали обёрнутую ошибку хранилища, получили %v", err)
	}
}

func TestBuildWeekly(t *testing.T) {
	s := newTestService(&stubArticles{articles: sampleArticles()}, &stubDigests{}, nil, nil)

	d, err := s.BuildWeekly(context.Background(), testNow)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !d.From.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) || !d.To.Equal(testNow) {
		t.Fatalf("неожиданное окно: %v – %v", d.From, d.To)
	}
	if len(d.Top) != 3 {
		t.Fatalf("ожидали 3 позиции, получили %d", len(d.Top))
	}
	for i, item := range d.Top {
		if item.Rank != i+1 {
			t.Fatalf("ранг %d: %d", i, item.Rank)
		}
	}
	if d.Top[0].Summary.Headline != "OpenAI releases GPT-4 with RAG support" {
		t.Fatalf("заголовок: %q", d.Top[0].Summary.Headline)
	}
	if len(d.Sections) != 3 || d.Sections[0].Stat.Cluster != "Model Development" || len(d.Sections[0].Items) != 1 {
		t.Fatalf("секции: %+v", d.Sections)
	}
}

func TestBuildWeeklyEmpty(t *testing.T) {
	s := newTestService(&stubArticles{}, &stubDigests{}, nil, nil)
	if _, err := s.BuildWeekly(context.Background(), testNow); !errors.Is(err, ErrNoArticles) {
		t.Fatalf("ожидали ErrNoArticles, получили %v", err)
	}
}

func TestSendWeekly(t *testing.T) {
	digests := &stubDigests{}
	notifier := &recordingNotifier{}
	s := newTestService(&stubArticles{articles: sampleArticles()}, digests, notifier, nil)

	sent, err := s.SendWeekly(context.Background(), -100, testNow)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !sent || notifier.chatID != -100 || len(notifier.texts) != 1 {
		t.Fatalf("дайджест не отправлен: sent=%v notifier=%+v", sent, notifier)
	}
	mustContain(t, notifier.texts[0], "OpenAI releases GPT-4 with RAG support")
	if len(digests.saved) != 1 || digests.deliveredID != 7 {
		t.Fatalf("дайджест не сохранён или не отмечен: %+v", digests)
	}
}

func TestSendWeeklySkipsDelivered(t *testing.T) {
	notifier := &recordingNotifier{}
	s := newTestService(&stubArticles{articles: sampleArticles()}, &stubDigests{delivered: true}, notifier, nil)

	sent, err := s.SendWeekly(context.Background(), 1, testNow)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sent || len(notifier.texts) != 0 {
		t.Fatal("повторная отправка недопустима")
	}
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"понедельник утром", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), monday},
		{"среда", testNow, monday},
		{"воскресенье вечером", time.Date(2024, 5, 12, 23, 59, 0, 0, time.UTC), monday},
		{"следующий понедельник", time.Date(2024, 5, 13, 8, 0, 0, 0, time.UTC), monday.AddDate(0, 0, 7)},
		{"другой часовой пояс", time.Date(2024, 5, 13, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)), monday},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WeekStart(tc.now); !got.Equal(tc.want) {
				t.Fatalf("WeekStart(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestSendWeeklyOncePerWeekWithDailyCron(t *testing.T) {
	notifier := &recordingNotifier{}
	digests := &stubDigests{}
	s := newTestService(&stubArticles{articles: sampleArticles()}, digests, notifier, nil)

	days := []struct {
		now      time.Time
		wantSent bool
	}{
		{time.Date(2024, 5, 8, 8, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 5, 12, 8, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 5, 13, 8, 0, 0, 0, time.UTC), true},
	}
	for _, day := range days {
		now := day.now
		s.now = func() time.Time { return now }
		sent, err := s.SendWeekly(context.Background(), 1, now)
		if err != nil {
			t.Fatalf("%v: не ожидали ошибку: %v", now, err)
		}
		if sent != day.wantSent {
			t.Fatalf("%v: sent=%v, ожидали %v", now, sent, day.wantSent)
		}
	}
	if len(notifier.texts) != 2 {
		t.Fatalf("ожидали две отправки за две недели, получили %d", len(notifier.texts))
	}
	if !digests.sinceAsked[0].Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("проверка доставки должна идти от начала недели, получили %v", digests.sinceAsked[0])
	}
}
