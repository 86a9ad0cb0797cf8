package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/usecase/digest"
	"ai-news-digest/internal/usecase/ingest"
)

var testNow = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

type fakeArticles struct {
	items   []domain.EnrichedArticle
	stats   []domain.ClusterStat
	err     error
	query   digest.Query
	n, days int
	profile string
}

func (f *fakeArticles) Query(_ context.Context, q digest.Query) ([]domain.EnrichedArticle, error) {
	f.query = q
	return f.items, f.err
}

func (f *fakeArticles) Top(_ context.Context, n, days int) ([]domain.EnrichedArticle, error) {
	f.n, f.days = n, days
	return f.items, f.err
}

func (f *fakeArticles) Stats(_ context.Context, days int) ([]domain.ClusterStat, error) {
	f.days = days
	return f.stats, f.err
}

func (f *fakeArticles) Highlights(_ context.Context, profile string, n, _ int) ([]domain.EnrichedArticle, error) {
	f.profile, f.n = profile, n
	if profile != ranker.StudentsProfile && profile != domain.DefaultProfile {
		return nil, fmt.Errorf("%w: %s", digest.ErrUnknownProfile, profile)
	}
	return f.items, f.err
}

type fakeFeeds struct {
	feeds    map[int64]domain.Feed
	articles []domain.Article
}

func (f *fakeFeeds) AddFeed(_ context.Context, name, rawURL string) (domain.Feed, error) {
	parsed, err := ingest.ParseFeedURL(rawURL)
	if err != nil {
		return domain.Feed{}, err
	}
	feed := domain.Feed{ID: int64(len(f.feeds) + 1), Name: name, URL: parsed, Enabled: true}
	f.feeds[feed.ID] = feed
	return feed, nil
}

func (f *fakeFeeds) GetFeed(_ context.Context, id int64) (domain.Feed, error) {
	feed, ok := f.feeds[id]
	if !ok {
		return domain.Feed{}, fmt.Errorf("получение ленты %d: %w", id, domain.ErrNotFound)
	}
	return feed, nil
}

func (f *fakeFeeds) ListFeeds(context.Context) ([]domain.Feed, error) {
	out := make([]domain.Feed, 0, len(f.feeds))
	for id := int64(1); id <= int64(len(f.feeds)); id++ {
		out = append(out, f.feeds[id])
	}
	return out, nil
}

func (f *fakeFeeds) AddArticle(_ context.Context, a domain.Article) (domain.Article, error) {
	if strings.TrimSpace(a.Title) == "" {
		return domain.Article{}, ingest.ErrArticleInvalid
	}
	a.SourceName = domain.CustomSource
	f.articles = append(f.articles, a)
	return a, nil
}

type fakeQueue struct {
	jobs []domain.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Receive(context.Context) (domain.Job, domain.AckFunc, error) {
	return domain.Job{}, nil, errors.New("not implemented")
}

type testEnv struct {
	router   chi.Router
	articles *fakeArticles
	feeds    *fakeFeeds
	queue    *fakeQueue
}

func newTestEnv(token string) *testEnv {
	env := &testEnv{
		articles: &fakeArticles{},
		feeds:    &fakeFeeds{feeds: map[int64]domain.Feed{}},
		queue:    &fakeQueue{},
	}
	engine := ranker.NewEngine(ranker.DefaultDictionary(), ranker.WithClock(func() time.Time { return testNow }))
	h := NewHandler(env.articles, env.feeds, engine, env.queue, token, zerolog.Nop())
	h.now = func() time.Time { return testNow }
	env.router = chi.NewRouter()
	h.Mount(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestListArticlesPassesQuery(t *testing.T) {
	env := newTestEnv("")
	env.articles.items = []domain.EnrichedArticle{{Article: domain.Article{Title: "A"}, Cluster: "Research", RelevanceScore: 4}}

	rec := env.do(t, http.MethodGet, "/api/v1/articles?q=act&cluster=Research&tag=paper&sort=date&limit=5&days=3", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	q := env.articles.query
	if q.Filter != (ranker.Filter{Query: "act", Cluster: "Research", Tag: "paper"}) || q.Sort != ranker.SortDate || q.Limit != 5 || q.Days != 3 {
		t.Fatalf("unexpected query: %+v", q)
	}
	resp := decode[listResponse](t, rec)
	if resp.Count != 1 || resp.Items[0].Title != "A" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestListArticlesBadInput(t *testing.T) {
	env := newTestEnv("")
	for _, target := range []string{
		"/api/v1/articles?sort=title",
		"/api/v1/articles?limit=abc",
		"/api/v1/articles?days=-1",
		"/api/v1/articles/top?n=x",
		"/api/v1/clusters?days=y",
	} {
		rec := env.do(t, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		if resp := decode[map[string]string](t, rec); resp["error"] == "" {
			t.Fatalf("%s: expected error message", target)
		}
	}
}

func TestListArticlesEmptyIsArray(t *testing.T) {
	env := newTestEnv("")

	rec := env.do(t, http.MethodGet, "/api/v1/articles", "", nil)

	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestStorageErrorIs500(t *testing.T) {
	env := newTestEnv("")
	env.articles.err = errors.New("загрузка статей: connection refused")

	rec := env.do(t, http.MethodGet, "/api/v1/articles/top", "", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatal("internal error details must not leak")
	}
}

func TestTopCapsLimit(t *testing.T) {
	env := newTestEnv("")

	rec := env.do(t, http.MethodGet, "/api/v1/articles/top?n=100000&days=7", "", nil)

	if rec.Code != http.StatusOK || env.articles.n != maxLimit || env.articles.days != 7 {
		t.Fatalf("unexpected call: code=%d n=%d days=%d", rec.Code, env.articles.n, env.articles.days)
	}
}

func TestClusters(t *testing.T) {
	env := newTestEnv("")
	env.articles.stats = []domain.ClusterStat{{
		Cluster: "Research", Count: 2, AvgRelevance: 5, TopTags: []string{"paper"},
		LatestDate: time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC),
	}}

	rec := env.do(t, http.MethodGet, "/api/v1/clusters", "", nil)

	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `"latestDate":"2024-05-07T09:00:00Z"`) || !strings.Contains(body, `"avgRelevance":5`) {
		t.Fatalf("unexpected response %d: %s", rec.Code, body)
	}
}

func TestHighlightsDefaultsToStudents(t *testing.T) {
	env := newTestEnv("")

	rec := env.do(t, http.MethodGet, "/api/v1/highlights?n=3", "", nil)

	if rec.Code != http.StatusOK || env.articles.profile != ranker.StudentsProfile || env.articles.n != 3 {
		t.Fatalf("unexpected call: code=%d profile=%q n=%d", rec.Code, env.articles.profile, env.articles.n)
	}
}

func TestHighlightsUnknownProfile(t *testing.T) {
	env := newTestEnv("")

	rec := env.do(t, http.MethodGet, "/api/v1/highlights?profile=managers", "", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScoreEnrichesWithoutStorage(t *testing.T) {
	env := newTestEnv("")
	body := `{"articles":[{"title":"OpenAI releases GPT-5 model","link":"https://example.com/gpt5","pubDate":"2024-05-08T08:00:00Z","sourceName":"Eigener"}]}`

	rec := env.do(t, http.MethodPost, "/api/v1/score", body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[listResponse](t, rec)
	if resp.Count != 1 {
		t.Fatalf("expected one item, got %d", resp.Count)
	}
	item := resp.Items[0]
	if item.RelevanceScore != 16 || item.Cluster != "Model Development" || item.ClusterRelevance != 7 {
		t.Fatalf("unexpected enrichment: score=%d cluster=%q clusterRelevance=%d", item.RelevanceScore, item.Cluster, item.ClusterRelevance)
	}
	if len(env.feeds.articles) != 0 {
		t.Fatal("score must not store articles")
	}
}

func TestScoreErrors(t *testing.T) {
	env := newTestEnv("")
	cases := map[string]string{
		"invalid json":    `{"articles":`,
		"unknown profile": `{"profile":"managers","articles":[]}`,
	}
	for name, body := range cases {
		rec := env.do(t, http.MethodPost, "/api/v1/score", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestAddArticleRequiresToken(t *testing.T) {
	env := newTestEnv("secret")
	body := `{"title":"Hochschule testet KI","link":"https://example.com/ki"}`

	if rec := env.do(t, http.MethodPost, "/api/v1/articles", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/articles", body, map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/articles", body, map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	item := decode[domain.EnrichedArticle](t, rec)
	if item.SourceName != domain.CustomSource || item.Cluster == "" || item.RelevanceScore < 1 {
		t.Fatalf("unexpected article: %+v", item)
	}
}

func TestAddArticleWithoutTitle(t *testing.T) {
	env := newTestEnv("")

	rec := env.do(t, http.MethodPost, "/api/v1/articles", `{"link":"https://example.com"}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFeeds(t *testing.T) {
	env := newTestEnv("")

	rec := env.do(t, http.MethodPost, "/api/v1/feeds", `{"name":"Heise","url":"https://www.heise.de/rss/heise.rdf"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/feeds", `{"url":"ftp://example.com"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid url, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/feeds", "", nil)
	resp := decode[map[string][]domain.Feed](t, rec)
	if len(resp["feeds"]) != 1 || resp["feeds"][0].Name != "Heise" {
		t.Fatalf("unexpected feeds: %+v", resp)
	}
}

func TestRefreshFeed(t *testing.T) {
	env := newTestEnv("")
	env.feeds.feeds[1] = domain.Feed{ID: 1, Name: "Heise", URL: "https://www.heise.de/rss/heise.rdf", Enabled: true}
	env.feeds.feeds[2] = domain.Feed{ID: 2, Name: "Old", URL: "https://example.com/rss", Enabled: false}

	rec := env.do(t, http.MethodPost, "/api/v1/feeds/1/refresh", "", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.queue.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(env.queue.jobs))
	}
	job := env.queue.jobs[0]
	if job.Kind != domain.JobRefreshFeed || job.FeedID != 1 || job.Cause != domain.JobCauseManual || job.ID == "" {
		t.Fatalf("unexpected job: %+v", job)
	}

	cases := map[string]int{
		"/api/v1/feeds/abc/refresh": http.StatusBadRequest,
		"/api/v1/feeds/9/refresh":   http.StatusNotFound,
		"/api/v1/feeds/2/refresh":   http.StatusConflict,
	}
	for target, want := range cases {
		if rec := env.do(t, http.MethodPost, target, "", nil); rec.Code != want {
			t.Fatalf("%s: expected %d, got %d", target, want, rec.Code)
		}
	}
}
