package ranker

import (
	"testing"
	"time"

	"ai-news-digest/internal/domain"
)

var testNow = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

func fixedClock() Option {
	return WithClock(func() time.Time { return testNow })
}

func testRelevance() domain.RelevanceConfig {
	return domain.RelevanceConfig{
		Keywords:          []string{"AI", "robot"},
		TitleWeight:       3,
		DescriptionWeight: 1,
		// порядок намеренно перемешан: скорер сортирует корзины сам
		RecencyBuckets: []domain.RecencyBucket{
			{MaxDays: 7, Bonus: 1},
			{MaxDays: 1, Bonus: 5},
			{MaxDays: 3, Bonus: 3},
		},
		CustomSource:       domain.CustomSource,
		CustomSourceBonus:  2,
		TrustedSources:     []string{"Wired"},
		TrustedSourceBonus: 2,
		MinScore:           0,
	}
}

func TestScore(t *testing.T) {
	s := NewScorer(testRelevance(), fixedClock())

	cases := []struct {
		name string
		in   domain.Article
		want int
	}{
		{"empty article gets floor", domain.Article{}, 1},
		{"two title keywords", domain.Article{Title: "AI robot"}, 6},
		{"title and description", domain.Article{Title: "AI", Description: "AI"}, 4},
		{"keyword counted once per field", domain.Article{Title: "AI AI AI"}, 3},
		{"case insensitive", domain.Article{Title: "ROBOT"}, 3},
		{"substring match", domain.Article{Title: "Officials said"}, 3},
		{"today", domain.Article{PubDate: "2024-05-08T00:00:00Z"}, 5},
		{"exactly one day", domain.Article{PubDate: "2024-05-07T12:00:00Z"}, 5},
		{"two days", domain.Article{PubDate: "2024-05-06T12:00:00Z"}, 3},
		{"seven days", domain.Article{PubDate: "2024-05-01T12:00:00Z"}, 1},
		{"eight days", domain.Article{PubDate: "2024-04-30T11:00:00Z"}, 1},
		{"invalid date", domain.Article{PubDate: "yesterday"}, 1},
		{"custom source", domain.Article{SourceName: domain.CustomSource}, 2},
		{"custom source is case sensitive", domain.Article{SourceName: "eigener"}, 1},
		{"trusted source", domain.Article{SourceName: " wired "}, 2},
		{"all signals", domain.Article{
			Title:       "AI robot",
			Description: "robot",
			PubDate:     "2024-05-08T10:00:00Z",
			SourceName:  domain.CustomSource,
		}, 6 + 1 + 5 + 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Score(tc.in); got != tc.want {
				t.Fatalf("Score() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScoreRespectsMinScore(t *testing.T) {
	cfg := testRelevance()
	cfg.MinScore = 4
	s := NewScorer(cfg, fixedClock())

	if got := s.Score(domain.Article{Title: "AI"}); got != 4 {
		t.Fatalf("expected floor 4, got %d", got)
	}
	if got := s.Score(domain.Article{Title: "AI robot"}); got != 6 {
		t.Fatalf("expected 6 above floor, got %d", got)
	}
}

func TestRecencyBonusBucketsAreExclusive(t *testing.T) {
	s := NewScorer(testRelevance(), fixedClock())
	want := map[int]int{-1: 5, 0: 5, 1: 5, 2: 3, 3: 3, 4: 1, 7: 1, 8: 0, 365: 0}
	for days, bonus := range want {
		if got := s.RecencyBonus(days); got != bonus {
			t.Fatalf("RecencyBonus(%d) = %d, want %d", days, got, bonus)
		}
	}
}

func TestScorerDoesNotMutateConfig(t *testing.T) {
	cfg := testRelevance()
	NewScorer(cfg, fixedClock())
	if cfg.RecencyBuckets[0].MaxDays != 7 {
		t.Fatal("buckets of the caller must keep their order")
	}
}
