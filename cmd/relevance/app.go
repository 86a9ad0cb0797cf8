package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/domain"
)

// newApp собирает CLI для офлайн-оценки статей из JSON-файла.
func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:      "relevance",
		Usage:     "оценка релевантности и кластеризация AI-новостей без базы данных",
		Reader:    in,
		Writer:    out,
		ErrWriter: io.Discard,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Value: "-", Usage: "JSON-массив статей; - читает stdin"},
			&cli.StringFlag{Name: "dictionary", Aliases: []string{"d"}, Usage: "YAML-словарь ключевых слов и кластеров"},
			&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Value: domain.DefaultProfile, Usage: "профиль релевантности"},
			&cli.StringFlag{Name: "now", Usage: "текущее время в RFC3339 для расчёта свежести"},
		},
		Commands: []*cli.Command{
			{
				Name:   "score",
				Usage:  "обогатить каждую статью оценкой, кластером и тегами",
				Action: scoreAction,
			},
			{
				Name:  "top",
				Usage: "N лучших статей после дедупликации",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 10, Usage: "число статей; 0 выводит все"},
					&cli.StringFlag{Name: "sort", Value: string(ranker.SortRelevance), Usage: "relevance, cluster или date"},
				},
				Action: topAction,
			},
			{
				Name:  "stats",
				Usage: "статистика по кластерам",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top-tags", Value: ranker.DefaultTopTags, Usage: "число тегов на кластер"},
				},
				Action: statsAction,
			},
			{
				Name:  "search",
				Usage: "поиск по тексту, кластеру и тегу",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}},
					&cli.StringFlag{Name: "cluster", Aliases: []string{"c"}},
					&cli.StringFlag{Name: "tag", Aliases: []string{"t"}},
					&cli.StringFlag{Name: "sort", Value: string(ranker.SortRelevance)},
					&cli.IntFlag{Name: "limit", Value: 0},
				},
				Action: searchAction,
			},
		},
	}
}

func scoreAction(c *cli.Context) error {
	items, err := enrichInput(c, false)
	if err != nil {
		return err
	}
	return writeJSON(c, items)
}

func topAction(c *cli.Context) error {
	field, err := ranker.ParseSortField(c.String("sort"))
	if err != nil {
		return err
	}
	items, err := enrichInput(c, true)
	if err != nil {
		return err
	}
	return writeJSON(c, ranker.TopN(items, field, c.Int("n")))
}

func statsAction(c *cli.Context) error {
	items, err := enrichInput(c, true)
	if err != nil {
		return err
	}
	return writeJSON(c, ranker.ClusterStats(items, c.Int("top-tags")))
}

func searchAction(c *cli.Context) error {
	field, err := ranker.ParseSortField(c.String("sort"))
	if err != nil {
		return err
	}
	items, err := enrichInput(c, true)
	if err != nil {
		return err
	}
	found := ranker.Search(items, ranker.Filter{
		Query:   c.String("query"),
		Cluster: c.String("cluster"),
		Tag:     c.String("tag"),
	})
	return writeJSON(c, ranker.TopN(found, field, c.Int("limit")))
}

func enrichInput(c *cli.Context, dedupe bool) ([]domain.EnrichedArticle, error) {
	opts, err := clockOption(c.String("now"))
	if err != nil {
		return nil, err
	}
	engine, err := ranker.LoadEngine(c.String("dictionary"), opts...)
	if err != nil {
		return nil, err
	}
	articles, err := readArticles(c)
	if err != nil {
		return nil, err
	}
	if dedupe {
		articles = ranker.Dedupe(articles)
	}
	items, ok := engine.EnrichWithProfile(c.String("profile"), articles)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", c.String("profile"))
	}
	return items, nil
}

func clockOption(raw string) ([]ranker.Option, error) {
	if raw == "" {
		return nil, nil
	}
	now, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --now: %w", err)
	}
	return []ranker.Option{ranker.WithClock(func() time.Time { return now })}, nil
}

func readArticles(c *cli.Context) ([]domain.Article, error) {
	var r io.Reader = c.App.Reader
	if path := c.String("input"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	var articles []domain.Article
	if err := json.NewDecoder(r).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return articles, nil
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
