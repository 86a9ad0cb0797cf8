package ranker

import "ai-news-digest/internal/domain"

// Engine объединяет скоринг и кластеризацию в обогащённую статью.
// Движок не имеет побочных эффектов: метрики считают вызывающие.
type Engine struct {
	dict       domain.Dictionary
	scorer     *Scorer
	profiles   map[string]*Scorer
	classifier *Classifier
}

var _ domain.Enricher = (*Engine)(nil)

// NewEngine создаёт движок для словаря dict.
func NewEngine(dict domain.Dictionary, opts ...Option) *Engine {
	profiles := make(map[string]*Scorer, len(dict.Profiles))
	for name, cfg := range dict.Profiles {
		profiles[name] = NewScorer(cfg, opts...)
	}
	return &Engine{
		dict:       dict,
		scorer:     NewScorer(dict.Relevance, opts...),
		profiles:   profiles,
		classifier: NewClassifier(dict.Clusters, dict.Fallback),
	}
}

// Dictionary возвращает конфигурацию движка.
func (e *Engine) Dictionary() domain.Dictionary {
	return e.dict
}

// Classifier возвращает используемый классификатор.
func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

// EnrichOne обогащает одну статью базовым профилем.
func (e *Engine) EnrichOne(a domain.Article) domain.EnrichedArticle {
	return e.enrich(e.scorer, a)
}

// Enrich обогащает список статей базовым профилем, сохраняя порядок.
func (e *Engine) Enrich(articles []domain.Article) []domain.EnrichedArticle {
	return e.enrichAll(e.scorer, articles)
}

// EnrichWithProfile обогащает статьи именованным профилем. ok=false, если профиль не найден.
func (e *Engine) EnrichWithProfile(profile string, articles []domain.Article) ([]domain.EnrichedArticle, bool) {
	if profile == "" || profile == domain.DefaultProfile {
		return e.Enrich(articles), true
	}
	scorer, ok := e.profiles[profile]
	if !ok {
		return nil, false
	}
	return e.enrichAll(scorer, articles), true
}

func (e *Engine) enrichAll(scorer *Scorer, articles []domain.Article) []domain.EnrichedArticle {
	out := make([]domain.EnrichedArticle, 0, len(articles))
	for _, a := range articles {
		out = append(out, e.enrich(scorer, a))
	}
	return out
}

func (e *Engine) enrich(scorer *Scorer, a domain.Article) domain.EnrichedArticle {
	cls := e.classifier.Classify(a.Title, a.Description)
	return domain.EnrichedArticle{
		Article:          a,
		Cluster:          cls.Cluster,
		MatchedTags:      cls.MatchedTags,
		RelevanceScore:   scorer.Score(a),
		ClusterRelevance: cls.Score,
	}
}

// LoadEngine создаёт движок со словарём из YAML-файла path.
// Пустой path означает встроенный словарь.
func LoadEngine(path string, opts ...Option) (*Engine, error) {
	if path == "" {
		return NewEngine(DefaultDictionary(), opts...), nil
	}
	dict, err := LoadDictionary(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(dict, opts...), nil
}
