package ranker

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"ai-news-digest/internal/domain"
)

// FallbackCluster — кластер для статей без совпадений.
const FallbackCluster = "Other"

// StudentsProfile — профиль отбора новостей для студентов.
const StudentsProfile = "students"

// DefaultRelevance возвращает базовые параметры скоринга.
func DefaultRelevance() domain.RelevanceConfig {
	return domain.RelevanceConfig{
		Keywords: []string{
			"AI", "künstliche intelligenz", "machine learning", "deep learning",
			"neural network", "ChatGPT", "OpenAI", "GPT", "LLM", "Gemini",
			"Claude", "Anthropic", "Mistral", "Google", "Microsoft", "Nvidia",
			"algorithm", "automation", "robot", "generative",
		},
		TitleWeight:       3,
		DescriptionWeight: 1,
		RecencyBuckets: []domain.RecencyBucket{
			{MaxDays: 1, Bonus: 5},
			{MaxDays: 3, Bonus: 3},
			{MaxDays: 7, Bonus: 1},
		},
		CustomSource:       domain.CustomSource,
		CustomSourceBonus:  2,
		TrustedSources:     []string{"techcrunch", "wired", "ars technica", "the verge"},
		TrustedSourceBonus: 2,
		MinScore:           1,
	}
}

func defaultStudents() domain.RelevanceConfig {
	cfg := DefaultRelevance()
	cfg.Keywords = []string{
		"student", "studium", "university", "universität", "hochschule",
		"education", "bildung", "exam", "prüfung", "school", "schule",
		"learning", "lernen", "internship", "praktikum", "career", "karriere",
		"ChatGPT", "AI",
	}
	cfg.TrustedSources = nil
	return cfg
}

// DefaultClusters возвращает встроенный набор тематических кластеров.
func DefaultClusters() []domain.TopicCluster {
	return []domain.TopicCluster{
		cluster("Model Development",
			[]string{"GPT-4", "GPT-5", "LLM", "RAG", "fine-tuning", "transformer", "foundation model", "multimodal", "benchmark", "open-weight"},
			[]string{"OpenAI", "Anthropic", "Mistral", "Gemini", "Llama", "DeepMind", "Hugging Face"},
			[]string{"model", "training", "release", "parameters"},
		),
		cluster("Governance & Ethics",
			[]string{"AI Act", "regulation", "regulierung", "bias", "copyright", "urheberrecht", "deepfake", "privacy", "datenschutz"},
			[]string{"European Union", "EU-Kommission", "government", "regierung", "lawsuit", "ethics", "ethik"},
			[]string{"policy", "safety", "legislation", "gesetz", "risk"},
		),
		cluster("Use Cases",
			[]string{"healthcare", "medizin", "education", "bildung", "customer service", "coding assistant", "autonomous driving"},
			[]string{"Copilot", "chatbot", "automation", "automatisierung"},
			[]string{"application", "anwendung", "productivity", "workflow", "use case"},
		),
		cluster("Research",
			[]string{"paper", "arxiv", "study", "studie", "research", "forschung"},
			[]string{"university", "universität", "Stanford", "Max Planck"},
			[]string{"scientists", "wissenschaftler", "experiment"},
		),
		cluster("Business & Funding",
			[]string{"funding", "investment", "acquisition", "valuation", "startup", "finanzierung"},
			[]string{"Nvidia", "Microsoft", "Google", "Amazon", "Meta"},
			[]string{"market", "markt", "revenue", "umsatz", "billion", "milliarden"},
		),
		cluster("Tools & Infrastructure",
			[]string{"GPU", "SDK", "data center", "rechenzentrum", "open source", "chip"},
			[]string{"AWS", "Azure", "Kubernetes", "PyTorch", "TensorFlow"},
			[]string{"cloud", "platform", "plattform", "tool"},
		),
	}
}

// DefaultDictionary собирает всю встроенную конфигурацию.
func DefaultDictionary() domain.Dictionary {
	return domain.Dictionary{
		Relevance: DefaultRelevance(),
		Profiles:  map[string]domain.RelevanceConfig{StudentsProfile: defaultStudents()},
		Clusters:  DefaultClusters(),
		Fallback:  FallbackCluster,
	}
}

func cluster(label string, high, medium, low []string) domain.TopicCluster {
	c := domain.TopicCluster{Label: label}
	add := func(terms []string, tier domain.Tier) {
		for _, t := range terms {
			c.Keywords = append(c.Keywords, domain.Keyword{Term: t, Tier: tier})
		}
	}
	add(high, domain.TierHigh)
	add(medium, domain.TierMedium)
	add(low, domain.TierLow)
	return c
}

type fileDictionary struct {
	Relevance *fileRelevance           `yaml:"relevance"`
	Profiles  map[string]fileRelevance `yaml:"profiles"`
	Clusters  []fileCluster            `yaml:"clusters"`
	Fallback  string                   `yaml:"fallback"`
}

type fileRelevance struct {
	Keywords           []string      `yaml:"keywords"`
	TitleWeight        *int          `yaml:"titleWeight"`
	DescriptionWeight  *int          `yaml:"descriptionWeight"`
	Recency            []fileRecency `yaml:"recency"`
	CustomSource       *string       `yaml:"customSource"`
	CustomSourceBonus  *int          `yaml:"customSourceBonus"`
	TrustedSources     *[]string     `yaml:"trustedSources"`
	TrustedSourceBonus *int          `yaml:"trustedSourceBonus"`
	MinScore           *int          `yaml:"minScore"`
}

type fileRecency struct {
	MaxDays int `yaml:"maxDays"`
	Bonus   int `yaml:"bonus"`
}

type fileCluster struct {
	Label    string              `yaml:"label"`
	Keywords map[string][]string `yaml:"keywords"`
}

// LoadDictionary читает словари из YAML. Отсутствующие секции берутся из встроенных значений.
func LoadDictionary(path string) (domain.Dictionary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Dictionary{}, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	return ParseDictionary(raw)
}

// ParseDictionary разбирает YAML-описание словарей.
func ParseDictionary(raw []byte) (domain.Dictionary, error) {
	var file fileDictionary
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.Dictionary{}, fmt.Errorf("parse dictionary: %w", err)
	}

	dict := DefaultDictionary()
	if file.Relevance != nil {
		dict.Relevance = file.Relevance.apply(dict.Relevance)
	}
	for name, profile := range file.Profiles {
		name = strings.TrimSpace(name)
		if name == "" || name == domain.DefaultProfile {
			return domain.Dictionary{}, fmt.Errorf("parse dictionary: invalid profile name %q", name)
		}
		dict.Profiles[name] = profile.apply(dict.Relevance)
	}
	if len(file.Clusters) > 0 {
		clusters, err := convertClusters(file.Clusters)
		if err != nil {
			return domain.Dictionary{}, err
		}
		dict.Clusters = clusters
	}
	if fb := strings.TrimSpace(file.Fallback); fb != "" {
		dict.Fallback = fb
	}
	return dict, nil
}

func (f fileRelevance) apply(base domain.RelevanceConfig) domain.RelevanceConfig {
	out := base
	if len(f.Keywords) > 0 {
		out.Keywords = append([]string(nil), f.Keywords...)
	}
	if f.TitleWeight != nil {
		out.TitleWeight = *f.TitleWeight
	}
	if f.DescriptionWeight != nil {
		out.DescriptionWeight = *f.DescriptionWeight
	}
	if len(f.Recency) > 0 {
		out.RecencyBuckets = make([]domain.RecencyBucket, 0, len(f.Recency))
		for _, b := range f.Recency {
			out.RecencyBuckets = append(out.RecencyBuckets, domain.RecencyBucket{MaxDays: b.MaxDays, Bonus: b.Bonus})
		}
	}
	if f.CustomSource != nil {
		out.CustomSource = *f.CustomSource
	}
	if f.CustomSourceBonus != nil {
		out.CustomSourceBonus = *f.CustomSourceBonus
	}
	if f.TrustedSources != nil {
		out.TrustedSources = append([]string(nil), (*f.TrustedSources)...)
	}
	if f.TrustedSourceBonus != nil {
		out.TrustedSourceBonus = *f.TrustedSourceBonus
	}
	if f.MinScore != nil {
		out.MinScore = *f.MinScore
	}
	return out
}

func convertClusters(in []fileCluster) ([]domain.TopicCluster, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.TopicCluster, 0, len(in))
	for _, fc := range in {
		label := strings.TrimSpace(fc.Label)
		if label == "" {
			return nil, fmt.Errorf("parse dictionary: cluster without label")
		}
		key := strings.ToLower(label)
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("parse dictionary: duplicate cluster %q", label)
		}
		seen[key] = struct{}{}

		c := domain.TopicCluster{Label: label}
		// yaml-карта не сохраняет порядок, поэтому уровни перебираются явно.
		tiers := []string{"high", "medium", "low"}
		var extra []string
		for name := range fc.Keywords {
			if _, err := domain.ParseTier(name); err != nil {
				return nil, fmt.Errorf("parse dictionary: cluster %q: %w", label, err)
			}
			if !containsString(tiers, name) {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		tiers = append(tiers, extra...)
		for _, name := range tiers {
			terms, ok := fc.Keywords[name]
			if !ok {
				continue
			}
			tier, _ := domain.ParseTier(name)
			for _, term := range terms {
				if strings.TrimSpace(term) == "" {
					continue
				}
				c.Keywords = append(c.Keywords, domain.Keyword{Term: term, Tier: tier})
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
