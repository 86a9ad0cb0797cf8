package domain

import (
	"fmt"
	"strings"
)

// Tier задаёт вес ключевого слова кластера.
type Tier int

const (
	TierLow    Tier = 1
	TierMedium Tier = 2
	TierHigh   Tier = 3
)

// ParseTier разбирает текстовое имя уровня (high/medium/low).
func ParseTier(raw string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "3":
		return TierHigh, nil
	case "medium", "2":
		return TierMedium, nil
	case "low", "1", "":
		return TierLow, nil
	default:
		return 0, fmt.Errorf("unknown keyword tier %q", raw)
	}
}

// Keyword — ключевое слово кластера с весом.
type Keyword struct {
	Term string
	Tier Tier
}

// TopicCluster — тематический кластер из статической конфигурации.
type TopicCluster struct {
	Label    string
	Keywords []Keyword
}

// RecencyBucket начисляет Bonus статьям не старше MaxDays дней.
type RecencyBucket struct {
	MaxDays int
	Bonus   int
}

// RelevanceConfig — параметры скоринга релевантности.
type RelevanceConfig struct {
	Keywords           []string
	TitleWeight        int
	DescriptionWeight  int
	RecencyBuckets     []RecencyBucket
	CustomSource       string
	CustomSourceBonus  int
	TrustedSources     []string
	TrustedSourceBonus int
	MinScore           int
}

// Dictionary объединяет всю конфигурацию ядра скоринга.
type Dictionary struct {
	Relevance RelevanceConfig
	Profiles  map[string]RelevanceConfig
	Clusters  []TopicCluster
	Fallback  string
}

// Profile возвращает именованный профиль; пустое имя и "default" дают базовый.
func (d Dictionary) Profile(name string) (RelevanceConfig, bool) {
	if name == "" || name == DefaultProfile {
		return d.Relevance, true
	}
	cfg, ok := d.Profiles[name]
	return cfg, ok
}

// DefaultProfile — имя базового профиля релевантности.
const DefaultProfile = "default"

// Classification — результат отнесения статьи к кластеру.
type Classification struct {
	Cluster     string
	Score       int
	MatchedTags []string
}
