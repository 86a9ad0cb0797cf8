package ranker

import (
	"sort"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// matcher ищет вхождения словаря в тексте без учёта регистра.
// Совпадение эквивалентно strings.Contains по каждому термину.
type matcher struct {
	mu     sync.Mutex
	ac     *ahocorasick.Matcher
	owners [][]int
}

func newMatcher(terms []string) *matcher {
	m := &matcher{}
	unique := make([]string, 0, len(terms))
	index := make(map[string]int, len(terms))
	for i, term := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" {
			continue
		}
		pos, ok := index[key]
		if !ok {
			pos = len(unique)
			index[key] = pos
			unique = append(unique, key)
			m.owners = append(m.owners, nil)
		}
		m.owners[pos] = append(m.owners[pos], i)
	}
	if len(unique) > 0 {
		m.ac = ahocorasick.NewStringMatcher(unique)
	}
	return m
}

// Match возвращает индексы исходных терминов, найденных в text, по возрастанию.
func (m *matcher) Match(text string) []int {
	if m.ac == nil || text == "" {
		return nil
	}
	lower := []byte(strings.ToLower(text))

	// ahocorasick.Matcher хранит счётчик прохода внутри и не потокобезопасен.
	m.mu.Lock()
	hits := m.ac.Match(lower)
	m.mu.Unlock()

	if len(hits) == 0 {
		return nil
	}
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, m.owners[h]...)
	}
	sort.Ints(out)
	return out
}
