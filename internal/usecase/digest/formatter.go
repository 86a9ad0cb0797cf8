package digest

import (
	"fmt"
	"html"
	"strings"

	"ai-news-digest/internal/domain"
)

const dateLayout = "02.01.2006"

// FormatDigest формирует HTML-представление дайджеста для Telegram.
func FormatDigest(d domain.Digest) string {
	var sections []string

	sections = append(sections, fmt.Sprintf("🧠 <b>AI-дайджест недели</b>\n%s – %s",
		d.From.Format(dateLayout), d.To.Format(dateLayout)))

	if top := buildTopSection(d.Top); top != "" {
		sections = append(sections, top)
	}
	if clusters := buildClusterSections(d.Sections); clusters != "" {
		sections = append(sections, clusters)
	}

	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func buildTopSection(items []domain.DigestItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("🔥 <b>Главное за неделю</b>")
	for _, item := range items {
		line := fmt.Sprintf("%d. %s", item.Rank, itemTitle(item))
		if bullets := filterNonEmptyStrings(item.Summary.Bullets); len(bullets) > 0 {
			line += " — " + escapeHTML(strings.Join(bullets, " "))
		}
		line += fmt.Sprintf(" <i>(%s, %d)</i>", escapeHTML(item.Article.Cluster), item.Article.RelevanceScore)
		b.WriteString("\n" + line)
	}
	return b.String()
}

func buildClusterSections(sections []domain.DigestSection) string {
	if len(sections) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Темы недели</b>")
	for _, section := range sections {
		b.WriteString("\n\n" + FormatStat(section.Stat))
		for _, item := range section.Items {
			b.WriteString("\n• " + itemTitle(item))
		}
	}
	return b.String()
}

// FormatStat возвращает заголовок кластера со статистикой.
func FormatStat(stat domain.ClusterStat) string {
	line := fmt.Sprintf("<b>%s</b> · статей: %d · релевантность: %d",
		escapeHTML(stat.Cluster), stat.Count, stat.AvgRelevance)
	if len(stat.TopTags) > 0 {
		line += "\nТеги: " + escapeHTML(strings.Join(stat.TopTags, ", "))
	}
	if !stat.LatestDate.IsZero() {
		line += "\nПоследняя: " + stat.LatestDate.Format(dateLayout)
	}
	return line
}

// FormatArticles формирует нумерованный список статей.
func FormatArticles(title string, items []domain.EnrichedArticle) string {
	var b strings.Builder
	b.WriteString("<b>" + escapeHTML(title) + "</b>")
	if len(items) == 0 {
		b.WriteString("\nНичего не найдено.")
		return b.String()
	}
	for idx, item := range items {
		b.WriteString(fmt.Sprintf("\n%d. %s <i>(%s, %d)</i>", idx+1,
			link(item.Link, item.Title), escapeHTML(item.Cluster), item.RelevanceScore))
	}
	return b.String()
}

func itemTitle(item domain.DigestItem) string {
	headline := strings.TrimSpace(item.Summary.Headline)
	if headline == "" {
		headline = item.Article.Title
	}
	return link(item.Article.Link, headline)
}

func link(url, label string) string {
	label = escapeHTML(strings.TrimSpace(label))
	url = strings.TrimSpace(url)
	if url == "" {
		return label
	}
	return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(url), label)
}

func filterNonEmptyStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
