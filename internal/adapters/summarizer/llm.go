package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const systemPrompt = "Ты редактор дайджеста новостей об искусственном интеллекте. Пиши только факты из текста статьи и не добавляй выдумок."

// LLMSummarizer просит модель сжать статью в заголовок и пару тезисов.
// При любой ошибке модели используется запасной Summarizer.
type LLMSummarizer struct {
	client   chatCompletionClient
	model    string
	timeout  time.Duration
	fallback domain.Summarizer
	log      zerolog.Logger
}

var _ domain.Summarizer = (*LLMSummarizer)(nil)

// NewLLM создаёт суммаризатор. Если fallback не задан, используется эвристика NewSimple.
func NewLLM(client chatCompletionClient, model string, timeout time.Duration, fallback domain.Summarizer, logger zerolog.Logger) *LLMSummarizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if fallback == nil {
		fallback = NewSimple()
	}
	return &LLMSummarizer{client: client, model: model, timeout: timeout, fallback: fallback, log: logger}
}

type llmSummary struct {
	Headline string   `json:"headline"`
	Bullets  []string `json:"bullets"`
}

// Summarize возвращает краткое содержание статьи.
func (s *LLMSummarizer) Summarize(article domain.Article) (domain.Summary, error) {
	summary, err := s.complete(article)
	if err != nil {
		s.log.Warn().Err(err).Str("guid", article.GUID).Msg("summarizer: fallback to heuristic")
		return s.fallback.Summarize(article)
	}
	return summary, nil
}

func (s *LLMSummarizer) complete(article domain.Article) (domain.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(`Сожми статью для дайджеста.
1. Придумай ёмкий заголовок до %d символов на языке статьи.
2. Добавь не более %d коротких тезисов, каждый до %d символов.
3. Ответ верни строго в формате JSON: {"headline": "...", "bullets": ["..."]}.

Заголовок: %s
Описание: %s`, headlineLimit, maxBullets, bulletLimit, article.Title, truncate(article.Description, 4000))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ResponseFormat{Type: openai.ResponseFormatJSONObject},
	})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("llm completion: %w", err)
	}
	content, err := resp.Content()
	if err != nil {
		return domain.Summary{}, err
	}
	var parsed llmSummary
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.Summary{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	headline := strings.TrimSpace(parsed.Headline)
	if headline == "" {
		return domain.Summary{}, fmt.Errorf("пустой заголовок в ответе LLM")
	}
	bullets := []string{}
	for _, b := range parsed.Bullets {
		if b = strings.TrimSpace(b); b != "" && len(bullets) < maxBullets {
			bullets = append(bullets, truncate(b, bulletLimit))
		}
	}
	return domain.Summary{Headline: truncate(headline, headlineLimit), Bullets: bullets}, nil
}

// New возвращает LLM-суммаризатор, если задан ключ API, иначе эвристику.
func New(apiKey, baseURL, model string, timeout time.Duration, logger zerolog.Logger) domain.Summarizer {
	if strings.TrimSpace(apiKey) == "" {
		return NewSimple()
	}
	return NewLLM(openai.NewClient(apiKey, baseURL, timeout), model, timeout, NewSimple(), logger)
}
