package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"ai-news-digest/internal/infra/metrics"
)

// DefaultBaseURL указывает на OpenAI-совместимый API Mistral.
const DefaultBaseURL = "https://api.mistral.ai/v1"

// Client выполняет Chat Completions запросы к любому OpenAI-совместимому API.
type Client struct {
	sdk    sdk.Client
	hasKey bool
}

// NewClient создаёт клиента. Пустой baseURL означает DefaultBaseURL.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := sdk.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	)
	return &Client{sdk: client, hasKey: apiKey != ""}
}

// ChatCompletionRequest описывает запрос к модели.
type ChatCompletionRequest struct {
	Model          string
	Messages       []ChatMessage
	Temperature    float64
	MaxTokens      int
	ResponseFormat *ResponseFormat
}

// ChatMessage представляет сообщение в диалоге.
type ChatMessage struct {
	Role    string
	Content string
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ResponseFormat задаёт формат ответа.
type ResponseFormat struct {
	Type string
}

// ResponseFormatJSONObject просит вернуть объект JSON.
const ResponseFormatJSONObject = "json_object"

// ChatCompletionResponse описывает ответ модели.
type ChatCompletionResponse struct {
	Choices []ChatCompletionChoice
	Usage   *Usage
}

// ChatCompletionChoice содержит сообщение модели.
type ChatCompletionChoice struct {
	Message ChatMessage
}

// Usage описывает расход токенов.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Content возвращает текст первого варианта ответа.
func (r ChatCompletionResponse) Content() (string, error) {
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}

// CreateChatCompletion вызывает /chat/completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	if !c.hasKey {
		return ChatCompletionResponse{}, fmt.Errorf("openai: api key is empty")
	}

	start := time.Now()
	completion, err := c.sdk.Chat.Completions.New(ctx, buildParams(req))
	metrics.ObserveNetworkRequest("llm", "chat_completions", req.Model, start, err)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return ChatCompletionResponse{}, fmt.Errorf("openai: status %d: %w", apiErr.StatusCode, err)
		}
		return ChatCompletionResponse{}, fmt.Errorf("openai: %w", err)
	}

	resp := convertResponse(completion)
	if resp.Usage != nil {
		metrics.ObserveLLMUsage(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, nil
}

func buildParams(req ChatCompletionRequest) sdk.ChatCompletionNewParams {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			messages = append(messages, sdk.SystemMessage(m.Content))
			continue
		}
		messages = append(messages, sdk.UserMessage(m.Content))
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == ResponseFormatJSONObject {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func convertResponse(completion *sdk.ChatCompletion) ChatCompletionResponse {
	var resp ChatCompletionResponse
	if completion == nil {
		return resp
	}
	for _, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, ChatCompletionChoice{
			Message: ChatMessage{Role: string(choice.Message.Role), Content: choice.Message.Content},
		})
	}
	if completion.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		}
	}
	return resp
}
