package rewriter

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIBackend 兼容 OpenAI Chat Completions 协议的后端（OpenAI、Groq）
type OpenAIBackend struct {
	name   string
	apiKey string
	model  string
	client *openai.Client
}

func NewOpenAI(apiKey, model string) *OpenAIBackend {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return NewOpenAICompatible("openai", apiKey, model, "")
}

func NewGroq(apiKey, model string) *OpenAIBackend {
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	return NewOpenAICompatible("groq", apiKey, model, groqBaseURL)
}

// NewOpenAICompatible baseURL 为空时使用 OpenAI 官方地址
func NewOpenAICompatible(name, apiKey, model, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	return &OpenAIBackend{
		name:   name,
		apiKey: apiKey,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (b *OpenAIBackend) Name() string {
	return b.name
}

func (b *OpenAIBackend) Complete(ctx context.Context, system, user string) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("%w: %s api key not set", ErrMissingCredential, b.name)
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", b.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
