package rewriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiBackend struct {
	apiKey string
	model  string
	opts   []option.ClientOption
}

func NewGemini(apiKey, model string, opts ...option.ClientOption) *GeminiBackend {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiBackend{apiKey: apiKey, model: model, opts: opts}
}

func (b *GeminiBackend) Name() string {
	return "gemini"
}

func (b *GeminiBackend) Complete(ctx context.Context, system, user string) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("%w: gemini api key not set", ErrMissingCredential)
	}

	// SDK 的 REST 客户端本身没有超时
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(b.apiKey)}, b.opts...)...)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(b.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SetMaxOutputTokens(maxOutputTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return geminiText(resp), nil
}

// geminiText 取第一个候选的全部文本片段
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
