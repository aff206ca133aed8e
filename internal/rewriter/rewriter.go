package rewriter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/config"
	"github.com/rs/zerolog/log"
)

// CaptionMaxLen Telegram 图片说明的硬上限（按字符计）
const CaptionMaxLen = 1024

const maxOutputTokens = 400

// DefaultTimeout 单次改写的上限，超时按失败处理
const DefaultTimeout = 120 * time.Second

var (
	ErrUnknownProvider   = errors.New("rewriter: unknown provider")
	ErrMissingCredential = errors.New("rewriter: missing credential")
	errEmptyOutput       = errors.New("rewriter: empty output")
)

const systemPrompt = `You rewrite crypto/finance news for a Telegram channel. Output only the rewritten content, no preamble.
- Keep factual and neutral. No speculation or opinions.
- Use a short headline (one line) then exactly ONE concise sentence summary.
- Do NOT include "Source:" or any source attribution.
- Use emojis sparingly (1-2 max) if appropriate: 📰 💰 🚀 📈 📉
- Total length must stay under 500 characters for Telegram caption.`

const userPromptTemplate = `Rewrite this crypto/finance news for a channel post. Headline first, then ONE sentence summary. Do not mention the source.

Title: %s

Summary: %s`

// Backend 一个具体的大模型后端，只负责一次问答
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Gateway 调用方只看到 Rewrite，不关心背后是哪个后端
type Gateway struct {
	backend Backend
	err     error

	// Timeout 每次 Rewrite 的截止时间，<= 0 时不额外限制
	Timeout time.Duration
}

func NewGateway(b Backend) *Gateway {
	return &Gateway{backend: b, Timeout: DefaultTimeout}
}

// Disabled 配置错误时使用：每次调用都记录该错误并返回失败
func Disabled(err error) *Gateway {
	return &Gateway{err: err}
}

// New 按 REWRITE_PROVIDER 选择后端
func New(cfg *config.Config) (*Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.RewriteProvider))
	switch provider {
	case "openai":
		return NewGateway(NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel)), nil
	case "groq":
		return NewGateway(NewGroq(cfg.GroqKey, cfg.GroqModel)), nil
	case "ollama":
		return NewGateway(NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel)), nil
	case "gemini":
		return NewGateway(NewGemini(cfg.GeminiKey, cfg.GeminiModel)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.RewriteProvider)
	}
}

func (g *Gateway) Provider() string {
	if g.backend == nil {
		return "disabled"
	}
	return g.backend.Name()
}

// Rewrite 生成频道文案；失败（缺凭证、网络错误、空输出、未知后端）返回 ok=false，调用方跳过该条。
// 这里不做重试。
func (g *Gateway) Rewrite(ctx context.Context, title, summary, source string) (string, bool) {
	if g.backend == nil {
		err := g.err
		if err == nil {
			err = ErrUnknownProvider
		}
		log.Error().Err(err).Msg("rewrite unavailable")
		return "", false
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	text, err := g.backend.Complete(ctx, systemPrompt, userPrompt(title, summary))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyOutput
	}
	if err != nil {
		log.Error().Err(err).Str("provider", g.backend.Name()).Str("title", title).Str("source", source).Msg("rewrite failed")
		return "", false
	}
	return truncateCaption(strings.TrimSpace(text)), true
}

func userPrompt(title, summary string) string {
	if strings.TrimSpace(summary) == "" {
		summary = "No summary"
	}
	return fmt.Sprintf(userPromptTemplate, title, summary)
}

func truncateCaption(s string) string {
	rs := []rune(s)
	if len(rs) <= CaptionMaxLen {
		return s
	}
	return string(rs[:CaptionMaxLen])
}
