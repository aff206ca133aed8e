package rewriter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/config"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	out      string
	err      error
	lastUser string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, _, user string) (string, error) {
	f.lastUser = user
	return f.out, f.err
}

func TestRewriteTrimsOutput(t *testing.T) {
	b := &fakeBackend{out: "  📰 BTC up\nBitcoin rose 5%.  \n"}
	text, ok := NewGateway(b).Rewrite(context.Background(), "BTC up", "", "CoinDesk")
	require.True(t, ok)
	require.Equal(t, "📰 BTC up\nBitcoin rose 5%.", text)
	require.Contains(t, b.lastUser, "Summary: No summary")
	require.Contains(t, b.lastUser, "Title: BTC up")
	require.NotContains(t, b.lastUser, "CoinDesk")
}

func TestRewriteTruncatesToCaptionLimit(t *testing.T) {
	b := &fakeBackend{out: strings.Repeat("₿", 3000)}
	text, ok := NewGateway(b).Rewrite(context.Background(), "t", "s", "")
	require.True(t, ok)
	require.Len(t, []rune(text), CaptionMaxLen)
}

func TestRewriteFailures(t *testing.T) {
	cases := map[string]*fakeBackend{
		"whitespace output": {out: " \n\t "},
		"backend error":     {err: errors.New("connection reset")},
		"missing key":       {err: ErrMissingCredential},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			text, ok := NewGateway(b).Rewrite(context.Background(), "t", "s", "")
			require.False(t, ok)
			require.Empty(t, text)
		})
	}
}

func TestDisabledGatewayAlwaysFails(t *testing.T) {
	g := Disabled(fmt.Errorf("%w: %q", ErrUnknownProvider, "claude"))
	for i := 0; i < 2; i++ {
		_, ok := g.Rewrite(context.Background(), "t", "s", "")
		require.False(t, ok)
	}
	require.Equal(t, "disabled", g.Provider())
}

func TestNewSelectsProvider(t *testing.T) {
	for provider, want := range map[string]string{
		"openai": "openai",
		"GROQ":   "groq",
		"ollama": "ollama",
		"gemini": "gemini",
	} {
		g, err := New(&config.Config{RewriteProvider: provider})
		require.NoError(t, err)
		require.Equal(t, want, g.Provider())
	}

	_, err := New(&config.Config{RewriteProvider: "claude"})
	require.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestMissingCredentialMakesNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	_, err := NewOpenAICompatible("openai", "", "gpt-4o-mini", srv.URL).Complete(context.Background(), "s", "u")
	require.ErrorIs(t, err, ErrMissingCredential)

	_, err = NewGemini("", "").Complete(context.Background(), "s", "u")
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestOpenAICompatibleBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "llama-3.1-8b-instant", req.Model)
		require.Equal(t, 400, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		require.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"🚀 ETH rallies\nEther gained 4%."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	b := NewOpenAICompatible("groq", "sk-test", "llama-3.1-8b-instant", srv.URL)
	text, ok := NewGateway(b).Rewrite(context.Background(), "ETH rallies", "Ether gained", "")
	require.True(t, ok)
	require.Equal(t, "🚀 ETH rallies\nEther gained 4%.", text)
}

func TestOllamaBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		require.Equal(t, "llama3.2", req.Model)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":" headline\nsentence. "}}`)
	}))
	defer srv.Close()

	text, ok := NewGateway(NewOllama(srv.URL+"/", "")).Rewrite(context.Background(), "t", "s", "")
	require.True(t, ok)
	require.Equal(t, "headline\nsentence.", text)
}

func TestOllamaBackendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, ok := NewGateway(NewOllama(srv.URL, "missing")).Rewrite(context.Background(), "t", "s", "")
	require.False(t, ok)
}

func TestRewriteGivesUpOnHungBackend(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewGateway(NewOpenAICompatible("openai", "sk-test", "gpt-4o-mini", srv.URL))
	require.Equal(t, DefaultTimeout, g.Timeout)
	g.Timeout = 100 * time.Millisecond

	start := time.Now()
	text, ok := g.Rewrite(context.Background(), "t", "s", "")
	require.False(t, ok)
	require.Empty(t, text)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestOllamaClientTimeout(t *testing.T) {
	require.Equal(t, DefaultTimeout, NewOllama("", "").Client.Timeout)
}

func TestGeminiText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{
				genai.Text("📈 SOL climbs\n"),
				genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text("Solana rose 7%."),
			}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("second candidate")}}},
		},
	}
	require.Equal(t, "📈 SOL climbs\nSolana rose 7%.", geminiText(resp))

	require.Empty(t, geminiText(nil))
	require.Empty(t, geminiText(&genai.GenerateContentResponse{}))
	require.Empty(t, geminiText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}
