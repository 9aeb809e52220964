package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/intranet-sector-agent-go/internal/config"
	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/llm"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newGateway(t *testing.T, url string, cfg config.LLMConfig) *llm.Gateway {
	t.Helper()
	if cfg.GeminiURL == "" {
		cfg.GeminiURL = url
	}
	if cfg.AnthropicURL == "" {
		cfg.AnthropicURL = url
	}
	cfg.OpenAIURL, cfg.PerplexityURL = url, url
	g, err := llm.NewGateway(http.DefaultClient, llm.ProvidersFromConfig(cfg), "gemini", observability.NewMetrics(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return g
}

var msgs = []domain.ConversationMessage{{Role: "user", Content: "resumo do mês"}}

func TestResolve_AliasesAndFallback(t *testing.T) {
	g := newGateway(t, "http://unused", config.LLMConfig{})

	assert.Equal(t, "claude", g.Resolve("anthropic").Name)
	assert.Equal(t, "claude", g.Resolve("Claude").Name)
	assert.Equal(t, "openai", g.Resolve("gpt").Name)
	assert.Equal(t, "perplexity", g.Resolve("perplexity").Name)
	assert.Equal(t, "gemini", g.Resolve("").Name)
	assert.Equal(t, "gemini", g.Resolve("llama").Name)
}

func TestOpen_AnthropicShapeAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SYS", body["system"])

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {}\n\n")
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL, config.LLMConfig{AnthropicAPIKey: "ak", AnthropicModel: "claude-x"})
	stream, err := g.Open(context.Background(), "claude", "SYS", msgs)
	require.NoError(t, err)
	defer stream.Body.Close()

	assert.Equal(t, "claude", stream.Provider)
	assert.Equal(t, "text/event-stream", stream.ContentType)
	got, _ := io.ReadAll(stream.Body)
	assert.Equal(t, "event: message_start\ndata: {}\n\n", string(got))
}

func TestOpen_OpenAICompatibleUsesBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gk", r.Header.Get("Authorization"))

		var body struct {
			Messages []domain.ConversationMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotEmpty(t, body.Messages)
		assert.Equal(t, "system", body.Messages[0].Role)

		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL, config.LLMConfig{GeminiAPIKey: "gk"})
	stream, err := g.Open(context.Background(), "", "SYS", msgs)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "gemini", stream.Provider)
}

func TestOpen_MissingKey(t *testing.T) {
	g := newGateway(t, "http://unused", config.LLMConfig{})

	_, err := g.Open(context.Background(), "openai", "SYS", msgs)

	var missing *domain.ErrMissingConfig
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "OPENAI_API_KEY", missing.Key)
}

func TestCheck_ResolvesBeforeCheckingKey(t *testing.T) {
	g := newGateway(t, "http://unused", config.LLMConfig{GeminiAPIKey: "g-key"})

	assert.NoError(t, g.Check(""))
	assert.NoError(t, g.Check("desconhecido"))

	var missing *domain.ErrMissingConfig
	require.ErrorAs(t, g.Check("anthropic"), &missing)
	assert.Equal(t, "ANTHROPIC_API_KEY", missing.Key)
}

func TestOpen_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"quota"}`)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL, config.LLMConfig{GeminiAPIKey: "gk"})
	_, err := g.Open(context.Background(), "gemini", "SYS", msgs)

	var limited *domain.ErrRateLimited
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, "gemini", limited.Provider)
}

func TestOpen_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL, config.LLMConfig{AnthropicAPIKey: "ak"})
	_, err := g.Open(context.Background(), "anthropic", "SYS", msgs)

	var provErr *domain.ErrProvider
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusInternalServerError, provErr.Status)
}

func TestNewGateway_UnknownDefault(t *testing.T) {
	_, err := llm.NewGateway(http.DefaultClient, llm.ProvidersFromConfig(config.LLMConfig{}), "bard", observability.NewMetrics(), zaptest.NewLogger(t))
	assert.Error(t, err)
}
