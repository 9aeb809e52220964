package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/intranet-sector-agent-go/internal/config"
	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("llm")

const anthropicVersion = "2023-06-01"

// Provider describes one upstream LLM endpoint.
type Provider struct {
	Name      string
	Family    Family
	URL       string
	Model     string
	APIKey    string
	KeyEnv    string
	MaxTokens int
}

// aliases map accepted provider names onto canonical ones.
var aliases = map[string]string{
	"anthropic": "claude",
	"gpt":       "openai",
}

// Gateway dispatches to the configured providers.
type Gateway struct {
	httpClient  *http.Client
	providers   map[string]Provider
	defaultName string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// ProvidersFromConfig builds the provider table from configuration.
func ProvidersFromConfig(cfg config.LLMConfig) []Provider {
	return []Provider{
		{Name: "gemini", Family: FamilyOpenAI, URL: cfg.GeminiURL, Model: cfg.GeminiModel, APIKey: cfg.GeminiAPIKey, KeyEnv: "GEMINI_API_KEY"},
		{Name: "claude", Family: FamilyAnthropic, URL: cfg.AnthropicURL, Model: cfg.AnthropicModel, APIKey: cfg.AnthropicAPIKey, KeyEnv: "ANTHROPIC_API_KEY", MaxTokens: cfg.AnthropicMaxTok},
		{Name: "openai", Family: FamilyOpenAI, URL: cfg.OpenAIURL, Model: cfg.OpenAIModel, APIKey: cfg.OpenAIAPIKey, KeyEnv: "OPENAI_API_KEY"},
		{Name: "perplexity", Family: FamilyOpenAI, URL: cfg.PerplexityURL, Model: cfg.PerplexityModel, APIKey: cfg.PerplexityAPIKey, KeyEnv: "PERPLEXITY_API_KEY"},
	}
}

// NewGateway creates a gateway. defaultName must be one of providers.
func NewGateway(httpClient *http.Client, providers []Provider, defaultName string, metrics *observability.Metrics, logger *zap.Logger) (*Gateway, error) {
	g := &Gateway{
		httpClient:  httpClient,
		providers:   make(map[string]Provider, len(providers)),
		defaultName: strings.ToLower(defaultName),
		metrics:     metrics,
		logger:      logger,
	}
	for _, p := range providers {
		g.providers[p.Name] = p
	}
	if _, ok := g.providers[g.defaultName]; !ok {
		return nil, fmt.Errorf("default LLM provider %q is not configured", defaultName)
	}
	return g, nil
}

// Resolve maps a requested provider name onto a configured provider.
// Unknown or empty names use the default.
func (g *Gateway) Resolve(name string) Provider {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	if p, ok := g.providers[name]; ok {
		return p
	}
	return g.providers[g.defaultName]
}

// Check fails with ErrMissingConfig when the resolved provider has no key.
func (g *Gateway) Check(provider string) error {
	p := g.Resolve(provider)
	if p.APIKey == "" {
		g.metrics.IncrLLMRelay(p.Name, "missing_key")
		return &domain.ErrMissingConfig{Key: p.KeyEnv}
	}
	return nil
}

// Open sends the conversation to the provider with streaming enabled and
// returns the live response body. The caller owns and must close Body.
func (g *Gateway) Open(ctx context.Context, provider, system string, history []domain.ConversationMessage) (*domain.LLMStream, error) {
	p := g.Resolve(provider)

	ctx, span := tracer.Start(ctx, "Gateway.Open")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", p.Name),
		attribute.String("llm.model", p.Model),
		attribute.Int("llm.messages", len(history)),
	)

	if p.APIKey == "" {
		g.metrics.IncrLLMRelay(p.Name, "missing_key")
		return nil, &domain.ErrMissingConfig{Key: p.KeyEnv}
	}

	body, err := encodeRequest(p, system, history)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", p.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	switch p.Family {
	case FamilyAnthropic:
		req.Header.Set("x-api-key", p.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	default:
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.metrics.IncrLLMRelay(p.Name, "transport_error")
		g.metrics.IncrExternalError("llm/" + p.Name)
		return nil, &domain.ErrExternalService{Service: "llm/" + p.Name, Err: err}
	}
	g.metrics.IncrLLMRelay(p.Name, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode == http.StatusTooManyRequests {
		drain(resp.Body)
		g.logger.Warn("llm provider rate limited", zap.String("provider", p.Name))
		return nil, &domain.ErrRateLimited{Provider: p.Name}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := drain(resp.Body)
		g.metrics.IncrExternalError("llm/" + p.Name)
		g.logger.Error("llm provider error",
			zap.String("provider", p.Name),
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet),
		)
		return nil, &domain.ErrProvider{Provider: p.Name, Status: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	return &domain.LLMStream{Provider: p.Name, ContentType: contentType, Body: resp.Body}, nil
}

func encodeRequest(p Provider, system string, history []domain.ConversationMessage) ([]byte, error) {
	switch p.Family {
	case FamilyAnthropic:
		return json.Marshal(buildAnthropicRequest(p.Model, p.MaxTokens, system, history))
	default:
		return json.Marshal(buildOpenAIRequest(p.Model, system, history))
	}
}

// drain reads (a bounded prefix of) an error body for logging and closes it.
func drain(body io.ReadCloser) string {
	defer body.Close()
	b, _ := io.ReadAll(io.LimitReader(body, 2048))
	return string(b)
}
