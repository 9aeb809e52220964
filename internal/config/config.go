package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Document store drivers.
const (
	DocStoreSupabase = "supabase"
	DocStorePostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client (0 = client default, no explicit timeout)
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries           int
	InitialBackoff       time.Duration
	MaxConcurrentResyncs int

	// Holdprint ERP
	HoldprintBaseURL string
	HoldprintAPIKey  string
	UnitTokens       map[string]string // unidade -> token do resync

	// Document store
	DocStoreDriver     string
	DatabaseURL        string
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Kanban
	KanbanURL      string
	KanbanCacheTTL time.Duration
	RedisURL       string

	// LLM providers
	LLM LLMConfig

	// Events
	NATSURL   string
	NATSToken string

	// Observability
	OTLPEndpoint string
}

// LLMConfig holds keys, URLs and models of each provider.
type LLMConfig struct {
	GeminiAPIKey     string
	GeminiURL        string
	GeminiModel      string
	AnthropicAPIKey  string
	AnthropicURL     string
	AnthropicModel   string
	AnthropicMaxTok  int
	OpenAIAPIKey     string
	OpenAIURL        string
	OpenAIModel      string
	PerplexityAPIKey string
	PerplexityURL    string
	PerplexityModel  string
	DefaultProvider  string
}

// SyncUnits are the business units mirrored by the background resync.
var SyncUnits = []string{"poa", "sp"}

// Load reads configuration from environment variables with defaults.
// Missing provider keys are not an error here: they fail the request
// that selects the provider.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:           v.GetInt("MAX_RETRIES"),
		InitialBackoff:       v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrentResyncs: v.GetInt("MAX_CONCURRENT_RESYNCS"),

		HoldprintBaseURL: strings.TrimRight(v.GetString("HOLDPRINT_BASE_URL"), "/"),
		HoldprintAPIKey:  v.GetString("HOLDPRINT_API_KEY"),
		UnitTokens:       make(map[string]string, len(SyncUnits)),

		DocStoreDriver:     strings.ToLower(v.GetString("DOC_STORE_DRIVER")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		SupabaseURL:        strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey:    v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),

		KanbanURL:      v.GetString("KANBAN_URL"),
		KanbanCacheTTL: v.GetDuration("KANBAN_CACHE_TTL"),
		RedisURL:       v.GetString("REDIS_URL"),

		LLM: LLMConfig{
			GeminiAPIKey:     v.GetString("GEMINI_API_KEY"),
			GeminiURL:        v.GetString("GEMINI_URL"),
			GeminiModel:      v.GetString("GEMINI_MODEL"),
			AnthropicAPIKey:  v.GetString("ANTHROPIC_API_KEY"),
			AnthropicURL:     v.GetString("ANTHROPIC_URL"),
			AnthropicModel:   v.GetString("ANTHROPIC_MODEL"),
			AnthropicMaxTok:  v.GetInt("ANTHROPIC_MAX_TOKENS"),
			OpenAIAPIKey:     v.GetString("OPENAI_API_KEY"),
			OpenAIURL:        v.GetString("OPENAI_URL"),
			OpenAIModel:      v.GetString("OPENAI_MODEL"),
			PerplexityAPIKey: v.GetString("PERPLEXITY_API_KEY"),
			PerplexityURL:    v.GetString("PERPLEXITY_URL"),
			PerplexityModel:  v.GetString("PERPLEXITY_MODEL"),
			DefaultProvider:  v.GetString("LLM_DEFAULT_PROVIDER"),
		},

		NATSURL:   v.GetString("NATS_URL"),
		NATSToken: v.GetString("NATS_TOKEN"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	for _, unit := range SyncUnits {
		cfg.UnitTokens[unit] = v.GetString("HOLDPRINT_TOKEN_" + strings.ToUpper(unit))
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("HTTP_TIMEOUT", time.Duration(0))

	v.SetDefault("MAX_RETRIES", 0)
	v.SetDefault("INITIAL_BACKOFF", 100*time.Millisecond)
	v.SetDefault("MAX_CONCURRENT_RESYNCS", 4)

	v.SetDefault("HOLDPRINT_BASE_URL", "https://api.holdworks.ai/api-key")

	v.SetDefault("DOC_STORE_DRIVER", DocStoreSupabase)

	v.SetDefault("KANBAN_CACHE_TTL", 2*time.Minute)

	v.SetDefault("GEMINI_URL", "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("ANTHROPIC_URL", "https://api.anthropic.com/v1/messages")
	v.SetDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("ANTHROPIC_MAX_TOKENS", 4096)
	v.SetDefault("OPENAI_URL", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("PERPLEXITY_URL", "https://api.perplexity.ai/chat/completions")
	v.SetDefault("PERPLEXITY_MODEL", "sonar")
	v.SetDefault("LLM_DEFAULT_PROVIDER", "gemini")
}

func validate(cfg *Config) error {
	switch cfg.DocStoreDriver {
	case DocStoreSupabase, DocStorePostgres:
	default:
		return fmt.Errorf("DOC_STORE_DRIVER must be %q or %q, got %q", DocStoreSupabase, DocStorePostgres, cfg.DocStoreDriver)
	}
	if cfg.DocStoreDriver == DocStorePostgres && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when DOC_STORE_DRIVER=%s", DocStorePostgres)
	}
	if cfg.MaxConcurrentResyncs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_RESYNCS must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	return nil
}
