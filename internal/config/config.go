package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	SerpAPI    SerpAPIConfig    `yaml:"serpapi" mapstructure:"serpapi"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the rate-limited search client.
type SearchConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	MaxResults       int     `yaml:"max_results" mapstructure:"max_results"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	MinIntervalMs    int     `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// SerpAPIConfig holds SerpAPI credentials.
type SerpAPIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// LLMConfig selects and tunes the extraction model.
type LLMConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"`
	MaxTokens        int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ExtractConfig configures prompt building and confidence scoring.
type ExtractConfig struct {
	Confidence        string `yaml:"confidence" mapstructure:"confidence"`
	MaxCharsPerResult int    `yaml:"max_chars_per_result" mapstructure:"max_chars_per_result"`
	MaxContextChars   int    `yaml:"max_context_chars" mapstructure:"max_context_chars"`
	// Verify runs a second model pass that checks extracted values against the context.
	Verify bool `yaml:"verify" mapstructure:"verify"`
}

// FetchConfig configures optional page enrichment of top search results.
type FetchConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	TopN        int  `yaml:"top_n" mapstructure:"top_n"`
	MaxChars    int  `yaml:"max_chars" mapstructure:"max_chars"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UseJina     bool `yaml:"use_jina" mapstructure:"use_jina"`

	// ExcludePaths are URL path globs never fetched ("*.pdf", "/login/*").
	// Empty means the scraper's document-extension defaults.
	ExcludePaths []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	CancelGraceSecs int `yaml:"cancel_grace_secs" mapstructure:"cancel_grace_secs"`
}

// SheetsConfig holds Google service-account settings for spreadsheet tables.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	TokenURL        string `yaml:"token_url" mapstructure:"token_url"`
}

// NotionConfig holds the Notion integration token and request rate.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.max_attempts", 3)
	v.SetDefault("search.min_interval_ms", 600)
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("search.initial_backoff_ms", 4000)
	v.SetDefault("search.max_backoff_ms", 10000)
	v.SetDefault("search.jitter_fraction", 0.25)
	v.SetDefault("search.breaker_threshold", 5)
	v.SetDefault("search.breaker_reset_secs", 30)
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("llm.initial_backoff_ms", 2000)
	v.SetDefault("llm.max_backoff_ms", 10000)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("extract.confidence", "self_reported")
	v.SetDefault("extract.max_chars_per_result", 5000)
	v.SetDefault("extract.max_context_chars", 20000)
	v.SetDefault("extract.verify", false)
	v.SetDefault("fetch.enabled", false)
	v.SetDefault("fetch.top_n", 3)
	v.SetDefault("fetch.max_chars", 5000)
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.cancel_grace_secs", 10)
	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com")
	v.SetDefault("sheets.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("store.driver", "none")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Secrets have empty defaults so AutomaticEnv can see them on Unmarshal.
	for _, key := range []string{
		"serpapi.key", "jina.key", "anthropic.key", "openrouter.key",
		"notion.token", "sheets.credentials_file", "store.database_url",
	} {
		v.SetDefault(key, "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by the given mode are present.
// Mode "run" needs a search provider key and an LLM key; "store" needs a
// usable store driver.
func (c *Config) Validate(mode string) error {
	var missing []string
	switch mode {
	case "run":
		switch c.Search.Provider {
		case "serpapi":
			if c.SerpAPI.Key == "" {
				missing = append(missing, "serpapi.key")
			}
		case "jina":
			if c.Jina.Key == "" {
				missing = append(missing, "jina.key")
			}
		default:
			return eris.Errorf("config: unknown search provider %q", c.Search.Provider)
		}
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				missing = append(missing, "anthropic.key")
			}
		case "openrouter":
			if c.OpenRouter.Key == "" {
				missing = append(missing, "openrouter.key")
			}
		default:
			return eris.Errorf("config: unknown llm provider %q", c.LLM.Provider)
		}
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url")
			}
		default:
			return eris.Errorf("config: store driver %q does not keep run history", c.Store.Driver)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
