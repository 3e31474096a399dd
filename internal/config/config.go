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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Nexar     NexarConfig     `yaml:"nexar" mapstructure:"nexar"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Knowledge KnowledgeConfig `yaml:"knowledge" mapstructure:"knowledge"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the catalog cache.
type CacheConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// NexarConfig holds parts directory API settings.
type NexarConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// InferenceConfig selects the model provider.
type InferenceConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	MaxConcurrency int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI (or compatible) API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLookups int `yaml:"max_concurrent_lookups" mapstructure:"max_concurrent_lookups"`
	HeadRows             int `yaml:"head_rows" mapstructure:"head_rows"`
}

// KnowledgeConfig is the supplier knowledge used for recommendations.
type KnowledgeConfig struct {
	PreferredSuppliers  []string          `yaml:"preferred_suppliers" mapstructure:"preferred_suppliers"`
	SupplierReliability map[string]string `yaml:"supplier_reliability" mapstructure:"supplier_reliability"`
	AvoidCountries      []string          `yaml:"avoid_countries" mapstructure:"avoid_countries"`
	PreferRegions       []string          `yaml:"prefer_regions" mapstructure:"prefer_regions"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("BOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"nexar.token":   "NEXAR_API_KEY",
		"anthropic.key": "ANTHROPIC_API_KEY",
		"openai.key":    "OPENAI_API_KEY",
		"gemini.key":    "GEMINI_API_KEY",
	} {
		if err := v.BindEnv(key, "BOM_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "bom.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", ".octopart_cache")
	v.SetDefault("cache.path", "octopart_cache.db")
	v.SetDefault("cache.ttl_hours", 0)
	v.SetDefault("nexar.url", "https://api.nexar.com/graphql")
	v.SetDefault("nexar.timeout_secs", 20)
	v.SetDefault("nexar.rate_per_sec", 5)
	v.SetDefault("nexar.burst", 10)
	v.SetDefault("nexar.max_attempts", 3)
	v.SetDefault("inference.provider", "anthropic")
	v.SetDefault("inference.max_concurrency", 10)
	v.SetDefault("inference.max_tokens", 2048)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("batch.max_concurrent_lookups", 10)
	v.SetDefault("batch.head_rows", 10)

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

// Validate checks the settings needed by a command mode: "enrich",
// "evaluate", "questions" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	default:
		problems = append(problems, "store.driver must be memory, sqlite or postgres")
	}
	require(c.Batch.MaxConcurrentLookups >= 1 && c.Batch.MaxConcurrentLookups <= 100,
		"batch.max_concurrent_lookups must be between 1 and 100")
	require(c.Batch.HeadRows >= 1, "batch.head_rows must be >= 1")
	require(c.Inference.MaxConcurrency >= 1, "inference.max_concurrency must be >= 1")

	switch mode {
	case "enrich":
		require(c.Nexar.Token != "", "nexar.token is required")
		require(c.inferenceKey() != "", c.inferenceKeyName()+" is required")
		require(c.Cache.Backend == "file" || c.Cache.Backend == "sqlite", "cache.backend must be file or sqlite")
	case "evaluate", "questions":
		require(c.inferenceKey() != "", c.inferenceKeyName()+" is required")
	case "serve":
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Nexar.Token != "", "nexar.token is required")
		require(c.inferenceKey() != "", c.inferenceKeyName()+" is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) inferenceKey() string {
	switch strings.ToLower(c.Inference.Provider) {
	case "openai":
		return c.OpenAI.Key
	case "gemini":
		return c.Gemini.Key
	default:
		return c.Anthropic.Key
	}
}

func (c *Config) inferenceKeyName() string {
	switch p := strings.ToLower(c.Inference.Provider); p {
	case "openai", "gemini":
		return p + ".key"
	default:
		return "anthropic.key"
	}
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
