package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Discussion DiscussionConfig `yaml:"discussion" mapstructure:"discussion"`
	Feeds      FeedsConfig      `yaml:"feeds" mapstructure:"feeds"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	History    HistoryConfig    `yaml:"history" mapstructure:"history"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// RegistryConfig points at the source catalog. An empty path uses the
// embedded catalog.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures one aggregation run.
type PipelineConfig struct {
	MinTier                          string  `yaml:"min_tier" mapstructure:"min_tier" validate:"oneof=high medium low"`
	MaxAgeHours                      int     `yaml:"max_age_hours" mapstructure:"max_age_hours" validate:"gt=0"`
	MaxEntriesPerSource              int     `yaml:"max_entries_per_source" mapstructure:"max_entries_per_source" validate:"gt=0"`
	MaxTotalCandidates               int     `yaml:"max_total_candidates" mapstructure:"max_total_candidates" validate:"gt=0"`
	NearDuplicateSimilarityThreshold float64 `yaml:"near_duplicate_similarity_threshold" mapstructure:"near_duplicate_similarity_threshold" validate:"gt=0,lte=1"`
	FetchConcurrency                 int     `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency" validate:"gte=1,lte=64"`
	FetchTimeoutSecs                 int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs" validate:"gt=0"`
	ClassifyConcurrency              int     `yaml:"classify_concurrency" mapstructure:"classify_concurrency" validate:"gte=1,lte=64"`
	ClassifyTimeoutSecs              int     `yaml:"classify_timeout_secs" mapstructure:"classify_timeout_secs" validate:"gt=0"`
	ClassifyRatePerSec               float64 `yaml:"classify_rate_per_sec" mapstructure:"classify_rate_per_sec" validate:"gte=0"`
	PopularityWeight                 float64 `yaml:"popularity_weight" mapstructure:"popularity_weight" validate:"gte=0,lte=1"`
	PopularityCeiling                int     `yaml:"popularity_ceiling" mapstructure:"popularity_ceiling" validate:"gt=0"`
	MinRankingScore                  float64 `yaml:"min_ranking_score" mapstructure:"min_ranking_score" validate:"gte=0,lte=2"`
}

// DiscussionConfig configures the trending-discussion fetchers.
type DiscussionConfig struct {
	MaxAgeHours  int     `yaml:"max_age_hours" mapstructure:"max_age_hours" validate:"gt=0"`
	ListingLimit int     `yaml:"listing_limit" mapstructure:"listing_limit" validate:"gt=0,lte=100"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
}

// FeedsConfig configures the shared HTTP fetcher.
type FeedsConfig struct {
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	MaxBodyBytes   int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	HostRatePerSec float64 `yaml:"host_rate_per_sec" mapstructure:"host_rate_per_sec" validate:"gt=0"`
}

// ClassifierConfig selects the relevance classifier.
type ClassifierConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider" validate:"oneof=anthropic gemini keywords"`
	KeywordThreshold float64 `yaml:"keyword_threshold" mapstructure:"keyword_threshold" validate:"gte=0,lte=1"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// HistoryConfig configures the cross-run seen-candidate history.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend  string `yaml:"backend" mapstructure:"backend" validate:"oneof=store redis"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours" validate:"gt=0"`
}

// RedisConfig holds Redis connection settings for the history backend.
type RedisConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Schedule       string   `yaml:"schedule" mapstructure:"schedule"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RetryConfig configures retries for classifier calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
}

// CircuitConfig configures the classifier circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=1"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs" validate:"gte=1"`
}

// MonitoringConfig configures run health alerts for the server.
type MonitoringConfig struct {
	Enabled                    bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	CheckIntervalSecs          int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
	LookbackWindowHours        int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gt=0"`
	FailureRateThreshold       float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	SourceFailureRateThreshold float64 `yaml:"source_failure_rate_threshold" mapstructure:"source_failure_rate_threshold" validate:"gte=0,lte=1"`
	EmptyRunsThreshold         int     `yaml:"empty_runs_threshold" mapstructure:"empty_runs_threshold" validate:"gte=0"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TOPICLEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "topic-leads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("registry.path", "")
	v.SetDefault("pipeline.min_tier", "medium")
	v.SetDefault("pipeline.max_age_hours", 48)
	v.SetDefault("pipeline.max_entries_per_source", 20)
	v.SetDefault("pipeline.max_total_candidates", 10)
	v.SetDefault("pipeline.near_duplicate_similarity_threshold", 0.85)
	v.SetDefault("pipeline.fetch_concurrency", 4)
	v.SetDefault("pipeline.fetch_timeout_secs", 30)
	v.SetDefault("pipeline.classify_concurrency", 4)
	v.SetDefault("pipeline.classify_timeout_secs", 30)
	v.SetDefault("pipeline.classify_rate_per_sec", 2.0)
	v.SetDefault("pipeline.popularity_weight", 0.1)
	v.SetDefault("pipeline.popularity_ceiling", 3000)
	v.SetDefault("pipeline.min_ranking_score", 0.0)
	v.SetDefault("discussion.max_age_hours", 24)
	v.SetDefault("discussion.listing_limit", 30)
	v.SetDefault("discussion.rate_per_sec", 1.0)
	v.SetDefault("feeds.user_agent", "topic-leads/1.0 (+https://github.com/sells-group/topic-leads)")
	v.SetDefault("feeds.timeout_secs", 20)
	v.SetDefault("feeds.max_retries", 3)
	v.SetDefault("feeds.max_body_bytes", 10<<20)
	v.SetDefault("feeds.host_rate_per_sec", 2.0)
	v.SetDefault("classifier.provider", "anthropic")
	v.SetDefault("classifier.keyword_threshold", 0.5)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.backend", "store")
	v.SetDefault("history.ttl_hours", 168)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.prefix", "topic-leads:seen:")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule", "0 */6 * * *")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.source_failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.empty_runs_threshold", 3)

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

var validate = newValidator()

// newValidator reports fields by their mapstructure key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field ranges and the settings a command mode needs.
// Known modes are "run", "serve", "history", and "read" (commands that only
// read stored runs).
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fieldPath(fe), fe.Tag(), fe.Param()))
		}
	}

	needsStore := c.Store.Driver != "none"
	switch mode {
	case "run", "serve":
		problems = append(problems, c.classifierProblems()...)
		if c.History.Enabled {
			switch c.History.Backend {
			case "store":
				if !needsStore {
					problems = append(problems, "history.backend=store requires a store driver")
				}
			case "redis":
				if c.Redis.URL == "" {
					problems = append(problems, "redis.url is required when history.backend=redis")
				}
			}
		}
		if mode == "serve" {
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				problems = append(problems, "server.port must be between 1 and 65535")
			}
			if !needsStore {
				problems = append(problems, "serve requires a store driver")
			}
		}
	case "history", "read":
		if !needsStore {
			problems = append(problems, mode+" requires a store driver")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needsStore && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) classifierProblems() []string {
	switch c.Classifier.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required for classifier.provider=anthropic"}
		}
	case "gemini":
		if c.Gemini.Key == "" {
			return []string{"gemini.key is required for classifier.provider=gemini"}
		}
	}
	return nil
}

// fieldPath turns Config.pipeline.max_age_hours into pipeline.max_age_hours.
func fieldPath(fe validator.FieldError) string {
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	return path
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
