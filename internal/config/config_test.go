package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0 */6 * * *", cfg.Server.Schedule)
	assert.Equal(t, "medium", cfg.Pipeline.MinTier)
	assert.Equal(t, 48, cfg.Pipeline.MaxAgeHours)
	assert.Equal(t, 20, cfg.Pipeline.MaxEntriesPerSource)
	assert.Equal(t, 10, cfg.Pipeline.MaxTotalCandidates)
	assert.InDelta(t, 0.85, cfg.Pipeline.NearDuplicateSimilarityThreshold, 0.001)
	assert.InDelta(t, 0.1, cfg.Pipeline.PopularityWeight, 0.001)
	assert.Equal(t, 3000, cfg.Pipeline.PopularityCeiling)
	assert.Equal(t, 24, cfg.Discussion.MaxAgeHours)
	assert.Equal(t, 30, cfg.Discussion.ListingLimit)
	assert.Equal(t, "anthropic", cfg.Classifier.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.EqualValues(t, 512, cfg.Anthropic.MaxTokens)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, 168, cfg.History.TTLHours)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
pipeline:
  min_tier: high
  max_total_candidates: 5
classifier:
  provider: keywords
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "high", cfg.Pipeline.MinTier)
	assert.Equal(t, 5, cfg.Pipeline.MaxTotalCandidates)
	assert.Equal(t, "keywords", cfg.Classifier.Provider)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Pipeline.MaxEntriesPerSource)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TOPICLEADS_STORE_DRIVER", "postgres")
	t.Setenv("TOPICLEADS_LOG_LEVEL", "warn")
	t.Setenv("TOPICLEADS_PIPELINE_MIN_TIER", "low")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "low", cfg.Pipeline.MinTier)
}

func TestLoadAPIKeysFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TOPICLEADS_ANTHROPIC_KEY", "sk-ant-env")
	t.Setenv("TOPICLEADS_GEMINI_KEY", "gm-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-env", cfg.Anthropic.Key)
	assert.Equal(t, "gm-env", cfg.Gemini.Key)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("pipeline: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns the loaded defaults with a keyword classifier so no
// API key is needed.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Classifier.Provider = "keywords"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults(t)
	for _, mode := range []string{"run", "serve", "history", "read"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_FieldRanges(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Pipeline.MinTier = "urgent"
	cfg.Pipeline.NearDuplicateSimilarityThreshold = 1.5
	cfg.Pipeline.MaxTotalCandidates = 0

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.min_tier failed oneof")
	assert.Contains(t, err.Error(), "pipeline.near_duplicate_similarity_threshold failed lte=1")
	assert.Contains(t, err.Error(), "pipeline.max_total_candidates failed gt=0")
}

func TestValidate_ClassifierKeys(t *testing.T) {
	cfg := validDefaults(t)

	cfg.Classifier.Provider = "anthropic"
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("run"))

	cfg.Classifier.Provider = "gemini"
	err = cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini.key is required")

	// Reading stored runs needs no classifier.
	assert.NoError(t, cfg.Validate("read"))
}

func TestValidate_StoreRequirements(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Driver = "none"

	assert.NoError(t, cfg.Validate("run"))

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve requires a store driver")

	err = cfg.Validate("history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history requires a store driver")

	cfg.History.Enabled = true
	err = cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history.backend=store requires a store driver")

	cfg.History.Backend = "redis"
	assert.NoError(t, cfg.Validate("run"))

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
	assert.NoError(t, cfg.Validate("run"))
}
