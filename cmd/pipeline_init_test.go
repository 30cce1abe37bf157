package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/topic-leads/internal/config"
	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/registry"
	"github.com/sells-group/topic-leads/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "leads.db")
	c.Classifier.Provider = "keywords"
	return c
}

func TestInitStore_None(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "none"

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestInitStore_Unsupported(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mongo"

	_, err := initStore(context.Background(), c)
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestOpenStore_SQLiteMigrates(t *testing.T) {
	c := testConfig(t)

	st, err := openStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitClassifier_Keywords(t *testing.T) {
	c := testConfig(t)
	reg, err := registry.Default()
	require.NoError(t, err)

	cl, usage, closer, err := initClassifier(context.Background(), c, reg)
	require.NoError(t, err)
	assert.NotNil(t, cl)
	assert.Nil(t, usage)
	assert.Nil(t, closer)
}

func TestInitClassifier_Unsupported(t *testing.T) {
	c := testConfig(t)
	c.Classifier.Provider = "oracle"
	reg, err := registry.Default()
	require.NoError(t, err)

	_, _, _, err = initClassifier(context.Background(), c, reg)
	assert.ErrorContains(t, err, "unsupported classifier provider")
}

func TestInitHistory_Disabled(t *testing.T) {
	c := testConfig(t)
	c.History.Enabled = false

	h, closer, err := initHistory(c, nil)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Nil(t, closer)
}

func TestInitHistory_StoreBackendNeedsStore(t *testing.T) {
	c := testConfig(t)
	c.History.Enabled = true
	c.History.Backend = "store"

	_, _, err := initHistory(c, nil)
	assert.Error(t, err)
}

func TestCatalogTopics_Distinct(t *testing.T) {
	reg, err := registry.New([]model.SourceDescriptor{
		{Name: "a", Kind: model.SourceKindFeed, URL: "https://a.example.com/rss", Tier: model.TierHigh, Pillar: "tax", Topics: []string{"tax", "audit"}},
		{Name: "b", Kind: model.SourceKindFeed, URL: "https://b.example.com/rss", Tier: model.TierLow, Pillar: "tax", Topics: []string{"audit", "payroll"}},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"tax", "audit", "payroll"}, catalogTopics(reg))
}

func TestDiscussionLimiters_OnlyDiscussionHosts(t *testing.T) {
	reg, err := registry.New([]model.SourceDescriptor{
		{Name: "feed", Kind: model.SourceKindFeed, URL: "https://feeds.example.com/rss", Tier: model.TierHigh, Pillar: "tax"},
		{Name: "reddit", Kind: model.SourceKindDiscussion, Provider: "reddit", URL: "https://www.reddit.com", Tier: model.TierMedium, Pillar: "tax",
			Channels: []model.Channel{{Name: "tax", MinScore: 10}}},
	})
	require.NoError(t, err)

	limiters := discussionLimiters(reg, 0.5)
	assert.Len(t, limiters, 1)
	require.Contains(t, limiters, "www.reddit.com")
	assert.Equal(t, rate.Limit(0.5), limiters["www.reddit.com"].Limit())
}

func TestInitPipeline_KeywordsWithSQLite(t *testing.T) {
	c := testConfig(t)

	env, err := initPipeline(context.Background(), c, "run")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Store)
	assert.Positive(t, env.Registry.Len())
	env.LogUsage()
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Classifier.Provider = "anthropic"
	c.Anthropic.Key = ""

	_, err := initPipeline(context.Background(), c, "run")
	assert.ErrorContains(t, err, "anthropic.key")
}
