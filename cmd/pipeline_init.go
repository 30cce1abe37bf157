package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/topic-leads/internal/config"
	"github.com/sells-group/topic-leads/internal/dedup"
	"github.com/sells-group/topic-leads/internal/fetcher"
	"github.com/sells-group/topic-leads/internal/history"
	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/pipeline"
	"github.com/sells-group/topic-leads/internal/rank"
	"github.com/sells-group/topic-leads/internal/registry"
	"github.com/sells-group/topic-leads/internal/relevance"
	"github.com/sells-group/topic-leads/internal/resilience"
	"github.com/sells-group/topic-leads/internal/source"
	"github.com/sells-group/topic-leads/internal/store"
	anthropicpkg "github.com/sells-group/topic-leads/pkg/anthropic"
	"github.com/sells-group/topic-leads/pkg/gemini"
)

// pipelineEnv holds the initialized store, registry, and pipeline needed by
// the run and serve commands.
type pipelineEnv struct {
	Store    store.Store // may be nil
	Registry *registry.Registry
	Pipeline *pipeline.Pipeline

	closers []func() error
	// usage logs classifier token spend after a run, when supported.
	usage func()
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		if err := pe.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
}

// LogUsage logs classifier usage for the process so far.
func (pe *pipelineEnv) LogUsage() {
	if pe.usage != nil {
		pe.usage()
	}
}

// initStore opens the configured store. Driver "none" returns nil.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "topic-leads.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openStore opens and migrates the store.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil || st == nil {
		return st, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initRegistry(c *config.Config) (*registry.Registry, error) {
	if c.Registry.Path != "" {
		return registry.Load(c.Registry.Path)
	}
	return registry.Default()
}

// initHistory builds the cross-run seen-set. It returns nil when history
// is disabled.
func initHistory(c *config.Config, st store.Store) (dedup.History, func() error, error) {
	if !c.History.Enabled {
		return nil, nil, nil
	}
	ttl := time.Duration(c.History.TTLHours) * time.Hour
	switch c.History.Backend {
	case "redis":
		client, err := history.NewRedisClient(c.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return history.NewRedisHistory(client, c.Redis.Prefix, ttl), client.Close, nil
	default:
		if st == nil {
			return nil, nil, eris.New("history: store backend requires a store")
		}
		return history.NewStoreHistory(st, ttl), nil, nil
	}
}

// initClassifier builds the configured relevance classifier. The returned
// func logs token usage and may be nil.
func initClassifier(ctx context.Context, c *config.Config, reg *registry.Registry) (relevance.Classifier, func(), func() error, error) {
	switch c.Classifier.Provider {
	case "anthropic":
		client := anthropicpkg.NewClient(c.Anthropic.Key, c.Anthropic.BaseURL)
		cl := relevance.NewAnthropicClassifier(client, c.Anthropic.Model, c.Anthropic.MaxTokens)
		return cl, cl.LogUsage, nil, nil
	case "gemini":
		client, err := gemini.NewClient(ctx, c.Gemini.Key, c.Gemini.Model)
		if err != nil {
			return nil, nil, nil, err
		}
		return relevance.NewGeminiClassifier(client), nil, client.Close, nil
	case "keywords":
		return relevance.NewKeywordClassifier(catalogTopics(reg), c.Classifier.KeywordThreshold), nil, nil, nil
	default:
		return nil, nil, nil, eris.Errorf("unsupported classifier provider: %s", c.Classifier.Provider)
	}
}

// catalogTopics collects every distinct topic in the catalog.
func catalogTopics(reg *registry.Registry) []string {
	seen := map[string]bool{}
	var topics []string
	for _, s := range reg.ListSources(model.TierLow) {
		for _, t := range s.Topics {
			if !seen[t] {
				seen[t] = true
				topics = append(topics, t)
			}
		}
	}
	return topics
}

// discussionLimiters gives every discussion host an adaptive limiter that
// starts at the configured polite rate and backs off on 429.
func discussionLimiters(reg *registry.Registry, perSec float64) map[string]*fetcher.AdaptiveLimiter {
	out := map[string]*fetcher.AdaptiveLimiter{}
	for _, s := range reg.ListSources(model.TierLow) {
		if s.Kind != model.SourceKindDiscussion {
			continue
		}
		u, err := url.Parse(s.URL)
		if err != nil || u.Host == "" {
			continue
		}
		out[u.Host] = fetcher.NewAdaptiveLimiter(rate.Limit(perSec), max(1, int(perSec)))
	}
	return out
}

func newSourceRouter(c *config.Config, reg *registry.Registry) *source.Router {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:        c.Feeds.UserAgent,
		Timeout:          time.Duration(c.Feeds.TimeoutSecs) * time.Second,
		MaxRetries:       c.Feeds.MaxRetries,
		MaxBodyBytes:     c.Feeds.MaxBodyBytes,
		HostRate:         rate.Limit(c.Feeds.HostRatePerSec),
		AdaptiveLimiters: discussionLimiters(reg, c.Discussion.RatePerSec),
	})
	return &source.Router{
		Feed: source.NewFeedFetcher(httpFetcher),
		Providers: map[string]source.Fetcher{
			"reddit":     source.NewRedditFetcher(httpFetcher, c.Discussion.ListingLimit),
			"hackernews": source.NewHackerNewsFetcher(httpFetcher, c.Discussion.ListingLimit),
		},
	}
}

// initPipeline validates config for mode, sets up the store, classifier,
// and history, and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	reg, err := initRegistry(c)
	if err != nil {
		return nil, eris.Wrap(err, "load source catalog")
	}

	env := &pipelineEnv{Registry: reg}
	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if st != nil {
		env.Store = st
		env.closers = append(env.closers, st.Close)
	}

	h, closeHistory, err := initHistory(c, st)
	if err != nil {
		env.Close()
		return nil, err
	}
	if closeHistory != nil {
		env.closers = append(env.closers, closeHistory)
	}

	classifier, usage, closeClassifier, err := initClassifier(ctx, c, reg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.usage = usage
	if closeClassifier != nil {
		env.closers = append(env.closers, closeClassifier)
	}

	filter := relevance.NewFilter(classifier, relevance.Options{
		Concurrency: c.Pipeline.ClassifyConcurrency,
		Timeout:     time.Duration(c.Pipeline.ClassifyTimeoutSecs) * time.Second,
		RatePerSec:  c.Pipeline.ClassifyRatePerSec,
		Retry:       resilience.FromSettings(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs),
		Breaker:     relevance.NewBreaker(resilience.FromCircuitSettings("classifier", c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)),
	})

	ranker := rank.New(rank.Options{
		PopularityWeight:  c.Pipeline.PopularityWeight,
		PopularityCeiling: c.Pipeline.PopularityCeiling,
		MinRankingScore:   c.Pipeline.MinRankingScore,
		MaxTotal:          c.Pipeline.MaxTotalCandidates,
	})

	env.Pipeline = pipeline.New(
		pipeline.Options{
			MinTier:             model.Tier(c.Pipeline.MinTier),
			MaxAge:              time.Duration(c.Pipeline.MaxAgeHours) * time.Hour,
			DiscussionMaxAge:    time.Duration(c.Discussion.MaxAgeHours) * time.Hour,
			MaxEntriesPerSource: c.Pipeline.MaxEntriesPerSource,
			FetchConcurrency:    c.Pipeline.FetchConcurrency,
			FetchTimeout:        time.Duration(c.Pipeline.FetchTimeoutSecs) * time.Second,
		},
		reg,
		newSourceRouter(c, reg),
		dedup.New(c.Pipeline.NearDuplicateSimilarityThreshold),
		filter,
		ranker,
		env.Store,
		h,
	)

	zap.L().Debug("pipeline initialized",
		zap.String("classifier", c.Classifier.Provider),
		zap.String("store", c.Store.Driver),
		zap.Bool("history", h != nil),
		zap.Int("sources", reg.Len()),
	)
	return env, nil
}
