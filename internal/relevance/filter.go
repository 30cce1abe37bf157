package relevance

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/resilience"
)

// Options tunes a Filter. Zero values fall back to defaults.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	// RatePerSec caps classifier calls across all workers. Zero disables.
	RatePerSec float64
	Retry      resilience.RetryConfig
	// Breaker guards the classifier. A breaker named "classifier" is created
	// when nil.
	Breaker *resilience.CircuitBreaker
}

// FilterStats counts what a filter pass dropped.
type FilterStats struct {
	Input    int `json:"input"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
	Output   int `json:"output"`
}

// Filter applies a Classifier to a batch of candidates.
type Filter struct {
	classifier Classifier
	opts       Options
	limiter    *rate.Limiter
}

// NewFilter creates a Filter.
func NewFilter(c Classifier, opts Options) *Filter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = shouldRetry
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("classifier", "classify")
	}
	if opts.Breaker == nil {
		opts.Breaker = NewBreaker(resilience.DefaultCircuitBreakerConfig())
	}

	f := &Filter{classifier: c, opts: opts}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return f
}

// Apply classifies every candidate and returns the passing ones in input
// order, each annotated with its relevance score and reason. It never fails;
// a candidate whose classification fails is dropped and counted.
func (f *Filter) Apply(ctx context.Context, cands []model.Candidate) ([]model.Candidate, FilterStats) {
	stats := FilterStats{Input: len(cands)}
	if len(cands) == 0 {
		return nil, stats
	}

	type outcome struct {
		verdict Verdict
		err     error
	}
	results := make([]outcome, len(cands))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i := range cands {
		g.Go(func() error {
			v, err := f.classify(gCtx, cands[i].Title)
			results[i] = outcome{verdict: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Candidate, 0, len(cands))
	for i, r := range results {
		c := cands[i]
		if r.err != nil {
			stats.Failed++
			zap.L().Warn("relevance: classification failed",
				zap.String("candidate_id", c.ID),
				zap.String("source", c.SourceName),
				zap.Error(r.err),
			)
			continue
		}
		if !r.verdict.Passes {
			stats.Rejected++
			continue
		}
		score := r.verdict.RelevanceScore
		c.RelevanceScore = &score
		c.RelevanceReason = r.verdict.Reason
		out = append(out, c)
	}
	stats.Output = len(out)

	zap.L().Info("relevance: filter complete",
		zap.Int("input", stats.Input),
		zap.Int("passed", stats.Output),
		zap.Int("rejected", stats.Rejected),
		zap.Int("failed", stats.Failed),
	)
	return out, stats
}

func (f *Filter) classify(ctx context.Context, title string) (Verdict, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Verdict{}, eris.Wrap(err, "relevance: rate limit wait")
		}
	}

	return resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (Verdict, error) {
		return resilience.ExecuteVal(ctx, f.opts.Breaker, func(ctx context.Context) (Verdict, error) {
			callCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
			defer cancel()

			v, err := f.classifier.Classify(callCtx, title)
			if err != nil {
				if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					return Verdict{}, eris.Wrapf(err, "relevance: classify timed out after %s", f.opts.Timeout)
				}
				return Verdict{}, err
			}
			if err := v.Validate(); err != nil {
				return Verdict{}, err
			}
			return v, nil
		})
	})
}

// NewBreaker builds the classifier circuit breaker from cfg. Malformed
// responses never count toward opening it.
func NewBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "classifier"
	}
	cfg.ShouldTrip = shouldTrip
	return resilience.NewCircuitBreaker(cfg)
}

func shouldRetry(err error) bool {
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return resilience.IsTransient(err)
}

func shouldTrip(err error) bool {
	return !errors.Is(err, ErrMalformedResponse)
}
