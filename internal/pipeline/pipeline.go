// Package pipeline runs one aggregation pass: fetch every eligible source,
// normalize, deduplicate, classify, and rank the surviving candidates.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/topic-leads/internal/dedup"
	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/normalize"
	"github.com/sells-group/topic-leads/internal/rank"
	"github.com/sells-group/topic-leads/internal/relevance"
	"github.com/sells-group/topic-leads/internal/source"
	"github.com/sells-group/topic-leads/internal/store"
)

// Catalog lists the sources eligible for a run.
type Catalog interface {
	ListSources(minTier model.Tier) []model.SourceDescriptor
}

// Options tunes a Pipeline. Zero values fall back to defaults.
type Options struct {
	MinTier             model.Tier
	MaxAge              time.Duration
	DiscussionMaxAge    time.Duration
	MaxEntriesPerSource int
	FetchConcurrency    int
	FetchTimeout        time.Duration
}

// RunOptions are per-run overrides.
type RunOptions struct {
	// RunID reuses a run already created in the store. Empty creates one.
	RunID string
	// MinTier overrides Options.MinTier when set.
	MinTier model.Tier
}

// Pipeline orchestrates one aggregation run.
type Pipeline struct {
	opts    Options
	catalog Catalog
	fetcher source.Fetcher
	dedup   *dedup.Deduplicator
	filter  *relevance.Filter
	ranker  *rank.Ranker
	store   store.Store   // optional
	history dedup.History // optional
	now     func() time.Time
}

// New creates a new Pipeline. st and h may be nil. A nil filter classifies
// with the offline keyword scorer.
func New(
	opts Options,
	catalog Catalog,
	f source.Fetcher,
	d *dedup.Deduplicator,
	filter *relevance.Filter,
	ranker *rank.Ranker,
	st store.Store,
	h dedup.History,
) *Pipeline {
	if opts.MinTier == "" {
		opts.MinTier = model.TierMedium
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 48 * time.Hour
	}
	if opts.DiscussionMaxAge <= 0 {
		opts.DiscussionMaxAge = 24 * time.Hour
	}
	if opts.MaxEntriesPerSource <= 0 {
		opts.MaxEntriesPerSource = 20
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if d == nil {
		d = dedup.New(dedup.DefaultSimilarityThreshold)
	}
	if filter == nil {
		filter = relevance.NewFilter(relevance.NewKeywordClassifier(nil, 0), relevance.Options{})
	}
	if ranker == nil {
		ranker = rank.New(rank.Options{})
	}
	return &Pipeline{
		opts:    opts,
		catalog: catalog,
		fetcher: f,
		dedup:   d,
		filter:  filter,
		ranker:  ranker,
		store:   st,
		history: h,
		now:     time.Now,
	}
}

// Run executes one aggregation run. Source and classifier failures are
// summarized in the result. An error is returned only when ctx is canceled
// or the run attempts an invalid state transition.
func (p *Pipeline) Run(ctx context.Context, ro RunOptions) (*model.RunResult, error) {
	runID := p.startRun(ctx, ro.RunID)
	log := zap.L().With(zap.String("run_id", runID))

	minTier := p.opts.MinTier
	if ro.MinTier != "" {
		minTier = ro.MinTier
	}

	result := &model.RunResult{
		RunID:      runID,
		Candidates: []model.Candidate{},
		StartedAt:  p.now().UTC(),
	}
	sum := &result.Summary
	m := &machine{}

	setStage := func(stage model.Stage) error {
		if err := m.advance(stage); err != nil {
			return err
		}
		if p.store != nil && !stage.Terminal() {
			if err := p.store.UpdateRunStage(ctx, runID, stage); err != nil {
				log.Warn("pipeline: failed to update stage", zap.String("stage", string(stage)), zap.Error(err))
			}
		}
		return nil
	}

	trackStage := func(stage model.Stage, in int, fn func() int) {
		start := time.Now()
		out := fn()
		duration := time.Since(start).Milliseconds()
		result.Stages = append(result.Stages, model.StageResult{Stage: stage, Duration: duration, In: in, Out: out})
		log.Info("pipeline: stage complete",
			zap.String("stage", string(stage)),
			zap.Int("in", in),
			zap.Int("out", out),
			zap.Int64("duration_ms", duration),
		)
	}

	fail := func(err error) (*model.RunResult, error) {
		log.Error("pipeline: run failed", zap.String("stage", string(m.stage)), zap.Error(err))
		if p.store != nil {
			// The caller's context may already be gone.
			if failErr := p.store.FailRun(context.WithoutCancel(ctx), runID, err.Error()); failErr != nil {
				log.Warn("pipeline: failed to record failure", zap.Error(failErr))
			}
		}
		return nil, err
	}

	canceled := func() error {
		if ctx.Err() != nil {
			return eris.Wrapf(ctx.Err(), "pipeline: run canceled during %s", m.stage)
		}
		return nil
	}

	finish := func(outcome model.Stage, cands []model.Candidate) (*model.RunResult, error) {
		if err := setStage(outcome); err != nil {
			return fail(err)
		}
		if cands != nil {
			result.Candidates = cands
		}
		result.Outcome = outcome
		result.Summary.Output = len(result.Candidates)
		result.FinishedAt = p.now().UTC()

		if outcome == model.StageDone {
			if err := dedup.MarkSeen(ctx, p.history, result.Candidates); err != nil {
				log.Warn("pipeline: failed to mark candidates seen", zap.Error(err))
			}
		}
		if p.store != nil {
			if err := p.store.CompleteRun(ctx, runID, result); err != nil {
				log.Warn("pipeline: failed to record result", zap.Error(err))
			}
		}
		log.Info("pipeline: run finished",
			zap.String("outcome", string(outcome)),
			zap.Int("output", sum.Output),
			zap.Int("sources_failed", sum.SourcesFailed),
			zap.Int("classifier_failures", sum.ClassifierFailures),
		)
		return result, nil
	}

	sources := p.catalog.ListSources(minTier)
	log.Info("pipeline: starting run",
		zap.String("min_tier", string(minTier)),
		zap.Int("sources", len(sources)),
	)

	// ===== Fetching =====
	if err := setStage(model.StageFetching); err != nil {
		return fail(err)
	}
	var fetched []fetchOutcome
	trackStage(model.StageFetching, len(sources), func() int {
		fetched = p.fetchAll(ctx, sources)
		n := 0
		for _, f := range fetched {
			n += len(f.records)
		}
		return n
	})
	if err := canceled(); err != nil {
		return fail(err)
	}

	sum.SourcesAttempted = len(sources)
	result.Sources = make([]model.SourceReport, 0, len(fetched))
	for _, f := range fetched {
		result.Sources = append(result.Sources, f.report)
		if f.report.Failed() {
			sum.SourcesFailed++
		} else {
			sum.SourcesSucceeded++
		}
		sum.Fetched += len(f.records)
	}
	if sum.Fetched == 0 {
		log.Warn("pipeline: no records fetched", zap.Int("sources_failed", sum.SourcesFailed))
		return finish(model.StageEmpty, nil)
	}

	// ===== Normalizing =====
	if err := setStage(model.StageNormalizing); err != nil {
		return fail(err)
	}
	var cands []model.Candidate
	trackStage(model.StageNormalizing, sum.Fetched, func() int {
		cands = make([]model.Candidate, 0, sum.Fetched)
		for _, f := range fetched {
			batch, rejected := normalize.NormalizeAll(f.records, f.desc)
			cands = append(cands, batch...)
			sum.NormalizeRejected += rejected
		}
		sum.Normalized = len(cands)
		return len(cands)
	})
	if len(cands) == 0 {
		return finish(model.StageEmpty, nil)
	}

	// ===== Deduplicating =====
	if err := setStage(model.StageDeduplicating); err != nil {
		return fail(err)
	}
	trackStage(model.StageDeduplicating, len(cands), func() int {
		in := len(cands)
		var stats dedup.Stats
		cands, stats = p.dedup.Dedupe(cands)
		sum.DroppedDuplicate = stats.DuplicateURL
		sum.DroppedNearDup = stats.NearDuplicate

		kept, dropped, err := dedup.FilterSeen(ctx, p.history, cands)
		if err != nil {
			log.Warn("pipeline: history lookup failed, keeping all candidates", zap.Error(err))
		}
		cands = kept
		sum.DroppedSeen = dropped

		log.Debug("pipeline: deduplicated",
			zap.Int("in", in),
			zap.Int("duplicate_url", stats.DuplicateURL),
			zap.Int("near_duplicate", stats.NearDuplicate),
			zap.Int("previously_seen", dropped),
		)
		return len(cands)
	})
	if err := canceled(); err != nil {
		return fail(err)
	}
	if len(cands) == 0 {
		return finish(model.StageEmpty, nil)
	}

	// ===== Filtering =====
	if err := setStage(model.StageFiltering); err != nil {
		return fail(err)
	}
	trackStage(model.StageFiltering, len(cands), func() int {
		var stats relevance.FilterStats
		cands, stats = p.filter.Apply(ctx, cands)
		sum.Rejected = stats.Rejected
		sum.ClassifierFailures = stats.Failed
		return len(cands)
	})
	if err := canceled(); err != nil {
		return fail(err)
	}
	if len(cands) == 0 {
		return finish(model.StageEmpty, nil)
	}

	// ===== Ranking =====
	if err := setStage(model.StageRanking); err != nil {
		return fail(err)
	}
	trackStage(model.StageRanking, len(cands), func() int {
		var stats rank.Stats
		cands, stats = p.ranker.Rank(cands)
		sum.BelowMinScore = stats.BelowMinScore
		sum.Truncated = stats.Truncated
		return len(cands)
	})
	if len(cands) == 0 {
		return finish(model.StageEmpty, nil)
	}

	return finish(model.StageDone, cands)
}

// startRun returns the id for this run, creating the store record when
// needed. Without a store, or when the store is unavailable, a fresh uuid
// is used so the run can still be traced in logs.
func (p *Pipeline) startRun(ctx context.Context, runID string) string {
	if runID != "" {
		return runID
	}
	if p.store != nil {
		run, err := p.store.CreateRun(ctx)
		if err == nil {
			return run.ID
		}
		zap.L().Warn("pipeline: failed to create run record", zap.Error(err))
	}
	return uuid.NewString()
}

type fetchOutcome struct {
	desc    model.SourceDescriptor
	records []model.RawRecord
	report  model.SourceReport
}

// fetchAll fetches every source with bounded concurrency. Results keep
// catalog order. One source failing never affects the others.
func (p *Pipeline) fetchAll(ctx context.Context, sources []model.SourceDescriptor) []fetchOutcome {
	out := make([]fetchOutcome, len(sources))

	// Plain group: a failed source must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(p.opts.FetchConcurrency)
	for i, desc := range sources {
		g.Go(func() error {
			out[i] = p.fetchOne(ctx, desc)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) fetchOne(ctx context.Context, desc model.SourceDescriptor) (res fetchOutcome) {
	start := time.Now()
	log := zap.L().With(zap.String("source", desc.Name), zap.String("kind", string(desc.Kind)))

	res.desc = desc
	res.report = model.SourceReport{Name: desc.Name, Kind: desc.Kind, Tier: desc.Tier}
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: source fetch panicked", zap.Any("panic", r))
			res.records = nil
			res.report.Error = fmt.Sprintf("panic: %v", r)
		}
		res.report.Records = len(res.records)
		res.report.Duration = time.Since(start).Milliseconds()
	}()

	opts := source.FetchOptions{
		MaxAge:     p.opts.MaxAge,
		MaxEntries: p.opts.MaxEntriesPerSource,
	}
	if desc.Kind == model.SourceKindDiscussion {
		opts.MaxAge = p.opts.DiscussionMaxAge
	}

	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	recs, err := p.fetcher.Fetch(fctx, desc, opts)
	if err != nil {
		log.Warn("pipeline: source fetch failed", zap.Error(err))
		res.report.Error = err.Error()
		return res
	}
	res.records = recs
	log.Debug("pipeline: source fetched", zap.Int("records", len(recs)))
	return res
}
