// Package rank orders relevance-filtered candidates into the final list.
package rank

import (
	"cmp"
	"math"
	"slices"

	"github.com/sells-group/topic-leads/internal/model"
)

// Defaults for Options.
const (
	DefaultPopularityWeight  = 0.1
	DefaultPopularityCeiling = 3000
	DefaultMaxTotal          = 10
)

// Options configures a Ranker.
type Options struct {
	// PopularityWeight is the largest boost a discussion candidate can get
	// from its native score.
	PopularityWeight float64
	// PopularityCeiling is the native score at which the boost saturates.
	PopularityCeiling int
	// MinRankingScore drops candidates below it. Zero keeps everything.
	MinRankingScore float64
	// MaxTotal caps the output. Zero or negative means DefaultMaxTotal.
	MaxTotal int
}

// Stats counts what ranking removed.
type Stats struct {
	Input         int `json:"input"`
	BelowMinScore int `json:"below_min_score"`
	Truncated     int `json:"truncated"`
	Output        int `json:"output"`
}

// Ranker computes ranking scores and orders candidates.
type Ranker struct {
	opts Options
}

// New creates a Ranker, filling unset options with defaults.
func New(opts Options) *Ranker {
	if opts.PopularityWeight < 0 {
		opts.PopularityWeight = 0
	}
	if opts.PopularityCeiling <= 0 {
		opts.PopularityCeiling = DefaultPopularityCeiling
	}
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = DefaultMaxTotal
	}
	return &Ranker{opts: opts}
}

// Score returns the ranking score of c. It never decreases as relevance
// grows, and for discussion candidates it never decreases as the native
// score grows.
func (r *Ranker) Score(c model.Candidate) float64 {
	rel := c.Relevance()
	if c.SourceKind != model.SourceKindDiscussion || c.NativeScore <= 0 {
		return rel
	}
	pop := math.Min(1, float64(c.NativeScore)/float64(r.opts.PopularityCeiling))
	return rel + r.opts.PopularityWeight*pop
}

// Rank scores, gates, orders and truncates cands. The input is not modified.
func (r *Ranker) Rank(cands []model.Candidate) ([]model.Candidate, Stats) {
	stats := Stats{Input: len(cands)}

	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		c.RankingScore = r.Score(c)
		if r.opts.MinRankingScore > 0 && c.RankingScore < r.opts.MinRankingScore {
			stats.BelowMinScore++
			continue
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, compare)

	if len(out) > r.opts.MaxTotal {
		stats.Truncated = len(out) - r.opts.MaxTotal
		out = out[:r.opts.MaxTotal]
	}
	stats.Output = len(out)
	return out, stats
}

// compare orders by ranking score, then tier, then recency, all descending.
// Remaining ties keep input order because the sort is stable.
func compare(a, b model.Candidate) int {
	if c := cmp.Compare(b.RankingScore, a.RankingScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.SourceTier.Rank(), a.SourceTier.Rank()); c != 0 {
		return c
	}
	return cmp.Compare(b.PublishedUnix(), a.PublishedUnix())
}
