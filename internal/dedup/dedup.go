// Package dedup removes exact and near-duplicate candidates within a run and,
// when a history is injected, candidates already surfaced by earlier runs.
package dedup

import (
	"cmp"
	"slices"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/normalize"
)

// DefaultSimilarityThreshold is the token-overlap ratio at or above which two
// titles are treated as the same story.
const DefaultSimilarityThreshold = 0.85

// Stats counts removals per pass.
type Stats struct {
	Input         int `json:"input"`
	DuplicateURL  int `json:"duplicate_url"`
	NearDuplicate int `json:"near_duplicate"`
	Output        int `json:"output"`
}

// Deduplicator runs the exact and near-duplicate passes.
type Deduplicator struct {
	threshold float64
}

// New returns a Deduplicator. A threshold outside (0, 1] falls back to the
// default.
func New(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Deduplicator{threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (d *Deduplicator) Threshold() float64 { return d.threshold }

type entry struct {
	idx    int
	c      *model.Candidate
	tokens map[string]struct{}
}

// Dedupe returns the surviving candidates in their original order. Inside a
// duplicate cluster the survivor is the candidate from the higher tier, then
// the higher native score, then the earlier position. Candidates are never
// modified. Running Dedupe on its own output removes nothing.
func (d *Deduplicator) Dedupe(cands []model.Candidate) ([]model.Candidate, Stats) {
	stats := Stats{Input: len(cands)}

	order := make([]entry, len(cands))
	for i := range cands {
		order[i] = entry{idx: i, c: &cands[i]}
	}
	slices.SortStableFunc(order, func(a, b entry) int {
		if r := cmp.Compare(b.c.SourceTier.Rank(), a.c.SourceTier.Rank()); r != 0 {
			return r
		}
		if r := cmp.Compare(b.c.NativeScore, a.c.NativeScore); r != 0 {
			return r
		}
		return cmp.Compare(a.idx, b.idx)
	})

	// Exact pass over canonical URLs and ids.
	seen := make(map[string]bool, len(order))
	exact := make([]entry, 0, len(order))
	for _, e := range order {
		u := normalize.CanonicalURL(e.c.URL)
		if (u != "" && seen["url:"+u]) || seen["id:"+e.c.ID] {
			stats.DuplicateURL++
			continue
		}
		if u != "" {
			seen["url:"+u] = true
		}
		seen["id:"+e.c.ID] = true
		exact = append(exact, e)
	}

	// Near-duplicate pass, comparing only against kept candidates.
	var kept []entry
	for _, e := range exact {
		e.tokens = normalize.Tokens(normalize.NormalizeTitle(e.c.Title))
		if len(e.tokens) > 0 && d.matchesKept(e.tokens, kept) {
			stats.NearDuplicate++
			continue
		}
		kept = append(kept, e)
	}

	slices.SortFunc(kept, func(a, b entry) int { return cmp.Compare(a.idx, b.idx) })
	out := make([]model.Candidate, len(kept))
	for i, e := range kept {
		out[i] = *e.c
	}
	stats.Output = len(out)
	return out, stats
}

func (d *Deduplicator) matchesKept(tokens map[string]struct{}, kept []entry) bool {
	for _, k := range kept {
		if len(k.tokens) == 0 {
			continue
		}
		if jaccard(tokens, k.tokens) >= d.threshold {
			return true
		}
	}
	return false
}

// jaccard returns |A and B| / |A or B| over two word sets. An empty set has
// similarity 0 with anything.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	var inter int
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
