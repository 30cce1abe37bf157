package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsEmpty    int     `json:"runs_empty"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	FailRate     float64 `json:"fail_rate"`
	AvgOutput    float64 `json:"avg_output"`

	// TrailingEmpty counts consecutive empty runs, newest first.
	TrailingEmpty int `json:"trailing_empty"`

	// Source and classifier metrics summed over finished runs.
	SourcesAttempted   int     `json:"sources_attempted"`
	SourcesFailed      int     `json:"sources_failed"`
	SourceFailRate     float64 `json:"source_fail_rate"`
	ClassifierFailures int     `json:"classifier_failures"`
	CandidatesOutput   int     `json:"candidates_output"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from stored runs.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Newest first.
	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	trailing := true
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusEmpty:
			snap.RunsEmpty++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued, model.RunStatusRunning:
			snap.RunsActive++
		}

		// Active runs don't break an empty streak.
		if trailing && r.Status != model.RunStatusQueued && r.Status != model.RunStatusRunning {
			if r.Status == model.RunStatusEmpty {
				snap.TrailingEmpty++
			} else {
				trailing = false
			}
		}

		if r.Result != nil {
			sum := r.Result.Summary
			snap.SourcesAttempted += sum.SourcesAttempted
			snap.SourcesFailed += sum.SourcesFailed
			snap.ClassifierFailures += sum.ClassifierFailures
			snap.CandidatesOutput += sum.Output
		}
	}

	finished := snap.RunsComplete + snap.RunsEmpty + snap.RunsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if produced := snap.RunsComplete + snap.RunsEmpty; produced > 0 {
		snap.AvgOutput = float64(snap.CandidatesOutput) / float64(produced)
	}
	if snap.SourcesAttempted > 0 {
		snap.SourceFailRate = float64(snap.SourcesFailed) / float64(snap.SourcesAttempted)
	}

	return snap, nil
}
