package model

import "time"

// Stage is a state of the aggregation state machine.
type Stage string

const (
	StageFetching      Stage = "fetching"
	StageNormalizing   Stage = "normalizing"
	StageDeduplicating Stage = "deduplicating"
	StageFiltering     Stage = "filtering"
	StageRanking       Stage = "ranking"
	StageDone          Stage = "done"
	StageEmpty         Stage = "empty"
)

// Order returns the position of the stage in the forward sequence. Both
// terminal stages share the last position.
func (s Stage) Order() int {
	switch s {
	case StageFetching:
		return 1
	case StageNormalizing:
		return 2
	case StageDeduplicating:
		return 3
	case StageFiltering:
		return 4
	case StageRanking:
		return 5
	case StageDone, StageEmpty:
		return 6
	default:
		return 0
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageEmpty
}

// RunStatus is the persisted lifecycle status of a run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusEmpty    RunStatus = "empty"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted pipeline run.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Stage     Stage      `json:"stage,omitempty"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StageResult records one state of a run.
type StageResult struct {
	Stage    Stage `json:"stage"`
	Duration int64 `json:"duration_ms"`
	In       int   `json:"in"`
	Out      int   `json:"out"`
}

// SourceReport records what a single source contributed.
type SourceReport struct {
	Name     string     `json:"name"`
	Kind     SourceKind `json:"kind"`
	Tier     Tier       `json:"tier"`
	Records  int        `json:"records"`
	Duration int64      `json:"duration_ms"`
	Error    string     `json:"error,omitempty"`
}

// Failed reports whether the source fetch failed.
func (r SourceReport) Failed() bool {
	return r.Error != ""
}

// RunSummary counts what happened at each stage so degraded runs can be
// diagnosed without aborting.
type RunSummary struct {
	SourcesAttempted int `json:"sources_attempted"`
	SourcesSucceeded int `json:"sources_succeeded"`
	SourcesFailed    int `json:"sources_failed"`

	Fetched            int `json:"fetched"`
	Normalized         int `json:"normalized"`
	NormalizeRejected  int `json:"normalize_rejected"`
	DroppedDuplicate   int `json:"dropped_duplicate_url"`
	DroppedNearDup     int `json:"dropped_near_duplicate"`
	DroppedSeen        int `json:"dropped_previously_seen"`
	Rejected           int `json:"rejected_by_classifier"`
	ClassifierFailures int `json:"classifier_failures"`
	BelowMinScore      int `json:"below_min_ranking_score"`
	Truncated          int `json:"truncated"`
	Output             int `json:"output"`
}

// RunResult is the final outcome of one pipeline run.
type RunResult struct {
	RunID      string         `json:"run_id,omitempty"`
	Outcome    Stage          `json:"outcome"`
	Candidates []Candidate    `json:"candidates"`
	Summary    RunSummary     `json:"summary"`
	Sources    []SourceReport `json:"sources"`
	Stages     []StageResult  `json:"stages"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Empty reports whether the run finished without any ranked candidate.
func (r *RunResult) Empty() bool {
	return r.Outcome == StageEmpty
}
