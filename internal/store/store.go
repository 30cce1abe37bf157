// Package store persists pipeline runs and the cross-run seen-candidate
// history.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	// Since keeps runs created at or after this time. Zero disables.
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

const defaultListLimit = 100

// Store defines the persistence interface for the aggregation pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStage(ctx context.Context, runID string, stage model.Stage) error
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Seen candidates
	SeenIDs(ctx context.Context, ids []string) (map[string]bool, error)
	MarkSeen(ctx context.Context, ids []string, ttl time.Duration) error
	PurgeSeen(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// completedStatus maps a run outcome to the stored status.
func completedStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Empty() {
		return model.RunStatusEmpty
	}
	return model.RunStatusComplete
}

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
