package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/monitoring"
)

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("12345678-aaaa-bbbb-cccc-dddddddddddd"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "aaaaaaaa-1111-2222-3333-444444444444",
			Status:    model.RunStatusComplete,
			Stage:     model.StageDone,
			CreatedAt: created,
			UpdatedAt: created.Add(42 * time.Second),
			Result: &model.RunResult{Summary: model.RunSummary{
				Output:           7,
				SourcesAttempted: 5,
				SourcesFailed:    1,
			}},
		},
		{
			ID:        "bbbbbbbb-1111-2222-3333-444444444444",
			Status:    model.RunStatusRunning,
			Stage:     model.StageFiltering,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "SOURCES_FAILED")
	assert.Contains(t, out, "aaaaaaaa")
	assert.NotContains(t, out, "aaaaaaaa-1111")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "1/5")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, "filtering")
	assert.Contains(t, out, "2026-03-01 09:30")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{
		LookbackHours:      24,
		RunsTotal:          10,
		RunsComplete:       6,
		RunsEmpty:          2,
		RunsFailed:         1,
		RunsActive:         1,
		AvgOutput:          12.5,
		SourceFailRate:     0.25,
		ClassifierFailures: 3,
	})
	out := buf.String()

	assert.Contains(t, out, "24h")
	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "12.5")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "Classifier failures:")
}

func TestWriteRunResult(t *testing.T) {
	result := &model.RunResult{
		RunID:      "run-1",
		Outcome:    model.StageDone,
		Candidates: []model.Candidate{{Title: "IRS extends filing deadline", URL: "https://example.com/a"}},
	}

	var buf bytes.Buffer
	assert.NoError(t, writeRunResult(&buf, result, false))
	assert.Contains(t, buf.String(), "IRS extends filing deadline")
	assert.NotContains(t, buf.String(), "run-1")

	buf.Reset()
	assert.NoError(t, writeRunResult(&buf, result, true))
	assert.Contains(t, buf.String(), `"run_id": "run-1"`)
	assert.Contains(t, buf.String(), `"summary"`)
}

func TestWriteRunResult_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, writeRunResult(&buf, &model.RunResult{Outcome: model.StageEmpty, Candidates: []model.Candidate{}}, false))
	assert.Equal(t, "[]\n", buf.String())
}
