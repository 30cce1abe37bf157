package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTier_AtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier Tier
		min  Tier
		want bool
	}{
		{TierHigh, TierHigh, true},
		{TierMedium, TierHigh, false},
		{TierHigh, TierMedium, true},
		{TierMedium, TierMedium, true},
		{TierLow, TierMedium, false},
		{TierLow, TierLow, true},
		{Tier("bogus"), TierLow, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+">="+string(tt.min), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.tier.AtLeast(tt.min))
		})
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	got, err := ParseTier(" Medium ")
	require.NoError(t, err)
	assert.Equal(t, TierMedium, got)

	_, err = ParseTier("urgent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestStage_Order(t *testing.T) {
	t.Parallel()

	seq := []Stage{StageFetching, StageNormalizing, StageDeduplicating, StageFiltering, StageRanking, StageDone}
	for i := 1; i < len(seq); i++ {
		assert.Less(t, seq[i-1].Order(), seq[i].Order())
	}
	assert.Equal(t, StageDone.Order(), StageEmpty.Order())
	assert.True(t, StageEmpty.Terminal())
	assert.False(t, StageRanking.Terminal())
}

func TestCandidate_PublishedUnix(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	dated := Candidate{PublishedAt: &ts}
	undated := Candidate{}

	assert.Equal(t, ts.Unix(), dated.PublishedUnix())
	assert.Less(t, undated.PublishedUnix(), dated.PublishedUnix())
	assert.Zero(t, undated.Relevance())
}

func TestRawRecordConstructors(t *testing.T) {
	t.Parallel()

	r := DiscussionRecord(DiscussionPost{ID: "abc"})
	assert.NotNil(t, r.Discussion)
	assert.Nil(t, r.Feed)

	f := FeedRecord(FeedEntry{Title: "x"})
	assert.Nil(t, f.Discussion)
	assert.Equal(t, "x", f.Feed.Title)
}
