package model

import "time"

// Candidate is a normalized content lead considered for downstream
// generation.
type Candidate struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url,omitempty"`
	SourceName string     `json:"source_name"`
	SourceKind SourceKind `json:"source_kind"`
	SourceTier Tier       `json:"source_tier"`
	Pillar     string     `json:"pillar"`
	Topics     []string   `json:"topics,omitempty"`

	// NativeScore is the source-intrinsic popularity signal, 0 when the
	// source has none.
	NativeScore int        `json:"native_score"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	Channel  string `json:"channel,omitempty"`
	Author   string `json:"author,omitempty"`
	Comments int    `json:"comments,omitempty"`
	Summary  string `json:"summary,omitempty"`

	// Set by the relevance filter.
	RelevanceScore  *float64 `json:"relevance_score,omitempty"`
	RelevanceReason string   `json:"relevance_reason,omitempty"`

	// Set by the ranker.
	RankingScore float64 `json:"ranking_score"`
}

// Relevance returns the relevance score or 0 when it has not been set.
func (c *Candidate) Relevance() float64 {
	if c.RelevanceScore == nil {
		return 0
	}
	return *c.RelevanceScore
}

// PublishedUnix returns the publish time in unix seconds, or the minimum
// int64 when it is unknown so undated candidates sort as the oldest.
func (c *Candidate) PublishedUnix() int64 {
	if c.PublishedAt == nil {
		return minUnix
	}
	return c.PublishedAt.Unix()
}

const minUnix = -1 << 63
