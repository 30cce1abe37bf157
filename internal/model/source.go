package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier is the priority classification of a source.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Rank returns a comparable weight for the tier. Higher means more important.
// Unknown tiers rank below low.
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether t is the same as or more important than min.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// ParseTier converts a user-supplied string into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", eris.Errorf("model: unknown tier %q (want high, medium or low)", s)
	}
	return t, nil
}

// SourceKind identifies the native record shape a source produces.
type SourceKind string

const (
	SourceKindDiscussion SourceKind = "discussion"
	SourceKindFeed       SourceKind = "feed"
)

// Channel is one topic channel of a discussion source (a subreddit, for
// example) with its minimum popularity threshold.
type Channel struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	MinScore int    `yaml:"min_score" json:"min_score" validate:"gte=0"`
}

// SourceDescriptor describes a single source in the feed registry.
type SourceDescriptor struct {
	Name        string     `yaml:"name" json:"name" validate:"required"`
	Kind        SourceKind `yaml:"kind" json:"kind" validate:"required,oneof=discussion feed"`
	URL         string     `yaml:"url" json:"url" validate:"required,url"`
	Tier        Tier       `yaml:"tier" json:"tier" validate:"required,oneof=high medium low"`
	Pillar      string     `yaml:"pillar" json:"pillar" validate:"required"`
	Topics      []string   `yaml:"topics" json:"topics,omitempty"`
	Description string     `yaml:"description" json:"description,omitempty"`

	// Discussion sources only.
	Provider string    `yaml:"provider,omitempty" json:"provider,omitempty" validate:"omitempty,oneof=reddit hackernews"`
	Channels []Channel `yaml:"channels,omitempty" json:"channels,omitempty" validate:"dive"`
}
