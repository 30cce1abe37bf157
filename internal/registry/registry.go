// Package registry holds the read-only catalog of feed and discussion
// sources, grouped by content pillar and tagged with a priority tier.
package registry

import (
	"slices"
	"strings"

	"github.com/sells-group/topic-leads/internal/model"
)

// Registry is an immutable, validated source catalog. It is safe for
// concurrent use once built.
type Registry struct {
	sources []model.SourceDescriptor
	pillars []string
}

func newRegistry(sources []model.SourceDescriptor) *Registry {
	r := &Registry{sources: sources}
	for _, s := range sources {
		if !slices.Contains(r.pillars, s.Pillar) {
			r.pillars = append(r.pillars, s.Pillar)
		}
	}
	return r
}

// ListSources returns every source whose tier is at least minTier, in
// catalog order. Filtering is inclusive upward: high returns only high
// sources, medium returns high and medium, low returns all.
func (r *Registry) ListSources(minTier model.Tier) []model.SourceDescriptor {
	out := make([]model.SourceDescriptor, 0, len(r.sources))
	for _, s := range r.sources {
		if s.Tier.AtLeast(minTier) {
			out = append(out, clone(s))
		}
	}
	return out
}

// ByPillar returns the sources in the named pillar whose tier is at least
// minTier, in catalog order. Pillar names match case-insensitively.
func (r *Registry) ByPillar(minTier model.Tier, pillar string) []model.SourceDescriptor {
	var out []model.SourceDescriptor
	for _, s := range r.sources {
		if strings.EqualFold(s.Pillar, pillar) && s.Tier.AtLeast(minTier) {
			out = append(out, clone(s))
		}
	}
	return out
}

// HasPillar reports whether any source belongs to the named pillar.
func (r *Registry) HasPillar(pillar string) bool {
	return slices.ContainsFunc(r.pillars, func(p string) bool {
		return strings.EqualFold(p, pillar)
	})
}

// Pillars returns the pillar names in catalog order.
func (r *Registry) Pillars() []string {
	return slices.Clone(r.pillars)
}

// Len returns the number of sources in the catalog.
func (r *Registry) Len() int {
	return len(r.sources)
}

// clone copies the slice fields so callers cannot mutate the catalog.
func clone(s model.SourceDescriptor) model.SourceDescriptor {
	s.Topics = slices.Clone(s.Topics)
	s.Channels = slices.Clone(s.Channels)
	return s
}
