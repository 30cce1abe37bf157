// Package source fetches raw records from feed and discussion sources.
package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/model"
)

// FetchOptions bounds what a single fetch returns.
type FetchOptions struct {
	// MaxAge excludes dated records older than this. Zero disables the check.
	MaxAge time.Duration
	// MaxEntries caps records per feed, or per channel for discussion
	// sources. Zero means no cap.
	MaxEntries int
	// Now is the clock used for age checks. time.Now when nil.
	Now func() time.Time
}

func (o FetchOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// tooOld reports whether ts falls outside the MaxAge window. Unknown
// timestamps are never too old.
func (o FetchOptions) tooOld(ts *time.Time) bool {
	if o.MaxAge <= 0 || ts == nil {
		return false
	}
	return ts.Before(o.now().Add(-o.MaxAge))
}

// Fetcher is the common capability of every source variant.
type Fetcher interface {
	Fetch(ctx context.Context, desc model.SourceDescriptor, opts FetchOptions) ([]model.RawRecord, error)
}

// ErrUnsupportedSource is returned when no fetcher handles a descriptor.
var ErrUnsupportedSource = eris.New("source: unsupported source")

// Router dispatches a descriptor to the fetcher for its kind and provider.
type Router struct {
	Feed      Fetcher
	Providers map[string]Fetcher
}

var _ Fetcher = (*Router)(nil)

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, desc model.SourceDescriptor, opts FetchOptions) ([]model.RawRecord, error) {
	switch desc.Kind {
	case model.SourceKindFeed:
		if r.Feed != nil {
			return r.Feed.Fetch(ctx, desc, opts)
		}
	case model.SourceKindDiscussion:
		if f, ok := r.Providers[desc.Provider]; ok {
			return f.Fetch(ctx, desc, opts)
		}
	}
	return nil, eris.Wrapf(ErrUnsupportedSource, "%s (kind=%s provider=%s)", desc.Name, desc.Kind, desc.Provider)
}
