// Package fetcher is the shared outbound HTTP layer used by every source:
// per-host rate limiting, retry with backoff, and bounded response bodies.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote documents.
type Fetcher interface {
	// Download returns the body of a successful GET. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// GetJSON performs a GET with an Accept: application/json header and
	// returns the (size-capped) body.
	GetJSON(ctx context.Context, url string) ([]byte, error)
}
