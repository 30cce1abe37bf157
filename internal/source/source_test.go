package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-leads/internal/fetcher"
	"github.com/sells-group/topic-leads/internal/model"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testOpts(maxEntries int) FetchOptions {
	return FetchOptions{
		MaxAge:     48 * time.Hour,
		MaxEntries: maxEntries,
		Now:        func() time.Time { return testNow },
	}
}

func newTestHTTP() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:        "test-agent",
		Timeout:          5 * time.Second,
		MaxRetries:       1,
		BackoffBase:      time.Millisecond,
		HostRate:         1000,
		AdaptiveLimiters: map[string]*fetcher.AdaptiveLimiter{},
	})
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

type stubFetcher struct {
	calls int
	recs  []model.RawRecord
}

func (s *stubFetcher) Fetch(context.Context, model.SourceDescriptor, FetchOptions) ([]model.RawRecord, error) {
	s.calls++
	return s.recs, nil
}

func TestRouter_Dispatch(t *testing.T) {
	feed := &stubFetcher{}
	reddit := &stubFetcher{}
	r := &Router{Feed: feed, Providers: map[string]Fetcher{"reddit": reddit}}
	ctx := context.Background()

	_, err := r.Fetch(ctx, model.SourceDescriptor{Name: "AdAge", Kind: model.SourceKindFeed}, FetchOptions{})
	require.NoError(t, err)
	_, err = r.Fetch(ctx, model.SourceDescriptor{Name: "Reddit", Kind: model.SourceKindDiscussion, Provider: "reddit"}, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, feed.calls)
	assert.Equal(t, 1, reddit.calls)
}

func TestRouter_Unsupported(t *testing.T) {
	r := &Router{}
	_, err := r.Fetch(context.Background(), model.SourceDescriptor{Name: "X", Kind: model.SourceKindDiscussion, Provider: "lobsters"}, FetchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestFetchOptions_TooOld(t *testing.T) {
	o := testOpts(0)
	old := testNow.Add(-72 * time.Hour)
	fresh := testNow.Add(-time.Hour)

	assert.True(t, o.tooOld(&old))
	assert.False(t, o.tooOld(&fresh))
	assert.False(t, o.tooOld(nil))
	assert.False(t, FetchOptions{}.tooOld(&old))
}
