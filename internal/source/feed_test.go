package source

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-leads/internal/model"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Ad News</title>
  <item>
    <title>Older but fresh</title>
    <link>https://news.example.com/older</link>
    <guid>older-1</guid>
    <pubDate>Sun, 09 Mar 2025 08:00:00 +0000</pubDate>
    <description>&lt;p&gt;Retail &lt;b&gt;media&lt;/b&gt;   budgets&lt;/p&gt;</description>
  </item>
  <item>
    <title>Undated piece</title>
    <link>https://news.example.com/undated</link>
  </item>
  <item>
    <title>Stale story</title>
    <link>https://news.example.com/stale</link>
    <pubDate>Mon, 03 Mar 2025 08:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Newest story</title>
    <link>https://news.example.com/newest</link>
    <guid>newest-1</guid>
    <pubDate>Mon, 10 Mar 2025 10:00:00 +0000</pubDate>
    <author>editor@example.com (Jane Editor)</author>
  </item>
</channel>
</rss>`

func feedServer(t *testing.T, body string, status int) string {
	t.Helper()
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	return srv.URL
}

func TestFeedFetcher_FiltersAndOrders(t *testing.T) {
	url := feedServer(t, rssFixture, http.StatusOK)
	f := NewFeedFetcher(newTestHTTP())

	recs, err := f.Fetch(context.Background(), model.SourceDescriptor{Name: "Example", Kind: model.SourceKindFeed, URL: url}, testOpts(20))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	titles := make([]string, len(recs))
	for i, r := range recs {
		require.NotNil(t, r.Feed)
		titles[i] = r.Feed.Title
	}
	assert.Equal(t, []string{"Newest story", "Older but fresh", "Undated piece"}, titles)

	assert.Equal(t, "Retail media budgets", recs[1].Feed.Summary)
	assert.Nil(t, recs[2].Feed.PublishedAt)
	assert.NotEmpty(t, recs[2].Feed.GUID, "missing guid falls back to a hash")
}

func TestFeedFetcher_MaxEntries(t *testing.T) {
	url := feedServer(t, rssFixture, http.StatusOK)
	f := NewFeedFetcher(newTestHTTP())

	recs, err := f.Fetch(context.Background(), model.SourceDescriptor{Name: "Example", URL: url}, testOpts(1))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Newest story", recs[0].Feed.Title)
}

func TestFeedFetcher_Malformed(t *testing.T) {
	url := feedServer(t, "<html>not a feed", http.StatusOK)
	f := NewFeedFetcher(newTestHTTP())

	_, err := f.Fetch(context.Background(), model.SourceDescriptor{Name: "Broken", URL: url}, testOpts(20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: parse Broken")
}

func TestFeedFetcher_HTTPError(t *testing.T) {
	url := feedServer(t, "gone", http.StatusNotFound)
	f := NewFeedFetcher(newTestHTTP())

	_, err := f.Fetch(context.Background(), model.SourceDescriptor{Name: "Gone", URL: url}, testOpts(20))
	require.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "", stripHTML(""))
	assert.Equal(t, "a b", stripHTML("<div>a\n\n  <span>b</span></div>"))

	long := make([]rune, maxSummaryRunes+10)
	for i := range long {
		long[i] = 'x'
	}
	got := stripHTML(string(long))
	assert.Equal(t, maxSummaryRunes+3, len([]rune(got)))
}
