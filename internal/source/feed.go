package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-leads/internal/fetcher"
	"github.com/sells-group/topic-leads/internal/model"
)

const maxSummaryRunes = 500

// FeedFetcher retrieves and parses RSS, Atom and JSON feeds.
type FeedFetcher struct {
	http fetcher.Fetcher
}

// NewFeedFetcher returns a FeedFetcher that downloads through f.
func NewFeedFetcher(f fetcher.Fetcher) *FeedFetcher {
	return &FeedFetcher{http: f}
}

// Fetch implements Fetcher. Entries older than MaxAge are dropped, undated
// entries are kept, and the newest MaxEntries are returned with undated
// entries last.
func (f *FeedFetcher) Fetch(ctx context.Context, desc model.SourceDescriptor, opts FetchOptions) ([]model.RawRecord, error) {
	body, err := f.http.Download(ctx, desc.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: download %s", desc.Name)
	}
	defer body.Close() //nolint:errcheck

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", desc.Name)
	}

	entries := make([]model.FeedEntry, 0, len(feed.Items))
	var stale int
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		e := toFeedEntry(item)
		if opts.tooOld(e.PublishedAt) {
			stale++
			continue
		}
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b model.FeedEntry) int {
		switch {
		case a.PublishedAt == nil && b.PublishedAt == nil:
			return 0
		case a.PublishedAt == nil:
			return 1
		case b.PublishedAt == nil:
			return -1
		default:
			return b.PublishedAt.Compare(*a.PublishedAt)
		}
	})
	if opts.MaxEntries > 0 && len(entries) > opts.MaxEntries {
		entries = entries[:opts.MaxEntries]
	}

	zap.L().Debug("feed: parsed",
		zap.String("source", desc.Name),
		zap.Int("items", len(feed.Items)),
		zap.Int("stale", stale),
		zap.Int("kept", len(entries)),
	)

	out := make([]model.RawRecord, len(entries))
	for i, e := range entries {
		out[i] = model.FeedRecord(e)
	}
	return out, nil
}

func toFeedEntry(item *gofeed.Item) model.FeedEntry {
	e := model.FeedEntry{
		GUID:    item.GUID,
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: stripHTML(firstNonEmpty(item.Description, item.Content)),
	}
	if e.GUID == "" {
		e.GUID = entryHash(firstNonEmpty(e.Link, e.Title))
	}
	if item.Author != nil {
		e.Author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		e.Author = item.Authors[0].Name
	}

	var ts *time.Time
	switch {
	case item.PublishedParsed != nil:
		ts = item.PublishedParsed
	case item.UpdatedParsed != nil:
		ts = item.UpdatedParsed
	}
	if ts != nil {
		utc := ts.UTC()
		e.PublishedAt = &utc
	}
	return e
}

// stripHTML returns the visible text of an HTML fragment, whitespace
// collapsed and truncated.
func stripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > maxSummaryRunes {
		text = string([]rune(text)[:maxSummaryRunes]) + "..."
	}
	return text
}

func entryHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
