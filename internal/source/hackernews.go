package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/topic-leads/internal/fetcher"
	"github.com/sells-group/topic-leads/internal/model"
)

const (
	hnItemPage        = "https://news.ycombinator.com/item?id="
	hnItemConcurrency = 8
)

// HackerNewsFetcher reads a story list (topstories, beststories, ...) from
// the Hacker News Firebase API and then each item.
type HackerNewsFetcher struct {
	http         fetcher.Fetcher
	ListingLimit int
}

// NewHackerNewsFetcher returns a HackerNewsFetcher calling through f.
func NewHackerNewsFetcher(f fetcher.Fetcher, listingLimit int) *HackerNewsFetcher {
	if listingLimit <= 0 {
		listingLimit = defaultListingLimit
	}
	return &HackerNewsFetcher{http: f, ListingLimit: listingLimit}
}

type hnItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// Fetch implements Fetcher. Each channel names a story list.
func (h *HackerNewsFetcher) Fetch(ctx context.Context, desc model.SourceDescriptor, opts FetchOptions) ([]model.RawRecord, error) {
	base := strings.TrimRight(desc.URL, "/")

	var out []model.RawRecord
	var lastErr error
	var failed int
	for _, ch := range desc.Channels {
		posts, err := h.fetchList(ctx, base, ch, opts)
		if err != nil {
			failed++
			lastErr = err
			zap.L().Warn("hackernews: list failed",
				zap.String("source", desc.Name),
				zap.String("channel", ch.Name),
				zap.Error(err),
			)
			continue
		}
		for _, p := range posts {
			out = append(out, model.DiscussionRecord(p))
		}
	}
	if len(desc.Channels) > 0 && failed == len(desc.Channels) {
		return nil, eris.Wrapf(lastErr, "hackernews: all %d lists failed", failed)
	}
	return out, nil
}

func (h *HackerNewsFetcher) fetchList(ctx context.Context, base string, ch model.Channel, opts FetchOptions) ([]model.DiscussionPost, error) {
	data, err := h.http.GetJSON(ctx, fmt.Sprintf("%s/%s.json", base, ch.Name))
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, eris.Wrapf(err, "hackernews: decode %s", ch.Name)
	}
	if len(ids) > h.ListingLimit {
		ids = ids[:h.ListingLimit]
	}

	items := make([]*hnItem, len(ids))
	var mu sync.Mutex
	var itemErrs int

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(hnItemConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			it, err := h.fetchItem(gCtx, base, id)
			if err != nil {
				mu.Lock()
				itemErrs++
				mu.Unlock()
				zap.L().Debug("hackernews: item failed", zap.Int("id", id), zap.Error(err))
				return nil
			}
			items[i] = it
			return nil
		})
	}
	_ = g.Wait()

	if len(ids) > 0 && itemErrs == len(ids) {
		return nil, eris.Errorf("hackernews: every item of %s failed", ch.Name)
	}

	var posts []model.DiscussionPost
	for _, it := range items {
		if it == nil || it.Type != "story" || it.Dead || it.Deleted || strings.TrimSpace(it.Title) == "" {
			continue
		}
		if it.Score < ch.MinScore {
			continue
		}
		created := time.Unix(it.Time, 0).UTC()
		if opts.tooOld(&created) {
			continue
		}
		posts = append(posts, model.DiscussionPost{
			ID:        fmt.Sprint(it.ID),
			Title:     it.Title,
			Permalink: fmt.Sprintf("%s%d", hnItemPage, it.ID),
			LinkURL:   it.URL,
			Channel:   ch.Name,
			Author:    it.By,
			Score:     it.Score,
			Comments:  it.Descendants,
			CreatedAt: created,
		})
		if opts.MaxEntries > 0 && len(posts) >= opts.MaxEntries {
			break
		}
	}
	return posts, nil
}

func (h *HackerNewsFetcher) fetchItem(ctx context.Context, base string, id int) (*hnItem, error) {
	data, err := h.http.GetJSON(ctx, fmt.Sprintf("%s/item/%d.json", base, id))
	if err != nil {
		return nil, err
	}
	var it hnItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, eris.Wrapf(err, "hackernews: decode item %d", id)
	}
	return &it, nil
}
