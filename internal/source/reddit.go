package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-leads/internal/fetcher"
	"github.com/sells-group/topic-leads/internal/model"
)

const (
	redditPermalinkBase = "https://www.reddit.com"
	defaultListingLimit = 30
)

// RedditFetcher reads the hot listing of each channel (subreddit) of a
// discussion source.
type RedditFetcher struct {
	http fetcher.Fetcher
	// ListingLimit is how many hot posts to request per channel.
	ListingLimit int
}

// NewRedditFetcher returns a RedditFetcher that calls the API through f.
func NewRedditFetcher(f fetcher.Fetcher, listingLimit int) *RedditFetcher {
	if listingLimit <= 0 {
		listingLimit = defaultListingLimit
	}
	return &RedditFetcher{http: f, ListingLimit: listingLimit}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
}

// Fetch implements Fetcher. Channels are read one after another; a failing
// channel is logged and skipped. The fetch fails only when every channel
// fails.
func (r *RedditFetcher) Fetch(ctx context.Context, desc model.SourceDescriptor, opts FetchOptions) ([]model.RawRecord, error) {
	log := zap.L().With(zap.String("source", desc.Name))

	var (
		out     []model.RawRecord
		failed  int
		lastErr error
	)
	for _, ch := range desc.Channels {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "reddit: fetch canceled")
		}

		posts, err := r.fetchChannel(ctx, desc.URL, ch, opts)
		if err != nil {
			failed++
			lastErr = err
			log.Warn("reddit: channel failed", zap.String("channel", ch.Name), zap.Error(err))
			continue
		}
		for _, p := range posts {
			out = append(out, model.DiscussionRecord(p))
		}
	}

	if len(desc.Channels) > 0 && failed == len(desc.Channels) {
		return nil, eris.Wrapf(lastErr, "reddit: all %d channels failed", failed)
	}
	log.Debug("reddit: fetched", zap.Int("posts", len(out)), zap.Int("failed_channels", failed))
	return out, nil
}

func (r *RedditFetcher) fetchChannel(ctx context.Context, base string, ch model.Channel, opts FetchOptions) ([]model.DiscussionPost, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d&raw_json=1",
		strings.TrimRight(base, "/"), url.PathEscape(ch.Name), r.ListingLimit)

	data, err := r.http.GetJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, eris.Wrapf(err, "reddit: decode r/%s", ch.Name)
	}

	var posts []model.DiscussionPost
	for _, child := range listing.Data.Children {
		p := child.Data
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		if p.Stickied || p.Score < ch.MinScore || strings.TrimSpace(p.Title) == "" {
			continue
		}
		created := unixFloat(p.CreatedUTC)
		if opts.tooOld(&created) {
			continue
		}

		channel := p.Subreddit
		if channel == "" {
			channel = ch.Name
		}
		posts = append(posts, model.DiscussionPost{
			ID:        p.ID,
			Title:     p.Title,
			Permalink: redditPermalinkBase + p.Permalink,
			Channel:   channel,
			Author:    p.Author,
			Score:     p.Score,
			Comments:  p.NumComments,
			CreatedAt: created,
		})
		if opts.MaxEntries > 0 && len(posts) >= opts.MaxEntries {
			break
		}
	}
	return posts, nil
}

func unixFloat(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
