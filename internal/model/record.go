package model

import "time"

// DiscussionPost is the native shape of a trending-discussion item.
type DiscussionPost struct {
	ID        string
	Title     string
	Permalink string
	LinkURL   string
	Channel   string
	Author    string
	Score     int
	Comments  int
	CreatedAt time.Time
	Stickied  bool
}

// FeedEntry is the native shape of a periodic-feed item.
type FeedEntry struct {
	GUID        string
	Title       string
	Link        string
	Summary     string
	Author      string
	PublishedAt *time.Time
}

// RawRecord is a source-native record. Exactly one variant is set.
type RawRecord struct {
	Discussion *DiscussionPost
	Feed       *FeedEntry
}

// DiscussionRecord wraps a discussion post as a RawRecord.
func DiscussionRecord(p DiscussionPost) RawRecord {
	return RawRecord{Discussion: &p}
}

// FeedRecord wraps a feed entry as a RawRecord.
func FeedRecord(e FeedEntry) RawRecord {
	return RawRecord{Feed: &e}
}
