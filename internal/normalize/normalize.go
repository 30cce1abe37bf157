// Package normalize maps source-native records onto the common Candidate
// shape and owns the text folding shared with deduplication.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-leads/internal/model"
)

// ErrInvalidRecord is returned for records the normalizer cannot map.
var ErrInvalidRecord = eris.New("normalize: invalid record")

// Normalize maps one raw record onto a Candidate. It is pure: the same
// record and descriptor always produce the same Candidate.
func Normalize(raw model.RawRecord, desc model.SourceDescriptor) (model.Candidate, error) {
	c := model.Candidate{
		SourceName: desc.Name,
		SourceKind: desc.Kind,
		SourceTier: desc.Tier,
		Pillar:     desc.Pillar,
		Topics:     slices.Clone(desc.Topics),
	}

	switch {
	case raw.Discussion != nil && raw.Feed != nil:
		return model.Candidate{}, eris.Wrap(ErrInvalidRecord, "record has both variants set")
	case raw.Discussion != nil:
		p := raw.Discussion
		c.Title = CleanTitle(p.Title)
		c.URL = strings.TrimSpace(p.LinkURL)
		if c.URL == "" {
			c.URL = strings.TrimSpace(p.Permalink)
		}
		c.NativeScore = max(p.Score, 0)
		c.Comments = p.Comments
		c.Channel = p.Channel
		c.Author = p.Author
		if !p.CreatedAt.IsZero() {
			ts := p.CreatedAt.UTC()
			c.PublishedAt = &ts
		}
	case raw.Feed != nil:
		e := raw.Feed
		c.Title = CleanTitle(e.Title)
		c.URL = strings.TrimSpace(e.Link)
		c.Summary = strings.TrimSpace(e.Summary)
		c.Author = e.Author
		if e.PublishedAt != nil {
			ts := e.PublishedAt.UTC()
			c.PublishedAt = &ts
		}
	default:
		return model.Candidate{}, eris.Wrap(ErrInvalidRecord, "record has no variant set")
	}

	if c.Title == "" {
		return model.Candidate{}, eris.Wrap(ErrInvalidRecord, "record has no title")
	}
	c.ID = CandidateID(desc.Name, c.URL, c.Title)
	return c, nil
}

// NormalizeAll maps a batch of records from one source. Records that cannot
// be mapped are logged and counted, never fatal.
func NormalizeAll(records []model.RawRecord, desc model.SourceDescriptor) ([]model.Candidate, int) {
	out := make([]model.Candidate, 0, len(records))
	var rejected int
	for _, r := range records {
		c, err := Normalize(r, desc)
		if err != nil {
			rejected++
			zap.L().Debug("normalize: skipping record",
				zap.String("source", desc.Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, c)
	}
	return out, rejected
}

// CandidateID derives a stable id. The canonical URL is preferred so the
// same story linked from two sources shares an id; without a URL the id is
// a hash of source name and normalized title.
func CandidateID(sourceName, rawURL, title string) string {
	if u := CanonicalURL(rawURL); u != "" {
		return "u-" + shortHash(u)
	}
	return "t-" + shortHash(sourceName+"\x00"+NormalizeTitle(title))
}

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:8])
}
