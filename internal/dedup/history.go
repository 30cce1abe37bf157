package dedup

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/model"
)

// History is an externally owned seen-set keyed by candidate id. It lets
// repeated runs over overlapping windows skip stories already surfaced.
type History interface {
	Seen(ctx context.Context, ids []string) (map[string]bool, error)
	Mark(ctx context.Context, ids []string) error
}

// FilterSeen drops candidates whose id is in h. A nil history keeps
// everything. On a history error the input is returned unchanged together
// with the error so the caller can decide to continue.
func FilterSeen(ctx context.Context, h History, cands []model.Candidate) ([]model.Candidate, int, error) {
	if h == nil || len(cands) == 0 {
		return cands, 0, nil
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	seen, err := h.Seen(ctx, ids)
	if err != nil {
		return cands, 0, eris.Wrap(err, "dedup: check history")
	}

	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if seen[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out, len(cands) - len(out), nil
}

// MarkSeen records the ids of cands in h.
func MarkSeen(ctx context.Context, h History, cands []model.Candidate) error {
	if h == nil || len(cands) == 0 {
		return nil
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return eris.Wrap(h.Mark(ctx, ids), "dedup: mark history")
}
