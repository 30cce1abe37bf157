// Package relevance decides which candidates are worth writing about.
//
// A Classifier judges a single title. The Filter fans classification out
// over a batch with bounded concurrency, a shared rate limit, per-call
// timeouts, retries and a circuit breaker. Any failure to obtain a usable
// verdict drops the candidate and is counted; it never aborts the run.
package relevance

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Verdict is a classifier's judgement of one title.
type Verdict struct {
	Passes         bool    `json:"passes"`
	RelevanceScore float64 `json:"relevance_score"`
	Reason         string  `json:"reason"`
}

// Classifier scores a candidate title for relevance.
type Classifier interface {
	Classify(ctx context.Context, title string) (Verdict, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, title string) (Verdict, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, title string) (Verdict, error) {
	return f(ctx, title)
}

// ErrMalformedResponse marks a classifier reply that could not be turned
// into a valid Verdict.
var ErrMalformedResponse = eris.New("relevance: malformed classifier response")

// Validate reports whether v holds a usable score.
func (v Verdict) Validate() error {
	if v.RelevanceScore < 0 || v.RelevanceScore > 1 || math.IsNaN(v.RelevanceScore) {
		return eris.Wrapf(ErrMalformedResponse, "score %v outside [0,1]", v.RelevanceScore)
	}
	return nil
}

type verdictJSON struct {
	RelevanceScore  *float64 `json:"relevance_score"`
	Reason          string   `json:"reason"`
	IsGoodCandidate *bool    `json:"is_good_candidate"`
	Passes          *bool    `json:"passes"`
}

// ParseVerdict extracts a Verdict from model output. The JSON object may be
// wrapped in <json> tags, a fenced code block, or surrounding prose.
func ParseVerdict(text string) (Verdict, error) {
	raw := extractJSON(text)
	if raw == "" {
		return Verdict{}, eris.Wrap(ErrMalformedResponse, "no json object found")
	}

	var vj verdictJSON
	if err := json.Unmarshal([]byte(raw), &vj); err != nil {
		return Verdict{}, eris.Wrapf(ErrMalformedResponse, "decode: %v", err)
	}
	if vj.RelevanceScore == nil {
		return Verdict{}, eris.Wrap(ErrMalformedResponse, "missing relevance_score")
	}

	decision := vj.IsGoodCandidate
	if decision == nil {
		decision = vj.Passes
	}
	if decision == nil {
		return Verdict{}, eris.Wrap(ErrMalformedResponse, "missing is_good_candidate")
	}

	v := Verdict{
		Passes:         *decision,
		RelevanceScore: *vj.RelevanceScore,
		Reason:         strings.TrimSpace(vj.Reason),
	}
	if err := v.Validate(); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "<json>"); start >= 0 {
		rest := text[start+len("<json>"):]
		if end := strings.Index(rest, "</json>"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	} else if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	open := strings.Index(text, "{")
	closing := strings.LastIndex(text, "}")
	if open < 0 || closing < open {
		return ""
	}
	return text[open : closing+1]
}
