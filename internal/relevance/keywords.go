package relevance

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sells-group/topic-leads/internal/normalize"
)

// DefaultKeywordThreshold is the score a title needs to pass the
// keyword classifier.
const DefaultKeywordThreshold = 0.5

// Vocabulary terms are matched against normalized titles, so they must be
// lowercase ASCII words separated by single spaces.
var (
	accountabilityTerms = []string{
		"ad fraud", "fraud", "viewability", "verification", "measurement", "attribution",
		"brand safety", "waste", "audit", "mfa", "made for advertising", "invalid traffic",
		"media quality", "cpm", "reach", "frequency", "incrementality", "transparency",
	}
	strategyTerms = []string{
		"agency", "agencies", "holding company", "holding companies", "media investment",
		"ad spend", "budget", "budgets", "pitch", "review", "principal based", "rebate",
		"inflation", "forecast", "client", "procurement", "omnicom", "wpp", "publicis",
		"ipg", "dentsu", "havas", "merger", "acquisition",
	}
	automationTerms = []string{
		"ai", "automation", "automated", "machine learning", "llm", "genai",
		"generative ai", "sentiment", "media monitoring", "dashboard", "python",
		"data clean room", "clean room", "first party data", "analytics", "agentic",
	}
	platformTerms = []string{
		"programmatic", "ssp", "dsp", "header bidding", "ctv", "connected tv",
		"retail media", "cookie", "cookies", "privacy sandbox", "google", "meta",
		"amazon", "the trade desk", "regulation", "antitrust", "ftc", "gdpr", "dma",
	}
	excludeTerms = []string{
		"giveaway", "horoscope", "recipe", "celebrity", "best ads of", "made me cry",
		"tips for beginners", "hiring", "job opening", "weekly thread", "meme",
	}
)

type weightedTerm struct {
	phrase string
	weight float64
	lens   string
}

// KeywordClassifier scores titles offline against an advertising
// vocabulary plus the catalog's source topics. It never calls the network.
type KeywordClassifier struct {
	terms     []weightedTerm
	exclude   []string
	threshold float64
}

// NewKeywordClassifier builds a classifier. extraTopics (source topics from
// the catalog) are added with a low weight. threshold <= 0 uses
// DefaultKeywordThreshold.
func NewKeywordClassifier(extraTopics []string, threshold float64) *KeywordClassifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultKeywordThreshold
	}
	k := &KeywordClassifier{threshold: threshold}

	add := func(lens string, weight float64, phrases []string) {
		for _, p := range phrases {
			p = normalize.NormalizeTitle(p)
			if p == "" || k.has(p) {
				continue
			}
			k.terms = append(k.terms, weightedTerm{phrase: p, weight: weight, lens: lens})
		}
	}
	add("accountability", 0.35, accountabilityTerms)
	add("strategy", 0.3, strategyTerms)
	add("automation", 0.3, automationTerms)
	add("platform", 0.2, platformTerms)
	add("topic", 0.1, extraTopics)

	for _, e := range excludeTerms {
		k.exclude = append(k.exclude, normalize.NormalizeTitle(e))
	}
	return k
}

func (k *KeywordClassifier) has(phrase string) bool {
	return slices.ContainsFunc(k.terms, func(t weightedTerm) bool { return t.phrase == phrase })
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, title string) (Verdict, error) {
	padded := " " + normalize.NormalizeTitle(title) + " "

	for _, e := range k.exclude {
		if strings.Contains(padded, " "+e+" ") {
			return Verdict{Passes: false, RelevanceScore: 0, Reason: fmt.Sprintf("excluded term %q", e)}, nil
		}
	}

	var (
		score   float64
		matched []string
		lenses  = map[string]bool{}
	)
	for _, t := range k.terms {
		if strings.Contains(padded, " "+t.phrase+" ") {
			score += t.weight
			matched = append(matched, t.phrase)
			lenses[t.lens] = true
		}
	}
	// Titles touching more than one lens get a small depth bonus.
	if len(lenses) > 1 {
		score += 0.1
	}
	score = math.Min(1, math.Round(score*100)/100)

	reason := "no vocabulary match"
	if len(matched) > 0 {
		reason = "matched " + strings.Join(matched, ", ")
	}
	return Verdict{
		Passes:         score >= k.threshold,
		RelevanceScore: score,
		Reason:         reason,
	}, nil
}
