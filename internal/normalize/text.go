package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CanonicalURL returns the form of rawURL used for identity and exact
// duplicate detection: trimmed, lower-cased, without query or fragment and
// without trailing slashes. It returns "" for an empty URL.
func CanonicalURL(rawURL string) string {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}

var (
	// "$50B", "50bn", "2.5m" and similar headline shorthands.
	magnitudeRE = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)(k|mm|m|bn|b|tn|t)\b`)
	magnitudes  = map[string]string{
		"k": "thousand", "m": "million", "mm": "million",
		"b": "billion", "bn": "billion", "t": "trillion", "tn": "trillion",
	}
)

// NormalizeTitle folds a headline for similarity comparison: diacritics
// removed, lower-cased, magnitude shorthands spelled out, punctuation
// replaced by spaces, whitespace collapsed.
func NormalizeTitle(title string) string {
	folded, _, err := transform.String(foldChain(), title)
	if err != nil {
		folded = title
	}
	folded = strings.ToLower(folded)
	folded = magnitudeRE.ReplaceAllStringFunc(folded, func(m string) string {
		sub := magnitudeRE.FindStringSubmatch(m)
		return sub[1] + " " + magnitudes[sub[2]]
	})

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits a normalized title into its set of distinct words.
func Tokens(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// CleanTitle trims a display title and collapses inner whitespace.
func CleanTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// foldChain is built per call because transform chains are stateful.
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
