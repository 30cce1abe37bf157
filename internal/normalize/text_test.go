package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://AdExchanger.com/Story/", "https://adexchanger.com/story"},
		{"https://adexchanger.com/story?utm_source=rss#top", "https://adexchanger.com/story"},
		{"  https://adexchanger.com/story//  ", "https://adexchanger.com/story"},
		{"https://adexchanger.com/story#frag", "https://adexchanger.com/story"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalURL(tt.in), tt.in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AI Ad Spend Hits $50B in 2024", "ai ad spend hits 50 billion in 2024"},
		{"AI ad spend hits $50 billion in 2024", "ai ad spend hits 50 billion in 2024"},
		{"Café   Société: Déjà vu!", "cafe societe deja vu"},
		{"Google's  cookie U-turn", "google s cookie u turn"},
		{"Netflix ad tier passes 40M users", "netflix ad tier passes 40 million users"},
		{"B2B marketers in 2025", "b2b marketers in 2025"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in), tt.in)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("ad spend ad growth")
	assert.Len(t, got, 3)
	assert.Contains(t, got, "spend")
}
