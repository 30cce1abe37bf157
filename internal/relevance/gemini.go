package relevance

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/pkg/gemini"
)

// GeminiClassifier asks a Gemini model for a JSON verdict.
type GeminiClassifier struct {
	client gemini.Client
}

// NewGeminiClassifier wraps client.
func NewGeminiClassifier(client gemini.Client) *GeminiClassifier {
	return &GeminiClassifier{client: client}
}

// Classify implements Classifier.
func (g *GeminiClassifier) Classify(ctx context.Context, title string) (Verdict, error) {
	text, err := g.client.GenerateJSON(ctx, SystemPrompt, UserPrompt(title))
	if err != nil {
		return Verdict{}, eris.Wrap(err, "relevance: gemini classify")
	}
	return ParseVerdict(text)
}
