package relevance

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/resilience"
	"github.com/sells-group/topic-leads/pkg/anthropic"
)

// AnthropicClassifier asks a Claude model for a verdict.
type AnthropicClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// NewAnthropicClassifier creates a classifier for model. maxTokens bounds
// the reply length.
func NewAnthropicClassifier(client anthropic.Client, model string, maxTokens int64) *AnthropicClassifier {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicClassifier{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		system:    anthropic.BuildCachedSystemBlocks(SystemPrompt, "5m"),
	}
}

// Classify implements Classifier.
func (a *AnthropicClassifier) Classify(ctx context.Context, title string) (Verdict, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      a.system,
		Messages:    []anthropic.Message{{Role: "user", Content: UserPrompt(title)}},
		Temperature: &temp,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			return Verdict{}, resilience.NewTransientError(err, code)
		}
		return Verdict{}, eris.Wrap(err, "relevance: anthropic classify")
	}

	a.mu.Lock()
	a.usage = a.usage.Add(resp.Usage)
	a.mu.Unlock()

	return ParseVerdict(resp.Text())
}

// Usage returns the tokens consumed so far.
func (a *AnthropicClassifier) Usage() anthropic.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// LogUsage logs accumulated usage and cost, then resets the counter.
func (a *AnthropicClassifier) LogUsage() {
	a.mu.Lock()
	u := a.usage
	a.usage = anthropic.TokenUsage{}
	a.mu.Unlock()
	u.LogCost(a.model, "relevance")
}
