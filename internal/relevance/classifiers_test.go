package relevance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-leads/internal/resilience"
	"github.com/sells-group/topic-leads/pkg/anthropic"
	"github.com/sells-group/topic-leads/pkg/anthropic/mocks"
)

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier([]string{"Retail Media"}, 0)
	ctx := context.Background()

	tests := []struct {
		title  string
		passes bool
	}{
		{"Agency holding companies face new ad fraud audit", true},
		{"How AI automation changes media monitoring for comms teams", true},
		{"This Super Bowl ad made me cry", false},
		{"Weekly thread: ask anything", false},
		{"Local bakery opens second shop", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			v, err := k.Classify(ctx, tt.title)
			require.NoError(t, err)
			assert.Equal(t, tt.passes, v.Passes, "score %.2f reason %s", v.RelevanceScore, v.Reason)
			assert.NoError(t, v.Validate())
		})
	}

	v, _ := k.Classify(ctx, "Retail media networks")
	assert.Contains(t, v.Reason, "retail media")
}

func TestKeywordClassifier_Deterministic(t *testing.T) {
	k := NewKeywordClassifier(nil, 0.3)
	a, _ := k.Classify(context.Background(), "Programmatic CTV measurement gaps")
	b, _ := k.Classify(context.Background(), "Programmatic CTV measurement gaps")
	assert.Equal(t, a, b)
	assert.True(t, a.Passes)
}

func TestAnthropicClassifier(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			req.Messages[0].Content == UserPrompt("Meta removes third-party verification")
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `<json>{"relevance_score":0.95,"reason":"auditor lens","is_good_candidate":true}</json>`}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}, nil).Once()

	c := NewAnthropicClassifier(client, "claude-haiku-4-5-20251001", 0)
	v, err := c.Classify(context.Background(), "Meta removes third-party verification")
	require.NoError(t, err)
	assert.True(t, v.Passes)
	assert.InDelta(t, 0.95, v.RelevanceScore, 1e-9)
	assert.Equal(t, int64(100), c.Usage().InputTokens)

	c.LogUsage()
	assert.Zero(t, c.Usage().InputTokens)
}

func TestAnthropicClassifier_TransientStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer ts.Close()

	c := NewAnthropicClassifier(anthropic.NewClient("test-key", ts.URL), "m", 0)
	_, err := c.Classify(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestAnthropicClassifier_PermanentError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key")).Once()

	_, err := NewAnthropicClassifier(client, "m", 0).Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relevance: anthropic classify")
	assert.False(t, resilience.IsTransient(err))
}

type fakeGemini struct {
	text string
	err  error
}

func (f *fakeGemini) GenerateJSON(_ context.Context, system, _ string) (string, error) {
	if system != SystemPrompt {
		return "", errors.New("unexpected system prompt")
	}
	return f.text, f.err
}

func (f *fakeGemini) Close() error { return nil }

func TestGeminiClassifier(t *testing.T) {
	g := NewGeminiClassifier(&fakeGemini{text: `{"relevance_score":0.3,"reason":"generic","is_good_candidate":false}`})
	v, err := g.Classify(context.Background(), "10 tips for better ads")
	require.NoError(t, err)
	assert.False(t, v.Passes)

	g = NewGeminiClassifier(&fakeGemini{err: errors.New("quota")})
	_, err = g.Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relevance: gemini classify")
}
