package llm

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/models"
)

func newTestFactory() *ProviderFactory {
	return NewProviderFactory(
		&common.GeminiConfig{Model: "gemini-2.5-flash"},
		&common.ClaudeConfig{Model: "claude-sonnet-4-20250514"},
		&common.LLMConfig{DefaultProvider: common.LLMProviderGemini},
		nil,
		common.GetLogger(),
	)
}

func TestDetectProvider(t *testing.T) {
	factory := newTestFactory()

	tests := []struct {
		model    string
		expected ProviderType
	}{
		{"", ProviderGemini},
		{"gemini-2.5-flash", ProviderGemini},
		{"gemini/gemini-2.5-pro", ProviderGemini},
		{"google/gemini-2.5-flash", ProviderGemini},
		{"claude-sonnet-4-20250514", ProviderClaude},
		{"claude/claude-sonnet-4-20250514", ProviderClaude},
		{"anthropic/claude-opus-4", ProviderClaude},
		{"unknown-model", ProviderGemini},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, factory.DetectProvider(tt.model), "model %q", tt.model)
	}
}

func TestNormalizeModel(t *testing.T) {
	factory := newTestFactory()

	assert.Equal(t, "gemini-2.5-flash", factory.NormalizeModel("gemini/gemini-2.5-flash"))
	assert.Equal(t, "claude-sonnet-4-20250514", factory.NormalizeModel("claude/claude-sonnet-4-20250514"))
	assert.Equal(t, "gemini-2.5-flash", factory.NormalizeModel("gemini-2.5-flash"))
}

func TestGetDefaultModel(t *testing.T) {
	factory := newTestFactory()

	assert.Equal(t, "claude-sonnet-4-20250514", factory.GetDefaultModel(ProviderClaude))
	assert.Equal(t, "gemini-2.5-flash", factory.GetDefaultModel(ProviderGemini))
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("Error 429: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for model")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}

func TestExtractRetryDelay(t *testing.T) {
	delay := ExtractRetryDelay(errors.New("rate limited. Please retry in 12.5s"))
	assert.Equal(t, 12500*time.Millisecond, delay)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
}

func TestCalculateBackoff(t *testing.T) {
	config := NewDefaultRetryConfig()

	first := config.CalculateBackoff(0, 0)
	second := config.CalculateBackoff(1, 0)
	assert.Greater(t, second, first)
	assert.LessOrEqual(t, config.CalculateBackoff(10, 0), config.MaxBackoff)

	// API-supplied delay wins over the computed backoff
	assert.Equal(t, 30*time.Second, config.CalculateBackoff(0, 30*time.Second))
}

func TestConvertMessagesToClaude(t *testing.T) {
	params, system, err := convertMessagesToClaude([]Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be terse", system)
	assert.Len(t, params, 2)
}

func TestConvertMessagesRequiresUserMessage(t *testing.T) {
	_, _, err := convertMessagesToClaude([]Message{{Role: "system", Content: "only system"}})
	assert.Error(t, err)

	_, _, err = convertMessagesToGemini([]Message{{Role: "system", Content: "only system"}})
	assert.Error(t, err)
}

func TestBuildAnalystPrompt(t *testing.T) {
	prompt := buildAnalystPrompt("ACME", &models.Fundamentals{
		CompanyName:  "Acme Corp",
		Sector:       "Technology",
		CurrentPrice: 104.5,
		Currency:     "USD",
		PERatio:      22.1,
	}, &models.Briefing{
		Articles: []models.Article{
			{Title: "Acme beats estimates", Source: "Newswire", Sentiment: models.SentimentPositive},
		},
	})

	assert.Contains(t, prompt, "ACME")
	assert.Contains(t, prompt, "Acme Corp")
	assert.Contains(t, prompt, "- Acme beats estimates (Source: Newswire, Sentiment: positive)")
	assert.Contains(t, prompt, "## 30-Day Price Forecast")
	assert.Contains(t, prompt, "## Investment Thesis")
}

func TestBuildAnalystPromptMissingData(t *testing.T) {
	prompt := buildAnalystPrompt("ACME", nil, nil)

	assert.Contains(t, prompt, "No fundamental data available.")
	assert.Contains(t, prompt, "No recent news found.")
}

func TestBuildAdvisorPrompt(t *testing.T) {
	prompt := buildAdvisorPrompt("ACME", &models.AnalysisResult{
		Fundamentals: &models.Fundamentals{CompanyName: "Acme Corp", CurrentPrice: 104.5, Currency: "USD"},
		Forecast:     &models.Forecast{Summary: "The model predicts an upward trend."},
		Briefing: &models.Briefing{
			Articles: []models.Article{
				{Title: "First", Sentiment: models.SentimentPositive},
				{Title: "Second", Sentiment: models.SentimentNegative},
				{Title: "Third", Sentiment: models.SentimentNeutral},
			},
		},
	})

	assert.Contains(t, prompt, "The model predicts an upward trend.")
	assert.Contains(t, prompt, "'First' (positive), 'Second' (negative)")
	assert.False(t, strings.Contains(prompt, "Third"))
	assert.Contains(t, prompt, "Final Recommendation")
}

func TestBuildAdvisorPromptEmptyResult(t *testing.T) {
	prompt := buildAdvisorPrompt("ACME", &models.AnalysisResult{})

	assert.Contains(t, prompt, "No fundamental data available.")
	assert.Contains(t, prompt, "No prediction summary available.")
	assert.Contains(t, prompt, "No news articles found.")
}
