package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// Message is a single conversation turn
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// ProviderFactory creates and manages AI provider clients
type ProviderFactory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	kvStorage    interfaces.KeyValueStorage
	logger       arbor.ILogger
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeAPIKey string
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		geminiConfig: geminiConfig,
		claudeConfig: claudeConfig,
		llmConfig:    llmConfig,
		kvStorage:    kvStorage,
		logger:       logger,
	}
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-20250514" -> Claude
// - "claude/claude-sonnet-4-20250514" -> Claude (with prefix)
// - "gemini-2.5-flash" -> Gemini
// - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the default model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.claudeConfig.Model
	default:
		return f.geminiConfig.Model
	}
}

// GetGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) GetGeminiClient(ctx context.Context) (*genai.Client, error) {
	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, f.kvStorage, "gemini_api_key", f.geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// GetClaudeClient returns a Claude client, creating one if necessary
func (f *ProviderFactory) GetClaudeClient(ctx context.Context) (anthropic.Client, error) {
	if f.claudeAPIKey != "" {
		return f.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, f.kvStorage, "anthropic_api_key", f.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	f.claudeClient = client
	f.claudeAPIKey = apiKey
	return client, nil
}

// GenerateContent generates content using the appropriate provider based on model
func (f *ProviderFactory) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	provider := f.DetectProvider(request.Model)
	model := f.NormalizeModel(request.Model)

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Int("message_count", len(request.Messages)).
		Msg("Generating content with provider")

	switch provider {
	case ProviderClaude:
		return f.generateWithClaude(ctx, request, model)
	default:
		return f.generateWithGemini(ctx, request, model)
	}
}

// generateWithClaude generates content using Claude API
func (f *ProviderFactory) generateWithClaude(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetClaudeClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = f.claudeConfig.Model
	}

	claudeMessages, systemText, err := convertMessagesToClaude(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.claudeConfig.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.claudeConfig.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	var resp *anthropic.Message
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, 0)
		}

		f.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Claude API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    model,
	}, nil
}

// generateWithGemini generates content using Gemini API
func (f *ProviderFactory) generateWithGemini(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = f.geminiConfig.Model
	}

	geminiContents, systemText, err := convertMessagesToGemini(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.geminiConfig.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, model, geminiContents, config)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			apiDelay := ExtractRetryDelay(apiErr)
			backoff = retryConfig.CalculateBackoff(attempt, apiDelay)
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		f.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Gemini API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}

// Close closes all provider clients
func (f *ProviderFactory) Close() error {
	f.geminiClient = nil
	f.claudeClient = anthropic.Client{}
	f.claudeAPIKey = ""
	return nil
}
