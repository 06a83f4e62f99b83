package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

const advisorSystemPrompt = `You are a sharp, concise senior financial analyst.
Provide a clear investment thesis based on the data provided.
Do not offer financial advice. Analyze the data objectively.`

// Advisor synthesizes the final thesis from the accumulated analysis document
type Advisor struct {
	factory *ProviderFactory
	model   string
	logger  arbor.ILogger
}

func NewAdvisor(factory *ProviderFactory, model string, logger arbor.ILogger) interfaces.AdvisorSynthesizer {
	return &Advisor{
		factory: factory,
		model:   model,
		logger:  logger,
	}
}

// Synthesize produces the advisor summary from every stage result gathered so far
func (a *Advisor) Synthesize(ctx context.Context, ticker string, result *models.AnalysisResult) (*models.Thesis, error) {
	prompt := buildAdvisorPrompt(ticker, result)

	resp, err := a.factory.GenerateContent(ctx, &ContentRequest{
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
		Model:             a.model,
		SystemInstruction: advisorSystemPrompt,
	})
	if err != nil {
		return nil, models.NewStageError(models.StageAdvisor, models.FailureModelInference, ticker, err)
	}

	a.logger.Debug().
		Str("ticker", ticker).
		Str("provider", string(resp.Provider)).
		Int("length", len(resp.Text)).
		Msg("Advisor thesis generated")

	return &models.Thesis{
		Text:     resp.Text,
		Model:    resp.Model,
		Provider: string(resp.Provider),
	}, nil
}

func buildAdvisorPrompt(ticker string, result *models.AnalysisResult) string {
	fundamentalsSummary := "No fundamental data available."
	if result != nil && result.Fundamentals != nil {
		f := result.Fundamentals
		fundamentalsSummary = fmt.Sprintf(
			"Company: %s\nCurrent Price: %.2f %s\nMarket Cap: %.0f\nP/E Ratio: %.2f\nSector: %s",
			f.CompanyName, f.CurrentPrice, f.Currency, f.MarketCap, f.PERatio, f.Sector,
		)
	}

	predictionSummary := "No prediction summary available."
	if result != nil && result.Forecast != nil && result.Forecast.Summary != "" {
		predictionSummary = result.Forecast.Summary
	}

	newsSummary := "No news articles found."
	if result != nil && result.Briefing != nil && len(result.Briefing.Articles) > 0 {
		var lines []string
		for i, article := range result.Briefing.Articles {
			if i >= 2 {
				break
			}
			lines = append(lines, fmt.Sprintf("'%s' (%s)", article.Title, article.Sentiment))
		}
		newsSummary = strings.Join(lines, ", ")
	}

	return fmt.Sprintf(`Provide a clear investment thesis for %s based on the data below.

**Data Overview:**
- **Fundamentals:**
%s
- **Quantitative Forecast:** %s
- **Recent News Headlines & Sentiment:** %s

**Your Analysis (in Markdown format):**
**1. Executive Summary:** A 2-sentence summary of the company's current situation based on the data.
**2. Bull Case:** 2-3 bullet points on the positive signals from the data.
**3. Bear Case:** 2-3 bullet points on the primary risks or negative signals.
**4. Final Recommendation:** State ONE of the following: 'Strong Buy', 'Buy', 'Hold', 'Sell', or 'Strong Sell' and provide a brief 1-sentence justification based purely on the provided data mix.`,
		ticker, fundamentalsSummary, predictionSummary, newsSummary)
}
