package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

const analystSystemPrompt = `You are a senior financial analyst for an investment research desk.
Base your analysis ONLY on the provided data. If data is limited, say so and
adjust your confidence accordingly. Do not offer financial advice.`

// Analyst implements the LLMAnalyst provider on top of the provider factory
type Analyst struct {
	factory *ProviderFactory
	model   string
	logger  arbor.ILogger
}

// NewAnalyst creates the analysis-stage provider. An empty model uses the
// factory's default provider and model.
func NewAnalyst(factory *ProviderFactory, model string, logger arbor.ILogger) interfaces.LLMAnalyst {
	return &Analyst{
		factory: factory,
		model:   model,
		logger:  logger,
	}
}

// Analyze produces a narrative report from fundamentals and the news briefing
func (a *Analyst) Analyze(ctx context.Context, ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) (*models.Report, error) {
	prompt := buildAnalystPrompt(ticker, fundamentals, briefing)

	resp, err := a.factory.GenerateContent(ctx, &ContentRequest{
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
		Model:             a.model,
		SystemInstruction: analystSystemPrompt,
	})
	if err != nil {
		return nil, models.NewStageError(models.StageAnalysis, models.FailureModelInference, ticker, err)
	}

	a.logger.Debug().
		Str("ticker", ticker).
		Str("provider", string(resp.Provider)).
		Int("length", len(resp.Text)).
		Msg("Analysis report generated")

	return &models.Report{
		Text:     resp.Text,
		Model:    resp.Model,
		Provider: string(resp.Provider),
	}, nil
}

func buildAnalystPrompt(ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) string {
	companyName := "Unknown"
	fundamentalsSummary := "No fundamental data available."
	if fundamentals != nil {
		companyName = fundamentals.CompanyName
		fundamentalsSummary = fmt.Sprintf(
			"Company: %s\nSector: %s\nCurrent Price: %.2f %s\nMarket Cap: %.0f\nP/E Ratio: %.2f\nEPS: %.2f",
			fundamentals.CompanyName, fundamentals.Sector, fundamentals.CurrentPrice,
			fundamentals.Currency, fundamentals.MarketCap, fundamentals.PERatio, fundamentals.EPS,
		)
	}

	newsSummary := "No recent news found."
	if briefing != nil && len(briefing.Articles) > 0 {
		var lines []string
		for i, article := range briefing.Articles {
			if i >= 10 {
				break
			}
			lines = append(lines, fmt.Sprintf("- %s (Source: %s, Sentiment: %s)", article.Title, article.Source, article.Sentiment))
		}
		newsSummary = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Provide a comprehensive analysis and a 30-day forecast for the stock: %s (%s).

**Important Instructions:**
- If fundamental data is limited or unavailable, focus your analysis on news sentiment and general market conditions
- Always provide a forecast range even with limited data, but adjust confidence accordingly

**Data Provided:**

1. **Fundamentals:**
%s

2. **Recent News Headlines & Sentiment:**
%s

**Your Analysis Report (in Markdown format):**

## 30-Day Price Forecast

**Analysis:** Analyze available data (valuation, news sentiment, market conditions). If data is limited, focus on sentiment analysis and sector trends.

**Predicted Range:** Provide a realistic price range for 30 days. If no current price is available, state "Unable to provide specific range due to data limitations."

**Justification:** Explain your forecast based on available information.

**Confidence:** High/Moderate/Low based on data quality and availability.

## Investment Thesis

**Bull Case:**
- 2-3 bullet points on positive signals from the available data

**Bear Case:**
- 2-3 bullet points on negative signals or risks

## Actionable Strategy

**Signal:** Buy/Sell/Hold (choose one)

**Strategy:** 1-2 sentences of specific strategy based on the analysis above.

**Risk Management:** Brief note on stop-loss or position sizing if relevant.`,
		ticker, companyName, fundamentalsSummary, newsSummary)
}
