package interfaces

import (
	"context"

	"github.com/ternarybob/aequitas/internal/models"
)

// DataProvider resolves a ticker into fundamental company data.
// Implementations return a StageError with FailureInvalidTicker when the
// symbol cannot be resolved.
type DataProvider interface {
	Fetch(ctx context.Context, ticker string) (*models.Fundamentals, error)
}

// IntelligenceProvider assembles a classified news briefing for a company
type IntelligenceProvider interface {
	Fetch(ctx context.Context, ticker string, companyName string) (*models.Briefing, error)
}

// ForecastProvider produces a price trend projection from historical data
type ForecastProvider interface {
	Fetch(ctx context.Context, ticker string) (*models.Forecast, error)
}

// LLMAnalyst turns fundamentals and the briefing into a narrative report
type LLMAnalyst interface {
	Analyze(ctx context.Context, ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) (*models.Report, error)
}

// AdvisorSynthesizer condenses the full accumulated result into a final thesis
type AdvisorSynthesizer interface {
	Synthesize(ctx context.Context, ticker string, result *models.AnalysisResult) (*models.Thesis, error)
}

// SentimentClassifier scores a piece of text.
// Constructed explicitly at startup; no lazy global model state.
type SentimentClassifier interface {
	Classify(text string) (label string, score float64)
}
