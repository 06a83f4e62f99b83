package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/eodhd"
	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// ForecastService projects a price trend from EOD history using a least
// squares fit over closing prices
type ForecastService struct {
	client      *eodhd.Client
	historyDays int
	horizonDays int
	logger      arbor.ILogger
}

func NewForecastService(client *eodhd.Client, historyDays, horizonDays int, logger arbor.ILogger) interfaces.ForecastProvider {
	if historyDays <= 0 {
		historyDays = 365
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &ForecastService{
		client:      client,
		historyDays: historyDays,
		horizonDays: horizonDays,
		logger:      logger,
	}
}

// Fetch downloads the history window and extrapolates the fitted trend line
// over the forecast horizon
func (s *ForecastService) Fetch(ctx context.Context, ticker string) (*models.Forecast, error) {
	symbol := common.ParseTicker(ticker).EODHDSymbol()

	now := time.Now()
	history, err := s.client.GetEOD(ctx, symbol,
		eodhd.WithDateRange(now.AddDate(0, 0, -s.historyDays), now),
		eodhd.WithOrder("a"),
	)
	if err != nil {
		return nil, classifyProviderError(models.StagePrediction, ticker, err)
	}
	if len(history) < 2 {
		return nil, models.NewStageError(models.StagePrediction, models.FailureInvalidTicker, ticker,
			fmt.Errorf("insufficient price history: %d points", len(history)))
	}

	closes := make([]float64, len(history))
	for i, day := range history {
		closes[i] = day.Close
	}

	slope, intercept := fitLine(closes)
	band := residualStdDev(closes, slope, intercept)

	current := closes[len(closes)-1]
	projected := intercept + slope*float64(len(closes)-1+s.horizonDays)

	trend := "upward"
	if projected < current {
		trend = "downward"
	}

	change := 0.0
	if current != 0 {
		change = (projected - current) / current * 100
	}

	forecast := &models.Forecast{
		Trend:          trend,
		Confidence:     fitConfidence(band, current),
		CurrentValue:   current,
		ProjectedValue: projected,
		HorizonDays:    s.horizonDays,
		Summary: fmt.Sprintf(
			"The model predicts a %s trend over the next %d days. Current price: %.2f, predicted price in %d days: %.2f (%+.2f%% change).",
			trend, s.horizonDays, current, s.horizonDays, projected, change,
		),
		Series: make([]models.ForecastPoint, 0, s.horizonDays),
	}

	lastDate := history[len(history)-1].Date
	if lastDate.IsZero() {
		lastDate = now
	}
	for day := 1; day <= s.horizonDays; day++ {
		value := intercept + slope*float64(len(closes)-1+day)
		forecast.Series = append(forecast.Series, models.ForecastPoint{
			Date:  lastDate.AddDate(0, 0, day).Format("2006-01-02"),
			Value: value,
			Lower: value - 1.96*band,
			Upper: value + 1.96*band,
		})
	}

	s.logger.Debug().
		Str("ticker", ticker).
		Str("trend", trend).
		Int("history_points", len(history)).
		Msg("Forecast computed")

	return forecast, nil
}

// fitLine computes least squares slope and intercept over equally spaced values
func fitLine(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// fitConfidence grades fit quality by the residual band relative to the
// current price
func fitConfidence(band, current float64) string {
	if current <= 0 {
		return "low"
	}
	switch ratio := band / current; {
	case ratio < 0.02:
		return "high"
	case ratio < 0.06:
		return "moderate"
	default:
		return "low"
	}
}

func residualStdDev(values []float64, slope, intercept float64) float64 {
	if len(values) < 3 {
		return 0
	}
	var sumSq float64
	for i, y := range values {
		residual := y - (intercept + slope*float64(i))
		sumSq += residual * residual
	}
	return math.Sqrt(sumSq / float64(len(values)-2))
}
