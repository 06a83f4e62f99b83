package market

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/eodhd"
	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// DataService resolves tickers into company fundamentals via EODHD
type DataService struct {
	client *eodhd.Client
	logger arbor.ILogger
}

func NewDataService(client *eodhd.Client, logger arbor.ILogger) interfaces.DataProvider {
	return &DataService{
		client: client,
		logger: logger,
	}
}

// Fetch retrieves fundamentals and a live quote for the ticker.
// An unresolvable symbol yields an invalid-ticker stage error.
func (s *DataService) Fetch(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	symbol := common.ParseTicker(ticker).EODHDSymbol()

	resp, err := s.client.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, classifyProviderError(models.StageData, ticker, err)
	}

	// EODHD returns 200 with an empty document for unknown symbols
	if resp == nil || resp.General == nil || resp.General.Name == "" {
		return nil, models.NewStageError(models.StageData, models.FailureInvalidTicker, ticker, nil)
	}

	fundamentals := &models.Fundamentals{
		CompanyName: resp.General.Name,
		Sector:      resp.General.Sector,
		Industry:    resp.General.Industry,
		Currency:    resp.General.CurrencyCode,
		Description: resp.General.Description,
	}

	if resp.Highlights != nil {
		fundamentals.MarketCap = resp.Highlights.MarketCapitalization
		fundamentals.PERatio = resp.Highlights.PERatio
		fundamentals.EPS = resp.Highlights.EarningsShare
		fundamentals.DividendYield = resp.Highlights.DividendYield
	}
	if resp.Technicals != nil {
		fundamentals.Week52High = resp.Technicals.FiftyTwoWeekHigh
		fundamentals.Week52Low = resp.Technicals.FiftyTwoWeekLow
	}

	// Quote failure is tolerable; the snapshot still has value without a live price
	quote, err := s.client.GetRealTimeQuote(ctx, symbol)
	if err != nil {
		s.logger.Warn().
			Str("ticker", ticker).
			Err(err).
			Msg("Real-time quote unavailable, continuing without current price")
	} else if quote != nil {
		fundamentals.CurrentPrice = quote.Close
	}

	s.logger.Debug().
		Str("ticker", ticker).
		Str("company", fundamentals.CompanyName).
		Msg("Fundamentals fetched")

	return fundamentals, nil
}
