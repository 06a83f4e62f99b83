package market

import (
	"context"
	"errors"
	"net"

	"github.com/ternarybob/aequitas/internal/eodhd"
	"github.com/ternarybob/aequitas/internal/models"
)

// classifyProviderError maps an EODHD client error onto the failure taxonomy.
// 404s mean the symbol does not exist; deadline and network timeouts are
// retryable timeouts; everything else from the provider is retryable
// unavailability.
func classifyProviderError(stage models.StageKind, ticker string, err error) error {
	var apiErr *eodhd.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsNotFound() {
			return models.NewStageError(stage, models.FailureInvalidTicker, ticker, err)
		}
		return models.NewStageError(stage, models.FailureProviderUnavailable, ticker, err)
	}

	var rateErr *eodhd.RateLimitError
	if errors.As(err, &rateErr) {
		return models.NewStageError(stage, models.FailureProviderUnavailable, ticker, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewStageError(stage, models.FailureProviderTimeout, ticker, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewStageError(stage, models.FailureProviderTimeout, ticker, err)
	}

	return models.NewStageError(stage, models.FailureProviderUnavailable, ticker, err)
}
