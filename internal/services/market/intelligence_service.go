package market

import (
	"context"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/eodhd"
	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// IntelligenceService assembles a classified news briefing from EODHD news
type IntelligenceService struct {
	client     *eodhd.Client
	classifier interfaces.SentimentClassifier
	newsLimit  int
	logger     arbor.ILogger
}

func NewIntelligenceService(client *eodhd.Client, classifier interfaces.SentimentClassifier, newsLimit int, logger arbor.ILogger) interfaces.IntelligenceProvider {
	if newsLimit <= 0 {
		newsLimit = 10
	}
	return &IntelligenceService{
		client:     client,
		classifier: classifier,
		newsLimit:  newsLimit,
		logger:     logger,
	}
}

// Fetch retrieves recent news for the ticker and classifies each headline.
// An empty news feed is a valid briefing, not an error.
func (s *IntelligenceService) Fetch(ctx context.Context, ticker string, companyName string) (*models.Briefing, error) {
	symbol := common.ParseTicker(ticker).EODHDSymbol()

	items, err := s.client.GetNews(ctx, []string{symbol}, eodhd.WithLimit(s.newsLimit))
	if err != nil {
		return nil, classifyProviderError(models.StageIntelligence, ticker, err)
	}

	briefing := &models.Briefing{
		Articles: make([]models.Article, 0, len(items)),
	}

	for _, item := range items {
		text := item.Title
		if item.Content != "" {
			text = item.Title + ". " + item.Content
		}
		label, score := s.classifier.Classify(text)

		briefing.Articles = append(briefing.Articles, models.Article{
			Title:          item.Title,
			URL:            item.Link,
			Source:         sourceFromLink(item.Link),
			PublishedAt:    item.DateStr,
			Sentiment:      label,
			SentimentScore: score,
		})

		briefing.Summary.Total++
		switch label {
		case models.SentimentPositive:
			briefing.Summary.Positive++
		case models.SentimentNegative:
			briefing.Summary.Negative++
		default:
			briefing.Summary.Neutral++
		}
	}

	s.logger.Debug().
		Str("ticker", ticker).
		Int("articles", briefing.Summary.Total).
		Int("positive", briefing.Summary.Positive).
		Int("negative", briefing.Summary.Negative).
		Msg("Intelligence briefing assembled")

	return briefing, nil
}

// sourceFromLink derives a publisher name from the article URL host
func sourceFromLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}
