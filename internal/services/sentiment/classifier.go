// Package sentiment provides lexicon-based sentiment classification for news
// headlines. The classifier is constructed explicitly at startup and injected
// into the intelligence provider; there is no lazy global model state.
package sentiment

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/models"
)

// Classifier scores text against weighted financial sentiment lexicons
type Classifier struct {
	positive map[string]float64
	negative map[string]float64
	logger   arbor.ILogger
}

// NewClassifier creates a classifier with the built-in financial lexicons
func NewClassifier(logger arbor.ILogger) *Classifier {
	c := &Classifier{
		positive: map[string]float64{
			"beat": 1, "beats": 1, "growth": 1, "gain": 1, "gains": 1,
			"surge": 1.5, "surges": 1.5, "soar": 1.5, "soars": 1.5,
			"record": 1, "strong": 1, "upgrade": 1.5, "upgraded": 1.5,
			"profit": 1, "profits": 1, "rally": 1, "rallies": 1,
			"outperform": 1.5, "bullish": 1.5, "buy": 0.5, "rise": 1,
			"rises": 1, "jump": 1, "jumps": 1, "expand": 0.5, "expands": 0.5,
			"dividend": 0.5, "momentum": 0.5, "exceed": 1, "exceeds": 1,
			"breakthrough": 1, "wins": 1, "win": 1, "approval": 1,
		},
		negative: map[string]float64{
			"miss": 1, "misses": 1, "loss": 1, "losses": 1, "decline": 1,
			"declines": 1, "plunge": 1.5, "plunges": 1.5, "drop": 1,
			"drops": 1, "fall": 1, "falls": 1, "weak": 1, "downgrade": 1.5,
			"downgraded": 1.5, "lawsuit": 1, "probe": 1, "investigation": 1,
			"bearish": 1.5, "sell": 0.5, "warns": 1, "warning": 1,
			"cut": 0.5, "cuts": 0.5, "layoff": 1, "layoffs": 1,
			"bankruptcy": 2, "fraud": 2, "recall": 1, "slump": 1.5,
			"slumps": 1.5, "crash": 2, "default": 1.5, "debt": 0.5,
		},
		logger: logger,
	}

	logger.Debug().
		Int("positive_terms", len(c.positive)).
		Int("negative_terms", len(c.negative)).
		Msg("Sentiment classifier initialized")

	return c
}

// Classify scores text and returns a label plus a score in [-1, 1].
// Positive scores lean positive, negative lean negative; the neutral band
// covers weak or mixed signals.
func (c *Classifier) Classify(text string) (string, float64) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return models.SentimentNeutral, 0
	}

	var score float64
	for _, token := range tokens {
		if w, ok := c.positive[token]; ok {
			score += w
		}
		if w, ok := c.negative[token]; ok {
			score -= w
		}
	}

	// Normalize by token count so long articles don't dominate
	normalized := score / float64(len(tokens)) * 10
	if normalized > 1 {
		normalized = 1
	}
	if normalized < -1 {
		normalized = -1
	}

	switch {
	case normalized > 0.1:
		return models.SentimentPositive, normalized
	case normalized < -0.1:
		return models.SentimentNegative, normalized
	default:
		return models.SentimentNeutral, normalized
	}
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}
