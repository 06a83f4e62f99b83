package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/models"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(arbor.NewLogger())

	tests := []struct {
		name  string
		text  string
		label string
	}{
		{"positive headline", "Acme beats estimates as profits surge on record growth", models.SentimentPositive},
		{"negative headline", "Acme shares plunge after earnings miss and analyst downgrade", models.SentimentNegative},
		{"neutral headline", "Acme to hold annual shareholder meeting next month", models.SentimentNeutral},
		{"empty text", "", models.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, score := c.Classify(tt.text)
			assert.Equal(t, tt.label, label)
			assert.GreaterOrEqual(t, score, -1.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestClassifier_ScoreSign(t *testing.T) {
	c := NewClassifier(arbor.NewLogger())

	_, pos := c.Classify("strong rally and record gains")
	assert.Greater(t, pos, 0.0)

	_, neg := c.Classify("bankruptcy fears trigger crash")
	assert.Less(t, neg, 0.0)
}
