package models

// AnalysisResult is the incrementally-built result document. Each stage owns
// exactly one field; pointers distinguish "not yet written" from empty.
// JSON names are part of the client contract and must not change.
type AnalysisResult struct {
	Fundamentals *Fundamentals `json:"fundamentals,omitempty"`
	Briefing     *Briefing     `json:"intelligence_briefing,omitempty"`
	Forecast     *Forecast     `json:"prediction_analysis,omitempty"`
	Analysis     *Report       `json:"llm_analysis,omitempty"`
	Advisor      *Thesis       `json:"advisor_summary,omitempty"`

	// Error carries the user-facing failure message when the job failed
	Error string `json:"error,omitempty"`
}

// SubKeyCount returns the number of stage-owned fields present
func (r *AnalysisResult) SubKeyCount() int {
	count := 0
	if r.Fundamentals != nil {
		count++
	}
	if r.Briefing != nil {
		count++
	}
	if r.Forecast != nil {
		count++
	}
	if r.Analysis != nil {
		count++
	}
	if r.Advisor != nil {
		count++
	}
	return count
}

// Fundamentals holds company snapshot data produced by the data stage
type Fundamentals struct {
	CompanyName   string  `json:"company_name"`
	Sector        string  `json:"sector,omitempty"`
	Industry      string  `json:"industry,omitempty"`
	CurrentPrice  float64 `json:"current_price"`
	Currency      string  `json:"currency,omitempty"`
	MarketCap     float64 `json:"market_cap,omitempty"`
	PERatio       float64 `json:"pe_ratio,omitempty"`
	EPS           float64 `json:"eps,omitempty"`
	DividendYield float64 `json:"dividend_yield,omitempty"`
	Week52High    float64 `json:"52_week_high,omitempty"`
	Week52Low     float64 `json:"52_week_low,omitempty"`
	Description   string  `json:"description,omitempty"`
}

// Sentiment labels applied to briefing articles
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Article is one classified news item in the intelligence briefing
type Article struct {
	Title          string  `json:"title"`
	URL            string  `json:"url,omitempty"`
	Source         string  `json:"source,omitempty"`
	PublishedAt    string  `json:"published_at,omitempty"`
	Sentiment      string  `json:"sentiment"`
	SentimentScore float64 `json:"sentiment_score"`
}

// SentimentSummary aggregates article classifications
type SentimentSummary struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Briefing is the intelligence stage output: classified news plus counts
type Briefing struct {
	Articles []Article        `json:"articles"`
	Summary  SentimentSummary `json:"sentiment_summary"`
}

// ForecastPoint is one projected value in the forecast series
type ForecastPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
	Lower float64 `json:"lower,omitempty"`
	Upper float64 `json:"upper,omitempty"`
}

// Forecast is the prediction stage output
type Forecast struct {
	Trend          string          `json:"trend"`      // "upward" or "downward"
	Confidence     string          `json:"confidence"` // "high", "moderate", or "low"
	Summary        string          `json:"summary"`
	CurrentValue   float64         `json:"current_value"`
	ProjectedValue float64         `json:"projected_value"`
	HorizonDays    int             `json:"horizon_days"`
	Series         []ForecastPoint `json:"series,omitempty"`
}

// Report is the narrative produced by the analysis stage
type Report struct {
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Thesis is the final investment narrative from the advisor stage
type Thesis struct {
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}
