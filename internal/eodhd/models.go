package eodhd

import (
	"time"
)

// EODData represents a single day's end-of-day price data.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
}

// EODResponse is a slice of EODData.
type EODResponse []EODData

// NewsItem represents a single news article.
type NewsItem struct {
	Date    time.Time `json:"-"`
	DateStr string    `json:"date"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Link    string    `json:"link"`
	Symbols []string  `json:"symbols"`
	Tags    []string  `json:"tags"`
}

// NewsResponse is a slice of NewsItem.
type NewsResponse []NewsItem

// FundamentalsResponse represents the fundamentals data for a symbol.
// Only the sections the analysis pipeline consumes are modeled.
type FundamentalsResponse struct {
	General    *GeneralInfo `json:"General"`
	Highlights *Highlights  `json:"Highlights"`
	Valuation  *Valuation   `json:"Valuation"`
	Technicals *Technicals  `json:"Technicals"`
}

// GeneralInfo contains general company information.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	CountryName  string `json:"CountryName"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	IsDelisted   bool   `json:"IsDelisted"`
	Description  string `json:"Description"`
	WebURL       string `json:"WebURL"`
}

// Highlights contains key financial highlights.
type Highlights struct {
	MarketCapitalization float64 `json:"MarketCapitalization"`
	EBITDA               float64 `json:"EBITDA"`
	PERatio              float64 `json:"PERatio"`
	PEGRatio             float64 `json:"PEGRatio"`
	BookValue            float64 `json:"BookValue"`
	DividendShare        float64 `json:"DividendShare"`
	DividendYield        float64 `json:"DividendYield"`
	EarningsShare        float64 `json:"EarningsShare"`
	ProfitMargin         float64 `json:"ProfitMargin"`
	RevenueTTM           float64 `json:"RevenueTTM"`
	DilutedEpsTTM        float64 `json:"DilutedEpsTTM"`
}

// Valuation contains valuation metrics.
type Valuation struct {
	TrailingPE    float64 `json:"TrailingPE"`
	ForwardPE     float64 `json:"ForwardPE"`
	PriceSalesTTM float64 `json:"PriceSalesTTM"`
	PriceBookMRQ  float64 `json:"PriceBookMRQ"`
}

// Technicals contains technical analysis data.
type Technicals struct {
	Beta             float64 `json:"Beta"`
	FiftyTwoWeekHigh float64 `json:"52WeekHigh"`
	FiftyTwoWeekLow  float64 `json:"52WeekLow"`
	FiftyDayMA       float64 `json:"50DayMA"`
	TwoHundredDayMA  float64 `json:"200DayMA"`
}
