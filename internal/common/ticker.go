// Package common provides shared utilities across the application.
package common

import (
	"strings"
	"unicode"
)

// Ticker represents a parsed exchange-qualified ticker.
// Format: EXCHANGE:CODE (e.g., "NASDAQ:ACME", "ASX:GNP")
type Ticker struct {
	// Exchange is the exchange code (e.g., "NYSE", "NASDAQ", "ASX")
	Exchange string
	// Code is the stock/security code (e.g., "ACME", "AAPL")
	Code string
	// Raw is the original ticker string
	Raw string
}

// ExchangeToSuffix maps exchange codes to EODHD API suffixes.
var ExchangeToSuffix = map[string]string{
	"NYSE":   ".US",
	"NASDAQ": ".US",
	"US":     ".US",
	"ASX":    ".AU",
	"LSE":    ".LSE",
	"TSX":    ".TO",
	"XETRA":  ".XETRA",
}

// DefaultExchange is the default exchange used when parsing tickers without an exchange prefix.
// Can be overridden via [eodhd] default_exchange config in TOML.
var DefaultExchange = "US"

// SetDefaultExchange sets the default exchange for parsing tickers.
// Called during app initialization from config.
func SetDefaultExchange(exchange string) {
	if exchange != "" {
		DefaultExchange = strings.ToUpper(exchange)
	}
}

// ParseTicker parses an exchange-qualified ticker string.
// Supports formats:
//   - "NASDAQ:ACME" -> Exchange="NASDAQ", Code="ACME" (colon separator)
//   - "NASDAQ.ACME" -> Exchange="NASDAQ", Code="ACME" (dot separator)
//   - "ACME" -> Exchange=DefaultExchange, Code="ACME"
//   - "acme" -> Exchange=DefaultExchange, Code="ACME" (normalized to uppercase)
//
// Note: EODHD uses CODE.EXCHANGE (e.g., "ACME.US"), while our format uses EXCHANGE.CODE.
// Use EODHDSymbol() to convert to EODHD format.
func ParseTicker(ticker string) Ticker {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return Ticker{}
	}

	// Check for exchange prefix with colon separator (EXCHANGE:CODE)
	if idx := strings.Index(ticker, ":"); idx > 0 {
		exchange := strings.ToUpper(ticker[:idx])
		code := strings.ToUpper(ticker[idx+1:])
		return Ticker{
			Exchange: exchange,
			Code:     code,
			Raw:      ticker,
		}
	}

	// Check for exchange prefix with dot separator (EXCHANGE.CODE)
	// Only match if the prefix is a known exchange to avoid conflicts with codes containing dots
	if idx := strings.Index(ticker, "."); idx > 0 {
		possibleExchange := strings.ToUpper(ticker[:idx])
		if _, ok := ExchangeToSuffix[possibleExchange]; ok {
			code := strings.ToUpper(ticker[idx+1:])
			return Ticker{
				Exchange: possibleExchange,
				Code:     code,
				Raw:      ticker,
			}
		}
	}

	// No exchange prefix - use default exchange
	return Ticker{
		Exchange: DefaultExchange,
		Code:     strings.ToUpper(ticker),
		Raw:      ticker,
	}
}

// IsValid reports whether the ticker code has a plausible shape: 1-10
// alphanumeric characters. Provider lookups still decide whether the symbol
// actually exists.
func (t Ticker) IsValid() bool {
	if t.Code == "" || len(t.Code) > 10 {
		return false
	}
	for _, r := range t.Code {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// String returns the full exchange-qualified ticker string.
func (t Ticker) String() string {
	if t.Exchange == "" || t.Code == "" {
		return t.Code
	}
	return t.Exchange + ":" + t.Code
}

// EODHDSymbol returns the EODHD API symbol format.
// Example: "NASDAQ:ACME" -> "ACME.US"
func (t Ticker) EODHDSymbol() string {
	if t.Code == "" {
		return ""
	}
	suffix, ok := ExchangeToSuffix[t.Exchange]
	if !ok {
		suffix = "." + t.Exchange
	}
	return t.Code + suffix
}
