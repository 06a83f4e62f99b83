package eodhd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetFundamentals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fundamentals/ACME.US", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))
		assert.Equal(t, "json", r.URL.Query().Get("fmt"))

		fmt.Fprint(w, `{
			"General": {"Code": "ACME", "Name": "Acme Corp", "Sector": "Technology", "CurrencyCode": "USD"},
			"Highlights": {"PERatio": 24.5, "EarningsShare": 4.1, "MarketCapitalization": 1000000}
		}`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))

	result, err := client.GetFundamentals(context.Background(), "ACME.US")
	require.NoError(t, err)
	require.NotNil(t, result.General)
	assert.Equal(t, "Acme Corp", result.General.Name)
	assert.Equal(t, "Technology", result.General.Sector)
	assert.InDelta(t, 24.5, result.Highlights.PERatio, 0.001)
}

func TestClient_GetEOD_ParsesDates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/ACME.US", r.URL.Path)
		fmt.Fprint(w, `[
			{"date": "2026-08-27", "close": 100.5, "volume": 1200},
			{"date": "2026-08-28", "close": 101.25, "volume": 900}
		]`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))

	result, err := client.GetEOD(context.Background(), "ACME.US")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 2026, result[0].Date.Year())
	assert.InDelta(t, 101.25, result[1].Close, 0.001)
}

func TestClient_GetNews_SymbolParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news", r.URL.Path)
		assert.Equal(t, "ACME.US", r.URL.Query().Get("s"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `[{"date": "2026-08-28 10:30:00", "title": "Acme beats estimates", "link": "https://example.com/1"}]`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))

	result, err := client.GetNews(context.Background(), []string{"ACME.US"}, WithLimit(5))
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "Acme beats estimates", result[0].Title)
	assert.False(t, result[0].Date.IsZero())
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Symbol not found")
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))

	_, err := client.GetFundamentals(context.Background(), "ZZZZINVALID.US")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.True(t, apiErr.IsNotFound())
}
