package provider_test

import (
	"context"
	"net/http"
	"testing"

	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/provider"

	"github.com/stretchr/testify/require"
)

// 2025-01-02 and 2025-01-03 14:30 UTC (09:30 New York), one bar without a close.
const yahooChartOK = `{"chart":{"result":[{
  "meta":{"symbol":"AAPL","currency":"USD","gmtoffset":-18000},
  "timestamp":[1735828200,1735914600,1736173800],
  "indicators":{"quote":[{"close":[243.85,243.36,null]}]}
}],"error":null}}`

func TestYahoo_PriceRange(t *testing.T) {
	t.Parallel()
	var seen string
	y := &provider.Yahoo{BaseURL: "https://query1.finance.yahoo.com", HTTP: stubClient(yahooChartOK, 200, &seen)}

	got, err := y.PriceRange(context.Background(), "AAPL", mustDay("2025-01-01"), mustDay("2025-01-10"))
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"2025-01-02": 243.85, "2025-01-03": 243.36}, got)
	require.Contains(t, seen, "/v8/finance/chart/AAPL")
	require.Contains(t, seen, "interval=1d")
	require.Contains(t, seen, "period1=1735689600")
}

func TestYahoo_PriceAt(t *testing.T) {
	t.Parallel()
	y := &provider.Yahoo{BaseURL: "https://query1.finance.yahoo.com", HTTP: stubClient(yahooChartOK, 200, nil)}

	p, err := y.PriceAt(context.Background(), "AAPL", mustDay("2025-01-03"))
	require.NoError(t, err)
	require.InDelta(t, 243.36, p, 1e-9)

	_, err = y.PriceAt(context.Background(), "AAPL", mustDay("2025-01-06"))
	require.ErrorIs(t, err, domain.ErrPriceNotFound)
}

func TestYahoo_AdjustedCloseFallback(t *testing.T) {
	t.Parallel()
	body := `{"chart":{"result":[{
  "meta":{"symbol":"AAPL","currency":"USD","gmtoffset":-18000},
  "timestamp":[1735828200,1735914600],
  "indicators":{"quote":[{"close":[null,243.36]}],"adjclose":[{"adjclose":[236.85,242.1]}]}
}],"error":null}}`
	y := &provider.Yahoo{BaseURL: "https://query1.finance.yahoo.com", HTTP: stubClient(body, 200, nil)}

	got, err := y.PriceRange(context.Background(), "AAPL", mustDay("2025-01-01"), mustDay("2025-01-10"))
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"2025-01-02": 236.85, "2025-01-03": 243.36}, got)

	p, err := y.PriceAt(context.Background(), "AAPL", mustDay("2025-01-02"))
	require.NoError(t, err)
	require.InDelta(t, 236.85, p, 1e-9)
}

func TestYahoo_UnknownSymbol(t *testing.T) {
	t.Parallel()
	body := `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`
	y := &provider.Yahoo{BaseURL: "https://query1.finance.yahoo.com", HTTP: stubClient(body, 404, nil)}

	_, err := y.PriceRange(context.Background(), "NOPE", mustDay("2025-01-01"), mustDay("2025-01-10"))
	require.ErrorIs(t, err, domain.ErrSymbolNotFound)
	require.True(t, domain.IsCleanMiss(err))
}

func TestYahoo_MalformedPayloadIsFailure(t *testing.T) {
	t.Parallel()
	y := &provider.Yahoo{BaseURL: "https://query1.finance.yahoo.com", HTTP: stubClient(`<html>`, 200, nil)}

	_, err := y.PriceRange(context.Background(), "AAPL", mustDay("2025-01-01"), mustDay("2025-01-10"))
	require.Error(t, err)
	require.False(t, domain.IsCleanMiss(err))
	require.True(t, provider.CountsAsFailure(err))
}

func TestYahoo_Search(t *testing.T) {
	t.Parallel()
	srv, client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/finance/search" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("q") == "apple" {
			_, _ = w.Write([]byte(`{"quotes":[{"symbol":"AAPL","quoteType":"EQUITY"},{"symbol":"APLE"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"quotes":[]}`))
	})
	y := &provider.Yahoo{BaseURL: srv.URL, HTTP: client}

	sym, err := y.Search(context.Background(), "apple")
	require.NoError(t, err)
	require.Equal(t, "AAPL", sym)

	_, err = y.Search(context.Background(), "zzzz")
	require.ErrorIs(t, err, domain.ErrSymbolNotFound)
}
