package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/httpx"
)

const (
	yahooChartPath  = "/v8/finance/chart/"
	yahooSearchPath = "/v1/finance/search"
)

// Yahoo reads daily bars from the chart endpoint and maps free text to
// tickers through the search endpoint.
type Yahoo struct {
	BaseURL string
	HTTP    *httpx.Client
}

var (
	_ application.PriceProvider  = (*Yahoo)(nil)
	_ application.RangeProvider  = (*Yahoo)(nil)
	_ application.SymbolSearcher = (*Yahoo)(nil)
)

func (y *Yahoo) Name() string { return application.RouteDailyBars }

type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooSearchResp struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

func (y *Yahoo) PriceAt(ctx context.Context, symbol string, date time.Time) (float64, error) {
	prices, err := y.PriceRange(ctx, symbol, date, date)
	if err != nil {
		return 0, err
	}
	p, ok := prices[domain.DayKey(date)]
	if !ok {
		return 0, domain.ErrPriceNotFound
	}
	return p, nil
}

// PriceRange returns closes for [start, end] keyed by the exchange-local
// trading day. A bar without a close falls back to its adjusted close;
// bars with neither are left out.
func (y *Yahoo) PriceRange(ctx context.Context, symbol string, start, end time.Time) (map[string]float64, error) {
	if symbol == "" {
		return nil, domain.ErrSymbolNotFound
	}
	u, err := url.Parse(y.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("yahoo: invalid base url: %w", err)
	}
	u.Path = yahooChartPath + url.PathEscape(symbol)
	q := u.Query()
	q.Set("period1", strconv.FormatInt(domain.Day(start).Unix(), 10))
	q.Set("period2", strconv.FormatInt(domain.Day(end).AddDate(0, 0, 1).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: create request: %w", err)
	}
	var body yahooChartResp
	if err := y.HTTP.DoJSON(ctx, req, &body); err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	if body.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo %s: %s: %w", symbol, body.Chart.Error.Description, domain.ErrSymbolNotFound)
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrPriceNotFound)
	}

	res := body.Chart.Result[0]
	var closes, adjusted []*float64
	if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}
	if len(res.Indicators.Adjclose) > 0 {
		adjusted = res.Indicators.Adjclose[0].Adjclose
	}
	if closes == nil && adjusted == nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, domain.ErrPriceNotFound)
	}
	from, to := domain.Day(start), domain.Day(end)
	out := make(map[string]float64, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		p, ok := barValue(closes, i)
		if !ok {
			if p, ok = barValue(adjusted, i); !ok {
				continue
			}
		}
		local := domain.Day(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		if local.Before(from) || local.After(to) {
			continue
		}
		out[domain.DayKey(local)] = p
	}
	return out, nil
}

func barValue(series []*float64, i int) (float64, bool) {
	if i >= len(series) || series[i] == nil || *series[i] <= 0 {
		return 0, false
	}
	return *series[i], true
}

// Search returns the best-match ticker for query.
func (y *Yahoo) Search(ctx context.Context, query string) (string, error) {
	u, err := url.Parse(y.BaseURL)
	if err != nil {
		return "", fmt.Errorf("yahoo: invalid base url: %w", err)
	}
	u.Path = yahooSearchPath
	q := u.Query()
	q.Set("q", query)
	q.Set("quotesCount", "5")
	q.Set("newsCount", "0")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("yahoo: create request: %w", err)
	}
	var body yahooSearchResp
	if err := y.HTTP.DoJSON(ctx, req, &body); err != nil {
		return "", fmt.Errorf("yahoo search %q: %w", query, err)
	}
	for _, qt := range body.Quotes {
		if qt.Symbol != "" {
			return qt.Symbol, nil
		}
	}
	return "", fmt.Errorf("yahoo search %q: %w", query, domain.ErrSymbolNotFound)
}
