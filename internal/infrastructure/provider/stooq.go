package provider

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/httpx"

	"github.com/shopspring/decimal"
)

const (
	stooqDownloadPath = "/q/d/l/"
	// stooqWalkBackDays covers weekends and most holidays.
	stooqWalkBackDays = 3
)

// Stooq downloads daily bars as CSV. It takes the same tickers as the
// daily-bar route and translates them with StooqSymbol.
type Stooq struct {
	BaseURL string
	APIKey  string
	HTTP    *httpx.Client
}

var _ application.PriceProvider = (*Stooq)(nil)

func (s *Stooq) Name() string { return application.RouteDailyCSV }

var stooqIndices = map[string]string{
	"^GSPC":  "^spx",
	"^DJI":   "^dji",
	"^IXIC":  "^ndq",
	"^NDX":   "^ndx",
	"^GDAXI": "^dax",
	"^FTSE":  "^ftm",
	"^N225":  "^nkx",
	"^VIX":   "vi.f",
}

var stooqSuffixes = map[string]string{
	".L":  ".uk",
	".DE": ".de",
	".T":  ".jp",
	".HK": ".hk",
	".IS": ".tr",
}

// StooqSymbol translates a daily-bar ticker into Stooq's notation. It
// returns "" for tickers Stooq has no equivalent for.
func StooqSymbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case t == "":
		return ""
	case stooqIndices[t] != "":
		return stooqIndices[t]
	case strings.HasPrefix(t, "^"):
		return ""
	case strings.HasSuffix(t, "=X"):
		pair := strings.TrimSuffix(t, "=X")
		if len(pair) == 3 {
			pair = "USD" + pair
		}
		return strings.ToLower(pair)
	case strings.HasSuffix(t, "=F"):
		return strings.ToLower(strings.TrimSuffix(t, "=F")) + ".f"
	case strings.HasSuffix(t, "-USD"):
		return ""
	}
	if i := strings.LastIndex(t, "."); i > 0 {
		if suf, ok := stooqSuffixes[t[i:]]; ok {
			return strings.ToLower(t[:i]) + suf
		}
		return ""
	}
	return strings.ToLower(t) + ".us"
}

func (s *Stooq) PriceAt(ctx context.Context, ticker string, date time.Time) (float64, error) {
	if s.APIKey == "" {
		return 0, fmt.Errorf("stooq: %w", domain.ErrMissingCredentials)
	}
	sym := StooqSymbol(ticker)
	if sym == "" {
		return 0, fmt.Errorf("stooq %s: %w", ticker, domain.ErrUnsupportedAsset)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("stooq: invalid base url: %w", err)
	}
	day := domain.Day(date)
	u.Path = stooqDownloadPath
	q := u.Query()
	q.Set("s", sym)
	q.Set("d1", day.AddDate(0, 0, -stooqWalkBackDays).Format("20060102"))
	q.Set("d2", day.Format("20060102"))
	q.Set("i", "d")
	q.Set("apikey", s.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("stooq: create request: %w", err)
	}
	body, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("stooq %s: %w", sym, err)
	}
	closes, err := parseStooqCSV(body)
	if err != nil {
		return 0, fmt.Errorf("stooq %s: %w", sym, err)
	}
	for i := 0; i <= stooqWalkBackDays; i++ {
		if p, ok := closes[domain.DayKey(day.AddDate(0, 0, -i))]; ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("stooq %s %s: %w", sym, domain.DayKey(day), domain.ErrPriceNotFound)
}

// parseStooqCSV reads Date and Close columns. The literal "No data" body is
// a clean miss; anything else without those columns is malformed.
func parseStooqCSV(body []byte) (map[string]float64, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.EqualFold(trimmed, []byte("No data")) {
		return nil, domain.ErrPriceNotFound
	}
	r := csv.NewReader(bytes.NewReader(trimmed))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("malformed csv: %w", err)
	}
	dateCol, closeCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("malformed csv: header %q", strings.Join(header, ","))
	}

	out := map[string]float64{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %w", err)
		}
		if len(rec) <= closeCol || len(rec) <= dateCol {
			continue
		}
		d, err := domain.ParseDay(strings.TrimSpace(rec[dateCol]))
		if err != nil {
			continue
		}
		p, err := decimal.NewFromString(strings.TrimSpace(rec[closeCol]))
		if err != nil || !p.IsPositive() {
			continue
		}
		out[domain.DayKey(d)] = p.InexactFloat64()
	}
	return out, nil
}
