package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/httpx"

	"github.com/shopspring/decimal"
)

const binanceTickerPath = "/api/v3/ticker/price"

// binanceInvalidSymbol is the exchange's error code for unknown pairs.
const binanceInvalidSymbol = -1121

// Binance reads the live spot price of a crypto base against QuoteAsset.
// It has no history; the date argument is ignored.
type Binance struct {
	BaseURL    string
	QuoteAsset string
	HTTP       *httpx.Client
}

var _ application.PriceProvider = (*Binance)(nil)

func (b *Binance) Name() string { return application.RouteSpotCrypto }

type binanceTicker struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (b *Binance) PriceAt(ctx context.Context, base string, _ time.Time) (float64, error) {
	if base == "" {
		return 0, domain.ErrSymbolNotFound
	}
	quote := b.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	pair := strings.ToUpper(base) + quote

	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("binance: invalid base url: %w", err)
	}
	u.Path = binanceTickerPath
	q := u.Query()
	q.Set("symbol", pair)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("binance: create request: %w", err)
	}
	var t binanceTicker
	if err := b.HTTP.DoJSON(ctx, req, &t); err != nil {
		if isBinanceInvalidSymbol(err) {
			return 0, fmt.Errorf("binance %s: %w", pair, domain.ErrSymbolNotFound)
		}
		return 0, fmt.Errorf("binance %s: %w", pair, err)
	}
	if !t.Price.IsPositive() {
		return 0, fmt.Errorf("binance %s: %w", pair, domain.ErrPriceNotFound)
	}
	return t.Price.InexactFloat64(), nil
}

func isBinanceInvalidSymbol(err error) bool {
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		return false
	}
	var be binanceError
	if jerr := json.Unmarshal([]byte(se.Body), &be); jerr != nil {
		return strings.Contains(se.Body, "Invalid symbol")
	}
	return be.Code == binanceInvalidSymbol
}
