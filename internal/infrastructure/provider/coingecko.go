package provider

import (
	"context"
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

const coinGeckoHistoryPath = "/api/v3/coins/%s/history"

// coinGeckoIDs maps base symbols onto CoinGecko coin ids. Unmapped symbols
// are not priced by this source.
var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"XRP":   "ripple",
	"BNB":   "binancecoin",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"AVAX":  "avalanche-2",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"LTC":   "litecoin",
	"TRX":   "tron",
	"POL":   "polygon-ecosystem-token",
	"MATIC": "matic-network",
	"SHIB":  "shiba-inu",
	"TON":   "the-open-network",
	"ATOM":  "cosmos",
	"XLM":   "stellar",
	"USDT":  "tether",
	"USDC":  "usd-coin",
}

// CoinGecko reads historical daily crypto prices in USD.
type CoinGecko struct {
	BaseURL string
	APIKey  string
	HTTP    *httpx.Client
}

var _ application.PriceProvider = (*CoinGecko)(nil)

func (c *CoinGecko) Name() string { return application.RouteCryptoHistory }

type coinGeckoHistory struct {
	ID         string `json:"id"`
	MarketData *struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
}

func (c *CoinGecko) PriceAt(ctx context.Context, base string, date time.Time) (float64, error) {
	id, ok := coinGeckoIDs[strings.ToUpper(base)]
	if !ok {
		return 0, fmt.Errorf("coingecko %s: %w", base, domain.ErrUnsupportedAsset)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("coingecko: invalid base url: %w", err)
	}
	u.Path = fmt.Sprintf(coinGeckoHistoryPath, id)
	q := u.Query()
	q.Set("date", domain.Day(date).Format("02-01-2006"))
	q.Set("localization", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.APIKey)
	}
	var body coinGeckoHistory
	if err := c.HTTP.DoJSON(ctx, req, &body); err != nil {
		return 0, fmt.Errorf("coingecko %s: %w", id, err)
	}
	if body.MarketData == nil {
		return 0, fmt.Errorf("coingecko %s %s: %w", id, domain.DayKey(date), domain.ErrPriceNotFound)
	}
	p, ok := body.MarketData.CurrentPrice["usd"]
	if !ok || !p.IsPositive() {
		return 0, fmt.Errorf("coingecko %s %s: %w", id, domain.DayKey(date), domain.ErrPriceNotFound)
	}
	return p.InexactFloat64(), nil
}
