package application

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"pricecheck-service/internal/domain"

	"go.uber.org/zap"
)

type aliasEntry struct {
	Canonical string
	Class     domain.AssetClass
	Ticker    string
	Base      string
	Names     []string
}

// knownAssets is the static alias table. Names are matched after
// NormalizeName, so spacing and case do not matter.
var knownAssets = []aliasEntry{
	// indices
	{"SP500", domain.AssetClassIndex, "^GSPC", "", []string{"S&P 500", "SP500", "S&P", "SPX", "S&P500 index", "SPX500"}},
	{"NASDAQ", domain.AssetClassIndex, "^IXIC", "", []string{"Nasdaq", "Nasdaq Composite", "IXIC"}},
	{"NASDAQ100", domain.AssetClassIndex, "^NDX", "", []string{"Nasdaq 100", "NDX", "NAS100"}},
	{"DOW", domain.AssetClassIndex, "^DJI", "", []string{"Dow", "Dow Jones", "DJIA", "US30"}},
	{"RUSSELL2000", domain.AssetClassIndex, "^RUT", "", []string{"Russell 2000", "RUT"}},
	{"VIX", domain.AssetClassIndex, "^VIX", "", []string{"VIX"}},
	{"DAX", domain.AssetClassIndex, "^GDAXI", "", []string{"DAX", "DAX 40", "GDAXI"}},
	{"FTSE100", domain.AssetClassIndex, "^FTSE", "", []string{"FTSE", "FTSE 100"}},
	{"NIKKEI", domain.AssetClassIndex, "^N225", "", []string{"Nikkei", "Nikkei 225", "N225"}},
	{"BIST100", domain.AssetClassIndex, "XU100.IS", "", []string{"BIST 100", "BIST", "XU100", "Borsa İstanbul", "Borsa Istanbul"}},
	{"DXY", domain.AssetClassIndex, "DX-Y.NYB", "", []string{"DXY", "Dollar Index", "US Dollar Index", "Dolar Endeksi"}},

	// metals
	{"GOLD", domain.AssetClassMetal, "GC=F", "XAU", []string{"Gold", "XAU", "XAUUSD", "XAU/USD", "Altın", "Ons Altın", "Ons"}},
	{"SILVER", domain.AssetClassMetal, "SI=F", "XAG", []string{"Silver", "XAG", "XAGUSD", "XAG/USD", "Gümüş"}},
	{"PLATINUM", domain.AssetClassMetal, "PL=F", "XPT", []string{"Platinum", "XPT", "Platin"}},
	{"PALLADIUM", domain.AssetClassMetal, "PA=F", "XPD", []string{"Palladium", "XPD", "Paladyum"}},
	{"GRAM_ALTIN", domain.AssetClassMetal, "", "GRAM_ALTIN", []string{"Gram Altın", "Gram Gold", "Gram"}},

	// commodities
	{"COPPER", domain.AssetClassCommodity, "HG=F", "", []string{"Copper", "Bakır"}},
	{"WTI", domain.AssetClassCommodity, "CL=F", "", []string{"Oil", "Crude Oil", "WTI", "Ham Petrol", "Petrol"}},
	{"BRENT", domain.AssetClassCommodity, "BZ=F", "", []string{"Brent", "Brent Oil", "Brent Petrol"}},
	{"NATGAS", domain.AssetClassCommodity, "NG=F", "", []string{"Natural Gas", "NatGas", "Doğalgaz", "Doğal Gaz"}},

	// forex
	{"EURUSD", domain.AssetClassForex, "EURUSD=X", "", []string{"EURUSD", "EUR/USD", "Euro", "Parite"}},
	{"GBPUSD", domain.AssetClassForex, "GBPUSD=X", "", []string{"GBPUSD", "GBP/USD", "Cable", "Sterlin"}},
	{"USDJPY", domain.AssetClassForex, "JPY=X", "", []string{"USDJPY", "USD/JPY", "Yen"}},
	{"USDTRY", domain.AssetClassForex, "TRY=X", "", []string{"USDTRY", "USD/TRY", "Dolar", "Dolar/TL", "Dolar TL"}},
	{"EURTRY", domain.AssetClassForex, "EURTRY=X", "", []string{"EURTRY", "EUR/TRY", "Euro/TL", "Avro"}},

	// bonds
	{"US10Y", domain.AssetClassBond, "^TNX", "", []string{"US10Y", "10 Year Treasury", "10Y", "US 10 Year", "ABD 10 Yıllık"}},
	{"US30Y", domain.AssetClassBond, "^TYX", "", []string{"US30Y", "30 Year Treasury", "30Y"}},
	{"US5Y", domain.AssetClassBond, "^FVX", "", []string{"US5Y", "5 Year Treasury"}},
	{"US3M", domain.AssetClassBond, "^IRX", "", []string{"US3M", "13 Week Treasury", "T-Bill"}},

	// crypto
	{"BTC", domain.AssetClassCrypto, "BTC-USD", "BTC", []string{"Bitcoin", "BTC", "BTCUSD", "BTC/USD", "BTCUSDT"}},
	{"ETH", domain.AssetClassCrypto, "ETH-USD", "ETH", []string{"Ethereum", "ETH", "Ether", "ETHUSD", "ETH/USD", "ETHUSDT"}},
	{"SOL", domain.AssetClassCrypto, "SOL-USD", "SOL", []string{"Solana", "SOL"}},
	{"XRP", domain.AssetClassCrypto, "XRP-USD", "XRP", []string{"Ripple", "XRP"}},
	{"BNB", domain.AssetClassCrypto, "BNB-USD", "BNB", []string{"BNB", "Binance Coin"}},
	{"ADA", domain.AssetClassCrypto, "ADA-USD", "ADA", []string{"Cardano", "ADA"}},
	{"DOGE", domain.AssetClassCrypto, "DOGE-USD", "DOGE", []string{"Dogecoin", "DOGE"}},
	{"AVAX", domain.AssetClassCrypto, "AVAX-USD", "AVAX", []string{"Avalanche", "AVAX"}},
	{"DOT", domain.AssetClassCrypto, "DOT-USD", "DOT", []string{"Polkadot", "DOT"}},
	{"LINK", domain.AssetClassCrypto, "LINK-USD", "LINK", []string{"Chainlink", "LINK"}},
	{"LTC", domain.AssetClassCrypto, "LTC-USD", "LTC", []string{"Litecoin", "LTC"}},
	{"TRX", domain.AssetClassCrypto, "TRX-USD", "TRX", []string{"Tron", "TRX"}},
	{"POL", domain.AssetClassCrypto, "POL-USD", "POL", []string{"Polygon", "MATIC", "POL"}},
}

// notFoundMarker is stored in the search cache for names the search
// endpoint could not map, so they are not searched again.
const notFoundMarker = "-"

// NormalizeName lower-cases s and strips all whitespace.
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || r == '\u0307' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SymbolResolver turns user-facing asset names into instruments.
type SymbolResolver struct {
	aliases  map[string]aliasEntry
	searcher SymbolSearcher
	cache    SearchCache
	log      *zap.Logger
}

// NewSymbolResolver builds a resolver over the static alias table. searcher
// and cache may be nil.
func NewSymbolResolver(searcher SymbolSearcher, cache SearchCache, log *zap.Logger) *SymbolResolver {
	if log == nil {
		log = zap.NewNop()
	}
	m := make(map[string]aliasEntry, len(knownAssets)*4)
	for _, e := range knownAssets {
		m[NormalizeName(e.Canonical)] = e
		for _, n := range e.Names {
			m[NormalizeName(n)] = e
		}
	}
	return &SymbolResolver{aliases: m, searcher: searcher, cache: cache, log: log}
}

// Resolve maps name to an instrument. The alias table wins; otherwise the
// searcher is consulted. An unresolvable name yields an instrument with an
// empty Ticker, which daily-bar routes skip.
func (s *SymbolResolver) Resolve(ctx context.Context, name string, hint domain.AssetClass) domain.Instrument {
	key := NormalizeName(name)
	if e, ok := s.aliases[key]; ok {
		return domain.Instrument{Name: name, Canonical: e.Canonical, Class: e.Class, Ticker: e.Ticker, Base: e.Base}
	}

	ticker := s.search(ctx, key, strings.TrimSpace(name))
	canonical := strings.ToUpper(key)
	if ticker != "" {
		canonical = strings.ToUpper(ticker)
	}
	class := hint
	if class == domain.AssetClassUnknown {
		class = domain.InferAssetClass(ticker)
	}
	inst := domain.Instrument{Name: name, Canonical: canonical, Class: class, Ticker: ticker}
	if class == domain.AssetClassCrypto {
		inst.Base = cryptoBase(canonical)
	}
	return inst
}

func (s *SymbolResolver) search(ctx context.Context, key, query string) string {
	if s.cache != nil {
		v, ok, err := s.cache.GetSymbol(ctx, key)
		if err != nil {
			s.log.Warn("symbols.cache_read_failed", zap.String("query", query), zap.Error(err))
		}
		if ok {
			if v == notFoundMarker {
				return ""
			}
			return v
		}
	}
	if s.searcher == nil {
		return ""
	}
	ticker, err := s.searcher.Search(ctx, query)
	switch {
	case err == nil && ticker != "":
		s.store(ctx, key, ticker)
		return ticker
	case err == nil, errors.Is(err, domain.ErrSymbolNotFound):
		s.store(ctx, key, notFoundMarker)
	default:
		if t := strings.ToUpper(query); reTickerShaped.MatchString(t) {
			s.log.Warn("symbols.search_failed", zap.String("query", query), zap.String("fallback", t), zap.Error(err))
			return t
		}
		s.log.Warn("symbols.search_failed", zap.String("query", query), zap.Error(err))
	}
	return ""
}

// reTickerShaped matches names that can be used as a ticker as written:
// "AAPL", "BRK-B", "THYAO.IS", "EURUSD=X", "^GSPC".
var reTickerShaped = regexp.MustCompile(`^\^?[A-Z0-9]{1,10}(?:[.\-][A-Z0-9]{1,5})?(?:=[XF])?$`)

func (s *SymbolResolver) store(ctx context.Context, key, v string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSymbol(ctx, key, v); err != nil {
		s.log.Warn("symbols.cache_write_failed", zap.String("query", key), zap.Error(err))
	}
}

func cryptoBase(sym string) string {
	for _, suf := range []string{"-USD", "USDT", "/USD", "USD"} {
		if strings.HasSuffix(sym, suf) && len(sym) > len(suf) {
			return strings.TrimSuffix(sym, suf)
		}
	}
	return sym
}
