package application

import "pricecheck-service/internal/domain"

// Route names double as the persisted price source.
const (
	RouteSpotCrypto    = "binance"
	RouteCryptoHistory = "coingecko"
	RouteMetals        = "metals"
	RouteGramGold      = "gram_gold"
	RouteDailyBars     = "yahoo"
	RouteDailyCSV      = "stooq"
)

// DefaultPrewarmDays is how far either side of a requested date the daily-bar
// route fetches in one call.
const DefaultPrewarmDays = 30

// RouteProviders holds the adapters the default route table is built from.
// A nil provider drops its route.
type RouteProviders struct {
	SpotCrypto    PriceProvider
	CryptoHistory PriceProvider
	Metals        PriceProvider
	GramGold      PriceProvider
	DailyBars     PriceProvider
	DailyCSV      PriceProvider
	PrewarmDays   int
}

// DefaultRoutes is the ordered provider table:
//
//	crypto, today     spot exchange ticker
//	crypto, past      historical crypto API
//	metal, today      metals page, then gram gold page
//	any               daily bars with prewarm
//	not today, not crypto  daily CSV
func DefaultRoutes(p RouteProviders) []Route {
	prewarm := p.PrewarmDays
	if prewarm == 0 {
		prewarm = DefaultPrewarmDays
	}
	base := func(inst domain.Instrument) string { return inst.Base }
	ticker := func(inst domain.Instrument) string { return inst.Ticker }
	isCrypto := func(q PriceQuery) bool { return q.Instrument.Class == domain.AssetClassCrypto }
	isMetal := func(q PriceQuery) bool { return q.Instrument.Class == domain.AssetClassMetal }

	candidates := []Route{
		{
			Name:     RouteSpotCrypto,
			Supports: func(q PriceQuery) bool { return isCrypto(q) && q.Today },
			Symbol:   base,
			Provider: p.SpotCrypto,
		},
		{
			Name:     RouteCryptoHistory,
			Supports: func(q PriceQuery) bool { return isCrypto(q) && !q.Today },
			Symbol:   base,
			Provider: p.CryptoHistory,
		},
		{
			Name:     RouteMetals,
			Supports: func(q PriceQuery) bool { return isMetal(q) && q.Today },
			Symbol:   base,
			Provider: p.Metals,
		},
		{
			Name:     RouteGramGold,
			Supports: func(q PriceQuery) bool { return isMetal(q) && q.Today },
			Symbol:   base,
			Provider: p.GramGold,
		},
		{
			Name:     RouteDailyBars,
			Symbol:   ticker,
			Provider: p.DailyBars,
			Prewarm:  prewarm,
		},
		{
			Name:     RouteDailyCSV,
			Supports: func(q PriceQuery) bool { return !q.Today && !isCrypto(q) },
			Symbol:   ticker,
			Provider: p.DailyCSV,
		},
	}
	routes := make([]Route, 0, len(candidates))
	for _, rt := range candidates {
		if rt.Provider != nil {
			routes = append(routes, rt)
		}
	}
	return routes
}
