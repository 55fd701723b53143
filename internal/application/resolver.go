package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"pricecheck-service/internal/domain"

	"go.uber.org/zap"
)

// PriceQuery is what a route sees when deciding whether it applies.
type PriceQuery struct {
	Instrument domain.Instrument
	Date       time.Time
	Today      bool
}

// Route is one entry in the resolver's ordered provider table.
type Route struct {
	Name     string
	Supports func(q PriceQuery) bool
	// Symbol picks the provider-specific symbol. An empty result skips the route.
	Symbol   func(inst domain.Instrument) string
	Provider PriceProvider
	// Prewarm, when positive and Provider is a RangeProvider, fetches this
	// many days either side of the requested date and caches all of them.
	Prewarm int
}

// PriceResolver answers "what did asset X cost on date D": cache first,
// then the routes in order, writing every provider hit through the cache.
type PriceResolver struct {
	symbols *SymbolResolver
	cache   *PriceCache
	routes  []Route
	clock   Clock
	obs     Observer
	log     *zap.Logger
}

type ResolverOption func(*PriceResolver)

func WithResolverClock(c Clock) ResolverOption       { return func(r *PriceResolver) { r.clock = c } }
func WithResolverObserver(o Observer) ResolverOption { return func(r *PriceResolver) { r.obs = o } }
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *PriceResolver) { r.log = l }
}

func NewPriceResolver(symbols *SymbolResolver, cache *PriceCache, routes []Route, opts ...ResolverOption) *PriceResolver {
	r := &PriceResolver{
		symbols: symbols,
		cache:   cache,
		routes:  routes,
		clock:   realClock{},
		obs:     noopObserver{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetPrice returns the closing (or current, for today) price of asset on
// date. ok is false when no tier and no provider could price it, including
// every future date. The only errors surfaced are invalid input, missing
// provider credentials and context cancellation.
func (r *PriceResolver) GetPrice(ctx context.Context, asset string, date time.Time, assetType string) (float64, bool, error) {
	asset = strings.TrimSpace(asset)
	if asset == "" || date.IsZero() {
		return 0, false, domain.ErrInvalidInput
	}
	day := domain.Day(date)
	today := domain.Day(r.clock.Now())
	if day.After(today) {
		return 0, false, nil
	}

	inst := r.symbols.Resolve(ctx, asset, domain.ParseAssetClass(assetType))
	if p, tier, ok := r.cache.Get(ctx, inst.Canonical, day, asset); ok {
		r.log.Debug("price.cache_hit",
			zap.String("asset", inst.Canonical), zap.String("date", domain.DayKey(day)), zap.String("tier", tier))
		return p, true, nil
	}

	q := PriceQuery{Instrument: inst, Date: day, Today: day.Equal(today)}
	for _, rt := range r.routes {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		if rt.Supports != nil && !rt.Supports(q) {
			continue
		}
		sym := rt.Symbol(inst)
		if sym == "" {
			continue
		}
		p, err := r.fromRoute(ctx, rt, sym, q, today)
		switch {
		case err == nil && p > 0:
			r.obs.ProviderResult(rt.Name, "hit")
			return p, true, nil
		case errors.Is(err, domain.ErrMissingCredentials):
			return 0, false, err
		case err == nil, domain.IsCleanMiss(err):
			r.obs.ProviderResult(rt.Name, "miss")
		default:
			r.obs.ProviderResult(rt.Name, "error")
			r.log.Warn("price.provider_failed",
				zap.String("provider", rt.Name),
				zap.String("symbol", sym),
				zap.String("date", domain.DayKey(day)),
				zap.Error(err))
		}
	}
	r.log.Info("price.unresolved", zap.String("asset", asset), zap.String("date", domain.DayKey(day)))
	return 0, false, nil
}

// fromRoute queries one route. Hits are already written through the cache
// when it returns.
func (r *PriceResolver) fromRoute(ctx context.Context, rt Route, sym string, q PriceQuery, today time.Time) (float64, error) {
	canonical := q.Instrument.Canonical
	if rp, ok := rt.Provider.(RangeProvider); ok && rt.Prewarm > 0 {
		start := q.Date.AddDate(0, 0, -rt.Prewarm)
		end := q.Date.AddDate(0, 0, rt.Prewarm)
		if end.After(today) {
			end = today
		}
		if r.cache.KnownMiss(rt.Name, canonical, q.Date) {
			return 0, domain.ErrPriceNotFound
		}
		prices, err := rp.PriceRange(ctx, sym, start, end)
		if err != nil {
			return 0, err
		}
		n := r.cache.PutBatch(ctx, canonical, prices, rt.Name)
		// Days the range covered without a bar are weekends and holidays.
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if p, ok := prices[domain.DayKey(d)]; !ok || p <= 0 {
				r.cache.RememberMiss(rt.Name, canonical, d)
			}
		}
		r.log.Debug("price.prewarmed", zap.String("provider", rt.Name), zap.String("symbol", sym), zap.Int("days", n))
		if p, ok := prices[domain.DayKey(q.Date)]; ok && p > 0 {
			return p, nil
		}
		return 0, domain.ErrPriceNotFound
	}

	p, err := rt.Provider.PriceAt(ctx, sym, q.Date)
	if err != nil {
		return 0, err
	}
	if p <= 0 {
		return 0, domain.ErrPriceNotFound
	}
	r.cache.Put(ctx, domain.NewAssetPriceRecord(canonical, q.Date, p, rt.Name))
	return p, nil
}

// GetPriceWithFallback walks back one calendar day at a time, up to
// maxLookbackDays, until a price is found. It returns the day that priced.
func (r *PriceResolver) GetPriceWithFallback(ctx context.Context, asset string, date time.Time, assetType string, maxLookbackDays int) (float64, time.Time, bool, error) {
	day := domain.Day(date)
	for i := 0; i <= maxLookbackDays; i++ {
		d := day.AddDate(0, 0, -i)
		p, ok, err := r.GetPrice(ctx, asset, d, assetType)
		if err != nil {
			return 0, time.Time{}, false, err
		}
		if ok {
			return p, d, true, nil
		}
	}
	return 0, time.Time{}, false, nil
}
