package application

import (
	"context"
	"testing"

	"pricecheck-service/internal/domain"

	"github.com/stretchr/testify/require"
)

type resolverFixture struct {
	store    *fakeStore
	spot     *fakeProvider
	history  *fakeProvider
	metals   *fakeProvider
	bars     *fakeRangeProvider
	csv      *fakeProvider
	obs      *recordingObserver
	resolver *PriceResolver
}

func newResolverFixture(today string) *resolverFixture {
	f := &resolverFixture{
		store:   newFakeStore(),
		spot:    &fakeProvider{name: RouteSpotCrypto, prices: map[string]float64{}},
		history: &fakeProvider{name: RouteCryptoHistory, prices: map[string]float64{}},
		metals:  &fakeProvider{name: RouteMetals, prices: map[string]float64{}},
		bars:    &fakeRangeProvider{fakeProvider: fakeProvider{name: RouteDailyBars, prices: map[string]float64{}}},
		csv:     &fakeProvider{name: RouteDailyCSV, prices: map[string]float64{}},
		obs:     newRecordingObserver(),
	}
	cache := NewPriceCache(f.store, nil, nil, WithCacheClock(fixedClock(today)))
	routes := DefaultRoutes(RouteProviders{
		SpotCrypto:    f.spot,
		CryptoHistory: f.history,
		Metals:        f.metals,
		DailyBars:     f.bars,
		DailyCSV:      f.csv,
		PrewarmDays:   3,
	})
	f.resolver = NewPriceResolver(NewSymbolResolver(&fakeSearcher{results: map[string]string{"AAPL": "AAPL"}}, nil, nil), cache, routes,
		WithResolverClock(fixedClock(today)), WithResolverObserver(f.obs))
	return f
}

func TestGetPrice_FutureDateNeverPriced(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")

	p, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day("2025-03-02"), "stock")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, p)
	require.Zero(t, f.bars.ranges)
}

func TestGetPrice_InvalidInput(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")

	_, _, err := f.resolver.GetPrice(context.Background(), "  ", day("2025-03-01"), "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetPrice_CacheHitSkipsProviders(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	require.NoError(t, f.store.Upsert(context.Background(), domain.NewAssetPriceRecord("BTC", day("2025-02-01"), 100000, "coingecko")))

	p, ok, err := f.resolver.GetPrice(context.Background(), "bitcoin", day("2025-02-01"), "crypto")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 100000, p, 1e-9)
	require.Zero(t, f.history.callCount())
	require.Zero(t, f.bars.ranges)
}

func TestGetPrice_CryptoTodayUsesSpot(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.spot.prices["2025-03-01"] = 86000

	p, ok, err := f.resolver.GetPrice(context.Background(), "BTC", day("2025-03-01"), "")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 86000, p, 1e-9)
	require.Equal(t, []string{"BTC"}, f.spot.symbols)
	require.Zero(t, f.history.callCount())
	require.True(t, f.store.has("BTC", day("2025-03-01")))
}

func TestGetPrice_CryptoPastUsesHistoryThenBars(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.history.err = errBoom
	f.bars.prices["2025-02-10"] = 97000

	p, ok, err := f.resolver.GetPrice(context.Background(), "ETH", day("2025-02-10"), "")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 97000, p, 1e-9)
	require.Zero(t, f.spot.callCount())
	require.Equal(t, 1, f.history.callCount())
	require.Equal(t, []string{"ETH-USD"}, f.bars.symbols)
	require.Zero(t, f.csv.callCount(), "crypto never reaches the CSV route")
	require.Equal(t, 1, f.obs.results["coingecko:error"])
}

func TestGetPrice_PrewarmCachesNeighbours(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.bars.prices["2025-02-10"] = 230
	f.bars.prices["2025-02-11"] = 231
	f.bars.prices["2025-02-12"] = 232

	_, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day("2025-02-11"), "stock")
	require.NoError(t, err)
	require.True(t, ok)

	p, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day("2025-02-12"), "stock")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 232, p, 1e-9)
	require.Equal(t, 1, f.bars.ranges)
	require.True(t, f.store.has("AAPL", day("2025-02-10")))
}

func TestGetPrice_WeekendInsideFetchedRangeIsNotRefetched(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.bars.prices["2025-02-13"] = 241
	f.bars.prices["2025-02-14"] = 242
	f.bars.prices["2025-02-17"] = 243

	for _, d := range []string{"2025-02-15", "2025-02-16", "2025-02-15"} {
		_, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day(d), "stock")
		require.NoError(t, err)
		require.False(t, ok, d)
	}
	require.Equal(t, 1, f.bars.ranges)

	p, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day("2025-02-17"), "stock")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 243, p, 1e-9)
	require.Equal(t, 1, f.bars.ranges)
}

func TestGetPrice_ScanAcrossWeekendFetchesEachSpanOnce(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	for _, d := range []string{"2025-02-10", "2025-02-11", "2025-02-12", "2025-02-13", "2025-02-14", "2025-02-17", "2025-02-18"} {
		f.bars.prices[d] = 240
	}

	for d := day("2025-02-10"); !d.After(day("2025-02-18")); d = d.AddDate(0, 0, 1) {
		_, _, err := f.resolver.GetPrice(context.Background(), "AAPL", d, "stock")
		require.NoError(t, err)
	}
	// 10th covers 7..13, 14th covers 11..17 including the weekend, 18th covers 15..21.
	require.Equal(t, 3, f.bars.ranges)
}

func TestGetPrice_PrewarmNeverReachesPastToday(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.bars.prices["2025-03-01"] = 240
	f.bars.prices["2025-03-02"] = 999

	_, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day("2025-03-01"), "stock")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, f.store.has("AAPL", day("2025-03-02")))
}

func TestGetPrice_BarsMissFallsToCSV(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.csv.prices["2025-01-15"] = 5950

	p, ok, err := f.resolver.GetPrice(context.Background(), "S&P 500", day("2025-01-15"), "")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 5950, p, 1e-9)
	require.Equal(t, []string{"^GSPC"}, f.csv.symbols)
}

func TestGetPrice_MetalTodayUsesScraper(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.metals.prices["2025-03-01"] = 2858.4

	p, ok, err := f.resolver.GetPrice(context.Background(), "altın", day("2025-03-01"), "")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 2858.4, p, 1e-9)
	require.Equal(t, []string{"XAU"}, f.metals.symbols)
	require.Zero(t, f.bars.ranges)
}

func TestGetPrice_UnresolvedTickerSkipsDailyRoutes(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")

	_, ok, err := f.resolver.GetPrice(context.Background(), "Totally Unknown Co", day("2025-02-01"), "stock")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, f.bars.ranges)
	require.Zero(t, f.csv.callCount())
}

func TestGetPrice_MissingCredentialsSurfaces(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	f.csv.err = domain.ErrMissingCredentials

	_, ok, err := f.resolver.GetPrice(context.Background(), "AAPL", day("2025-02-03"), "stock")
	require.ErrorIs(t, err, domain.ErrMissingCredentials)
	require.False(t, ok)
}

func TestGetPrice_CancelledContext(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-01")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := f.resolver.GetPrice(ctx, "AAPL", day("2025-02-03"), "stock")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}

func TestGetPriceWithFallback_WalksBack(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-10")
	f.csv.prices["2025-03-07"] = 5770 // Friday

	p, at, ok, err := f.resolver.GetPriceWithFallback(context.Background(), "SPX", day("2025-03-09"), "index", 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 5770, p, 1e-9)
	require.Equal(t, day("2025-03-07"), at)
}

func TestGetPriceWithFallback_GivesUp(t *testing.T) {
	t.Parallel()
	f := newResolverFixture("2025-03-10")
	f.csv.prices["2025-03-01"] = 5000

	_, _, ok, err := f.resolver.GetPriceWithFallback(context.Background(), "SPX", day("2025-03-09"), "index", 2)
	require.NoError(t, err)
	require.False(t, ok)
}
