package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/config"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/breaker"
	infraconfig "pricecheck-service/internal/infrastructure/config"
	httpserver "pricecheck-service/internal/infrastructure/http"
	"pricecheck-service/internal/infrastructure/httpx"
	"pricecheck-service/internal/infrastructure/judge"
	"pricecheck-service/internal/infrastructure/logx"
	"pricecheck-service/internal/infrastructure/memstore"
	"pricecheck-service/internal/infrastructure/metrics"
	"pricecheck-service/internal/infrastructure/pg"
	"pricecheck-service/internal/infrastructure/provider"
	"pricecheck-service/internal/infrastructure/ratelimit"
	redisstore "pricecheck-service/internal/infrastructure/redis"
	"pricecheck-service/internal/infrastructure/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Storage groups the persistence ports. With no DATABASE_URL everything
// lives in memory.
type Storage struct {
	Prices      application.PriceStore
	Legacy      application.LegacyPriceStore
	Predictions application.PredictionRepo
	UoW         application.UnitOfWork
	Ping        func(ctx context.Context) error
}

// Providers is the guarded adapter set shared by every resolver in the
// process. Each adapter owns one limiter and one breaker.
type Providers struct {
	Routes   application.RouteProviders
	Searcher application.SymbolSearcher
	Breakers []*breaker.Breaker
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder { return metrics.New(reg) }

func ProvideStorage(ctx context.Context, log *zap.Logger, cfg config.Config) (Storage, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("storage.in_memory", zap.String("reason", "DATABASE_URL not set"))
		preds := memstore.NewPredictionRepo()
		return Storage{
			Prices:      memstore.NewPriceStore(),
			Legacy:      preds,
			Predictions: preds,
			UoW:         application.NoopUoW{},
		}, func() {}, nil
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return Storage{}, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return Storage{}, func() {}, err
	}
	cleanup := func() {
		log.Info("closing pg")
		db.Close()
	}
	return Storage{
		Prices:      pg.NewPriceRepo(db),
		Legacy:      pg.NewLegacyPriceRepo(db),
		Predictions: pg.NewPredictionRepo(db),
		UoW:         pg.NewUnitOfWork(db),
		Ping:        db.Ping,
	}, cleanup, nil
}

// ProvideRedisClient returns nil when REDIS_ADDR is empty.
func ProvideRedisClient(cfg config.Config) (*redis.Client, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func ProvideIdempotency(client *redis.Client, cfg config.Config) application.IdempotencyStore {
	if client == nil {
		return application.NoopIdempotency{}
	}
	return redisstore.New(client, cfg.RedisTTL)
}

func ProvideSearchCache(client *redis.Client, cfg config.Config) application.SearchCache {
	if client == nil {
		return nil
	}
	return redisstore.NewSearchCache(client, cfg.SymbolCacheTTL)
}

type guardSpec struct {
	name string
	rps  float64
}

// ProvideProviders builds every configured adapter behind its own limiter
// and breaker. Adapters without the page URL or API key they need are left
// out of the route table.
func ProvideProviders(cfg config.Config, log *zap.Logger, rec *metrics.Recorder) (Providers, error) {
	var out Providers
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = infraconfig.DefaultProviderTimeout
	}
	client := &httpx.Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: cfg.UserAgent,
		Log:       log,
	}
	guard := func(g guardSpec, inner application.PriceProvider) *provider.Guarded {
		lim := ratelimit.New(ratelimit.Config{
			Name:       g.name,
			TargetRPS:  g.rps,
			MaxJitter:  cfg.MaxJitter,
			MaxRetries: cfg.MaxRetries,
		})
		br := breaker.New(breaker.Settings{
			Name:             g.name,
			FailureThreshold: cfg.BreakerFailures,
			ResetTimeout:     cfg.BreakerReset,
			IsFailure:        provider.CountsAsFailure,
			OnStateChange:    rec.BreakerStateChanged,
			Log:              log,
		})
		out.Breakers = append(out.Breakers, br)
		return provider.NewGuarded(inner, lim, br, timeout,
			provider.WithCallObserver(rec),
			provider.WithGuardLogger(log))
	}

	switch cfg.Provider {
	case "fake":
		fake := provider.NewFake(application.RouteDailyBars, 100)
		out.Routes = application.RouteProviders{DailyBars: fake, PrewarmDays: cfg.PrewarmDays}
		out.Searcher = fake
		return out, nil
	case "live", "":
	default:
		return Providers{}, errors.New("unknown PROVIDER " + cfg.Provider + ", want live or fake")
	}

	yahoo := guard(guardSpec{application.RouteDailyBars, cfg.YahooRPS}, &provider.Yahoo{BaseURL: cfg.YahooBaseURL, HTTP: client})
	out.Searcher = yahoo
	out.Routes = application.RouteProviders{
		SpotCrypto:    guard(guardSpec{application.RouteSpotCrypto, cfg.BinanceRPS}, &provider.Binance{BaseURL: cfg.BinanceBaseURL, HTTP: client}),
		CryptoHistory: guard(guardSpec{application.RouteCryptoHistory, cfg.CoinGeckoRPS}, &provider.CoinGecko{BaseURL: cfg.CoinGeckoBase, APIKey: cfg.CoinGeckoAPIKey, HTTP: client}),
		DailyBars:     yahoo,
		PrewarmDays:   cfg.PrewarmDays,
	}
	if cfg.MetalsPageURL != "" {
		out.Routes.Metals = guard(guardSpec{application.RouteMetals, cfg.ScraperRPS}, provider.NewMetalsScraper(cfg.MetalsPageURL, client))
	}
	if cfg.GramGoldPageURL != "" {
		out.Routes.GramGold = guard(guardSpec{application.RouteGramGold, cfg.ScraperRPS}, provider.NewGramGoldScraper(cfg.GramGoldPageURL, client))
	}
	if cfg.StooqAPIKey != "" {
		out.Routes.DailyCSV = guard(guardSpec{application.RouteDailyCSV, cfg.StooqRPS}, &provider.Stooq{BaseURL: cfg.StooqBaseURL, APIKey: cfg.StooqAPIKey, HTTP: client})
	} else {
		log.Info("provider.disabled", zap.String("provider", application.RouteDailyCSV), zap.String("reason", "STOOQ_API_KEY not set"))
	}
	return out, nil
}

func ProvidePriceResolver(cfg config.Config, log *zap.Logger, rec *metrics.Recorder, st Storage, p Providers, sc application.SearchCache) *application.PriceResolver {
	cache := application.NewPriceCache(st.Prices, st.Legacy, log,
		application.WithCacheObserver(rec),
		application.WithMemoryLimits(cfg.PriceCacheEntries, cfg.PriceCacheTTL, cfg.LiveQuoteTTL))
	symbols := application.NewSymbolResolver(p.Searcher, sc, log)
	return application.NewPriceResolver(symbols, cache, application.DefaultRoutes(p.Routes),
		application.WithResolverObserver(rec),
		application.WithResolverLogger(log))
}

// ProvideJudge returns nil when no OpenAI key is configured; verification
// then runs without review.
func ProvideJudge(cfg config.Config, log *zap.Logger) application.Judge {
	j, err := judge.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel,
		judge.WithBaseURL(cfg.OpenAIBaseURL),
		judge.WithLogger(log))
	if errors.Is(err, domain.ErrMissingCredentials) {
		log.Info("judge.disabled", zap.String("reason", "OPENAI_API_KEY not set"))
		return nil
	}
	if err != nil {
		log.Warn("judge.disabled", zap.Error(err))
		return nil
	}
	return j
}

func ProvideVerificationService(cfg config.Config, log *zap.Logger, rec *metrics.Recorder, st Storage, prices *application.PriceResolver, j application.Judge) *application.VerificationService {
	opts := []application.Option{
		application.WithUnitOfWork(st.UoW),
		application.WithObserver(rec),
		application.WithLogger(log),
		application.WithMinJudgeConfidence(cfg.MinJudgeConfidence),
	}
	if j != nil {
		opts = append(opts, application.WithJudge(j))
	}
	return application.NewVerificationService(st.Predictions, prices, opts...)
}

func ProvideServer(prices *application.PriceResolver, svc *application.VerificationService, idem application.IdempotencyStore, st Storage, reg *prometheus.Registry, p Providers) *httpserver.Server {
	s := httpserver.NewServer(prices, svc, idem)
	if st.Ping != nil {
		s.SetReadyCheck(st.Ping)
	}
	s.SetMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.SetBreakers(p.Breakers...)
	return s
}

func ProvideWorker(svc *application.VerificationService, log *zap.Logger, cfg config.Config) application.Worker {
	return &worker.VerificationWorker{
		Verifier:    svc,
		PollEvery:   cfg.WorkerPoll,
		BatchLimit:  cfg.WorkerBatchSize,
		Concurrency: cfg.WorkerConcurrency,
		StaleAfter:  cfg.StaleAfter,
		PassTimeout: 5 * time.Minute,
		Log:         log,
	}
}
