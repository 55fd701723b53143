package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pricecheck-service/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Cache tiers, checked in this order.
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"
	TierLegacy     = "legacy"
)

const SourceLegacy = "legacy"

// Memory tier defaults. Today's prices move, so they expire sooner.
const (
	DefaultMemoryEntries = 50000
	DefaultMemoryTTL     = 24 * time.Hour
	DefaultLiveTTL       = 5 * time.Minute
)

// PriceCache is the three-tier read path in front of the providers:
// process memory, the persistent price table, then the legacy entry-price
// table. Writes are best effort; a failed write never fails a lookup.
type PriceCache struct {
	past *expirable.LRU[string, float64]
	live *expirable.LRU[string, float64]

	maxEntries int
	ttl        time.Duration
	liveTTL    time.Duration
	clock      Clock

	store  PriceStore
	legacy LegacyPriceStore
	log    *zap.Logger
	obs    Observer

	backfillTimeout time.Duration
	wg              sync.WaitGroup
}

type CacheOption func(*PriceCache)

func WithCacheObserver(o Observer) CacheOption { return func(c *PriceCache) { c.obs = o } }
func WithBackfillTimeout(d time.Duration) CacheOption {
	return func(c *PriceCache) { c.backfillTimeout = d }
}
func WithCacheClock(clock Clock) CacheOption { return func(c *PriceCache) { c.clock = clock } }

// WithMemoryLimits bounds the memory tier. Zero values keep the defaults.
func WithMemoryLimits(maxEntries int, ttl, liveTTL time.Duration) CacheOption {
	return func(c *PriceCache) {
		if maxEntries > 0 {
			c.maxEntries = maxEntries
		}
		if ttl > 0 {
			c.ttl = ttl
		}
		if liveTTL > 0 {
			c.liveTTL = liveTTL
		}
	}
}

// NewPriceCache builds the cache. store and legacy may be nil.
func NewPriceCache(store PriceStore, legacy LegacyPriceStore, log *zap.Logger, opts ...CacheOption) *PriceCache {
	c := &PriceCache{
		maxEntries:      DefaultMemoryEntries,
		ttl:             DefaultMemoryTTL,
		liveTTL:         DefaultLiveTTL,
		clock:           realClock{},
		store:           store,
		legacy:          legacy,
		log:             log,
		obs:             noopObserver{},
		backfillTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.past = expirable.NewLRU[string, float64](c.maxEntries, nil, c.ttl)
	c.live = expirable.NewLRU[string, float64](c.maxEntries, nil, c.liveTTL)
	return c
}

func memKey(asset string, date time.Time) string {
	return strings.ToUpper(asset) + "|" + domain.DayKey(date)
}

func missKey(route, asset string, date time.Time) string {
	return "miss|" + route + "|" + memKey(asset, date)
}

// tier picks the live LRU for today and later, the long-lived one otherwise.
func (c *PriceCache) tier(date time.Time) *expirable.LRU[string, float64] {
	if domain.Day(date).Before(domain.Day(c.clock.Now())) {
		return c.past
	}
	return c.live
}

// Get looks asset up for date across the tiers and reports which tier
// answered. aliases are extra spellings tried against the legacy table.
func (c *PriceCache) Get(ctx context.Context, asset string, date time.Time, aliases ...string) (float64, string, bool) {
	key := memKey(asset, date)

	p, ok := c.tier(date).Get(key)
	c.obs.CacheLookup(TierMemory, ok)
	if ok {
		return p, TierMemory, true
	}

	if c.store != nil {
		rec, err := c.store.GetPrice(ctx, asset, date)
		switch {
		case err == nil && rec.Price.IsPositive():
			c.obs.CacheLookup(TierPersistent, true)
			p := rec.PriceFloat()
			c.remember(key, date, p)
			return p, TierPersistent, true
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			c.log.Warn("price_cache.store_read_failed", zap.String("asset", asset), zap.Error(err))
		}
		c.obs.CacheLookup(TierPersistent, false)
	}

	if c.legacy != nil {
		names := append([]string{asset}, aliases...)
		p, err := c.legacy.LookupPrice(ctx, names, date)
		if err == nil && p > 0 {
			c.obs.CacheLookup(TierLegacy, true)
			c.remember(key, date, p)
			c.backfill(ctx, domain.NewAssetPriceRecord(asset, date, p, SourceLegacy))
			return p, TierLegacy, true
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			c.log.Warn("price_cache.legacy_read_failed", zap.String("asset", asset), zap.Error(err))
		}
		c.obs.CacheLookup(TierLegacy, false)
	}
	return 0, "", false
}

// Put records one fetched price in memory and the persistent store.
func (c *PriceCache) Put(ctx context.Context, rec domain.AssetPriceRecord) {
	if err := rec.Validate(); err != nil {
		c.log.Debug("price_cache.put_skipped", zap.String("asset", rec.Asset), zap.Error(err))
		return
	}
	c.remember(memKey(rec.Asset, rec.Date), rec.Date, rec.PriceFloat())
	c.write(ctx, []domain.AssetPriceRecord{rec})
}

// PutBatch records a window of prices keyed by domain.DayKey. Non-positive
// and unparseable entries are skipped.
func (c *PriceCache) PutBatch(ctx context.Context, asset string, prices map[string]float64, source string) int {
	recs := make([]domain.AssetPriceRecord, 0, len(prices))
	for k, p := range prices {
		day, err := domain.ParseDay(k)
		if err != nil || p <= 0 {
			continue
		}
		rec := domain.NewAssetPriceRecord(asset, day, p, source)
		c.remember(memKey(asset, day), day, p)
		recs = append(recs, rec)
	}
	if len(recs) > 0 {
		c.write(ctx, recs)
	}
	return len(recs)
}

// Wait blocks until in-flight legacy backfills have finished.
func (c *PriceCache) Wait() { c.wg.Wait() }

// RememberMiss records that route returned no price for asset on date
// although it covered that day.
func (c *PriceCache) RememberMiss(route, asset string, date time.Time) {
	c.tier(date).Add(missKey(route, asset, date), 0)
}

// KnownMiss reports a miss recorded by RememberMiss that has not expired.
func (c *PriceCache) KnownMiss(route, asset string, date time.Time) bool {
	_, ok := c.tier(date).Get(missKey(route, asset, date))
	return ok
}

// MemoryLen is the number of live entries in the memory tier.
func (c *PriceCache) MemoryLen() int { return c.past.Len() + c.live.Len() }

func (c *PriceCache) remember(key string, date time.Time, p float64) {
	c.tier(date).Add(key, p)
}

func (c *PriceCache) write(ctx context.Context, recs []domain.AssetPriceRecord) {
	if c.store == nil {
		return
	}
	var err error
	if len(recs) == 1 {
		err = c.store.Upsert(ctx, recs[0])
	} else {
		err = c.store.UpsertBatch(ctx, recs)
	}
	if err != nil {
		c.log.Warn("price_cache.store_write_failed",
			zap.String("asset", recs[0].Asset),
			zap.Int("records", len(recs)),
			zap.Error(err))
	}
}

// backfill copies a legacy hit into the persistent store off the request
// path. It outlives ctx's cancellation but not the backfill timeout.
func (c *PriceCache) backfill(ctx context.Context, rec domain.AssetPriceRecord) {
	if c.store == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.backfillTimeout)
		defer cancel()
		c.write(bctx, []domain.AssetPriceRecord{rec})
	}()
}
