package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pricecheck-service/internal/domain"
)

var errBoom = errors.New("boom")

func day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fixedClock(s string) Clock {
	t := day(s).Add(12 * time.Hour)
	return ClockFunc(func() time.Time { return t })
}

func ptr[T any](v T) *T { return &v }

type fakeStore struct {
	mu       sync.Mutex
	recs     map[string]domain.AssetPriceRecord
	getErr   error
	writeErr error
	writes   int
}

func newFakeStore() *fakeStore { return &fakeStore{recs: map[string]domain.AssetPriceRecord{}} }

func (f *fakeStore) key(asset string, d time.Time) string { return asset + "|" + domain.DayKey(d) }

func (f *fakeStore) GetPrice(_ context.Context, asset string, d time.Time) (domain.AssetPriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.AssetPriceRecord{}, f.getErr
	}
	r, ok := f.recs[f.key(asset, d)]
	if !ok {
		return domain.AssetPriceRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetRange(_ context.Context, asset string, start, end time.Time) ([]domain.AssetPriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AssetPriceRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if r, ok := f.recs[f.key(asset, d)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Upsert(ctx context.Context, r domain.AssetPriceRecord) error {
	return f.UpsertBatch(ctx, []domain.AssetPriceRecord{r})
}

func (f *fakeStore) UpsertBatch(_ context.Context, recs []domain.AssetPriceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	for _, r := range recs {
		f.recs[f.key(r.Asset, r.Date)] = r
	}
	return nil
}

func (f *fakeStore) has(asset string, d time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recs[f.key(asset, d)]
	return ok
}

type fakeLegacy struct {
	prices map[string]float64 // lower(name)|date
	calls  int
}

func (f *fakeLegacy) LookupPrice(_ context.Context, names []string, d time.Time) (float64, error) {
	f.calls++
	for _, n := range names {
		if p, ok := f.prices[strings.ToLower(n)+"|"+domain.DayKey(d)]; ok {
			return p, nil
		}
	}
	return 0, domain.ErrNotFound
}

// fakeProvider answers from a day-keyed table; missing days are clean misses.
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	prices  map[string]float64
	err     error
	calls   []string
	symbols []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) PriceAt(_ context.Context, symbol string, d time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.DayKey(d))
	f.symbols = append(f.symbols, symbol)
	if f.err != nil {
		return 0, f.err
	}
	p, ok := f.prices[domain.DayKey(d)]
	if !ok {
		return 0, domain.ErrPriceNotFound
	}
	return p, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRangeProvider struct {
	fakeProvider
	ranges int
}

func (f *fakeRangeProvider) PriceRange(_ context.Context, symbol string, start, end time.Time) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges++
	f.symbols = append(f.symbols, symbol)
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]float64{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if p, ok := f.prices[domain.DayKey(d)]; ok {
			out[domain.DayKey(d)] = p
		}
	}
	return out, nil
}

type fakeSearcher struct {
	results map[string]string
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, q string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	t, ok := f.results[q]
	if !ok {
		return "", domain.ErrSymbolNotFound
	}
	return t, nil
}

type fakeSearchCache struct{ m map[string]string }

func (f *fakeSearchCache) GetSymbol(_ context.Context, q string) (string, bool, error) {
	v, ok := f.m[q]
	return v, ok, nil
}

func (f *fakeSearchCache) SetSymbol(_ context.Context, q, t string) error {
	if f.m == nil {
		f.m = map[string]string{}
	}
	f.m[q] = t
	return nil
}

type fakeRepo struct {
	mu       sync.Mutex
	preds    map[string]domain.Prediction
	horizons map[string][]domain.HorizonWindow
	saved    map[string]domain.VerificationOutcome
}

func newFakeRepo(ps ...domain.Prediction) *fakeRepo {
	r := &fakeRepo{
		preds:    map[string]domain.Prediction{},
		horizons: map[string][]domain.HorizonWindow{},
		saved:    map[string]domain.VerificationOutcome{},
	}
	for _, p := range ps {
		r.preds[p.ID] = p
	}
	return r
}

func (f *fakeRepo) Get(_ context.Context, id string) (domain.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.preds[id]
	if !ok {
		return domain.Prediction{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) SaveOutcome(_ context.Context, id string, out domain.VerificationOutcome, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.preds[id]
	if !ok {
		return ErrNotFound
	}
	p.Outcome = out
	p.VerifiedAt = &at
	f.preds[id] = p
	f.saved[id] = out
	return nil
}

func (f *fakeRepo) SaveEntryPrice(_ context.Context, id string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.preds[id]
	p.EntryPrice = &price
	f.preds[id] = p
	return nil
}

func (f *fakeRepo) AppendHorizon(_ context.Context, id string, w domain.HorizonWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.preds[id]
	p.Horizon = w
	f.preds[id] = p
	f.horizons[id] = append(f.horizons[id], w)
	return nil
}

func (f *fakeRepo) HorizonHistory(_ context.Context, id string) ([]domain.HorizonWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HorizonWindow(nil), f.horizons[id]...), nil
}

func (f *fakeRepo) ClaimDue(_ context.Context, limit int, _ time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, p := range f.preds {
		if p.Outcome.Status == domain.StatusPending || p.Outcome.Status == "" {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

type fakeJudge struct {
	out   domain.Judgment
	err   error
	seen  []domain.VerificationContext
	calls int
}

func (f *fakeJudge) Judge(_ context.Context, vc domain.VerificationContext) (domain.Judgment, error) {
	f.calls++
	f.seen = append(f.seen, vc)
	return f.out, f.err
}

type recordingObserver struct {
	mu       sync.Mutex
	lookups  map[string]int
	results  map[string]int
	outcomes map[domain.VerificationStatus]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		lookups:  map[string]int{},
		results:  map[string]int{},
		outcomes: map[domain.VerificationStatus]int{},
	}
}

func (o *recordingObserver) CacheLookup(tier string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.lookups[tier+":hit"]++
	} else {
		o.lookups[tier+":miss"]++
	}
}

func (o *recordingObserver) ProviderResult(p, r string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[p+":"+r]++
}

func (o *recordingObserver) VerificationOutcome(s domain.VerificationStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[s]++
}
