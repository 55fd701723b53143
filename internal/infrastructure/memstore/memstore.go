// Package memstore keeps prices and predictions in process memory. It backs
// the service when no database is configured.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"

	"github.com/google/uuid"
)

var (
	_ application.PriceStore       = (*PriceStore)(nil)
	_ application.LegacyPriceStore = (*PredictionRepo)(nil)
	_ application.PredictionRepo   = (*PredictionRepo)(nil)
)

type PriceStore struct {
	mu   sync.RWMutex
	recs map[string]domain.AssetPriceRecord
}

func NewPriceStore() *PriceStore {
	return &PriceStore{recs: map[string]domain.AssetPriceRecord{}}
}

func priceKey(asset string, date time.Time) string {
	return strings.ToUpper(asset) + "|" + domain.DayKey(date)
}

func (s *PriceStore) GetPrice(_ context.Context, asset string, date time.Time) (domain.AssetPriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[priceKey(asset, date)]
	if !ok {
		return domain.AssetPriceRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *PriceStore) GetRange(_ context.Context, asset string, start, end time.Time) ([]domain.AssetPriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AssetPriceRecord
	for d := domain.Day(start); !d.After(domain.Day(end)); d = d.AddDate(0, 0, 1) {
		if rec, ok := s.recs[priceKey(asset, d)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *PriceStore) Upsert(_ context.Context, rec domain.AssetPriceRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.Asset = strings.ToUpper(rec.Asset)
	rec.Date = domain.Day(rec.Date)
	rec.RecordedAt = time.Now().UTC()
	s.mu.Lock()
	s.recs[priceKey(rec.Asset, rec.Date)] = rec
	s.mu.Unlock()
	return nil
}

func (s *PriceStore) UpsertBatch(ctx context.Context, recs []domain.AssetPriceRecord) error {
	for _, rec := range recs {
		if rec.Validate() != nil {
			continue
		}
		_ = s.Upsert(ctx, rec)
	}
	return nil
}

type storedPrediction struct {
	p         domain.Prediction
	horizons  []domain.HorizonWindow
	claimedAt time.Time
}

// PredictionRepo also serves as the legacy entry-price table.
type PredictionRepo struct {
	mu    sync.RWMutex
	items map[string]*storedPrediction
	now   func() time.Time
}

func NewPredictionRepo() *PredictionRepo {
	return &PredictionRepo{items: map[string]*storedPrediction{}, now: time.Now}
}

func (r *PredictionRepo) Insert(_ context.Context, p domain.Prediction) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Outcome.Status == "" {
		p.Outcome = domain.Pending()
	}
	p.PostDate = domain.Day(p.PostDate)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return "", application.ErrConflict
	}
	sp := &storedPrediction{p: p}
	if !p.Horizon.IsZero() {
		sp.horizons = append(sp.horizons, p.Horizon)
	}
	r.items[p.ID] = sp
	return p.ID, nil
}

func (r *PredictionRepo) Get(_ context.Context, id string) (domain.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.items[id]
	if !ok {
		return domain.Prediction{}, application.ErrNotFound
	}
	p := sp.p
	if n := len(sp.horizons); n > 0 {
		p.Horizon = sp.horizons[n-1]
	}
	return p, nil
}

func (r *PredictionRepo) SaveOutcome(_ context.Context, id string, out domain.VerificationOutcome, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.items[id]
	if !ok {
		return application.ErrNotFound
	}
	sp.p.Outcome = out
	sp.p.VerifiedAt = &verifiedAt
	sp.claimedAt = time.Time{}
	return nil
}

func (r *PredictionRepo) SaveEntryPrice(_ context.Context, id string, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.items[id]
	if !ok {
		return application.ErrNotFound
	}
	sp.p.EntryPrice = &price
	return nil
}

func (r *PredictionRepo) AppendHorizon(_ context.Context, id string, w domain.HorizonWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.Version <= 0 {
		w.Version = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sp, ok := r.items[id]
	if !ok {
		return application.ErrNotFound
	}
	for _, h := range sp.horizons {
		if h.Version == w.Version {
			return application.ErrConflict
		}
	}
	sp.horizons = append(sp.horizons, w)
	sort.Slice(sp.horizons, func(i, j int) bool { return sp.horizons[i].Version < sp.horizons[j].Version })
	return nil
}

func (r *PredictionRepo) HorizonHistory(_ context.Context, id string) ([]domain.HorizonWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.items[id]
	if !ok || len(sp.horizons) == 0 {
		return nil, application.ErrNotFound
	}
	return append([]domain.HorizonWindow(nil), sp.horizons...), nil
}

func (r *PredictionRepo) ClaimDue(_ context.Context, limit int, before time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*storedPrediction
	for _, sp := range r.items {
		if sp.p.Outcome.Status != domain.StatusPending {
			continue
		}
		if sp.p.VerifiedAt != nil && !sp.p.VerifiedAt.Before(before) {
			continue
		}
		if !sp.claimedAt.IsZero() && !sp.claimedAt.Before(before) {
			continue
		}
		due = append(due, sp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].p.PostDate.Before(due[j].p.PostDate) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, 0, len(due))
	now := r.now()
	for _, sp := range due {
		sp.claimedAt = now
		ids = append(ids, sp.p.ID)
	}
	return ids, nil
}

// LookupPrice answers from stored entry prices, like the legacy table.
func (r *PredictionRepo) LookupPrice(_ context.Context, names []string, date time.Time) (float64, error) {
	want := map[string]bool{}
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	day := domain.Day(date)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sp := range r.items {
		p := sp.p
		if want[strings.ToLower(p.Asset)] && p.PostDate.Equal(day) && p.EntryPrice != nil && *p.EntryPrice > 0 {
			return *p.EntryPrice, nil
		}
	}
	return 0, domain.ErrNotFound
}
