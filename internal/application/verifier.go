package application

import (
	"context"
	"fmt"
	"time"

	"pricecheck-service/internal/domain"

	"go.uber.org/zap"
)

// MaxDailyScanDays caps the day-by-day scan; longer windows only check
// their first and last day.
const MaxDailyScanDays = 60

// PriceSource is the slice of PriceResolver the engine needs.
type PriceSource interface {
	GetPrice(ctx context.Context, asset string, date time.Time, assetType string) (float64, bool, error)
}

type VerifyRequest struct {
	Asset        string
	EntryPrice   float64
	TargetPrice  *float64
	Sentiment    domain.Sentiment
	HorizonStart time.Time
	HorizonEnd   time.Time
	AssetType    string
}

// VerificationEngine decides correct, wrong or pending for one window.
type VerificationEngine struct {
	prices PriceSource
	clock  Clock
	log    *zap.Logger
}

func NewVerificationEngine(prices PriceSource, clock Clock, log *zap.Logger) *VerificationEngine {
	if clock == nil {
		clock = realClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationEngine{prices: prices, clock: clock, log: log}
}

// VerifyPredictionWithRange scans the window for the first priced day that
// satisfies CheckHit. Days without a price are skipped.
func (e *VerificationEngine) VerifyPredictionWithRange(ctx context.Context, req VerifyRequest) (domain.VerificationOutcome, error) {
	w := domain.HorizonWindow{Start: domain.Day(req.HorizonStart), End: domain.Day(req.HorizonEnd)}
	if err := w.Validate(); err != nil {
		return domain.VerificationOutcome{}, err
	}
	now := domain.Day(e.clock.Now())
	if now.Before(w.Start) {
		return domain.Pending(), nil
	}

	last := w.End
	if now.Before(last) {
		last = now
	}
	class := domain.ParseAssetClass(req.AssetType)

	for _, day := range scanDays(w.Start, last, w.Days()) {
		if err := ctx.Err(); err != nil {
			return domain.VerificationOutcome{}, err
		}
		p, ok, err := e.prices.GetPrice(ctx, req.Asset, day, req.AssetType)
		if err != nil {
			return domain.VerificationOutcome{}, fmt.Errorf("price %s on %s: %w", req.Asset, domain.DayKey(day), err)
		}
		if ok && CheckHit(req.EntryPrice, p, req.TargetPrice, req.Sentiment, class) {
			e.log.Debug("verify.hit", zap.String("asset", req.Asset), zap.String("date", domain.DayKey(day)), zap.Float64("price", p))
			return domain.Correct(day, p), nil
		}
	}

	if !now.After(w.End) {
		return domain.Pending(), nil
	}
	final, ok, err := e.prices.GetPrice(ctx, req.Asset, w.End, req.AssetType)
	if err != nil {
		return domain.VerificationOutcome{}, fmt.Errorf("final price %s: %w", req.Asset, err)
	}
	if !ok {
		final = 0
	}
	return domain.Wrong(final), nil
}

// scanDays lists the days to check from start to last inclusive. When the
// window is longer than MaxDailyScanDays only the two ends are checked.
func scanDays(start, last time.Time, windowDays int) []time.Time {
	if last.Before(start) {
		return nil
	}
	if windowDays > MaxDailyScanDays {
		if last.Equal(start) {
			return []time.Time{start}
		}
		return []time.Time{start, last}
	}
	days := make([]time.Time, 0, domain.DaysBetween(start, last)+1)
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
