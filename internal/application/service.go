package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricecheck-service/internal/domain"

	"go.uber.org/zap"
)

const (
	DefaultEntryLookbackDays  = 5
	DefaultMinJudgeConfidence = 0.6
)

// PriceLookup is what the service needs from the resolver.
type PriceLookup interface {
	PriceSource
	GetPriceWithFallback(ctx context.Context, asset string, date time.Time, assetType string, maxLookbackDays int) (float64, time.Time, bool, error)
}

// VerificationService runs full verification passes over stored predictions.
type VerificationService struct {
	repo   PredictionRepo
	prices PriceLookup
	engine *VerificationEngine
	judge  Judge
	uow    UnitOfWork
	clock  Clock
	obs    Observer
	log    *zap.Logger

	entryLookbackDays  int
	minJudgeConfidence float64
}

type Option func(*VerificationService)

func WithClock(c Clock) Option           { return func(s *VerificationService) { s.clock = c } }
func WithJudge(j Judge) Option           { return func(s *VerificationService) { s.judge = j } }
func WithUnitOfWork(u UnitOfWork) Option { return func(s *VerificationService) { s.uow = u } }
func WithObserver(o Observer) Option     { return func(s *VerificationService) { s.obs = o } }
func WithLogger(l *zap.Logger) Option    { return func(s *VerificationService) { s.log = l } }
func WithEntryLookbackDays(n int) Option {
	return func(s *VerificationService) { s.entryLookbackDays = n }
}
func WithMinJudgeConfidence(c float64) Option {
	return func(s *VerificationService) { s.minJudgeConfidence = c }
}

func NewVerificationService(repo PredictionRepo, prices PriceLookup, opts ...Option) *VerificationService {
	s := &VerificationService{
		repo:               repo,
		prices:             prices,
		entryLookbackDays:  DefaultEntryLookbackDays,
		minJudgeConfidence: DefaultMinJudgeConfidence,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.uow == nil {
		s.uow = NoopUoW{}
	}
	if s.obs == nil {
		s.obs = noopObserver{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.engine = NewVerificationEngine(prices, s.clock, s.log)
	return s
}

// Engine exposes the stateless engine for ad-hoc verification requests.
func (s *VerificationService) Engine() *VerificationEngine { return s.engine }

// VerifyPrediction runs one pass for the stored prediction id and persists
// the outcome. A missing horizon is calculated and a missing entry price is
// resolved from the post date before the scan.
func (s *VerificationService) VerifyPrediction(ctx context.Context, id string) (domain.Prediction, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Prediction{}, err
	}
	log := s.log.With(zap.String("prediction_id", id), zap.String("asset", p.Asset))

	if p.Horizon.IsZero() {
		w, err := CalculateHorizonDateRange(p.PostDate, p.HorizonValue, string(p.HorizonType))
		if err != nil {
			return domain.Prediction{}, fmt.Errorf("horizon: %w", err)
		}
		w.CreatedAt = s.clock.Now()
		if err := s.repo.AppendHorizon(ctx, id, w); err != nil {
			return domain.Prediction{}, fmt.Errorf("save horizon: %w", err)
		}
		p.Horizon = w
	}

	if p.EntryPrice == nil || *p.EntryPrice <= 0 {
		price, day, ok, err := s.prices.GetPriceWithFallback(ctx, p.Asset, p.PostDate, string(p.AssetClass), s.entryLookbackDays)
		if err != nil {
			return domain.Prediction{}, fmt.Errorf("entry price: %w", err)
		}
		if ok {
			if err := s.repo.SaveEntryPrice(ctx, id, price); err != nil {
				return domain.Prediction{}, fmt.Errorf("save entry price: %w", err)
			}
			p.EntryPrice = &price
			log.Info("verify.entry_price_resolved", zap.String("date", domain.DayKey(day)), zap.Float64("price", price))
		}
	}
	if p.EntryPrice == nil && p.TargetPrice == nil {
		log.Warn("verify.no_reference_price")
		return p, nil
	}

	out, err := s.engine.VerifyPredictionWithRange(ctx, requestFor(p))
	if err != nil {
		return domain.Prediction{}, err
	}

	if s.judge != nil {
		if p, out, err = s.review(ctx, p, out); err != nil {
			return domain.Prediction{}, err
		}
	}

	now := s.clock.Now()
	if err := s.repo.SaveOutcome(ctx, id, out, now); err != nil {
		return domain.Prediction{}, fmt.Errorf("save outcome: %w", err)
	}
	p.Outcome = out
	p.VerifiedAt = &now
	s.obs.VerificationOutcome(out.Status)
	log.Info("verify.done", zap.String("status", string(out.Status)), zap.Int("horizon_version", p.Horizon.Version))
	return p, nil
}

// review asks the judge about this pass. An accepted horizon correction
// supersedes the window and the engine runs again on the new one. Judge
// failures leave the deterministic outcome in place.
func (s *VerificationService) review(ctx context.Context, p domain.Prediction, out domain.VerificationOutcome) (domain.Prediction, domain.VerificationOutcome, error) {
	vc, err := s.buildContext(ctx, p, out)
	if err != nil {
		return p, out, err
	}
	j, err := s.judge.Judge(ctx, vc)
	if err != nil {
		if ctx.Err() != nil {
			return p, out, ctx.Err()
		}
		s.log.Warn("verify.judge_failed", zap.String("prediction_id", p.ID), zap.Error(err))
		return p, out, nil
	}
	s.log.Debug("verify.judged",
		zap.String("prediction_id", p.ID),
		zap.String("status", string(j.Status)),
		zap.Float64("confidence", j.Confidence))

	if j.CorrectedHorizon == nil || j.Confidence < s.minJudgeConfidence || j.CorrectedHorizon.SameRange(p.Horizon) {
		return p, out, nil
	}
	next, err := p.Horizon.Supersede(j.CorrectedHorizon.Start, j.CorrectedHorizon.End, correctionReason(j), s.clock.Now())
	if err != nil {
		s.log.Warn("verify.judge_horizon_rejected", zap.String("prediction_id", p.ID), zap.Error(err))
		return p, out, nil
	}
	if err := s.repo.AppendHorizon(ctx, p.ID, next); err != nil {
		return p, out, fmt.Errorf("save corrected horizon: %w", err)
	}
	s.log.Info("verify.horizon_superseded",
		zap.String("prediction_id", p.ID),
		zap.Int("version", next.Version),
		zap.String("start", domain.DayKey(next.Start)),
		zap.String("end", domain.DayKey(next.End)))
	p.Horizon = next

	out, err = s.engine.VerifyPredictionWithRange(ctx, requestFor(p))
	return p, out, err
}

func correctionReason(j domain.Judgment) string {
	if j.Reasoning != "" {
		return j.Reasoning
	}
	return "judge correction"
}

// buildContext snapshots the prediction with the prices already seen for
// its window.
func (s *VerificationService) buildContext(ctx context.Context, p domain.Prediction, out domain.VerificationOutcome) (domain.VerificationContext, error) {
	now := s.clock.Now()
	last := p.Horizon.End
	if today := domain.Day(now); today.Before(last) {
		last = today
	}
	var history []domain.PricePoint
	for _, day := range scanDays(p.Horizon.Start, last, p.Horizon.Days()) {
		price, ok, err := s.prices.GetPrice(ctx, p.Asset, day, string(p.AssetClass))
		if err != nil {
			return domain.VerificationContext{}, err
		}
		if ok {
			history = append(history, domain.PricePoint{Date: day, Price: price})
		}
	}
	return domain.VerificationContext{
		Prediction: p,
		Window:     p.Horizon,
		Outcome:    out,
		History:    history,
		BuiltAt:    now,
	}, nil
}

// SupersedeHorizon records an external correction of the prediction's
// window as a new version and resets its outcome to pending.
func (s *VerificationService) SupersedeHorizon(ctx context.Context, id string, start, end time.Time, reason string) (domain.HorizonWindow, error) {
	var next domain.HorizonWindow
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		next, err = p.Horizon.Supersede(start, end, reason, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.AppendHorizon(ctx, id, next); err != nil {
			return err
		}
		return s.repo.SaveOutcome(ctx, id, domain.Pending(), s.clock.Now())
	})
	if err != nil {
		return domain.HorizonWindow{}, err
	}
	s.log.Info("horizon.superseded", zap.String("prediction_id", id), zap.Int("version", next.Version), zap.String("reason", reason))
	return next, nil
}

func (s *VerificationService) HorizonHistory(ctx context.Context, id string) ([]domain.HorizonWindow, error) {
	return s.repo.HorizonHistory(ctx, id)
}

// DuePredictions lists up to limit pending predictions not verified within
// staleAfter.
func (s *VerificationService) DuePredictions(ctx context.Context, limit int, staleAfter time.Duration) ([]string, error) {
	ids, err := s.repo.ClaimDue(ctx, limit, s.clock.Now().Add(-staleAfter))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

func requestFor(p domain.Prediction) VerifyRequest {
	var entry float64
	if p.EntryPrice != nil {
		entry = *p.EntryPrice
	}
	return VerifyRequest{
		Asset:        p.Asset,
		EntryPrice:   entry,
		TargetPrice:  p.TargetPrice,
		Sentiment:    p.Sentiment,
		HorizonStart: p.Horizon.Start,
		HorizonEnd:   p.Horizon.End,
		AssetType:    string(p.AssetClass),
	}
}
