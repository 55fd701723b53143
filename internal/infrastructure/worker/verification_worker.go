package worker

import (
	"context"
	"errors"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ application.Worker = (*VerificationWorker)(nil)

// Verifier is the part of the verification service the worker drives.
type Verifier interface {
	DuePredictions(ctx context.Context, limit int, staleAfter time.Duration) ([]string, error)
	VerifyPrediction(ctx context.Context, id string) (domain.Prediction, error)
}

// VerificationWorker polls for pending predictions and verifies them with
// bounded parallelism.
type VerificationWorker struct {
	Verifier Verifier

	PollEvery   time.Duration
	BatchLimit  int
	Concurrency int
	StaleAfter  time.Duration
	// PassTimeout bounds one prediction's verification pass.
	PassTimeout time.Duration
	Log         *zap.Logger
}

func (w *VerificationWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.PollEvery <= 0 {
		w.PollEvery = 30 * time.Second
	}
	if w.BatchLimit <= 0 {
		w.BatchLimit = 20
	}
	if w.Concurrency <= 0 {
		w.Concurrency = 4
	}
	if w.PassTimeout <= 0 {
		w.PassTimeout = 5 * time.Minute
	}

	t := time.NewTicker(w.PollEvery)
	defer t.Stop()

	log.Info("verify_worker.started",
		zap.Duration("poll_every", w.PollEvery),
		zap.Int("concurrency", w.Concurrency))
	for {
		w.Tick(ctx, log)
		select {
		case <-ctx.Done():
			log.Info("verify_worker.stopped")
			return
		case <-t.C:
		}
	}
}

// Tick claims one batch and verifies it. It returns the number of passes
// that completed without error.
func (w *VerificationWorker) Tick(ctx context.Context, log *zap.Logger) int {
	ids, err := w.Verifier.DuePredictions(ctx, w.BatchLimit, w.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("verify_worker.claim_failed", zap.Error(err))
		}
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	done := make(chan struct{}, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.Concurrency, 1))
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			pctx, cancel := context.WithTimeout(gctx, w.PassTimeout)
			defer cancel()
			if _, err := w.Verifier.VerifyPrediction(pctx, id); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("verify_worker.pass_failed", zap.String("prediction_id", id), zap.Error(err))
				}
				return nil
			}
			done <- struct{}{}
			return nil
		})
	}
	_ = g.Wait()
	close(done)
	log.Info("verify_worker.batch_done", zap.Int("claimed", len(ids)), zap.Int("verified", len(done)))
	return len(done)
}
