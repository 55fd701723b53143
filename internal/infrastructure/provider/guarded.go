package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/breaker"
	"pricecheck-service/internal/infrastructure/httpx"
	"pricecheck-service/internal/infrastructure/ratelimit"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Call outcomes reported to the CallObserver.
const (
	OutcomeOK           = "ok"
	OutcomeMiss         = "miss"
	OutcomeThrottled    = "throttled"
	OutcomeOpen         = "circuit_open"
	OutcomeTimeout      = "timeout"
	OutcomeUnconfigured = "unconfigured"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// maxRetryAfter bounds how long a Retry-After hint may hold a caller.
const maxRetryAfter = time.Minute

type CallObserver interface {
	ProviderCall(provider, outcome string, took time.Duration)
}

// CountsAsFailure is the breaker failure predicate shared by all providers:
// clean misses, throttling, missing credentials and caller cancellation are
// not the provider's fault.
func CountsAsFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case domain.IsCleanMiss(err),
		errors.Is(err, domain.ErrThrottled),
		errors.Is(err, domain.ErrMissingCredentials),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// Outcome classifies a call result for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case domain.IsCleanMiss(err):
		return OutcomeMiss
	case errors.Is(err, domain.ErrThrottled):
		return OutcomeThrottled
	case errors.Is(err, breaker.ErrOpen):
		return OutcomeOpen
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, domain.ErrMissingCredentials):
		return OutcomeUnconfigured
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

// Guarded puts a provider behind its rate limiter and circuit breaker and
// bounds every call with a timeout. Throttled calls are retried with the
// limiter's throttle backoff.
type Guarded struct {
	inner   application.PriceProvider
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	timeout time.Duration
	obs     CallObserver
	log     *zap.Logger
}

var (
	_ application.PriceProvider  = (*Guarded)(nil)
	_ application.RangeProvider  = (*Guarded)(nil)
	_ application.SymbolSearcher = (*Guarded)(nil)
)

type GuardOption func(*Guarded)

func WithCallObserver(o CallObserver) GuardOption { return func(g *Guarded) { g.obs = o } }
func WithGuardLogger(l *zap.Logger) GuardOption   { return func(g *Guarded) { g.log = l } }

func NewGuarded(inner application.PriceProvider, lim *ratelimit.Limiter, br *breaker.Breaker, timeout time.Duration, opts ...GuardOption) *Guarded {
	g := &Guarded{inner: inner, limiter: lim, breaker: br, timeout: timeout}
	for _, opt := range opts {
		opt(g)
	}
	if g.timeout <= 0 {
		g.timeout = 10 * time.Second
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) PriceAt(ctx context.Context, symbol string, date time.Time) (float64, error) {
	var p float64
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		p, err = g.inner.PriceAt(ctx, symbol, date)
		return err
	})
	return p, err
}

// PriceRange is only served when the wrapped provider supports ranges.
func (g *Guarded) PriceRange(ctx context.Context, symbol string, start, end time.Time) (map[string]float64, error) {
	rp, ok := g.inner.(application.RangeProvider)
	if !ok {
		return nil, fmt.Errorf("%s: ranges: %w", g.Name(), domain.ErrUnsupportedAsset)
	}
	var out map[string]float64
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = rp.PriceRange(ctx, symbol, start, end)
		return err
	})
	return out, err
}

func (g *Guarded) Search(ctx context.Context, query string) (string, error) {
	s, ok := g.inner.(application.SymbolSearcher)
	if !ok {
		return "", fmt.Errorf("%s: search: %w", g.Name(), domain.ErrSymbolNotFound)
	}
	var out string
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.Search(ctx, query)
		return err
	})
	return out, err
}

func (g *Guarded) call(ctx context.Context, fn func(ctx context.Context) error) error {
	bo := g.limiter.ThrottleBackOff()
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		err := g.breaker.Execute(func() error {
			cctx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return fn(cctx)
		})
		if g.obs != nil {
			g.obs.ProviderCall(g.Name(), Outcome(err), time.Since(start))
		}
		if !errors.Is(err, domain.ErrThrottled) {
			return err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%s: throttle retries exhausted: %w", g.Name(), err)
		}
		var se *httpx.StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			if se.RetryAfter > maxRetryAfter {
				return fmt.Errorf("%s: retry after %s: %w", g.Name(), se.RetryAfter, err)
			}
			wait = se.RetryAfter
		}
		g.log.Warn("provider.throttled", zap.String("provider", g.Name()), zap.Duration("retry_in", wait))
		if err := ratelimit.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
