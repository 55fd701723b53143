package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Config describes one provider's request budget.
type Config struct {
	Name      string
	TargetRPS float64
	MaxJitter time.Duration

	// Throttle backoff: BackoffBase * BackoffFactor^attempt, randomized,
	// at most MaxRetries attempts.
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
	MaxRetries    int
}

// Limiter gates calls to a single provider. It is safe for concurrent use;
// x/time/rate serializes reservations, so concurrent callers are spaced by
// the minimum interval rather than bursting together.
type Limiter struct {
	cfg Config
	lim *rate.Limiter

	mu            sync.Mutex
	lastRequestAt time.Time
}

func New(cfg Config) *Limiter {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.TargetRPS > 0 {
		limit = rate.Every(time.Duration(float64(time.Second) / cfg.TargetRPS))
	}
	return &Limiter{cfg: cfg, lim: rate.NewLimiter(limit, 1)}
}

func (l *Limiter) Name() string { return l.cfg.Name }

// MinInterval is the enforced spacing between two requests.
func (l *Limiter) MinInterval() time.Duration {
	if l.cfg.TargetRPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / l.cfg.TargetRPS)
}

// Wait blocks until the provider may be called again, then adds jitter.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	if l.cfg.MaxJitter > 0 {
		if err := Sleep(ctx, rand.N(l.cfg.MaxJitter)); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.lastRequestAt = time.Now()
	l.mu.Unlock()
	return nil
}

func (l *Limiter) LastRequestAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRequestAt
}

// ThrottleBackOff returns a fresh policy for one throttled call sequence.
// NextBackOff yields backoff.Stop once MaxRetries is exhausted.
func (l *Limiter) ThrottleBackOff() backoff.BackOff {
	if l.cfg.MaxRetries == 0 {
		return &backoff.StopBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = l.cfg.BackoffBase
	exp.Multiplier = l.cfg.BackoffFactor
	exp.RandomizationFactor = 0.3
	exp.MaxInterval = l.cfg.BackoffMax
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(l.cfg.MaxRetries))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
