package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is returned without invoking the call while the circuit is open
// or while a half-open probe is already in flight.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Settings struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
	// IsFailure decides whether a returned error counts against the circuit.
	// nil errors always count as success.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
	Log           *zap.Logger
}

// Snapshot is the per-provider state kept for the lifetime of the process.
type Snapshot struct {
	Name                string
	State               State
	CircuitOpen         bool
	ConsecutiveFailures int
	LastOpenedAt        time.Time
	LastRequestAt       time.Time
}

type Breaker struct {
	name          string
	threshold     int
	resetTimeout  time.Duration
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	now           func() time.Time
	log           *zap.Logger

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	lastRequestAt time.Time
	probing       bool
}

func New(s Settings) *Breaker {
	b := &Breaker{
		name:          s.Name,
		threshold:     s.FailureThreshold,
		resetTimeout:  s.ResetTimeout,
		isFailure:     s.IsFailure,
		onStateChange: s.OnStateChange,
		now:           s.Now,
		log:           s.Log,
	}
	if b.threshold <= 0 {
		b.threshold = 5
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = 60 * time.Second
	}
	if b.isFailure == nil {
		b.isFailure = func(error) bool { return true }
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the circuit rejects it. The lock is only held while
// admitting and while recording, never across fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case StateOpen:
		if now.Sub(b.openedAt) < b.resetTimeout {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.setState(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.probing = true
	}
	b.lastRequestAt = now
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	failed := err != nil && b.isFailure(err)
	wasProbe := b.state == StateHalfOpen
	b.probing = false

	if !failed {
		b.failures = 0
		if wasProbe {
			b.setState(StateClosed)
		}
		return
	}
	b.failures++
	if wasProbe || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.log.Info("breaker.state_change",
		zap.String("provider", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("consecutive_failures", b.failures),
	)
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:                b.name,
		State:               b.state,
		CircuitOpen:         b.state == StateOpen,
		ConsecutiveFailures: b.failures,
		LastOpenedAt:        b.openedAt,
		LastRequestAt:       b.lastRequestAt,
	}
}
