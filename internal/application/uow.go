package application

import "context"

// UnitOfWork groups a horizon append with the outcome reset that follows it.
// Stores join the transaction through ctx.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopUoW runs fn directly, for the in-memory stores.
type NoopUoW struct{}

func (NoopUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
