package application

import "context"

// IdempotencyStore deduplicates horizon corrections submitted with the same
// X-Idempotency-Key.
type IdempotencyStore interface {
	// TryReserve reports false when key is already held.
	TryReserve(ctx context.Context, key string) (bool, error)
	// Release frees key after the guarded request failed.
	Release(ctx context.Context, key string) error
}

// CorrectionKey scopes a client idempotency key to one prediction.
func CorrectionKey(predictionID, key string) string {
	return "horizon:" + predictionID + ":" + key
}

// NoopIdempotency reserves every key. Used when Redis is not configured.
type NoopIdempotency struct{}

func (NoopIdempotency) TryReserve(context.Context, string) (bool, error) { return true, nil }
func (NoopIdempotency) Release(context.Context, string) error            { return nil }
