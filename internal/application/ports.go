package application

import (
	"context"
	"time"

	"pricecheck-service/internal/domain"
)

// PriceStore is the persistent keyed price table, unique per (asset, date).
type PriceStore interface {
	GetPrice(ctx context.Context, asset string, date time.Time) (domain.AssetPriceRecord, error)
	GetRange(ctx context.Context, asset string, start, end time.Time) ([]domain.AssetPriceRecord, error)
	Upsert(ctx context.Context, rec domain.AssetPriceRecord) error
	UpsertBatch(ctx context.Context, recs []domain.AssetPriceRecord) error
}

// LegacyPriceStore is the read-only shared table of previously stored entry
// prices. Names match case-insensitively; the date must match exactly.
type LegacyPriceStore interface {
	LookupPrice(ctx context.Context, names []string, date time.Time) (float64, error)
}

// PriceProvider is one upstream price source. A clean miss is reported as
// domain.ErrPriceNotFound, never as a zero price.
type PriceProvider interface {
	Name() string
	PriceAt(ctx context.Context, symbol string, date time.Time) (float64, error)
}

// RangeProvider is implemented by providers that can return a whole window
// in one request. Keys are domain.DayKey dates.
type RangeProvider interface {
	PriceRange(ctx context.Context, symbol string, start, end time.Time) (map[string]float64, error)
}

// SymbolSearcher maps free text to the provider's best-match ticker.
type SymbolSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type SearchCache interface {
	GetSymbol(ctx context.Context, query string) (string, bool, error)
	SetSymbol(ctx context.Context, query, ticker string) error
}

type PredictionRepo interface {
	Get(ctx context.Context, id string) (domain.Prediction, error)
	SaveOutcome(ctx context.Context, id string, out domain.VerificationOutcome, verifiedAt time.Time) error
	SaveEntryPrice(ctx context.Context, id string, price float64) error
	// AppendHorizon stores w as the prediction's current window, keeping
	// earlier versions.
	AppendHorizon(ctx context.Context, id string, w domain.HorizonWindow) error
	HorizonHistory(ctx context.Context, id string) ([]domain.HorizonWindow, error)
	// ClaimDue returns ids of pending predictions not verified since before.
	ClaimDue(ctx context.Context, limit int, before time.Time) ([]string, error)
}

// Judge is the AI-assisted reviewer of a verification pass.
type Judge interface {
	Judge(ctx context.Context, vc domain.VerificationContext) (domain.Judgment, error)
}

// Observer receives resolution and verification events for metrics.
type Observer interface {
	CacheLookup(tier string, hit bool)
	ProviderResult(provider, result string)
	VerificationOutcome(status domain.VerificationStatus)
}

type noopObserver struct{}

func (noopObserver) CacheLookup(string, bool)                      {}
func (noopObserver) ProviderResult(string, string)                 {}
func (noopObserver) VerificationOutcome(domain.VerificationStatus) {}
