package provider

import (
	"context"
	"strings"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
)

var (
	_ application.PriceProvider  = (*Fake)(nil)
	_ application.RangeProvider  = (*Fake)(nil)
	_ application.SymbolSearcher = (*Fake)(nil)
)

// Fake prices every symbol at a fixed value on every past or present day.
// It stands in for the network providers in local runs.
type Fake struct {
	name  string
	price float64
	now   func() time.Time
}

func NewFake(name string, price float64) *Fake {
	return &Fake{name: name, price: price, now: time.Now}
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) PriceAt(_ context.Context, symbol string, date time.Time) (float64, error) {
	if symbol == "" || domain.Day(date).After(domain.Day(f.now())) {
		return 0, domain.ErrPriceNotFound
	}
	return f.price, nil
}

func (f *Fake) PriceRange(ctx context.Context, symbol string, start, end time.Time) (map[string]float64, error) {
	out := map[string]float64{}
	for d := domain.Day(start); !d.After(domain.Day(end)); d = d.AddDate(0, 0, 1) {
		if p, err := f.PriceAt(ctx, symbol, d); err == nil {
			out[domain.DayKey(d)] = p
		}
	}
	return out, nil
}

func (f *Fake) Search(_ context.Context, query string) (string, error) {
	t := strings.ToUpper(strings.Join(strings.Fields(query), ""))
	if t == "" {
		return "", domain.ErrSymbolNotFound
	}
	return t, nil
}
