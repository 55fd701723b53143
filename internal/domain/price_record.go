package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// AssetPriceRecord is one cached daily price, unique per (Asset, Date).
type AssetPriceRecord struct {
	Asset      string
	Date       time.Time
	Price      decimal.Decimal
	Currency   string
	Source     string
	RecordedAt time.Time
}

func NewAssetPriceRecord(asset string, date time.Time, price float64, source string) AssetPriceRecord {
	return AssetPriceRecord{
		Asset:    asset,
		Date:     Day(date),
		Price:    decimal.NewFromFloat(price),
		Currency: DefaultCurrency,
		Source:   source,
	}
}

func (r AssetPriceRecord) Validate() error {
	if r.Asset == "" {
		return errors.New("asset is required")
	}
	if r.Price.IsZero() || r.Price.IsNegative() {
		return errors.New("price must be positive")
	}
	if r.Date.IsZero() {
		return errors.New("date is required")
	}
	if r.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

func (r AssetPriceRecord) PriceFloat() float64 {
	f, _ := r.Price.Float64()
	return f
}
