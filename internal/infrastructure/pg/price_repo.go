package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceRepo is the persistent price table, one row per (asset, date).
type PriceRepo struct{ db *DB }

func NewPriceRepo(db *DB) *PriceRepo { return &PriceRepo{db: db} }

const priceCols = `asset, date, price::text, currency, source, recorded_at`

func (r *PriceRepo) GetPrice(ctx context.Context, asset string, date time.Time) (domain.AssetPriceRecord, error) {
	q := `SELECT ` + priceCols + ` FROM asset_prices WHERE asset=$1 AND date=$2`
	rec, err := scanPrice(r.db.conn(ctx).QueryRow(ctx, q, strings.ToUpper(asset), domain.Day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssetPriceRecord{}, domain.ErrNotFound
	}
	if err != nil {
		logx.L().Error("sql.query_failed",
			zap.String("repo", "price"),
			zap.String("operation", "GetPrice"),
			zap.String("asset", asset),
			zap.Error(err))
		return domain.AssetPriceRecord{}, err
	}
	return rec, nil
}

// GetRange returns the stored prices of asset inside [start, end], oldest first.
func (r *PriceRepo) GetRange(ctx context.Context, asset string, start, end time.Time) ([]domain.AssetPriceRecord, error) {
	q := `SELECT ` + priceCols + ` FROM asset_prices
        WHERE asset=$1 AND date BETWEEN $2 AND $3
        ORDER BY date`
	rows, err := r.db.conn(ctx).Query(ctx, q, strings.ToUpper(asset), domain.Day(start), domain.Day(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AssetPriceRecord
	for rows.Next() {
		rec, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const upsertPrice = `
    INSERT INTO asset_prices(asset, date, price, currency, source, recorded_at)
    VALUES ($1, $2, $3::numeric, $4, $5, NOW())
    ON CONFLICT (asset, date) DO UPDATE
      SET price=EXCLUDED.price,
          currency=EXCLUDED.currency,
          source=EXCLUDED.source,
          recorded_at=EXCLUDED.recorded_at`

func (r *PriceRepo) Upsert(ctx context.Context, rec domain.AssetPriceRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	_, err := r.db.conn(ctx).Exec(ctx, upsertPrice, upsertArgs(rec)...)
	if err != nil {
		logx.L().Error("sql.exec_failed",
			zap.String("repo", "price"),
			zap.String("operation", "Upsert"),
			zap.String("asset", rec.Asset),
			zap.String("date", domain.DayKey(rec.Date)),
			zap.Error(err))
	}
	return err
}

// UpsertBatch writes recs in one round trip. Invalid records are skipped.
func (r *PriceRepo) UpsertBatch(ctx context.Context, recs []domain.AssetPriceRecord) error {
	batch := &pgx.Batch{}
	for _, rec := range recs {
		if rec.Validate() != nil {
			continue
		}
		batch.Queue(upsertPrice, upsertArgs(rec)...)
	}
	if batch.Len() == 0 {
		return nil
	}
	log := logx.L().With(
		zap.String("repo", "price"),
		zap.String("operation", "UpsertBatch"),
		zap.Int("records", batch.Len()),
	)
	var err error
	if tx := txFromCtx(ctx); tx != nil {
		err = tx.SendBatch(ctx, batch).Close()
	} else {
		err = r.db.Pool.SendBatch(ctx, batch).Close()
	}
	if err != nil {
		log.Error("sql.batch_failed", zap.Error(err))
		return err
	}
	log.Debug("sql.batch_success")
	return nil
}

func upsertArgs(rec domain.AssetPriceRecord) []any {
	currency := rec.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return []any{strings.ToUpper(rec.Asset), domain.Day(rec.Date), rec.Price.String(), currency, rec.Source}
}

func scanPrice(row pgx.Row) (domain.AssetPriceRecord, error) {
	var (
		rec   domain.AssetPriceRecord
		price string
	)
	if err := row.Scan(&rec.Asset, &rec.Date, &price, &rec.Currency, &rec.Source, &rec.RecordedAt); err != nil {
		return domain.AssetPriceRecord{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.AssetPriceRecord{}, fmt.Errorf("price %q: %w", price, err)
	}
	rec.Price = d
	rec.Date = domain.Day(rec.Date)
	return rec, nil
}
