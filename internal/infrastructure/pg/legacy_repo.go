package pg

import (
	"context"
	"errors"
	"strings"
	"time"

	"pricecheck-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

// LegacyPriceRepo reads entry prices already recorded on predictions. It is
// the last cache tier and never writes.
type LegacyPriceRepo struct{ db *DB }

func NewLegacyPriceRepo(db *DB) *LegacyPriceRepo { return &LegacyPriceRepo{db: db} }

// LookupPrice matches any of names case-insensitively on the exact post date.
func (r *LegacyPriceRepo) LookupPrice(ctx context.Context, names []string, date time.Time) (float64, error) {
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			lowered = append(lowered, n)
		}
	}
	if len(lowered) == 0 {
		return 0, domain.ErrNotFound
	}
	const q = `
        SELECT entry_price::float8
        FROM predictions
        WHERE lower(asset) = ANY($1) AND post_date = $2 AND entry_price > 0
        ORDER BY created_at DESC
        LIMIT 1`
	var price float64
	err := r.db.conn(ctx).QueryRow(ctx, q, lowered, domain.Day(date)).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return price, nil
}
