package pg

import (
	"context"
	"errors"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/logx"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const pgForeignKeyViolation = "23503"

type PredictionRepo struct{ db *DB }

func NewPredictionRepo(db *DB) *PredictionRepo { return &PredictionRepo{db: db} }

// Insert stores a new prediction and returns its id. Predictions are written
// by the ingestion pipeline; this exists for seeding and tests.
func (r *PredictionRepo) Insert(ctx context.Context, p domain.Prediction) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	const ins = `
        INSERT INTO predictions(id, asset, asset_type, sentiment, entry_price, target_price,
            horizon_value, horizon_type, post_date, post_title, post_url, channel, published_at, transcript)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	var published *time.Time
	if !p.Post.PublishedAt.IsZero() {
		published = &p.Post.PublishedAt
	}
	var transcript *string
	if p.Transcript != "" {
		transcript = &p.Transcript
	}
	_, err := r.db.conn(ctx).Exec(ctx, ins,
		id, p.Asset, string(p.AssetClass), string(p.Sentiment), p.EntryPrice, p.TargetPrice,
		p.HorizonValue, string(p.HorizonType), domain.Day(p.PostDate),
		p.Post.Title, p.Post.URL, p.Post.Channel, published, transcript)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *PredictionRepo) Get(ctx context.Context, id string) (domain.Prediction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Prediction{}, application.ErrNotFound
	}
	const q = `
        SELECT p.id::text, p.asset, p.asset_type, p.sentiment, p.entry_price::float8, p.target_price::float8,
               p.horizon_value, p.horizon_type, p.post_date, p.post_title, p.post_url, p.channel,
               p.published_at, COALESCE(p.transcript, ''), p.status, p.met_date, p.actual_price::float8,
               p.verified_at,
               h.version, h.start_date, h.end_date, h.corrected, COALESCE(h.correction_reason, ''), h.created_at
        FROM predictions p
        LEFT JOIN LATERAL (
            SELECT version, start_date, end_date, corrected, correction_reason, created_at
            FROM horizon_windows
            WHERE prediction_id = p.id
            ORDER BY version DESC
            LIMIT 1
        ) h ON TRUE
        WHERE p.id = $1`
	log := logx.L().With(
		zap.String("repo", "prediction"),
		zap.String("operation", "Get"),
		zap.String("id", id),
	)
	var (
		p                      domain.Prediction
		assetType, sentiment   string
		horizonType, status    string
		published              *time.Time
		hVersion               *int
		hStart, hEnd, hCreated *time.Time
		hCorrected             *bool
		hReason                string
	)
	err := r.db.conn(ctx).QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Asset, &assetType, &sentiment, &p.EntryPrice, &p.TargetPrice,
		&p.HorizonValue, &horizonType, &p.PostDate, &p.Post.Title, &p.Post.URL, &p.Post.Channel,
		&published, &p.Transcript, &status, &p.Outcome.MetDate, &p.Outcome.ActualPrice,
		&p.VerifiedAt,
		&hVersion, &hStart, &hEnd, &hCorrected, &hReason, &hCreated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Info("sql.query_no_rows")
		return domain.Prediction{}, application.ErrNotFound
	}
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return domain.Prediction{}, err
	}
	p.AssetClass = domain.ParseAssetClass(assetType)
	p.Sentiment = domain.ParseSentiment(sentiment)
	p.HorizonType = domain.HorizonType(horizonType)
	p.PostDate = domain.Day(p.PostDate)
	p.Outcome.Status = domain.VerificationStatus(status)
	if published != nil {
		p.Post.PublishedAt = *published
	}
	if hVersion != nil && hStart != nil && hEnd != nil {
		p.Horizon = domain.HorizonWindow{
			Start:            domain.Day(*hStart),
			End:              domain.Day(*hEnd),
			Version:          *hVersion,
			Corrected:        hCorrected != nil && *hCorrected,
			CorrectionReason: hReason,
		}
		if hCreated != nil {
			p.Horizon.CreatedAt = *hCreated
		}
	}
	return p, nil
}

func (r *PredictionRepo) SaveOutcome(ctx context.Context, id string, out domain.VerificationOutcome, verifiedAt time.Time) error {
	const up = `
        UPDATE predictions
        SET status=$2, met_date=$3, actual_price=$4, verified_at=$5, claimed_at=NULL
        WHERE id=$1`
	log := logx.L().With(
		zap.String("repo", "prediction"),
		zap.String("operation", "SaveOutcome"),
		zap.String("id", id),
		zap.String("status", string(out.Status)),
	)
	if _, err := uuid.Parse(id); err != nil {
		return application.ErrNotFound
	}
	tag, err := r.db.conn(ctx).Exec(ctx, up, id, string(out.Status), out.MetDate, out.ActualPrice, verifiedAt)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		log.Warn("sql.exec_no_rows")
		return application.ErrNotFound
	}
	log.Info("sql.exec_success")
	return nil
}

func (r *PredictionRepo) SaveEntryPrice(ctx context.Context, id string, price float64) error {
	if _, err := uuid.Parse(id); err != nil {
		return application.ErrNotFound
	}
	tag, err := r.db.conn(ctx).Exec(ctx, `UPDATE predictions SET entry_price=$2 WHERE id=$1`, id, price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}

// AppendHorizon inserts w as a new version. Existing versions are never
// updated; inserting a version twice is a conflict.
func (r *PredictionRepo) AppendHorizon(ctx context.Context, id string, w domain.HorizonWindow) error {
	if _, err := uuid.Parse(id); err != nil {
		return application.ErrNotFound
	}
	if err := w.Validate(); err != nil {
		return err
	}
	version := w.Version
	if version <= 0 {
		version = 1
	}
	created := w.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var reason *string
	if w.CorrectionReason != "" {
		reason = &w.CorrectionReason
	}
	const ins = `
        INSERT INTO horizon_windows(prediction_id, version, start_date, end_date, corrected, correction_reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (prediction_id, version) DO NOTHING`
	log := logx.L().With(
		zap.String("repo", "prediction"),
		zap.String("operation", "AppendHorizon"),
		zap.String("id", id),
		zap.Int("version", version),
	)
	tag, err := r.db.conn(ctx).Exec(ctx, ins, id, version, domain.Day(w.Start), domain.Day(w.End), w.Corrected, reason, created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return application.ErrNotFound
		}
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		log.Warn("sql.exec_conflict")
		return application.ErrConflict
	}
	log.Info("sql.exec_success")
	return nil
}

// HorizonHistory lists every window version of the prediction, oldest first.
func (r *PredictionRepo) HorizonHistory(ctx context.Context, id string) ([]domain.HorizonWindow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, application.ErrNotFound
	}
	const q = `
        SELECT version, start_date, end_date, corrected, COALESCE(correction_reason, ''), created_at
        FROM horizon_windows
        WHERE prediction_id=$1
        ORDER BY version`
	rows, err := r.db.conn(ctx).Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.HorizonWindow
	for rows.Next() {
		var w domain.HorizonWindow
		if err := rows.Scan(&w.Version, &w.Start, &w.End, &w.Corrected, &w.CorrectionReason, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.Start, w.End = domain.Day(w.Start), domain.Day(w.End)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, application.ErrNotFound
	}
	return out, nil
}

// ClaimDue marks up to limit pending predictions, last verified or claimed
// before the cutoff, as claimed and returns their ids. Concurrent workers
// skip each other's rows.
func (r *PredictionRepo) ClaimDue(ctx context.Context, limit int, before time.Time) ([]string, error) {
	const q = `
      WITH cte AS (
        SELECT id
        FROM predictions
        WHERE status = 'pending'
          AND COALESCE(verified_at, 'epoch'::timestamptz) < $2
          AND COALESCE(claimed_at, 'epoch'::timestamptz) < $2
        ORDER BY COALESCE(verified_at, 'epoch'::timestamptz), post_date
        LIMIT $1
        FOR UPDATE SKIP LOCKED
      )
      UPDATE predictions p
      SET claimed_at = NOW()
      FROM cte
      WHERE p.id = cte.id
      RETURNING p.id::text`
	rows, err := r.db.conn(ctx).Query(ctx, q, limit, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
