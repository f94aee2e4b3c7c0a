package repository

import (
	"context"
	"time"

	"stock-signal-lab/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createTables = `
CREATE TABLE IF NOT EXISTS bars (
    ticker    TEXT        NOT NULL,
    bar_date  TIMESTAMPTZ NOT NULL,
    open      NUMERIC     NOT NULL,
    high      NUMERIC     NOT NULL,
    low       NUMERIC     NOT NULL,
    close     NUMERIC     NOT NULL,
    volume    NUMERIC     NOT NULL,
    PRIMARY KEY (ticker, bar_date)
);

CREATE INDEX IF NOT EXISTS idx_bars_ticker_date
    ON bars (ticker, bar_date DESC);

CREATE TABLE IF NOT EXISTS ml_model_versions (
    id                   BIGSERIAL PRIMARY KEY,
    model_key            TEXT        NOT NULL,
    version              INTEGER     NOT NULL,
    feature_spec_version TEXT        NOT NULL DEFAULT '',
    trained_from         TIMESTAMPTZ NOT NULL,
    trained_to           TIMESTAMPTZ NOT NULL,
    trained_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    hyperparams_json     TEXT        NOT NULL DEFAULT '{}',
    metrics_json         TEXT        NOT NULL DEFAULT '{}',
    artifact_format      TEXT        NOT NULL DEFAULT 'json',
    artifact_blob        BYTEA,
    is_active            BOOLEAN     NOT NULL DEFAULT FALSE,
    activated_at         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (model_key, version)
);

CREATE TABLE IF NOT EXISTS ml_studies (
    id               BIGSERIAL PRIMARY KEY,
    ticker           TEXT             NOT NULL,
    trials           INTEGER          NOT NULL,
    failed_trials    INTEGER          NOT NULL DEFAULT 0,
    best_score       DOUBLE PRECISION NOT NULL,
    best_params_json TEXT             NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BarRepository persists daily OHLCV bars fetched from the upstream
// provider so repeated research runs do not refetch history.
type BarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBarRepository(pool PgxPool, tracer trace.Tracer) *BarRepository {
	return &BarRepository{pool: pool, tracer: tracer}
}

func (r *BarRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "bar-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createTables)
	return err
}

func (r *BarRepository) UpsertBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "bar-repo.upsert-bars")
	defer span.End()

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO bars (ticker, bar_date, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (ticker, bar_date) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume`,
			b.Ticker, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *BarRepository) GetBarsInRange(ctx context.Context, ticker string, from, to time.Time) (*domain.BarSeries, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars-in-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ticker, bar_date, open, high, low, close, volume
		 FROM bars
		 WHERE ticker = $1 AND bar_date >= $2 AND bar_date <= $3
		 ORDER BY bar_date ASC`,
		ticker, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.NewBarSeries(ticker, bars), nil
}
