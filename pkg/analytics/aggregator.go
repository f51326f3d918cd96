package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

// Aggregator maintains the quarterly and yearly rollup tables for the
// postgres backend. The rollups precompute volume and growth so dashboard
// queries never scan the monthly fact table.
type Aggregator struct {
	db *sql.DB
}

// NewAggregator creates an aggregator over an open postgres handle.
func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{db: db}
}

// AggregateQuarterly rebuilds registrations_quarterly from the monthly
// records, including quarter-over-quarter growth. Quarters whose immediate
// predecessor is missing or zero get a NULL growth value; the ordinal guard
// keeps growth from being computed across a gap in the data.
func (a *Aggregator) AggregateQuarterly(ctx context.Context) error {
	query := `
		WITH quarterly AS (
			SELECT
				manufacturer,
				year,
				(month + 2) / 3 AS quarter,
				SUM(count) AS count
			FROM registrations
			GROUP BY manufacturer, year, (month + 2) / 3
		),
		with_prev AS (
			SELECT
				manufacturer, year, quarter, count,
				LAG(count) OVER (
					PARTITION BY manufacturer
					ORDER BY year, quarter
				) AS prev_count,
				LAG(year * 4 + quarter) OVER (
					PARTITION BY manufacturer
					ORDER BY year, quarter
				) AS prev_ord
			FROM quarterly
		)
		INSERT INTO registrations_quarterly (manufacturer, year, quarter, count, qoq_growth, updated_at)
		SELECT
			manufacturer, year, quarter, count,
			CASE
				WHEN prev_count IS NULL OR prev_count = 0 OR prev_ord <> year * 4 + quarter - 1 THEN NULL
				ELSE (count - prev_count)::double precision / prev_count * 100
			END,
			NOW()
		FROM with_prev
		ON CONFLICT (manufacturer, year, quarter) DO UPDATE SET
			count = EXCLUDED.count,
			qoq_growth = EXCLUDED.qoq_growth,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("aggregate quarterly rollup: %w", err)
	}
	return nil
}

// AggregateYearly rebuilds registrations_yearly from the monthly records,
// including year-over-year growth with the same NULL semantics.
func (a *Aggregator) AggregateYearly(ctx context.Context) error {
	query := `
		WITH yearly AS (
			SELECT manufacturer, year, SUM(count) AS count
			FROM registrations
			GROUP BY manufacturer, year
		),
		with_prev AS (
			SELECT
				manufacturer, year, count,
				LAG(count) OVER (PARTITION BY manufacturer ORDER BY year) AS prev_count,
				LAG(year) OVER (PARTITION BY manufacturer ORDER BY year) AS prev_year
			FROM yearly
		)
		INSERT INTO registrations_yearly (manufacturer, year, count, yoy_growth, updated_at)
		SELECT
			manufacturer, year, count,
			CASE
				WHEN prev_count IS NULL OR prev_count = 0 OR prev_year <> year - 1 THEN NULL
				ELSE (count - prev_count)::double precision / prev_count * 100
			END,
			NOW()
		FROM with_prev
		ON CONFLICT (manufacturer, year) DO UPDATE SET
			count = EXCLUDED.count,
			yoy_growth = EXCLUDED.yoy_growth,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("aggregate yearly rollup: %w", err)
	}
	return nil
}

// PruneStale removes rollup rows whose source months were deleted, for
// example after a ReplaceYear shrank a year.
func (a *Aggregator) PruneStale(ctx context.Context) error {
	queries := []string{
		`DELETE FROM registrations_quarterly q
		 WHERE NOT EXISTS (
			SELECT 1 FROM registrations r
			WHERE r.manufacturer = q.manufacturer
			  AND r.year = q.year
			  AND (r.month + 2) / 3 = q.quarter
		 )`,
		`DELETE FROM registrations_yearly y
		 WHERE NOT EXISTS (
			SELECT 1 FROM registrations r
			WHERE r.manufacturer = y.manufacturer
			  AND r.year = y.year
		 )`,
	}
	for _, query := range queries {
		if _, err := a.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("prune stale rollups: %w", err)
		}
	}
	return nil
}

// AggregateAll runs the full rollup refresh.
func (a *Aggregator) AggregateAll(ctx context.Context) error {
	if err := a.AggregateQuarterly(ctx); err != nil {
		return err
	}
	if err := a.AggregateYearly(ctx); err != nil {
		return err
	}
	return a.PruneStale(ctx)
}
