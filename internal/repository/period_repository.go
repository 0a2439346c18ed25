package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

// PeriodRepository handles the closed-period summary cache and the per-period
// pull throttle state.
type PeriodRepository struct {
	db DBTX
}

// NewPeriodRepository creates a new PeriodRepository.
func NewPeriodRepository(db DBTX) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// GetSummary retrieves the cached summary for a period.
func (repo *PeriodRepository) GetSummary(ctx context.Context, p models.Period) (*models.PeriodSummary, error) {
	query := `SELECT month, year, closed, reading_count, completed_count,
			total_consumption, updated_at
		FROM period_summaries WHERE period_key = ?`

	var s models.PeriodSummary
	err := repo.db.QueryRowContext(ctx, query, p.Key()).Scan(
		&s.Month,
		&s.Year,
		&s.Closed,
		&s.ReadingCount,
		&s.CompletedCount,
		&s.TotalConsumption,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSummaries retrieves every cached summary, newest period first.
func (repo *PeriodRepository) ListSummaries(ctx context.Context) ([]*models.PeriodSummary, error) {
	query := `SELECT month, year, closed, reading_count, completed_count,
			total_consumption, updated_at
		FROM period_summaries ORDER BY year DESC, month DESC`

	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.PeriodSummary
	for rows.Next() {
		var s models.PeriodSummary
		if err := rows.Scan(
			&s.Month,
			&s.Year,
			&s.Closed,
			&s.ReadingCount,
			&s.CompletedCount,
			&s.TotalConsumption,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// UpsertSummary writes or refreshes the cached summary for a period.
func (repo *PeriodRepository) UpsertSummary(ctx context.Context, s *models.PeriodSummary) error {
	query := `INSERT INTO period_summaries
			(period_key, month, year, closed, reading_count, completed_count,
			total_consumption, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_key) DO UPDATE SET
			closed = excluded.closed,
			reading_count = excluded.reading_count,
			completed_count = excluded.completed_count,
			total_consumption = excluded.total_consumption,
			updated_at = excluded.updated_at`
	_, err := repo.db.ExecContext(ctx, query,
		s.Key(), s.Month, s.Year, s.Closed, s.ReadingCount,
		s.CompletedCount, s.TotalConsumption, s.UpdatedAt,
	)
	return err
}

// GetSyncState retrieves the pull-throttle state for a period.
func (repo *PeriodRepository) GetSyncState(ctx context.Context, p models.Period) (*models.PeriodSyncState, error) {
	query := `SELECT month, year, last_pull_at FROM period_sync_state WHERE period_key = ?`

	var s models.PeriodSyncState
	var lastPullAt sql.NullTime
	err := repo.db.QueryRowContext(ctx, query, p.Key()).Scan(&s.Month, &s.Year, &lastPullAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.LastPullAt = timePtr(lastPullAt)
	return &s, nil
}

// LatestPullAt returns the most recent pull timestamp across all periods,
// or nil when no pull has ever completed. Full pulls with no explicit period
// filter throttle on this value.
func (repo *PeriodRepository) LatestPullAt(ctx context.Context) (*time.Time, error) {
	var latest sql.NullTime
	err := repo.db.QueryRowContext(ctx,
		`SELECT last_pull_at FROM period_sync_state
		WHERE last_pull_at IS NOT NULL
		ORDER BY last_pull_at DESC LIMIT 1`,
	).Scan(&latest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return timePtr(latest), nil
}

// TouchPullAt records that a full pull for the period finished at the given
// time.
func (repo *PeriodRepository) TouchPullAt(ctx context.Context, p models.Period, at time.Time) error {
	query := `INSERT INTO period_sync_state (period_key, month, year, last_pull_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(period_key) DO UPDATE SET last_pull_at = excluded.last_pull_at`
	_, err := repo.db.ExecContext(ctx, query, p.Key(), p.Month, p.Year, at.UTC())
	return err
}
