package repository

import (
	"context"
	"database/sql"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

const readingColumns = `
	local_id, server_id, backend_reading_id, month, year, lot_id, lot_name,
	lot_status, meter_code, times_ten, current_value, current_value_date,
	previous_value, previous_value_date, consumption, closed, workflow_status,
	image_url, sync_status, last_sync_at, error_message, deleted,
	created_at, updated_at
`

// ReadingRepository handles reading persistence.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a new ReadingRepository.
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

func scanReading(row interface{ Scan(...interface{}) error }) (*models.Reading, error) {
	var r models.Reading
	var backendID sql.NullInt64
	var currentDate, previousDate, lastSyncAt sql.NullTime

	err := row.Scan(
		&r.LocalID,
		&r.ServerID,
		&backendID,
		&r.Period.Month,
		&r.Period.Year,
		&r.LotID,
		&r.LotName,
		&r.LotStatus,
		&r.MeterCode,
		&r.TimesTen,
		&r.CurrentValue,
		&currentDate,
		&r.PreviousValue,
		&previousDate,
		&r.Consumption,
		&r.Closed,
		&r.WorkflowStatus,
		&r.ImageURL,
		&r.SyncStatus,
		&lastSyncAt,
		&r.ErrorMessage,
		&r.Deleted,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.BackendReadingID = int64Ptr(backendID)
	r.CurrentDate = timePtr(currentDate)
	r.PreviousDate = timePtr(previousDate)
	r.LastSyncAt = timePtr(lastSyncAt)
	return &r, nil
}

// GetByLocalID retrieves a reading by its local id, soft-deleted rows
// included (callers resolving image parents need them).
func (repo *ReadingRepository) GetByLocalID(ctx context.Context, localID string) (*models.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE local_id = ?`
	r, err := scanReading(repo.db.QueryRowContext(ctx, query, localID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// GetByServerID retrieves a non-deleted reading by its server id.
func (repo *ReadingRepository) GetByServerID(ctx context.Context, serverID int64) (*models.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE server_id = ? AND deleted = 0`
	r, err := scanReading(repo.db.QueryRowContext(ctx, query, serverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListByPeriod retrieves all non-deleted readings for a period.
func (repo *ReadingRepository) ListByPeriod(ctx context.Context, p models.Period) ([]*models.Reading, error) {
	query := `SELECT ` + readingColumns + `
		FROM readings WHERE year = ? AND month = ? AND deleted = 0
		ORDER BY lot_name, meter_code`
	return repo.list(ctx, query, p.Year, p.Month)
}

// ListPending retrieves readings awaiting upload (locally edited or errored).
func (repo *ReadingRepository) ListPending(ctx context.Context) ([]*models.Reading, error) {
	query := `SELECT ` + readingColumns + `
		FROM readings WHERE sync_status IN (?, ?) AND deleted = 0
		ORDER BY updated_at`
	return repo.list(ctx, query, models.SyncStatusLocallyEdited, models.SyncStatusError)
}

func (repo *ReadingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Reading, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// CountPending returns how many readings still need an upload.
func (repo *ReadingRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM readings WHERE sync_status IN (?, ?) AND deleted = 0`,
		models.SyncStatusLocallyEdited, models.SyncStatusError,
	).Scan(&count)
	return count, err
}

// Insert adds a new reading.
func (repo *ReadingRepository) Insert(ctx context.Context, r *models.Reading) error {
	query := `INSERT INTO readings (` + readingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, query,
		r.LocalID, r.ServerID, nullInt64(r.BackendReadingID),
		r.Period.Month, r.Period.Year, r.LotID, r.LotName, r.LotStatus,
		r.MeterCode, r.TimesTen, r.CurrentValue, nullTime(r.CurrentDate),
		r.PreviousValue, nullTime(r.PreviousDate), r.Consumption, r.Closed,
		r.WorkflowStatus, r.ImageURL, r.SyncStatus, nullTime(r.LastSyncAt),
		r.ErrorMessage, r.Deleted, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// Update rewrites every mutable column of a reading, keyed by local id.
func (repo *ReadingRepository) Update(ctx context.Context, r *models.Reading) error {
	query := `UPDATE readings SET
		server_id = ?, backend_reading_id = ?, month = ?, year = ?, lot_id = ?,
		lot_name = ?, lot_status = ?, meter_code = ?, times_ten = ?,
		current_value = ?, current_value_date = ?, previous_value = ?,
		previous_value_date = ?, consumption = ?, closed = ?,
		workflow_status = ?, image_url = ?, sync_status = ?, last_sync_at = ?,
		error_message = ?, deleted = ?, updated_at = ?
		WHERE local_id = ?`
	_, err := repo.db.ExecContext(ctx, query,
		r.ServerID, nullInt64(r.BackendReadingID), r.Period.Month, r.Period.Year,
		r.LotID, r.LotName, r.LotStatus, r.MeterCode, r.TimesTen,
		r.CurrentValue, nullTime(r.CurrentDate), r.PreviousValue,
		nullTime(r.PreviousDate), r.Consumption, r.Closed,
		r.WorkflowStatus, r.ImageURL, r.SyncStatus, nullTime(r.LastSyncAt),
		r.ErrorMessage, r.Deleted, r.UpdatedAt,
		r.LocalID,
	)
	return err
}

// SoftDeleteByPeriod excludes every reading of a period from future queries
// without reclaiming storage. Returns the number of rows affected.
func (repo *ReadingRepository) SoftDeleteByPeriod(ctx context.Context, p models.Period) (int64, error) {
	result, err := repo.db.ExecContext(ctx,
		`UPDATE readings SET deleted = 1 WHERE year = ? AND month = ? AND deleted = 0`,
		p.Year, p.Month,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
