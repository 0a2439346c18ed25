package repository

import (
	"context"
	"database/sql"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

const logColumns = `
	local_id, level, message, context, device_id, status, error_message, created_at
`

// LogRepository handles diagnostic log persistence. Delivered entries are
// hard-deleted; logs have no local value once the server has them.
type LogRepository struct {
	db DBTX
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(db DBTX) *LogRepository {
	return &LogRepository{db: db}
}

func scanLog(row interface{ Scan(...interface{}) error }) (*models.LogEntry, error) {
	var e models.LogEntry
	err := row.Scan(
		&e.LocalID,
		&e.Level,
		&e.Message,
		&e.Context,
		&e.DeviceID,
		&e.Status,
		&e.ErrorMessage,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByLocalID retrieves a log entry by its local id.
func (repo *LogRepository) GetByLocalID(ctx context.Context, localID string) (*models.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM sync_logs WHERE local_id = ?`
	e, err := scanLog(repo.db.QueryRowContext(ctx, query, localID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListPending retrieves undelivered log entries in creation order.
func (repo *LogRepository) ListPending(ctx context.Context) ([]*models.LogEntry, error) {
	query := `SELECT ` + logColumns + `
		FROM sync_logs WHERE status IN (?, ?)
		ORDER BY created_at`
	rows, err := repo.db.QueryContext(ctx, query, models.LogStatusPending, models.LogStatusError)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountPending returns how many log entries still await delivery.
func (repo *LogRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_logs WHERE status IN (?, ?)`,
		models.LogStatusPending, models.LogStatusError,
	).Scan(&count)
	return count, err
}

// Insert adds a write-once log entry.
func (repo *LogRepository) Insert(ctx context.Context, e *models.LogEntry) error {
	query := `INSERT INTO sync_logs (` + logColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, query,
		e.LocalID, e.Level, e.Message, e.Context, e.DeviceID,
		e.Status, e.ErrorMessage, e.CreatedAt,
	)
	return err
}

// SetStatus updates the delivery status of a log entry.
func (repo *LogRepository) SetStatus(ctx context.Context, localID string, status models.LogStatus, errorMessage string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE sync_logs SET status = ?, error_message = ? WHERE local_id = ?`,
		status, errorMessage, localID,
	)
	return err
}

// Delete hard-deletes a delivered log entry.
func (repo *LogRepository) Delete(ctx context.Context, localID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM sync_logs WHERE local_id = ?`, localID)
	return err
}
