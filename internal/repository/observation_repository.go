package repository

import (
	"context"
	"database/sql"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

const observationColumns = `
	local_id, server_id, lot_id, kind, status, title, body, created_by,
	closed_by, closed_at, sync_status, synced_at, error_message, deleted,
	created_at, updated_at
`

// ObservationRepository handles lot-observation persistence.
type ObservationRepository struct {
	db DBTX
}

// NewObservationRepository creates a new ObservationRepository.
func NewObservationRepository(db DBTX) *ObservationRepository {
	return &ObservationRepository{db: db}
}

func scanObservation(row interface{ Scan(...interface{}) error }) (*models.Observation, error) {
	var o models.Observation
	var serverID sql.NullInt64
	var closedAt, syncedAt sql.NullTime

	err := row.Scan(
		&o.LocalID,
		&serverID,
		&o.LotID,
		&o.Kind,
		&o.Status,
		&o.Title,
		&o.Body,
		&o.CreatedBy,
		&o.ClosedBy,
		&closedAt,
		&o.SyncStatus,
		&syncedAt,
		&o.ErrorMessage,
		&o.Deleted,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.ServerID = int64Ptr(serverID)
	o.ClosedAt = timePtr(closedAt)
	o.SyncedAt = timePtr(syncedAt)
	return &o, nil
}

// GetByLocalID retrieves an observation by its local id.
func (repo *ObservationRepository) GetByLocalID(ctx context.Context, localID string) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE local_id = ? AND deleted = 0`
	o, err := scanObservation(repo.db.QueryRowContext(ctx, query, localID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// GetByServerID retrieves an observation by its server id.
func (repo *ObservationRepository) GetByServerID(ctx context.Context, serverID int64) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE server_id = ? AND deleted = 0`
	o, err := scanObservation(repo.db.QueryRowContext(ctx, query, serverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// ListByLot retrieves all non-deleted observations for a lot.
func (repo *ObservationRepository) ListByLot(ctx context.Context, lotID int64) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM observations WHERE lot_id = ? AND deleted = 0
		ORDER BY created_at DESC`
	return repo.list(ctx, query, lotID)
}

// ListPending retrieves observations awaiting upload.
func (repo *ObservationRepository) ListPending(ctx context.Context) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM observations WHERE sync_status IN (?, ?) AND deleted = 0
		ORDER BY created_at`
	return repo.list(ctx, query, models.SyncStatusLocallyEdited, models.SyncStatusError)
}

func (repo *ObservationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Observation, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []*models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// CountPending returns how many observations still need an upload.
func (repo *ObservationRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE sync_status IN (?, ?) AND deleted = 0`,
		models.SyncStatusLocallyEdited, models.SyncStatusError,
	).Scan(&count)
	return count, err
}

// Insert adds an observation.
func (repo *ObservationRepository) Insert(ctx context.Context, o *models.Observation) error {
	query := `INSERT INTO observations (` + observationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, query,
		o.LocalID, nullInt64(o.ServerID), o.LotID, o.Kind, o.Status,
		o.Title, o.Body, o.CreatedBy, o.ClosedBy, nullTime(o.ClosedAt),
		o.SyncStatus, nullTime(o.SyncedAt), o.ErrorMessage, o.Deleted,
		o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// Update rewrites the mutable columns of an observation, keyed by local id.
func (repo *ObservationRepository) Update(ctx context.Context, o *models.Observation) error {
	query := `UPDATE observations SET
		server_id = ?, lot_id = ?, kind = ?, status = ?, title = ?, body = ?,
		created_by = ?, closed_by = ?, closed_at = ?, sync_status = ?,
		synced_at = ?, error_message = ?, deleted = ?, updated_at = ?
		WHERE local_id = ?`
	_, err := repo.db.ExecContext(ctx, query,
		nullInt64(o.ServerID), o.LotID, o.Kind, o.Status, o.Title, o.Body,
		o.CreatedBy, o.ClosedBy, nullTime(o.ClosedAt), o.SyncStatus,
		nullTime(o.SyncedAt), o.ErrorMessage, o.Deleted, o.UpdatedAt,
		o.LocalID,
	)
	return err
}
