package repository

import (
	"context"
	"database/sql"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

const imageColumns = `
	local_id, reading_local_id, reading_server_id, backend_reading_id,
	stored_path, file_size, mime_type, remote_url, sync_status,
	error_message, captured_at, deleted
`

// ImageRepository handles captured-image persistence.
type ImageRepository struct {
	db DBTX
}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository(db DBTX) *ImageRepository {
	return &ImageRepository{db: db}
}

func scanImage(row interface{ Scan(...interface{}) error }) (*models.ReadingImage, error) {
	var img models.ReadingImage
	var backendID sql.NullInt64

	err := row.Scan(
		&img.LocalID,
		&img.ReadingLocalID,
		&img.ReadingServerID,
		&backendID,
		&img.StoredPath,
		&img.FileSize,
		&img.MimeType,
		&img.RemoteURL,
		&img.SyncStatus,
		&img.ErrorMessage,
		&img.CapturedAt,
		&img.Deleted,
	)
	if err != nil {
		return nil, err
	}

	img.BackendReadingID = int64Ptr(backendID)
	return &img, nil
}

// GetByLocalID retrieves an image by its local id.
func (repo *ImageRepository) GetByLocalID(ctx context.Context, localID string) (*models.ReadingImage, error) {
	query := `SELECT ` + imageColumns + ` FROM reading_images WHERE local_id = ?`
	img, err := scanImage(repo.db.QueryRowContext(ctx, query, localID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return img, err
}

// ListPending retrieves images that are not yet confirmed by the server:
// freshly captured (uploading) or previously failed (error).
func (repo *ImageRepository) ListPending(ctx context.Context) ([]*models.ReadingImage, error) {
	query := `SELECT ` + imageColumns + `
		FROM reading_images WHERE sync_status IN (?, ?) AND deleted = 0
		ORDER BY captured_at`
	return repo.list(ctx, query, models.SyncStatusUploading, models.SyncStatusError)
}

// ListByReading retrieves all non-deleted images of one reading.
func (repo *ImageRepository) ListByReading(ctx context.Context, readingLocalID string) ([]*models.ReadingImage, error) {
	query := `SELECT ` + imageColumns + `
		FROM reading_images WHERE reading_local_id = ? AND deleted = 0
		ORDER BY captured_at`
	return repo.list(ctx, query, readingLocalID)
}

// ListByPeriod retrieves the images whose parent reading belongs to a period,
// soft-deleted parents included. Used by the closed-period asset sweep.
func (repo *ImageRepository) ListByPeriod(ctx context.Context, p models.Period) ([]*models.ReadingImage, error) {
	query := `SELECT i.local_id, i.reading_local_id, i.reading_server_id,
			i.backend_reading_id, i.stored_path, i.file_size, i.mime_type,
			i.remote_url, i.sync_status, i.error_message, i.captured_at, i.deleted
		FROM reading_images i
		JOIN readings r ON r.local_id = i.reading_local_id
		WHERE r.year = ? AND r.month = ? AND i.deleted = 0`
	return repo.list(ctx, query, p.Year, p.Month)
}

func (repo *ImageRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ReadingImage, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.ReadingImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// CountPending returns how many images still await confirmation.
func (repo *ImageRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reading_images WHERE sync_status IN (?, ?) AND deleted = 0`,
		models.SyncStatusUploading, models.SyncStatusError,
	).Scan(&count)
	return count, err
}

// Insert adds a captured image.
func (repo *ImageRepository) Insert(ctx context.Context, img *models.ReadingImage) error {
	query := `INSERT INTO reading_images (` + imageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, query,
		img.LocalID, img.ReadingLocalID, img.ReadingServerID,
		nullInt64(img.BackendReadingID), img.StoredPath, img.FileSize,
		img.MimeType, img.RemoteURL, img.SyncStatus, img.ErrorMessage,
		img.CapturedAt, img.Deleted,
	)
	return err
}

// Update rewrites the mutable columns of an image, keyed by local id.
func (repo *ImageRepository) Update(ctx context.Context, img *models.ReadingImage) error {
	query := `UPDATE reading_images SET
		reading_server_id = ?, backend_reading_id = ?, remote_url = ?,
		sync_status = ?, error_message = ?, deleted = ?
		WHERE local_id = ?`
	_, err := repo.db.ExecContext(ctx, query,
		img.ReadingServerID, nullInt64(img.BackendReadingID), img.RemoteURL,
		img.SyncStatus, img.ErrorMessage, img.Deleted,
		img.LocalID,
	)
	return err
}

// SetBackendReadingID propagates a freshly assigned backend reading id from a
// parent reading to its captured images.
func (repo *ImageRepository) SetBackendReadingID(ctx context.Context, readingLocalID string, backendReadingID int64) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE reading_images SET backend_reading_id = ? WHERE reading_local_id = ?`,
		backendReadingID, readingLocalID,
	)
	return err
}

// SoftDeleteByPeriod excludes a closed period's images from future queries.
func (repo *ImageRepository) SoftDeleteByPeriod(ctx context.Context, p models.Period) (int64, error) {
	result, err := repo.db.ExecContext(ctx,
		`UPDATE reading_images SET deleted = 1
		WHERE deleted = 0 AND reading_local_id IN (
			SELECT local_id FROM readings WHERE year = ? AND month = ?
		)`,
		p.Year, p.Month,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
