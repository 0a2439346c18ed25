package repository

import (
	"context"
	"database/sql"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

const commentColumns = `
	local_id, server_id, observation_local_id, observation_server_id,
	body, author, sync_status, synced_at, error_message, created_at
`

// CommentRepository handles observation-comment persistence. Comments are
// keyed to their parent observation by its local id, so a comment authored
// offline stays attached even while the parent has no server identity.
type CommentRepository struct {
	db DBTX
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db DBTX) *CommentRepository {
	return &CommentRepository{db: db}
}

func scanComment(row interface{ Scan(...interface{}) error }) (*models.ObservationComment, error) {
	var c models.ObservationComment
	var serverID, observationServerID sql.NullInt64
	var syncedAt sql.NullTime

	err := row.Scan(
		&c.LocalID,
		&serverID,
		&c.ObservationLocalID,
		&observationServerID,
		&c.Body,
		&c.Author,
		&c.SyncStatus,
		&syncedAt,
		&c.ErrorMessage,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ServerID = int64Ptr(serverID)
	c.ObservationServerID = int64Ptr(observationServerID)
	c.SyncedAt = timePtr(syncedAt)
	return &c, nil
}

// GetByLocalID retrieves a comment by its local id.
func (repo *CommentRepository) GetByLocalID(ctx context.Context, localID string) (*models.ObservationComment, error) {
	query := `SELECT ` + commentColumns + ` FROM observation_comments WHERE local_id = ?`
	c, err := scanComment(repo.db.QueryRowContext(ctx, query, localID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetByServerID retrieves a comment by its server id.
func (repo *CommentRepository) GetByServerID(ctx context.Context, serverID int64) (*models.ObservationComment, error) {
	query := `SELECT ` + commentColumns + ` FROM observation_comments WHERE server_id = ?`
	c, err := scanComment(repo.db.QueryRowContext(ctx, query, serverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListByObservation retrieves a parent observation's comments in creation order.
func (repo *CommentRepository) ListByObservation(ctx context.Context, observationLocalID string) ([]*models.ObservationComment, error) {
	query := `SELECT ` + commentColumns + `
		FROM observation_comments WHERE observation_local_id = ?
		ORDER BY created_at`
	return repo.list(ctx, query, observationLocalID)
}

// ListPending retrieves comments awaiting upload.
func (repo *CommentRepository) ListPending(ctx context.Context) ([]*models.ObservationComment, error) {
	query := `SELECT ` + commentColumns + `
		FROM observation_comments WHERE sync_status IN (?, ?)
		ORDER BY created_at`
	return repo.list(ctx, query, models.SyncStatusLocallyEdited, models.SyncStatusError)
}

func (repo *CommentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ObservationComment, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.ObservationComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CountPending returns how many comments still need an upload.
func (repo *CommentRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observation_comments WHERE sync_status IN (?, ?)`,
		models.SyncStatusLocallyEdited, models.SyncStatusError,
	).Scan(&count)
	return count, err
}

// Insert adds a comment.
func (repo *CommentRepository) Insert(ctx context.Context, c *models.ObservationComment) error {
	query := `INSERT INTO observation_comments (` + commentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, query,
		c.LocalID, nullInt64(c.ServerID), c.ObservationLocalID,
		nullInt64(c.ObservationServerID), c.Body, c.Author, c.SyncStatus,
		nullTime(c.SyncedAt), c.ErrorMessage, c.CreatedAt,
	)
	return err
}

// Update rewrites the mutable columns of a comment, keyed by local id.
func (repo *CommentRepository) Update(ctx context.Context, c *models.ObservationComment) error {
	query := `UPDATE observation_comments SET
		server_id = ?, observation_server_id = ?, body = ?, author = ?,
		sync_status = ?, synced_at = ?, error_message = ?
		WHERE local_id = ?`
	_, err := repo.db.ExecContext(ctx, query,
		nullInt64(c.ServerID), nullInt64(c.ObservationServerID), c.Body,
		c.Author, c.SyncStatus, nullTime(c.SyncedAt), c.ErrorMessage,
		c.LocalID,
	)
	return err
}

// SetObservationServerID back-fills the parent's freshly assigned server id
// onto every comment that references it by local id.
func (repo *CommentRepository) SetObservationServerID(ctx context.Context, observationLocalID string, serverID int64) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE observation_comments SET observation_server_id = ? WHERE observation_local_id = ?`,
		serverID, observationLocalID,
	)
	return err
}
