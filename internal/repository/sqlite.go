package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

// DBTX is the common surface of *sql.DB and *sql.Tx that repositories run
// their statements against.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the on-device durable store. All mutations go through Write, which
// serializes writers and wraps them in one transaction; reads run directly
// against the connection.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex

	Readings     *ReadingRepository
	Images       *ImageRepository
	Observations *ObservationRepository
	Comments     *CommentRepository
	Logs         *LogRepository
	Periods      *PeriodRepository
}

// Tx bundles repositories bound to one write transaction. Everything done
// through a Tx is atomic: either all mutations become visible or none do.
type Tx struct {
	Readings     *ReadingRepository
	Images       *ImageRepository
	Observations *ObservationRepository
	Comments     *CommentRepository
	Logs         *LogRepository
	Periods      *PeriodRepository
}

// Open opens (or creates) the store at dbPath and migrates it forward to the
// current schema version. A database written by a newer app version fails
// with SchemaError rather than being touched.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	s.Readings = NewReadingRepository(db)
	s.Images = NewImageRepository(db)
	s.Observations = NewObservationRepository(db)
	s.Comments = NewCommentRepository(db)
	s.Logs = NewLogRepository(db)
	s.Periods = NewPeriodRepository(db)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write runs fn inside a serialized write transaction. Concurrent Write calls
// queue on a single writer; no partial mutation is ever visible outside fn.
func (s *Store) Write(ctx context.Context, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	tx := &Tx{
		Readings:     NewReadingRepository(sqlTx),
		Images:       NewImageRepository(sqlTx),
		Observations: NewObservationRepository(sqlTx),
		Comments:     NewCommentRepository(sqlTx),
		Logs:         NewLogRepository(sqlTx),
		Periods:      NewPeriodRepository(sqlTx),
	}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	return sqlTx.Commit()
}

// PendingCounts aggregates the dirty-record counts used for UI badges and the
// pre-pull gate.
func (s *Store) PendingCounts(ctx context.Context) (models.PendingCounts, error) {
	var counts models.PendingCounts
	var err error

	if counts.Readings, err = s.Readings.CountPending(ctx); err != nil {
		return counts, err
	}
	if counts.Images, err = s.Images.CountPending(ctx); err != nil {
		return counts, err
	}
	if counts.Observations, err = s.Observations.CountPending(ctx); err != nil {
		return counts, err
	}
	if counts.Comments, err = s.Comments.CountPending(ctx); err != nil {
		return counts, err
	}
	if counts.Logs, err = s.Logs.CountPending(ctx); err != nil {
		return counts, err
	}

	return counts, nil
}
