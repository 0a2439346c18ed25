package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertReading(t *testing.T, store *Store, serverID int64, p models.Period) *models.Reading {
	t.Helper()
	r := models.NewReading(serverID, p)
	require.NoError(t, store.Write(context.Background(), func(tx *Tx) error {
		return tx.Readings.Insert(context.Background(), r)
	}))
	return r
}

func TestOpenMigratesToCurrentVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	require.NoError(t, err)

	var version int
	require.NoError(t, store.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)
	require.NoError(t, store.Close())

	// Reopening an up-to-date database is a no-op.
	store, err = Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(dbPath)
	var schemaErr *models.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, SchemaVersion+1, schemaErr.Have)
	assert.Equal(t, SchemaVersion, schemaErr.Want)
}

func TestWriteRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	r := models.NewReading(1, models.Period{Month: 8, Year: 2026})
	err := store.Write(ctx, func(tx *Tx) error {
		if err := tx.Readings.Insert(ctx, r); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Readings.GetByLocalID(ctx, r.LocalID)
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back insert must not be visible")
}

func TestReadingRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := models.Period{Month: 8, Year: 2026}

	t.Run("round trips all fields", func(t *testing.T) {
		r := models.NewReading(42, period)
		r.LotID = 7
		r.LotName = "Lote 12-B"
		r.MeterCode = "HM-0042"
		r.TimesTen = true
		r.PreviousValue = 100
		r.ApplyEdit(130, time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC))
		backendID := int64(900)
		r.BackendReadingID = &backendID

		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Readings.Insert(ctx, r)
		}))

		got, err := store.Readings.GetByServerID(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, r.LocalID, got.LocalID)
		assert.Equal(t, "Lote 12-B", got.LotName)
		assert.True(t, got.TimesTen)
		assert.Equal(t, 30.0, got.Consumption)
		assert.Equal(t, models.SyncStatusLocallyEdited, got.SyncStatus)
		require.NotNil(t, got.BackendReadingID)
		assert.Equal(t, int64(900), *got.BackendReadingID)
	})

	t.Run("pending lists dirty and errored only", func(t *testing.T) {
		clean := insertReading(t, store, 43, period)
		errored := models.NewReading(44, period)
		errored.MarkError("rejected")
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Readings.Insert(ctx, errored)
		}))

		pending, err := store.Readings.ListPending(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.LocalID)
		}
		assert.Contains(t, ids, errored.LocalID)
		assert.NotContains(t, ids, clean.LocalID)
	})

	t.Run("soft delete hides rows but keeps them reachable by local id", func(t *testing.T) {
		r := insertReading(t, store, 45, models.Period{Month: 7, Year: 2026})

		var affected int64
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			var err error
			affected, err = tx.Readings.SoftDeleteByPeriod(ctx, models.Period{Month: 7, Year: 2026})
			return err
		}))
		assert.Equal(t, int64(1), affected)

		byServer, err := store.Readings.GetByServerID(ctx, 45)
		require.NoError(t, err)
		assert.Nil(t, byServer)

		listed, err := store.Readings.ListByPeriod(ctx, models.Period{Month: 7, Year: 2026})
		require.NoError(t, err)
		assert.Empty(t, listed)

		byLocal, err := store.Readings.GetByLocalID(ctx, r.LocalID)
		require.NoError(t, err)
		require.NotNil(t, byLocal)
		assert.True(t, byLocal.Deleted)
	})
}

func TestImageRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := models.Period{Month: 8, Year: 2026}
	reading := insertReading(t, store, 50, period)

	img := models.NewReadingImage(reading, "2026/08/capture.jpg", 1024, "image/jpeg", time.Now())
	require.NoError(t, store.Write(ctx, func(tx *Tx) error {
		return tx.Images.Insert(ctx, img)
	}))

	t.Run("freshly captured image is pending", func(t *testing.T) {
		pending, err := store.Images.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, img.LocalID, pending[0].LocalID)
		assert.Nil(t, pending[0].BackendReadingID)
	})

	t.Run("backend reading id propagates to images", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Images.SetBackendReadingID(ctx, reading.LocalID, 900)
		}))

		got, err := store.Images.GetByLocalID(ctx, img.LocalID)
		require.NoError(t, err)
		require.NotNil(t, got.BackendReadingID)
		assert.Equal(t, int64(900), *got.BackendReadingID)
	})

	t.Run("period listing joins soft-deleted parents", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			if _, err := tx.Readings.SoftDeleteByPeriod(ctx, period); err != nil {
				return err
			}
			return nil
		}))

		images, err := store.Images.ListByPeriod(ctx, period)
		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, "2026/08/capture.jpg", images[0].StoredPath)
	})
}

func TestCommentBackfill(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent, err := models.NewObservation(7, "maintenance", "Broken meter box", "", "agent1")
	require.NoError(t, err)
	comment, err := models.NewObservationComment(parent, "Replaced the lid", "agent1")
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, func(tx *Tx) error {
		if err := tx.Observations.Insert(ctx, parent); err != nil {
			return err
		}
		return tx.Comments.Insert(ctx, comment)
	}))

	require.NoError(t, store.Write(ctx, func(tx *Tx) error {
		return tx.Comments.SetObservationServerID(ctx, parent.LocalID, 501)
	}))

	got, err := store.Comments.GetByLocalID(ctx, comment.LocalID)
	require.NoError(t, err)
	require.NotNil(t, got.ObservationServerID)
	assert.Equal(t, int64(501), *got.ObservationServerID)
	assert.Equal(t, parent.LocalID, got.ObservationLocalID)
}

func TestPendingCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := models.Period{Month: 8, Year: 2026}

	reading := insertReading(t, store, 60, period)
	require.NoError(t, store.Write(ctx, func(tx *Tx) error {
		reading.ApplyEdit(10, time.Now())
		if err := tx.Readings.Update(ctx, reading); err != nil {
			return err
		}

		img := models.NewReadingImage(reading, "2026/08/c.jpg", 10, "image/jpeg", time.Now())
		if err := tx.Images.Insert(ctx, img); err != nil {
			return err
		}

		obs, err := models.NewObservation(7, "maintenance", "title", "", "agent1")
		if err != nil {
			return err
		}
		if err := tx.Observations.Insert(ctx, obs); err != nil {
			return err
		}

		return tx.Logs.Insert(ctx, models.NewLogEntry("error", "m", "", "dev1"))
	}))

	counts, err := store.PendingCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Readings)
	assert.Equal(t, 1, counts.Images)
	assert.Equal(t, 1, counts.Observations)
	assert.Equal(t, 0, counts.Comments)
	assert.Equal(t, 1, counts.Logs)
	assert.Equal(t, 3, counts.Total())
}

func TestLogRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := models.NewLogEntry("error", "upload failed", "reading 12", "dev1")
	require.NoError(t, store.Write(ctx, func(tx *Tx) error {
		return tx.Logs.Insert(ctx, entry)
	}))

	t.Run("delivered entries are hard deleted", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Logs.Delete(ctx, entry.LocalID)
		}))

		got, err := store.Logs.GetByLocalID(ctx, entry.LocalID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestPeriodRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := models.Period{Month: 7, Year: 2026}

	t.Run("summary upsert refreshes in place", func(t *testing.T) {
		first := &models.PeriodSummary{
			Period: period, Closed: true, ReadingCount: 10,
			CompletedCount: 8, TotalConsumption: 1200, UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Periods.UpsertSummary(ctx, first)
		}))

		second := &models.PeriodSummary{
			Period: period, Closed: true, ReadingCount: 10,
			CompletedCount: 10, TotalConsumption: 1250, UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Periods.UpsertSummary(ctx, second)
		}))

		got, err := store.Periods.GetSummary(ctx, period)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 10, got.CompletedCount)
		assert.Equal(t, 1250.0, got.TotalConsumption)

		all, err := store.Periods.ListSummaries(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("pull state tracks the latest pull", func(t *testing.T) {
		latest, err := store.Periods.LatestPullAt(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		at := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
		require.NoError(t, store.Write(ctx, func(tx *Tx) error {
			return tx.Periods.TouchPullAt(ctx, period, at)
		}))

		state, err := store.Periods.GetSyncState(ctx, period)
		require.NoError(t, err)
		require.NotNil(t, state)
		require.NotNil(t, state.LastPullAt)
		assert.True(t, state.LastPullAt.Equal(at))

		latest, err = store.Periods.LatestPullAt(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.True(t, latest.Equal(at))
	})
}
