package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
)

func TestEngineMutualExclusion(t *testing.T) {
	engine, _, _ := newTestEngine(t, &fakeClient{})
	ctx := context.Background()

	require.NoError(t, engine.begin(StatusUploading))
	assert.True(t, engine.Busy())

	_, err := engine.Pull(ctx, PullOptions{})
	assert.ErrorIs(t, err, ErrSyncInFlight)

	_, err = engine.UploadAll(ctx)
	assert.ErrorIs(t, err, ErrSyncInFlight)

	engine.end(nil)
	assert.False(t, engine.Busy())

	_, err = engine.Pull(ctx, PullOptions{})
	require.NoError(t, err)
}

func TestEngineStatus(t *testing.T) {
	engine, store, _ := newTestEngine(t, &fakeClient{})
	ctx := context.Background()

	report, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, report.Status)
	assert.False(t, report.Pending.HasPending())
	assert.Nil(t, report.LastRunAt)

	r := insertSyncedReading(t, store, 42, models.Period{Month: 8, Year: 2026})
	markReadingEdited(t, store, r, 125)

	report, err = engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending.Readings)
	assert.True(t, report.Pending.HasPending())
}

func TestSaveReadingValue(t *testing.T) {
	engine, store, _ := newTestEngine(t, &fakeClient{})
	ctx := context.Background()
	r := insertSyncedReading(t, store, 42, models.Period{Month: 8, Year: 2026})

	t.Run("marks the reading dirty", func(t *testing.T) {
		got, err := engine.SaveReadingValue(ctx, r.LocalID, 125, time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusLocallyEdited, got.SyncStatus)
		assert.Equal(t, 25.0, got.Consumption)
	})

	t.Run("rejects negative values", func(t *testing.T) {
		_, err := engine.SaveReadingValue(ctx, r.LocalID, -1, time.Now())
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("rejects unknown readings", func(t *testing.T) {
		_, err := engine.SaveReadingValue(ctx, "missing", 10, time.Now())
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("rejects closed readings", func(t *testing.T) {
		closed := insertSyncedReading(t, store, 43, models.Period{Month: 6, Year: 2026})
		closed.Closed = true
		require.NoError(t, store.Write(ctx, func(tx *repository.Tx) error {
			return tx.Readings.Update(ctx, closed)
		}))

		_, err := engine.SaveReadingValue(ctx, closed.LocalID, 10, time.Now())
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestAttachImageValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t, &fakeClient{})
	ctx := context.Background()

	_, err := engine.AttachImage(ctx, "missing", testJPEG(t, 16, 16), "c.jpg")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCloseObservation(t *testing.T) {
	engine, _, _ := newTestEngine(t, &fakeClient{})
	ctx := context.Background()

	obs, err := engine.CreateObservation(ctx, 7, "maintenance", "Broken meter box", "")
	require.NoError(t, err)

	closed, err := engine.CloseObservation(ctx, obs.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.ObservationClosed, closed.Status)
	assert.Equal(t, "agent1", closed.ClosedBy)
	require.NotNil(t, closed.ClosedAt)

	t.Run("closing twice fails", func(t *testing.T) {
		_, err := engine.CloseObservation(ctx, obs.LocalID)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("closed observations cannot be edited", func(t *testing.T) {
		_, err := engine.EditObservation(ctx, obs.LocalID, "new title", "new body")
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

// TestFieldVisitRoundTrip walks the full offline day: morning pull, offline
// edits and captures, evening upload, next-morning pull.
func TestFieldVisitRoundTrip(t *testing.T) {
	ctx := context.Background()
	august := models.Period{Month: 8, Year: 2026}

	backendID := int64(900)
	client := &fakeClient{
		fetchPeriods: func(filter api.PeriodFilter) (*api.PeriodsPayload, error) {
			return &api.PeriodsPayload{
				Open: []api.OpenPeriodDTO{{
					Month: 8, Year: 2026,
					Readings: []api.ReadingDTO{
						{ID: 42, LotID: 7, LotName: "Lote 12-B", MeterCode: "HM-0042", PreviousValue: 100},
					},
				}},
			}, nil
		},
		submitReading: func(serverID int64, sub api.ReadingSubmission) (*api.ReadingResult, error) {
			return &api.ReadingResult{BackendReadingID: &backendID, WorkflowStatus: "informed"}, nil
		},
		syncObservations: func(req api.ObservationSyncRequest) (*api.ObservationSyncResponse, error) {
			resp := &api.ObservationSyncResponse{}
			for _, item := range req.Observations {
				resp.Observations.Success = append(resp.Observations.Success,
					api.SyncSuccess{LocalID: item.LocalID, ServerID: 501, Action: "created"})
			}
			for _, item := range req.Comments {
				resp.Comments.Success = append(resp.Comments.Success,
					api.SyncSuccess{LocalID: item.LocalID, ServerID: 9001, Action: "created"})
			}
			return resp, nil
		},
	}
	engine, store, _ := newTestEngine(t, client)

	// Morning pull over wifi.
	pull, err := engine.Pull(ctx, PullOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, pull.ReadingsCreated)

	reading, err := store.Readings.GetByServerID(ctx, 42)
	require.NoError(t, err)

	// In the field, offline: value, photo, observation with comment.
	_, err = engine.SaveReadingValue(ctx, reading.LocalID, 130, time.Now())
	require.NoError(t, err)
	_, err = engine.AttachImage(ctx, reading.LocalID, testJPEG(t, 64, 64), "meter.jpg")
	require.NoError(t, err)
	obs, err := engine.CreateObservation(ctx, 7, "maintenance", "Meter glass fogged", "")
	require.NoError(t, err)
	_, err = engine.AddComment(ctx, obs.LocalID, "Cleaned, still readable")
	require.NoError(t, err)

	// Another pull is refused while the day's work is unsent.
	_, err = engine.Pull(ctx, PullOptions{Force: true})
	require.ErrorIs(t, err, ErrUploadsPending)

	// Evening upload.
	progress, err := engine.UploadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.TotalFailed())
	assert.Equal(t, 1, progress.Readings.Succeeded)
	assert.Equal(t, 1, progress.Images.Succeeded)
	assert.Equal(t, 1, progress.Observations.Succeeded)
	assert.Equal(t, 1, progress.Comments.Succeeded)

	counts, err := store.PendingCounts(ctx)
	require.NoError(t, err)
	assert.False(t, counts.HasPending())

	// Next-morning pull flows again.
	_, err = engine.Pull(ctx, PullOptions{Force: true})
	require.NoError(t, err)

	got, err := store.Readings.GetByServerID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
	require.NotNil(t, got.BackendReadingID)
	assert.Equal(t, int64(900), *got.BackendReadingID)

	state, err := store.Periods.GetSyncState(ctx, august)
	require.NoError(t, err)
	require.NotNil(t, state)
}
