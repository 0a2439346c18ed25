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

func TestPullInsertsDownloadedData(t *testing.T) {
	client := &fakeClient{
		fetchPeriods: func(filter api.PeriodFilter) (*api.PeriodsPayload, error) {
			return &api.PeriodsPayload{
				Open: []api.OpenPeriodDTO{{
					Month: 8, Year: 2026,
					Readings: []api.ReadingDTO{
						{ID: 42, LotID: 7, LotName: "Lote 12-B", CurrentValue: 130, PreviousValue: 100},
						{ID: 43, LotID: 8, LotName: "Lote 14", PreviousValue: 80},
					},
					Observations: []api.ObservationDTO{{
						ID: 501, LotID: 7, Kind: "maintenance", Status: "open",
						Title: "Broken meter box", CreatedAt: time.Now().UTC(),
						Comments: []api.CommentDTO{
							{ID: 9001, ObservationID: 501, Body: "Replaced", Author: "agent2", CreatedAt: time.Now().UTC()},
						},
					}},
				}},
			}, nil
		},
	}
	engine, store, _ := newTestEngine(t, client)
	ctx := context.Background()

	report, err := engine.Pull(ctx, PullOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.PeriodsPulled)
	assert.Equal(t, 2, report.ReadingsCreated)
	assert.Equal(t, 1, report.ObservationsMerged)
	assert.Equal(t, 1, report.CommentsMerged)
	assert.Equal(t, 0, report.DirtySkipped)

	r, err := store.Readings.GetByServerID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, models.SyncStatusSynced, r.SyncStatus)
	assert.Equal(t, 30.0, r.Consumption)

	o, err := store.Observations.GetByServerID(ctx, 501)
	require.NoError(t, err)
	require.NotNil(t, o)

	comments, err := store.Comments.ListByObservation(ctx, o.LocalID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, models.SyncStatusSynced, comments[0].SyncStatus)

	state, err := store.Periods.GetSyncState(ctx, models.Period{Month: 8, Year: 2026})
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.NotNil(t, state.LastPullAt)
}

func TestPullRefusesWithPendingUploads(t *testing.T) {
	client := &fakeClient{}
	engine, store, _ := newTestEngine(t, client)

	r := insertSyncedReading(t, store, 42, models.Period{Month: 8, Year: 2026})
	markReadingEdited(t, store, r, 125)

	_, err := engine.Pull(context.Background(), PullOptions{})
	require.ErrorIs(t, err, ErrUploadsPending)
	assert.Zero(t, client.fetchCalls, "no fetch may happen while uploads are pending")

	// Force does not bypass the pending gate.
	_, err = engine.Pull(context.Background(), PullOptions{Force: true})
	require.ErrorIs(t, err, ErrUploadsPending)
}

func TestPullNeverClobbersDirtyRecords(t *testing.T) {
	client := &fakeClient{}
	engine, store, _ := newTestEngine(t, client)
	ctx := context.Background()
	period := models.Period{Month: 8, Year: 2026}

	r := insertSyncedReading(t, store, 42, period)
	markReadingEdited(t, store, r, 125)

	// Exercise the merge layer directly; the pending gate already refuses a
	// full pull in this state.
	report := &PullReport{}
	err := engine.downloader.mergeOpenPeriod(ctx, engine.log, api.OpenPeriodDTO{
		Month: 8, Year: 2026,
		Readings: []api.ReadingDTO{{ID: 42, CurrentValue: 999, PreviousValue: 100}},
	}, report)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DirtySkipped)
	assert.Equal(t, 0, report.ReadingsRefreshed)

	got, err := store.Readings.GetByServerID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 125.0, got.CurrentValue, "local edit must survive the download")
	assert.Equal(t, models.SyncStatusLocallyEdited, got.SyncStatus)
}

func TestPullRefreshesSyncedRecords(t *testing.T) {
	client := &fakeClient{
		fetchPeriods: func(filter api.PeriodFilter) (*api.PeriodsPayload, error) {
			return &api.PeriodsPayload{
				Open: []api.OpenPeriodDTO{{
					Month: 8, Year: 2026,
					Readings: []api.ReadingDTO{{ID: 42, CurrentValue: 140, PreviousValue: 100}},
				}},
			}, nil
		},
	}
	engine, store, _ := newTestEngine(t, client)
	ctx := context.Background()

	existing := insertSyncedReading(t, store, 42, models.Period{Month: 8, Year: 2026})

	report, err := engine.Pull(ctx, PullOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ReadingsRefreshed)
	assert.Equal(t, 0, report.ReadingsCreated)

	got, err := store.Readings.GetByServerID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, existing.LocalID, got.LocalID, "local identity is stable across merges")
	assert.Equal(t, 140.0, got.CurrentValue)
	assert.Equal(t, 40.0, got.Consumption)
}

func TestPullThrottle(t *testing.T) {
	client := &fakeClient{
		fetchPeriods: func(filter api.PeriodFilter) (*api.PeriodsPayload, error) {
			return &api.PeriodsPayload{
				Open: []api.OpenPeriodDTO{{Month: 8, Year: 2026}},
			}, nil
		},
	}
	engine, _, _ := newTestEngine(t, client)
	ctx := context.Background()

	_, err := engine.Pull(ctx, PullOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, client.fetchCalls)

	t.Run("second pull inside the window is skipped", func(t *testing.T) {
		report, err := engine.Pull(ctx, PullOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, report.PeriodsThrottled)
		assert.Equal(t, 0, report.PeriodsPulled)
		assert.Equal(t, 1, client.fetchCalls)
	})

	t.Run("force bypasses the throttle", func(t *testing.T) {
		report, err := engine.Pull(ctx, PullOptions{Force: true})
		require.NoError(t, err)
		assert.Equal(t, 0, report.PeriodsThrottled)
		assert.Equal(t, 2, client.fetchCalls)
	})

	t.Run("an elapsed window allows the next pull", func(t *testing.T) {
		engine.downloader.now = func() time.Time {
			return time.Now().Add(3 * time.Hour)
		}
		report, err := engine.Pull(ctx, PullOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, report.PeriodsThrottled)
		assert.Equal(t, 3, client.fetchCalls)
	})
}

func TestPullThrottlePerPeriod(t *testing.T) {
	client := &fakeClient{
		fetchPeriods: func(filter api.PeriodFilter) (*api.PeriodsPayload, error) {
			var open []api.OpenPeriodDTO
			for _, p := range filter.Periods {
				open = append(open, api.OpenPeriodDTO{Month: p.Month, Year: p.Year})
			}
			return &api.PeriodsPayload{Open: open}, nil
		},
	}
	engine, _, _ := newTestEngine(t, client)
	ctx := context.Background()

	august := models.Period{Month: 8, Year: 2026}
	july := models.Period{Month: 7, Year: 2026}

	_, err := engine.Pull(ctx, PullOptions{Periods: []models.Period{august}})
	require.NoError(t, err)

	report, err := engine.Pull(ctx, PullOptions{Periods: []models.Period{august, july}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PeriodsThrottled, "august is fresh")
	assert.Equal(t, 1, report.PeriodsPulled, "july is not")
}

func TestClosedPeriodEviction(t *testing.T) {
	closedPayload := &api.PeriodsPayload{
		Closed: []api.ClosedPeriodDTO{{
			Month: 7, Year: 2026,
			ReadingCount: 10, CompletedCount: 10, TotalConsumption: 1250,
		}},
	}
	client := &fakeClient{
		fetchPeriods: func(filter api.PeriodFilter) (*api.PeriodsPayload, error) {
			return closedPayload, nil
		},
	}
	engine, store, assets := newTestEngine(t, client)
	ctx := context.Background()
	july := models.Period{Month: 7, Year: 2026}

	reading := insertSyncedReading(t, store, 42, july)
	img, err := assets.SaveCapture(reading, testJPEG(t, 64, 64), "capture.jpg")
	require.NoError(t, err)
	img.MarkSynced("https://cdn.example/c.jpg")
	require.NoError(t, store.Write(ctx, func(tx *repository.Tx) error {
		return tx.Images.Insert(ctx, img)
	}))
	require.True(t, assets.Exists(img.StoredPath))

	report, err := engine.Pull(ctx, PullOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.PeriodsClosed)
	assert.Equal(t, 1, report.AssetsSwept)

	t.Run("row data is evicted", func(t *testing.T) {
		got, err := store.Readings.GetByServerID(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, got)

		images, err := store.Images.ListByReading(ctx, reading.LocalID)
		require.NoError(t, err)
		assert.Empty(t, images)
	})

	t.Run("summary survives in the cache", func(t *testing.T) {
		summary, err := store.Periods.GetSummary(ctx, july)
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.True(t, summary.Closed)
		assert.Equal(t, 10, summary.ReadingCount)
		assert.Equal(t, 1250.0, summary.TotalConsumption)
	})

	t.Run("backing file is removed", func(t *testing.T) {
		assert.False(t, assets.Exists(img.StoredPath))
	})
}
