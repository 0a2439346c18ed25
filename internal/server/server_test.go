package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/services"
	syncengine "github.com/higorocha/dibau-app-leiturista-sub000/internal/sync"
)

type stubClient struct{}

func (stubClient) FetchPeriods(ctx context.Context, filter api.PeriodFilter) (*api.PeriodsPayload, error) {
	return &api.PeriodsPayload{}, nil
}

func (stubClient) SubmitReading(ctx context.Context, serverID int64, sub api.ReadingSubmission) (*api.ReadingResult, error) {
	return &api.ReadingResult{}, nil
}

func (stubClient) UploadReadingImage(ctx context.Context, backendReadingID int64, img api.ImageUpload) (*api.ImageResult, error) {
	return &api.ImageResult{}, nil
}

func (stubClient) SyncObservations(ctx context.Context, req api.ObservationSyncRequest) (*api.ObservationSyncResponse, error) {
	return &api.ObservationSyncResponse{}, nil
}

func (stubClient) SubmitLog(ctx context.Context, sub api.LogSubmission) error {
	return nil
}

type stubIdentity struct{}

func (stubIdentity) CurrentUser() string { return "agent1" }
func (stubIdentity) DeviceID() string    { return "device-test" }

func newTestServer(t *testing.T) (*Server, *repository.Store, *syncengine.Engine) {
	t.Helper()
	dir := t.TempDir()

	store, err := repository.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assets, err := services.NewAssetStore(filepath.Join(dir, "captures"), 0, 0, 0)
	require.NoError(t, err)

	engine := syncengine.NewEngine(store, stubClient{}, assets, stubIdentity{}, zap.NewNop(), nil, syncengine.Options{})

	hub := NewHub(zap.NewNop())
	go hub.Run()

	return New(":0", engine, hub, zap.NewNop()), store, engine
}

func TestHandleStatus(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	r := models.NewReading(42, models.Period{Month: 8, Year: 2026})
	r.ApplyEdit(125, time.Now())
	require.NoError(t, store.Write(ctx, func(tx *repository.Tx) error {
		return tx.Readings.Insert(ctx, r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var report syncengine.StatusReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, syncengine.StatusIdle, report.Status)
	assert.Equal(t, 1, report.Pending.Readings)
}

func TestHandlePull(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/sync/pull?force=1", nil)
		rec := httptest.NewRecorder()
		srv.http.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid period", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/sync/pull?period=garbage", nil)
		rec := httptest.NewRecorder()
		srv.http.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("pending uploads refuse the pull", func(t *testing.T) {
		srv, store, _ := newTestServer(t)
		ctx := context.Background()

		r := models.NewReading(42, models.Period{Month: 8, Year: 2026})
		r.ApplyEdit(125, time.Now())
		require.NoError(t, store.Write(ctx, func(tx *repository.Tx) error {
			return tx.Readings.Insert(ctx, r)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/sync/pull", nil)
		rec := httptest.NewRecorder()
		srv.http.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})
}

func TestHandleUpload(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	r := models.NewReading(42, models.Period{Month: 8, Year: 2026})
	r.ApplyEdit(125, time.Now())
	require.NoError(t, store.Write(ctx, func(tx *repository.Tx) error {
		return tx.Readings.Insert(ctx, r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sync/upload", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var report syncengine.ProgressReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 1, report.Readings.Attempted)
}
