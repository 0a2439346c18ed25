package sync

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/services"
)

// fakeClient implements api.Client with per-call hooks and records every
// call for assertions.
type fakeClient struct {
	fetchPeriods     func(api.PeriodFilter) (*api.PeriodsPayload, error)
	submitReading    func(int64, api.ReadingSubmission) (*api.ReadingResult, error)
	uploadImage      func(int64, api.ImageUpload) (*api.ImageResult, error)
	syncObservations func(api.ObservationSyncRequest) (*api.ObservationSyncResponse, error)
	submitLog        func(api.LogSubmission) error

	fetchCalls   int
	readingCalls []int64
	imageCalls   []int64
	obsRequests  []api.ObservationSyncRequest
	logCalls     []api.LogSubmission
}

func (f *fakeClient) FetchPeriods(ctx context.Context, filter api.PeriodFilter) (*api.PeriodsPayload, error) {
	f.fetchCalls++
	if f.fetchPeriods != nil {
		return f.fetchPeriods(filter)
	}
	return &api.PeriodsPayload{}, nil
}

func (f *fakeClient) SubmitReading(ctx context.Context, serverID int64, sub api.ReadingSubmission) (*api.ReadingResult, error) {
	f.readingCalls = append(f.readingCalls, serverID)
	if f.submitReading != nil {
		return f.submitReading(serverID, sub)
	}
	return &api.ReadingResult{}, nil
}

func (f *fakeClient) UploadReadingImage(ctx context.Context, backendReadingID int64, img api.ImageUpload) (*api.ImageResult, error) {
	f.imageCalls = append(f.imageCalls, backendReadingID)
	if f.uploadImage != nil {
		return f.uploadImage(backendReadingID, img)
	}
	return &api.ImageResult{ImageURL: "https://cdn.example/" + img.Filename}, nil
}

func (f *fakeClient) SyncObservations(ctx context.Context, req api.ObservationSyncRequest) (*api.ObservationSyncResponse, error) {
	f.obsRequests = append(f.obsRequests, req)
	if f.syncObservations != nil {
		return f.syncObservations(req)
	}
	return &api.ObservationSyncResponse{}, nil
}

func (f *fakeClient) SubmitLog(ctx context.Context, sub api.LogSubmission) error {
	f.logCalls = append(f.logCalls, sub)
	if f.submitLog != nil {
		return f.submitLog(sub)
	}
	return nil
}

type testIdentity struct{}

func (testIdentity) CurrentUser() string { return "agent1" }
func (testIdentity) DeviceID() string    { return "device-test" }

func newTestEngine(t *testing.T, client api.Client) (*Engine, *repository.Store, *services.AssetStore) {
	t.Helper()
	dir := t.TempDir()

	store, err := repository.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assets, err := services.NewAssetStore(filepath.Join(dir, "captures"), 0, 0, 0)
	require.NoError(t, err)

	engine := NewEngine(store, client, assets, testIdentity{}, zap.NewNop(), nil, Options{})
	return engine, store, assets
}

func insertSyncedReading(t *testing.T, store *repository.Store, serverID int64, p models.Period) *models.Reading {
	t.Helper()
	r := models.NewReading(serverID, p)
	r.PreviousValue = 100
	require.NoError(t, store.Write(context.Background(), func(tx *repository.Tx) error {
		return tx.Readings.Insert(context.Background(), r)
	}))
	return r
}

func markReadingEdited(t *testing.T, store *repository.Store, r *models.Reading, value float64) {
	t.Helper()
	r.ApplyEdit(value, time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, store.Write(context.Background(), func(tx *repository.Tx) error {
		return tx.Readings.Update(context.Background(), r)
	}))
}

// testJPEG returns an encoded JPEG for capture tests.
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}
