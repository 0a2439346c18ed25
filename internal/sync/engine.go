package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/observability"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/services"
)

// ErrSyncInFlight is returned when a pull or upload is requested while
// another one is already running.
var ErrSyncInFlight = errors.New("a sync operation is already running")

// Identity supplies the current agent and device. Authentication itself is a
// collaborator concern; the engine only stamps authored records.
type Identity interface {
	CurrentUser() string
	DeviceID() string
}

// Status is the engine's externally visible state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPulling   Status = "pulling"
	StatusUploading Status = "uploading"
)

// StatusReport is a point-in-time snapshot for UIs and the status endpoint.
type StatusReport struct {
	Status    Status               `json:"status"`
	Pending   models.PendingCounts `json:"pending"`
	LastRunAt *time.Time           `json:"lastRunAt,omitempty"`
	LastError string               `json:"lastError,omitempty"`
}

// Options configures an Engine.
type Options struct {
	// MinPullInterval throttles full pulls per period. Zero means the default.
	MinPullInterval time.Duration
}

// Engine is the synchronization facade: it owns the downloader and uploader,
// guarantees at most one sync operation runs at a time, and exposes the
// editing operations that mark records dirty.
type Engine struct {
	store    *repository.Store
	assets   *services.AssetStore
	identity Identity
	log      *zap.Logger

	downloader *Downloader
	uploader   *Uploader

	mu        sync.Mutex
	status    Status
	lastRunAt *time.Time
	lastError string
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(store *repository.Store, client api.Client, assets *services.AssetStore, identity Identity, log *zap.Logger, metrics *observability.SyncMetrics, opts Options) *Engine {
	return &Engine{
		store:      store,
		assets:     assets,
		identity:   identity,
		log:        log,
		downloader: NewDownloader(store, client, assets, log, metrics, opts.MinPullInterval),
		uploader:   NewUploader(store, client, assets, identity, log, metrics),
		status:     StatusIdle,
	}
}

// Pull runs one download pull. Refuses with ErrSyncInFlight if a sync is
// already running.
func (e *Engine) Pull(ctx context.Context, opts PullOptions) (*PullReport, error) {
	if err := e.begin(StatusPulling); err != nil {
		return nil, err
	}
	report, err := e.downloader.Pull(ctx, opts)
	e.end(err)
	return report, err
}

// UploadAll runs one upload pass over every dirty record. Refuses with
// ErrSyncInFlight if a sync is already running.
func (e *Engine) UploadAll(ctx context.Context) (*ProgressReport, error) {
	if err := e.begin(StatusUploading); err != nil {
		return nil, err
	}
	report, err := e.uploader.UploadAll(ctx)
	e.end(err)
	return report, err
}

// Retry re-runs the upload pass. Records in the error state are picked up by
// the same pending queries as freshly edited ones, so a retry is just
// another pass.
func (e *Engine) Retry(ctx context.Context) (*ProgressReport, error) {
	return e.UploadAll(ctx)
}

// Status snapshots the engine state together with the pending counts.
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	counts, err := e.store.PendingCounts(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return &StatusReport{
		Status:    e.status,
		Pending:   counts,
		LastRunAt: e.lastRunAt,
		LastError: e.lastError,
	}, nil
}

// Busy reports whether a sync operation is currently running.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status != StatusIdle
}

func (e *Engine) begin(next Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusIdle {
		return ErrSyncInFlight
	}
	e.status = next
	return nil
}

func (e *Engine) end(err error) {
	now := time.Now().UTC()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusIdle
	e.lastRunAt = &now
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
}
