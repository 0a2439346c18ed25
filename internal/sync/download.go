package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/observability"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/services"
)

// ErrUploadsPending is returned by Pull when dirty records are waiting for
// upload. Downloading over unsent work risks losing it; the caller must run
// an upload pass first or retry the failed records.
var ErrUploadsPending = errors.New("local records are pending upload; upload before pulling")

// DefaultMinPullInterval is the pull throttle applied when no interval is
// configured.
const DefaultMinPullInterval = 2 * time.Hour

// PullOptions controls one download pull.
type PullOptions struct {
	// Periods restricts the pull; empty pulls every period the agent can see.
	Periods []models.Period
	// Force bypasses the pull throttle.
	Force bool
}

// Downloader merges remote state into the local store. Local dirty records
// always win: a record that is locally edited, uploading or errored is never
// overwritten by a download.
type Downloader struct {
	store           *repository.Store
	client          api.Client
	assets          *services.AssetStore
	log             *zap.Logger
	metrics         *observability.SyncMetrics
	minPullInterval time.Duration
	now             func() time.Time
}

// NewDownloader creates a Downloader. A non-positive minPullInterval falls
// back to the default.
func NewDownloader(store *repository.Store, client api.Client, assets *services.AssetStore, log *zap.Logger, metrics *observability.SyncMetrics, minPullInterval time.Duration) *Downloader {
	if minPullInterval <= 0 {
		minPullInterval = DefaultMinPullInterval
	}
	return &Downloader{
		store:           store,
		client:          client,
		assets:          assets,
		log:             log,
		metrics:         metrics,
		minPullInterval: minPullInterval,
		now:             time.Now,
	}
}

// Pull fetches periods from the remote authority and merges them locally.
//
// The pull refuses to run while any record is pending upload. Each period is
// throttled by its last successful pull; a pull with no explicit period
// filter throttles on the most recent pull of any period. Force bypasses the
// throttle, never the pending-upload gate.
func (d *Downloader) Pull(ctx context.Context, opts PullOptions) (*PullReport, error) {
	ctx, span := observability.StartSyncSpan(ctx, "download", "pull")
	defer span.End()
	log := observability.WithTrace(ctx, d.log)

	counts, err := d.store.PendingCounts(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if counts.HasPending() {
		log.Warn("pull refused, uploads pending",
			zap.Int("pendingTotal", counts.Total()))
		observability.RecordError(span, ErrUploadsPending)
		return nil, ErrUploadsPending
	}

	report := &PullReport{}

	requested, throttled, err := d.filterThrottled(ctx, opts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	report.PeriodsThrottled = throttled
	if throttled > 0 && len(requested) == 0 {
		// Every requested period (or the store-wide window) is still fresh.
		log.Debug("pull throttled", zap.Int("periods", throttled))
		return report, nil
	}

	payload, err := d.client.FetchPeriods(ctx, api.PeriodFilter{Periods: requested})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	for _, open := range payload.Open {
		if err := d.mergeOpenPeriod(ctx, log, open, report); err != nil {
			observability.RecordError(span, err)
			return report, err
		}
		report.PeriodsPulled++
	}

	for _, closed := range payload.Closed {
		if err := d.closePeriod(ctx, log, closed, report); err != nil {
			observability.RecordError(span, err)
			return report, err
		}
		report.PeriodsClosed++
	}

	merged := report.ReadingsCreated + report.ReadingsRefreshed +
		report.ObservationsMerged + report.CommentsMerged
	d.metrics.RecordPull(ctx, merged, report.DirtySkipped, report.PeriodsClosed)
	observability.SetSuccess(span)

	log.Info("pull finished",
		zap.Int("periodsPulled", report.PeriodsPulled),
		zap.Int("periodsClosed", report.PeriodsClosed),
		zap.Int("readingsCreated", report.ReadingsCreated),
		zap.Int("readingsRefreshed", report.ReadingsRefreshed),
		zap.Int("dirtySkipped", report.DirtySkipped))
	return report, nil
}

// filterThrottled drops requested periods whose last pull is still inside the
// throttle window. With no explicit periods, the store-wide latest pull acts
// as the window; a throttled full pull reports one throttled "period".
func (d *Downloader) filterThrottled(ctx context.Context, opts PullOptions) ([]models.Period, int, error) {
	if opts.Force {
		return opts.Periods, 0, nil
	}
	now := d.now().UTC()

	if len(opts.Periods) == 0 {
		latest, err := d.store.Periods.LatestPullAt(ctx)
		if err != nil {
			return nil, 0, err
		}
		if latest != nil && now.Sub(*latest) < d.minPullInterval {
			return nil, 1, nil
		}
		return nil, 0, nil
	}

	var requested []models.Period
	throttled := 0
	for _, p := range opts.Periods {
		state, err := d.store.Periods.GetSyncState(ctx, p)
		if err != nil {
			return nil, 0, err
		}
		if state != nil && state.LastPullAt != nil && now.Sub(*state.LastPullAt) < d.minPullInterval {
			throttled++
			continue
		}
		requested = append(requested, p)
	}
	return requested, throttled, nil
}

// mergeOpenPeriod applies one open period's payload in a single transaction.
func (d *Downloader) mergeOpenPeriod(ctx context.Context, log *zap.Logger, open api.OpenPeriodDTO, report *PullReport) error {
	period := open.Period()
	now := d.now().UTC()

	return d.store.Write(ctx, func(tx *repository.Tx) error {
		for _, dto := range open.Readings {
			existing, err := tx.Readings.GetByServerID(ctx, dto.ID)
			if err != nil {
				return err
			}
			switch {
			case existing == nil:
				if err := tx.Readings.Insert(ctx, dto.ToModel(period, now)); err != nil {
					return err
				}
				report.ReadingsCreated++
			case existing.SyncStatus.IsDirty():
				log.Debug("download skipped dirty reading",
					zap.String("localId", existing.LocalID),
					zap.Int64("serverId", existing.ServerID),
					zap.String("status", string(existing.SyncStatus)))
				report.DirtySkipped++
			default:
				dto.MergeInto(existing, now)
				if err := tx.Readings.Update(ctx, existing); err != nil {
					return err
				}
				report.ReadingsRefreshed++
			}
		}

		for _, dto := range open.Observations {
			if err := d.mergeObservation(ctx, tx, dto, now, report); err != nil {
				return err
			}
		}

		return tx.Periods.TouchPullAt(ctx, period, now)
	})
}

// mergeObservation merges one downloaded observation and its comments.
// Comments ride along with their parent; a comment for a parent the store
// does not know is attached to the freshly inserted one.
func (d *Downloader) mergeObservation(ctx context.Context, tx *repository.Tx, dto api.ObservationDTO, now time.Time, report *PullReport) error {
	parent, err := tx.Observations.GetByServerID(ctx, dto.ID)
	if err != nil {
		return err
	}

	switch {
	case parent == nil:
		parent = dto.ToModel(now)
		if err := tx.Observations.Insert(ctx, parent); err != nil {
			return err
		}
		report.ObservationsMerged++
	case parent.SyncStatus.IsDirty():
		report.DirtySkipped++
	default:
		dto.MergeInto(parent, now)
		if err := tx.Observations.Update(ctx, parent); err != nil {
			return err
		}
		report.ObservationsMerged++
	}

	for _, cdto := range dto.Comments {
		existing, err := tx.Comments.GetByServerID(ctx, cdto.ID)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			if err := tx.Comments.Insert(ctx, cdto.ToModel(parent, now)); err != nil {
				return err
			}
			report.CommentsMerged++
		case existing.SyncStatus.IsDirty():
			report.DirtySkipped++
		default:
			cdto.MergeInto(existing, now)
			if err := tx.Comments.Update(ctx, existing); err != nil {
				return err
			}
			report.CommentsMerged++
		}
	}
	return nil
}

// closePeriod demotes a period the server reports as closed: its row-level
// data is soft-deleted, its aggregate summary cached, and the backing files
// of its captures swept from disk.
func (d *Downloader) closePeriod(ctx context.Context, log *zap.Logger, closed api.ClosedPeriodDTO, report *PullReport) error {
	period := closed.Period()
	now := d.now().UTC()

	var sweep []*models.ReadingImage
	err := d.store.Write(ctx, func(tx *repository.Tx) error {
		images, err := tx.Images.ListByPeriod(ctx, period)
		if err != nil {
			return err
		}
		sweep = images

		if _, err := tx.Readings.SoftDeleteByPeriod(ctx, period); err != nil {
			return err
		}
		if _, err := tx.Images.SoftDeleteByPeriod(ctx, period); err != nil {
			return err
		}
		if err := tx.Periods.UpsertSummary(ctx, closed.ToSummary(now)); err != nil {
			return err
		}
		return tx.Periods.TouchPullAt(ctx, period, now)
	})
	if err != nil {
		return err
	}

	// Filesystem cleanup happens after the transaction committed; a crash
	// here only leaves orphan files for the next sweep.
	swept := d.assets.Sweep(sweep)
	report.AssetsSwept += swept

	var bytes int64
	for _, img := range sweep {
		bytes += img.FileSize
	}
	d.metrics.RecordSweep(ctx, bytes)

	log.Info("period closed",
		zap.String("period", period.Key()),
		zap.Int("assetsSwept", swept))
	return nil
}
