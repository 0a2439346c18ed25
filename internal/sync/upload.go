package sync

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/observability"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/services"
)

// Uploader pushes dirty local records to the remote authority in dependency
// order: readings first, then their images (gated on the backend reading id
// each submission returns), then observations and comments as one atomic
// batch, then diagnostic logs. A failed record is marked and skipped; the
// pass never aborts because one record was rejected.
type Uploader struct {
	store    *repository.Store
	client   api.Client
	assets   *services.AssetStore
	identity Identity
	log      *zap.Logger
	metrics  *observability.SyncMetrics
	now      func() time.Time
}

// NewUploader creates an Uploader.
func NewUploader(store *repository.Store, client api.Client, assets *services.AssetStore, identity Identity, log *zap.Logger, metrics *observability.SyncMetrics) *Uploader {
	return &Uploader{
		store:    store,
		client:   client,
		assets:   assets,
		identity: identity,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// UploadAll runs one full upload pass and reports per-category progress.
// Re-running after a partial failure retries only the records still marked
// dirty; already confirmed records are untouched.
func (u *Uploader) UploadAll(ctx context.Context) (*ProgressReport, error) {
	ctx, span := observability.StartSyncSpan(ctx, "upload", "all")
	defer span.End()
	log := observability.WithTrace(ctx, u.log)

	report := &ProgressReport{StartedAt: u.now().UTC()}

	if err := u.uploadReadings(ctx, log, report); err != nil {
		observability.RecordError(span, err)
		return report, err
	}
	if err := u.uploadImages(ctx, log, report); err != nil {
		observability.RecordError(span, err)
		return report, err
	}
	if err := u.uploadObservations(ctx, log, report); err != nil {
		observability.RecordError(span, err)
		return report, err
	}
	if err := u.uploadLogs(ctx, log, report); err != nil {
		observability.RecordError(span, err)
		return report, err
	}

	report.FinishedAt = u.now().UTC()
	observability.SetSuccess(span)
	log.Info("upload pass finished",
		zap.Int("attempted", report.TotalAttempted()),
		zap.Int("failed", report.TotalFailed()))
	return report, nil
}

// uploadReadings submits each dirty reading individually. A successful
// submission propagates the backend reading id to the reading's captured
// images so they become eligible in the image phase of the same pass.
func (u *Uploader) uploadReadings(ctx context.Context, log *zap.Logger, report *ProgressReport) error {
	pending, err := u.store.Readings.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, r := range pending {
		r := r
		if err := u.store.Write(ctx, func(tx *repository.Tx) error {
			if !r.MarkUploading() {
				return nil
			}
			return tx.Readings.Update(ctx, r)
		}); err != nil {
			return err
		}

		result, callErr := u.client.SubmitReading(ctx, r.ServerID, api.NewReadingSubmission(r))

		if err := u.store.Write(ctx, func(tx *repository.Tx) error {
			if callErr != nil {
				r.MarkError(callErr.Error())
				if err := tx.Readings.Update(ctx, r); err != nil {
					return err
				}
				return u.recordDiagnostic(ctx, tx, "reading upload failed", fmt.Sprintf("reading %s (server %d): %v", r.LocalID, r.ServerID, callErr))
			}

			r.MarkSynced(result.BackendReadingID, u.now())
			if result.WorkflowStatus != "" {
				r.WorkflowStatus = result.WorkflowStatus
			}
			if err := tx.Readings.Update(ctx, r); err != nil {
				return err
			}
			if result.BackendReadingID != nil {
				return tx.Images.SetBackendReadingID(ctx, r.LocalID, *result.BackendReadingID)
			}
			return nil
		}); err != nil {
			return err
		}

		if callErr != nil {
			report.Readings.failure()
			u.metrics.RecordUpload(ctx, "reading", false)
			log.Warn("reading upload failed",
				zap.String("localId", r.LocalID),
				zap.Int64("serverId", r.ServerID),
				zap.Error(callErr))
			continue
		}
		report.Readings.success()
		u.metrics.RecordUpload(ctx, "reading", true)
	}
	return nil
}

// uploadImages attaches each pending capture. An image whose parent reading
// has no backend reading id yet is failed locally without a network call;
// it becomes eligible once the reading's next submission succeeds.
func (u *Uploader) uploadImages(ctx context.Context, log *zap.Logger, report *ProgressReport) error {
	pending, err := u.store.Images.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, img := range pending {
		img := img

		backendID := img.BackendReadingID
		if backendID == nil {
			parent, err := u.store.Readings.GetByLocalID(ctx, img.ReadingLocalID)
			if err != nil {
				return err
			}
			if parent != nil {
				backendID = parent.BackendReadingID
			}
		}

		if backendID == nil {
			if err := u.failImage(ctx, img, report, "reading has not been submitted yet; image upload deferred"); err != nil {
				return err
			}
			log.Debug("image deferred, no backend reading id",
				zap.String("localId", img.LocalID))
			continue
		}
		img.BackendReadingID = backendID

		data, readErr := u.assets.ReadFile(img.StoredPath)
		if readErr != nil {
			if err := u.failImage(ctx, img, report, fmt.Sprintf("stored capture unreadable: %v", readErr)); err != nil {
				return err
			}
			continue
		}

		if err := u.store.Write(ctx, func(tx *repository.Tx) error {
			img.SyncStatus = models.SyncStatusUploading
			return tx.Images.Update(ctx, img)
		}); err != nil {
			return err
		}

		upload := api.ImageUpload{
			Filename: path.Base(img.StoredPath),
			MimeType: img.MimeType,
			Data:     data,
		}
		result, callErr := u.client.UploadReadingImage(ctx, *backendID, upload)

		if err := u.store.Write(ctx, func(tx *repository.Tx) error {
			if callErr != nil {
				img.MarkError(callErr.Error())
				if err := tx.Images.Update(ctx, img); err != nil {
					return err
				}
				return u.recordDiagnostic(ctx, tx, "image upload failed", fmt.Sprintf("image %s (reading %s): %v", img.LocalID, img.ReadingLocalID, callErr))
			}

			img.MarkSynced(result.ImageURL)
			if err := tx.Images.Update(ctx, img); err != nil {
				return err
			}
			// Reflect the hosted URL on the parent reading.
			parent, err := tx.Readings.GetByLocalID(ctx, img.ReadingLocalID)
			if err != nil || parent == nil {
				return err
			}
			parent.ImageURL = result.ImageURL
			parent.UpdatedAt = u.now().UTC()
			return tx.Readings.Update(ctx, parent)
		}); err != nil {
			return err
		}

		if callErr != nil {
			report.Images.failure()
			u.metrics.RecordUpload(ctx, "image", false)
			log.Warn("image upload failed",
				zap.String("localId", img.LocalID),
				zap.Error(callErr))
			continue
		}
		report.Images.success()
		u.metrics.RecordUpload(ctx, "image", true)
	}
	return nil
}

func (u *Uploader) failImage(ctx context.Context, img *models.ReadingImage, report *ProgressReport, message string) error {
	report.Images.failure()
	u.metrics.RecordUpload(ctx, "image", false)
	return u.store.Write(ctx, func(tx *repository.Tx) error {
		img.MarkError(message)
		return tx.Images.Update(ctx, img)
	})
}

// uploadObservations submits every dirty observation and comment as one
// batch. Comments reference their parent by local id so the server can
// resolve parents created in the same batch. A transport failure marks the
// whole batch as errored; per-item rejections mark only the rejected items.
func (u *Uploader) uploadObservations(ctx context.Context, log *zap.Logger, report *ProgressReport) error {
	observations, err := u.store.Observations.ListPending(ctx)
	if err != nil {
		return err
	}
	comments, err := u.store.Comments.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(observations) == 0 && len(comments) == 0 {
		return nil
	}

	req := api.ObservationSyncRequest{}
	if err := u.store.Write(ctx, func(tx *repository.Tx) error {
		for _, o := range observations {
			if !o.MarkUploading() {
				continue
			}
			if err := tx.Observations.Update(ctx, o); err != nil {
				return err
			}
			req.Observations = append(req.Observations, api.NewObservationSyncItem(o))
		}
		for _, c := range comments {
			if !c.MarkUploading() {
				continue
			}
			if err := tx.Comments.Update(ctx, c); err != nil {
				return err
			}
			req.Comments = append(req.Comments, api.NewCommentSyncItem(c))
		}
		return nil
	}); err != nil {
		return err
	}
	if len(req.Observations) == 0 && len(req.Comments) == 0 {
		return nil
	}

	resp, callErr := u.client.SyncObservations(ctx, req)
	if callErr != nil {
		// Transport failure: nothing reached the server, every item goes
		// back to error for the next pass.
		if err := u.store.Write(ctx, func(tx *repository.Tx) error {
			for _, o := range observations {
				o.MarkError(callErr.Error())
				if err := tx.Observations.Update(ctx, o); err != nil {
					return err
				}
			}
			for _, c := range comments {
				c.MarkError(callErr.Error())
				if err := tx.Comments.Update(ctx, c); err != nil {
					return err
				}
			}
			return u.recordDiagnostic(ctx, tx, "observation batch failed",
				fmt.Sprintf("%d observations, %d comments: %v", len(req.Observations), len(req.Comments), callErr))
		}); err != nil {
			return err
		}
		for range req.Observations {
			report.Observations.failure()
			u.metrics.RecordUpload(ctx, "observation", false)
		}
		for range req.Comments {
			report.Comments.failure()
			u.metrics.RecordUpload(ctx, "comment", false)
		}
		log.Warn("observation batch failed", zap.Error(callErr))
		return nil
	}

	return u.applyBatchOutcome(ctx, log, observations, comments, resp, report)
}

// applyBatchOutcome reconciles the server's per-item verdicts with the local
// records, back-filling server ids onto comments whose parent gained one in
// this batch.
func (u *Uploader) applyBatchOutcome(ctx context.Context, log *zap.Logger, observations []*models.Observation, comments []*models.ObservationComment, resp *api.ObservationSyncResponse, report *ProgressReport) error {
	obsByLocal := make(map[string]*models.Observation, len(observations))
	for _, o := range observations {
		obsByLocal[o.LocalID] = o
	}
	commentByLocal := make(map[string]*models.ObservationComment, len(comments))
	for _, c := range comments {
		commentByLocal[c.LocalID] = c
	}

	return u.store.Write(ctx, func(tx *repository.Tx) error {
		for _, success := range resp.Observations.Success {
			o, ok := obsByLocal[success.LocalID]
			if !ok {
				continue
			}
			o.MarkSynced(success.ServerID, u.now())
			if err := tx.Observations.Update(ctx, o); err != nil {
				return err
			}
			if err := tx.Comments.SetObservationServerID(ctx, o.LocalID, success.ServerID); err != nil {
				return err
			}
			delete(obsByLocal, success.LocalID)
			report.Observations.success()
			u.metrics.RecordUpload(ctx, "observation", true)
		}
		for _, failure := range resp.Observations.Errors {
			o, ok := obsByLocal[failure.LocalID]
			if !ok {
				continue
			}
			o.MarkError(failure.Error)
			if err := tx.Observations.Update(ctx, o); err != nil {
				return err
			}
			delete(obsByLocal, failure.LocalID)
			report.Observations.failure()
			u.metrics.RecordUpload(ctx, "observation", false)
			log.Warn("observation rejected",
				zap.String("localId", failure.LocalID),
				zap.String("reason", failure.Error))
		}
		// Items the server did not report stay retryable.
		for _, o := range obsByLocal {
			o.MarkError("no result returned for observation")
			if err := tx.Observations.Update(ctx, o); err != nil {
				return err
			}
			report.Observations.failure()
			u.metrics.RecordUpload(ctx, "observation", false)
		}

		// Parent server ids assigned in this batch, for comment back-fill.
		parentServerID := make(map[string]*int64)
		for _, success := range resp.Observations.Success {
			id := success.ServerID
			parentServerID[success.LocalID] = &id
		}

		for _, success := range resp.Comments.Success {
			c, ok := commentByLocal[success.LocalID]
			if !ok {
				continue
			}
			c.MarkSynced(success.ServerID, parentServerID[c.ObservationLocalID], u.now())
			if err := tx.Comments.Update(ctx, c); err != nil {
				return err
			}
			delete(commentByLocal, success.LocalID)
			report.Comments.success()
			u.metrics.RecordUpload(ctx, "comment", true)
		}
		for _, failure := range resp.Comments.Errors {
			c, ok := commentByLocal[failure.LocalID]
			if !ok {
				continue
			}
			c.MarkError(failure.Error)
			if err := tx.Comments.Update(ctx, c); err != nil {
				return err
			}
			delete(commentByLocal, failure.LocalID)
			report.Comments.failure()
			u.metrics.RecordUpload(ctx, "comment", false)
		}
		for _, c := range commentByLocal {
			c.MarkError("no result returned for comment")
			if err := tx.Comments.Update(ctx, c); err != nil {
				return err
			}
			report.Comments.failure()
			u.metrics.RecordUpload(ctx, "comment", false)
		}
		return nil
	})
}

// uploadLogs delivers diagnostic entries best-effort and hard-deletes each
// one the server confirms. Log failures never fail the pass.
func (u *Uploader) uploadLogs(ctx context.Context, log *zap.Logger, report *ProgressReport) error {
	pending, err := u.store.Logs.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, entry := range pending {
		callErr := u.client.SubmitLog(ctx, api.NewLogSubmission(entry))

		if err := u.store.Write(ctx, func(tx *repository.Tx) error {
			if callErr != nil {
				return tx.Logs.SetStatus(ctx, entry.LocalID, models.LogStatusError, callErr.Error())
			}
			return tx.Logs.Delete(ctx, entry.LocalID)
		}); err != nil {
			return err
		}

		if callErr != nil {
			report.Logs.failure()
			log.Debug("log delivery failed",
				zap.String("localId", entry.LocalID),
				zap.Error(callErr))
			continue
		}
		report.Logs.success()
	}
	return nil
}

// recordDiagnostic captures an upload failure as a write-once log entry so
// the authority sees device-side failures on the next successful pass.
func (u *Uploader) recordDiagnostic(ctx context.Context, tx *repository.Tx, message, detail string) error {
	deviceID := ""
	if u.identity != nil {
		deviceID = u.identity.DeviceID()
	}
	return tx.Logs.Insert(ctx, models.NewLogEntry("error", message, detail, deviceID))
}
