package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
)

// Editing operations. Each one is a single store transaction that mutates
// the record and marks it dirty; the next upload pass picks it up. Edits are
// allowed while a sync runs because the store serializes all writers.

// SaveReadingValue records a user-entered meter value on a reading.
func (e *Engine) SaveReadingValue(ctx context.Context, readingLocalID string, value float64, date time.Time) (*models.Reading, error) {
	if value < 0 {
		return nil, &models.ValidationError{Message: "reading value cannot be negative"}
	}

	var reading *models.Reading
	err := e.store.Write(ctx, func(tx *repository.Tx) error {
		r, err := tx.Readings.GetByLocalID(ctx, readingLocalID)
		if err != nil {
			return err
		}
		if r == nil || r.Deleted {
			return &models.ValidationError{Message: fmt.Sprintf("reading %s not found", readingLocalID)}
		}
		if r.Closed {
			return &models.ValidationError{Message: "reading belongs to a closed period"}
		}
		r.ApplyEdit(value, date)
		reading = r
		return tx.Readings.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("reading value saved",
		zap.String("localId", reading.LocalID),
		zap.Float64("value", value))
	return reading, nil
}

// AttachImage compresses and stores a captured photo for a reading. The
// image is persisted locally first; its upload is gated on the reading
// having a backend reading id.
func (e *Engine) AttachImage(ctx context.Context, readingLocalID string, data []byte, originalFilename string) (*models.ReadingImage, error) {
	reading, err := e.store.Readings.GetByLocalID(ctx, readingLocalID)
	if err != nil {
		return nil, err
	}
	if reading == nil || reading.Deleted {
		return nil, &models.ValidationError{Message: fmt.Sprintf("reading %s not found", readingLocalID)}
	}

	img, err := e.assets.SaveCapture(reading, data, originalFilename)
	if err != nil {
		return nil, err
	}

	if err := e.store.Write(ctx, func(tx *repository.Tx) error {
		return tx.Images.Insert(ctx, img)
	}); err != nil {
		// The row never existed; remove the orphan file.
		e.assets.Delete(img.StoredPath)
		return nil, err
	}

	e.log.Debug("image attached",
		zap.String("readingLocalId", readingLocalID),
		zap.String("storedPath", img.StoredPath),
		zap.Int64("size", img.FileSize))
	return img, nil
}

// CreateObservation authors a new observation on a lot. It is born dirty
// with no server identity; the batch sync assigns one.
func (e *Engine) CreateObservation(ctx context.Context, lotID int64, kind, title, body string) (*models.Observation, error) {
	o, err := models.NewObservation(lotID, kind, title, body, e.currentUser())
	if err != nil {
		return nil, err
	}

	if err := e.store.Write(ctx, func(tx *repository.Tx) error {
		return tx.Observations.Insert(ctx, o)
	}); err != nil {
		return nil, err
	}

	e.log.Debug("observation created",
		zap.String("localId", o.LocalID),
		zap.Int64("lotId", lotID))
	return o, nil
}

// EditObservation updates the title and body of an observation.
func (e *Engine) EditObservation(ctx context.Context, observationLocalID, title, body string) (*models.Observation, error) {
	var observation *models.Observation
	err := e.store.Write(ctx, func(tx *repository.Tx) error {
		o, err := tx.Observations.GetByLocalID(ctx, observationLocalID)
		if err != nil {
			return err
		}
		if o == nil {
			return &models.ValidationError{Message: fmt.Sprintf("observation %s not found", observationLocalID)}
		}
		if o.Status == models.ObservationClosed {
			return &models.ValidationError{Message: "closed observations cannot be edited"}
		}
		o.Title = title
		o.Body = body
		o.MarkEdited()
		observation = o
		return tx.Observations.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return observation, nil
}

// CloseObservation closes an observation, stamping who closed it and when.
func (e *Engine) CloseObservation(ctx context.Context, observationLocalID string) (*models.Observation, error) {
	var observation *models.Observation
	err := e.store.Write(ctx, func(tx *repository.Tx) error {
		o, err := tx.Observations.GetByLocalID(ctx, observationLocalID)
		if err != nil {
			return err
		}
		if o == nil {
			return &models.ValidationError{Message: fmt.Sprintf("observation %s not found", observationLocalID)}
		}
		if o.Status == models.ObservationClosed {
			return &models.ValidationError{Message: "observation is already closed"}
		}
		o.Close(e.currentUser(), time.Now())
		observation = o
		return tx.Observations.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return observation, nil
}

// AddComment authors a comment on an observation. The comment references its
// parent by local id, so commenting on a parent that has never synced works
// offline.
func (e *Engine) AddComment(ctx context.Context, observationLocalID, body string) (*models.ObservationComment, error) {
	var comment *models.ObservationComment
	err := e.store.Write(ctx, func(tx *repository.Tx) error {
		parent, err := tx.Observations.GetByLocalID(ctx, observationLocalID)
		if err != nil {
			return err
		}
		if parent == nil {
			return &models.ValidationError{Message: fmt.Sprintf("observation %s not found", observationLocalID)}
		}
		c, err := models.NewObservationComment(parent, body, e.currentUser())
		if err != nil {
			return err
		}
		comment = c
		return tx.Comments.Insert(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// RecordLog captures a write-once diagnostic entry for best-effort delivery
// on the next upload pass.
func (e *Engine) RecordLog(ctx context.Context, level, message, detail string) (*models.LogEntry, error) {
	entry := models.NewLogEntry(level, message, detail, e.deviceID())
	if err := e.store.Write(ctx, func(tx *repository.Tx) error {
		return tx.Logs.Insert(ctx, entry)
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

func (e *Engine) currentUser() string {
	if e.identity == nil {
		return ""
	}
	return e.identity.CurrentUser()
}

func (e *Engine) deviceID() string {
	if e.identity == nil {
		return ""
	}
	return e.identity.DeviceID()
}
