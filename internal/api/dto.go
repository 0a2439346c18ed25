package api

import (
	"time"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

// Wire types for the remote sync API. Every mapping to and from the local
// models is an explicit field-by-field function so each one is independently
// testable and exhaustive over the required fields.

// PeriodFilter narrows a periods fetch.
type PeriodFilter struct {
	// Periods restricts the fetch; empty means every period the agent can see.
	Periods []models.Period
	// Scope is "open", "closed" or "" for both.
	Scope string
}

// PeriodsPayload is the response of GET /api/periods.
type PeriodsPayload struct {
	Open   []OpenPeriodDTO   `json:"open"`
	Closed []ClosedPeriodDTO `json:"closed"`
}

// OpenPeriodDTO carries the full row-level data of a period still accepting
// edits: its readings plus the observations (and their comments) of every lot
// those readings touch.
type OpenPeriodDTO struct {
	Month        int              `json:"month"`
	Year         int              `json:"year"`
	Readings     []ReadingDTO     `json:"readings"`
	Observations []ObservationDTO `json:"observations"`
}

// Period returns the typed period of the payload.
func (p OpenPeriodDTO) Period() models.Period {
	return models.Period{Month: p.Month, Year: p.Year}
}

// ClosedPeriodDTO is the lightweight aggregate the server returns for a
// period that no longer accepts edits.
type ClosedPeriodDTO struct {
	Month            int     `json:"month"`
	Year             int     `json:"year"`
	ReadingCount     int     `json:"reading_count"`
	CompletedCount   int     `json:"completed_count"`
	TotalConsumption float64 `json:"total_consumption"`
}

// Period returns the typed period of the payload.
func (p ClosedPeriodDTO) Period() models.Period {
	return models.Period{Month: p.Month, Year: p.Year}
}

// ToSummary maps a closed-period payload into the local summary cache entry.
func (p ClosedPeriodDTO) ToSummary(now time.Time) *models.PeriodSummary {
	return &models.PeriodSummary{
		Period:           p.Period(),
		Closed:           true,
		ReadingCount:     p.ReadingCount,
		CompletedCount:   p.CompletedCount,
		TotalConsumption: p.TotalConsumption,
		UpdatedAt:        now.UTC(),
	}
}

// ReadingDTO is one reading row as the server serializes it.
type ReadingDTO struct {
	ID               int64      `json:"id"`
	BackendReadingID *int64     `json:"reading_id,omitempty"`
	LotID            int64      `json:"lot_id"`
	LotName          string     `json:"lot_name"`
	LotStatus        string     `json:"lot_status"`
	MeterCode        string     `json:"meter_code"`
	TimesTen         bool       `json:"times_ten"`
	CurrentValue     float64    `json:"current_value"`
	CurrentDate      *time.Time `json:"current_date,omitempty"`
	PreviousValue    float64    `json:"previous_value"`
	PreviousDate     *time.Time `json:"previous_date,omitempty"`
	Consumption      float64    `json:"consumption"`
	WorkflowStatus   string     `json:"status"`
	ImageURL         string     `json:"image_url"`
}

// ToModel creates a synced local reading from a downloaded row. Consumption
// is always recomputed locally: the server reports 0 for an unset reading
// and the local value must stay consistent with current minus previous.
func (dto ReadingDTO) ToModel(period models.Period, now time.Time) *models.Reading {
	r := models.NewReading(dto.ID, period)
	dto.applyServerFields(r)
	t := now.UTC()
	r.LastSyncAt = &t
	r.CreatedAt = t
	r.UpdatedAt = t
	return r
}

// MergeInto overwrites every server-derived field of an existing synced
// reading and refreshes its sync timestamp. Callers must ensure the record is
// not dirty before merging.
func (dto ReadingDTO) MergeInto(r *models.Reading, now time.Time) {
	dto.applyServerFields(r)
	t := now.UTC()
	r.LastSyncAt = &t
	r.UpdatedAt = t
}

func (dto ReadingDTO) applyServerFields(r *models.Reading) {
	r.ServerID = dto.ID
	if dto.BackendReadingID != nil {
		r.BackendReadingID = dto.BackendReadingID
	}
	r.LotID = dto.LotID
	r.LotName = dto.LotName
	r.LotStatus = dto.LotStatus
	r.MeterCode = dto.MeterCode
	r.TimesTen = dto.TimesTen
	r.CurrentValue = dto.CurrentValue
	r.CurrentDate = dto.CurrentDate
	r.PreviousValue = dto.PreviousValue
	r.PreviousDate = dto.PreviousDate
	r.WorkflowStatus = dto.WorkflowStatus
	r.ImageURL = dto.ImageURL
	r.Closed = false
	r.RecomputeConsumption()
}

// ObservationDTO is one lot observation as the server serializes it,
// including its comments.
type ObservationDTO struct {
	ID        int64        `json:"id"`
	LotID     int64        `json:"lot_id"`
	Kind      string       `json:"kind"`
	Status    string       `json:"status"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	CreatedBy string       `json:"created_by"`
	ClosedBy  string       `json:"closed_by,omitempty"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Comments  []CommentDTO `json:"comments,omitempty"`
}

// ToModel creates a synced local observation from a downloaded row.
func (dto ObservationDTO) ToModel(now time.Time) *models.Observation {
	serverID := dto.ID
	t := now.UTC()
	o := &models.Observation{
		ServerID:   &serverID,
		SyncStatus: models.SyncStatusSynced,
		SyncedAt:   &t,
		CreatedAt:  dto.CreatedAt.UTC(),
		UpdatedAt:  t,
	}
	dto.applyServerFields(o)
	return o
}

// MergeInto overwrites the server-derived fields of an existing synced
// observation.
func (dto ObservationDTO) MergeInto(o *models.Observation, now time.Time) {
	dto.applyServerFields(o)
	t := now.UTC()
	o.SyncedAt = &t
	o.UpdatedAt = t
}

func (dto ObservationDTO) applyServerFields(o *models.Observation) {
	o.LotID = dto.LotID
	o.Kind = dto.Kind
	o.Status = models.ObservationStatus(dto.Status)
	o.Title = dto.Title
	o.Body = dto.Body
	o.CreatedBy = dto.CreatedBy
	o.ClosedBy = dto.ClosedBy
	o.ClosedAt = dto.ClosedAt
}

// CommentDTO is one observation comment as the server serializes it.
type CommentDTO struct {
	ID            int64     `json:"id"`
	ObservationID int64     `json:"observation_id"`
	Body          string    `json:"body"`
	Author        string    `json:"author"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToModel creates a synced local comment attached to the given parent.
func (dto CommentDTO) ToModel(parent *models.Observation, now time.Time) *models.ObservationComment {
	serverID := dto.ID
	observationServerID := dto.ObservationID
	t := now.UTC()
	return &models.ObservationComment{
		ServerID:            &serverID,
		ObservationLocalID:  parent.LocalID,
		ObservationServerID: &observationServerID,
		Body:                dto.Body,
		Author:              dto.Author,
		SyncStatus:          models.SyncStatusSynced,
		SyncedAt:            &t,
		CreatedAt:           dto.CreatedAt.UTC(),
	}
}

// MergeInto overwrites the server-derived fields of an existing synced
// comment.
func (dto CommentDTO) MergeInto(c *models.ObservationComment, now time.Time) {
	observationServerID := dto.ObservationID
	c.ObservationServerID = &observationServerID
	c.Body = dto.Body
	c.Author = dto.Author
	t := now.UTC()
	c.SyncedAt = &t
}

// ReadingSubmission is the body of PUT /api/readings/{id}.
type ReadingSubmission struct {
	Value float64   `json:"value"`
	Date  time.Time `json:"date"`
}

// NewReadingSubmission maps a dirty local reading onto the wire.
func NewReadingSubmission(r *models.Reading) ReadingSubmission {
	sub := ReadingSubmission{Value: r.CurrentValue}
	if r.CurrentDate != nil {
		sub.Date = *r.CurrentDate
	}
	return sub
}

// ReadingResult is the server's answer to a reading submission. The backend
// reading id identifies the reading sub-resource created or updated by the
// call; it is required before an image can be attached.
type ReadingResult struct {
	BackendReadingID *int64 `json:"reading_id,omitempty"`
	WorkflowStatus   string `json:"status"`
}

// ImageUpload carries a compressed capture to the attach endpoint.
type ImageUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// ImageResult is the server's answer to an image attach.
type ImageResult struct {
	ImageURL string `json:"image_url"`
}

// ObservationSyncRequest is the single batch body of POST
// /api/observations/sync. Every item is tagged with its local id; comments
// reference their parent by the parent's local id, never its server id,
// because the parent may have been created offline and have none yet. The
// server upserts observations first, builds the local-id to server-id map
// inside one transaction, and resolves each comment's parent through it.
type ObservationSyncRequest struct {
	Observations []ObservationSyncItem `json:"observations"`
	Comments     []CommentSyncItem     `json:"comments"`
}

// ObservationSyncItem is one observation in the batch.
type ObservationSyncItem struct {
	LocalID   string     `json:"local_id"`
	ServerID  *int64     `json:"server_id,omitempty"`
	LotID     int64      `json:"lot_id"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedBy string     `json:"created_by"`
	ClosedBy  string     `json:"closed_by,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// NewObservationSyncItem maps a dirty local observation onto the wire.
func NewObservationSyncItem(o *models.Observation) ObservationSyncItem {
	return ObservationSyncItem{
		LocalID:   o.LocalID,
		ServerID:  o.ServerID,
		LotID:     o.LotID,
		Kind:      o.Kind,
		Status:    string(o.Status),
		Title:     o.Title,
		Body:      o.Body,
		CreatedBy: o.CreatedBy,
		ClosedBy:  o.ClosedBy,
		ClosedAt:  o.ClosedAt,
	}
}

// CommentSyncItem is one comment in the batch.
type CommentSyncItem struct {
	LocalID            string `json:"local_id"`
	ServerID           *int64 `json:"server_id,omitempty"`
	ObservationLocalID string `json:"observation_local_id"`
	Body               string `json:"body"`
	Author             string `json:"author"`
}

// NewCommentSyncItem maps a dirty local comment onto the wire.
func NewCommentSyncItem(c *models.ObservationComment) CommentSyncItem {
	return CommentSyncItem{
		LocalID:            c.LocalID,
		ServerID:           c.ServerID,
		ObservationLocalID: c.ObservationLocalID,
		Body:               c.Body,
		Author:             c.Author,
	}
}

// ObservationSyncResponse reports the per-item outcome of the batch.
type ObservationSyncResponse struct {
	Observations SyncOutcome `json:"observations"`
	Comments     SyncOutcome `json:"comments"`
}

// SyncOutcome partitions a batch category into successes and failures.
type SyncOutcome struct {
	Success []SyncSuccess `json:"success"`
	Errors  []SyncFailure `json:"errors"`
}

// SyncSuccess reports one accepted item and its server identity.
type SyncSuccess struct {
	LocalID  string `json:"local_id"`
	ServerID int64  `json:"server_id"`
	Action   string `json:"action"`
}

// SyncFailure reports one rejected item with the server's message.
type SyncFailure struct {
	LocalID string `json:"local_id"`
	Error   string `json:"error"`
}

// LogSubmission is the body of POST /api/logs.
type LogSubmission struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLogSubmission maps a local diagnostic entry onto the wire.
func NewLogSubmission(e *models.LogEntry) LogSubmission {
	return LogSubmission{
		Level:     e.Level,
		Message:   e.Message,
		Context:   e.Context,
		DeviceID:  e.DeviceID,
		CreatedAt: e.CreatedAt,
	}
}
