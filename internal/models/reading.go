package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reading is one billing-period meter reading for an irrigation lot.
//
// LocalID is assigned by the local store and stable for the life of the row.
// ServerID is the remote invoice id and is always present (readings originate
// from a download). BackendReadingID is the remote id of the reading
// sub-resource; it is populated only after at least one successful submission
// and is required before an image can be attached.
type Reading struct {
	LocalID          string     `json:"localId"`
	ServerID         int64      `json:"serverId"`
	BackendReadingID *int64     `json:"backendReadingId,omitempty"`
	Period           Period     `json:"period"`
	LotID            int64      `json:"lotId"`
	LotName          string     `json:"lotName"`
	LotStatus        string     `json:"lotStatus"`
	MeterCode        string     `json:"meterCode"`
	TimesTen         bool       `json:"timesTen"`
	CurrentValue     float64    `json:"currentValue"`
	CurrentDate      *time.Time `json:"currentDate,omitempty"`
	PreviousValue    float64    `json:"previousValue"`
	PreviousDate     *time.Time `json:"previousDate,omitempty"`
	Consumption      float64    `json:"consumption"`
	Closed           bool       `json:"closed"`
	WorkflowStatus   string     `json:"workflowStatus"`
	ImageURL         string     `json:"imageUrl"`
	SyncStatus       SyncStatus `json:"syncStatus"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	Deleted          bool       `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewReading creates a server-originated reading in the synced state.
func NewReading(serverID int64, period Period) *Reading {
	now := time.Now().UTC()
	return &Reading{
		LocalID:    uuid.New().String(),
		ServerID:   serverID,
		Period:     period,
		SyncStatus: SyncStatusSynced,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// RecomputeConsumption enforces the consumption invariant: whenever a current
// value is set, consumption is derived locally as current minus previous,
// regardless of what the remote reported for an unset reading.
func (r *Reading) RecomputeConsumption() {
	if r.CurrentValue > 0 {
		r.Consumption = r.CurrentValue - r.PreviousValue
	} else {
		r.Consumption = 0
	}
}

// ApplyEdit records a user-entered reading value. The status moves to
// locally_edited only from synced; an already dirty or in-flight record keeps
// its current status.
func (r *Reading) ApplyEdit(value float64, date time.Time) {
	r.CurrentValue = value
	d := date.UTC()
	r.CurrentDate = &d
	r.RecomputeConsumption()
	if r.SyncStatus.CanMarkEdited() {
		r.SyncStatus = SyncStatusLocallyEdited
	}
	r.UpdatedAt = time.Now().UTC()
}

// MarkUploading claims the reading for an upload pass.
func (r *Reading) MarkUploading() bool {
	if !r.SyncStatus.CanUpload() {
		return false
	}
	r.SyncStatus = SyncStatusUploading
	return true
}

// MarkSynced records a successful upload. The local id is retained; the
// backend reading id from the server response is stored for image attachment.
func (r *Reading) MarkSynced(backendReadingID *int64, at time.Time) {
	r.SyncStatus = SyncStatusSynced
	r.ErrorMessage = ""
	if backendReadingID != nil {
		r.BackendReadingID = backendReadingID
	}
	t := at.UTC()
	r.LastSyncAt = &t
	r.UpdatedAt = t
}

// MarkError records a failed upload. The record stays available for retry.
func (r *Reading) MarkError(message string) {
	r.SyncStatus = SyncStatusError
	r.ErrorMessage = strings.TrimSpace(message)
	r.UpdatedAt = time.Now().UTC()
}
