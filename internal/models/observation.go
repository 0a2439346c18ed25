package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObservationStatus is the workflow state of a lot observation.
type ObservationStatus string

const (
	ObservationOpen   ObservationStatus = "open"
	ObservationClosed ObservationStatus = "closed"
)

// Observation is a free-form note attached to a lot, independent of any
// billing period. ServerID is nil until the first successful sync.
type Observation struct {
	LocalID      string            `json:"localId"`
	ServerID     *int64            `json:"serverId,omitempty"`
	LotID        int64             `json:"lotId"`
	Kind         string            `json:"kind"`
	Status       ObservationStatus `json:"status"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	CreatedBy    string            `json:"createdBy"`
	ClosedBy     string            `json:"closedBy,omitempty"`
	ClosedAt     *time.Time        `json:"closedAt,omitempty"`
	SyncStatus   SyncStatus        `json:"syncStatus"`
	SyncedAt     *time.Time        `json:"syncedAt,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	Deleted      bool              `json:"-"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// NewObservation creates a locally-authored observation. It is born dirty.
func NewObservation(lotID int64, kind, title, body, createdBy string) (*Observation, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Message: "observation needs a title or a body"}
	}
	now := time.Now().UTC()
	return &Observation{
		LocalID:    uuid.New().String(),
		LotID:      lotID,
		Kind:       kind,
		Status:     ObservationOpen,
		Title:      strings.TrimSpace(title),
		Body:       strings.TrimSpace(body),
		CreatedBy:  createdBy,
		SyncStatus: SyncStatusLocallyEdited,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// MarkEdited flags a local mutation. Only a synced record changes status;
// a record that is already dirty stays as it is.
func (o *Observation) MarkEdited() {
	if o.SyncStatus.CanMarkEdited() {
		o.SyncStatus = SyncStatusLocallyEdited
	}
	o.UpdatedAt = time.Now().UTC()
}

// Close records the closing identity and timestamp and flags the edit.
func (o *Observation) Close(closedBy string, at time.Time) {
	o.Status = ObservationClosed
	o.ClosedBy = closedBy
	t := at.UTC()
	o.ClosedAt = &t
	o.MarkEdited()
}

// MarkUploading claims the observation for an upload pass.
func (o *Observation) MarkUploading() bool {
	if !o.SyncStatus.CanUpload() {
		return false
	}
	o.SyncStatus = SyncStatusUploading
	return true
}

// MarkSynced records the server-assigned id after a successful batch sync.
func (o *Observation) MarkSynced(serverID int64, at time.Time) {
	o.ServerID = &serverID
	o.SyncStatus = SyncStatusSynced
	o.ErrorMessage = ""
	t := at.UTC()
	o.SyncedAt = &t
	o.UpdatedAt = t
}

// MarkError records a per-item or batch-level failure.
func (o *Observation) MarkError(message string) {
	o.SyncStatus = SyncStatusError
	o.ErrorMessage = message
	o.UpdatedAt = time.Now().UTC()
}

// ObservationComment belongs to exactly one observation through the parent's
// local id. The back-reference is the local id, never the server id, because
// the parent may not have a server identity yet when the comment is authored
// offline. ObservationServerID is filled in once the parent syncs.
type ObservationComment struct {
	LocalID             string     `json:"localId"`
	ServerID            *int64     `json:"serverId,omitempty"`
	ObservationLocalID  string     `json:"observationLocalId"`
	ObservationServerID *int64     `json:"observationServerId,omitempty"`
	Body                string     `json:"body"`
	Author              string     `json:"author"`
	SyncStatus          SyncStatus `json:"syncStatus"`
	SyncedAt            *time.Time `json:"syncedAt,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// NewObservationComment creates a locally-authored comment on an observation.
func NewObservationComment(parent *Observation, body, author string) (*ObservationComment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Message: "comment body cannot be empty"}
	}
	return &ObservationComment{
		LocalID:             uuid.New().String(),
		ObservationLocalID:  parent.LocalID,
		ObservationServerID: parent.ServerID,
		Body:                strings.TrimSpace(body),
		Author:              author,
		SyncStatus:          SyncStatusLocallyEdited,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// MarkUploading claims the comment for an upload pass.
func (c *ObservationComment) MarkUploading() bool {
	if !c.SyncStatus.CanUpload() {
		return false
	}
	c.SyncStatus = SyncStatusUploading
	return true
}

// MarkSynced records the server-assigned ids after a successful batch sync.
func (c *ObservationComment) MarkSynced(serverID int64, parentServerID *int64, at time.Time) {
	c.ServerID = &serverID
	if parentServerID != nil {
		c.ObservationServerID = parentServerID
	}
	c.SyncStatus = SyncStatusSynced
	c.ErrorMessage = ""
	t := at.UTC()
	c.SyncedAt = &t
}

// MarkError records a per-item or batch-level failure.
func (c *ObservationComment) MarkError(message string) {
	c.SyncStatus = SyncStatusError
	c.ErrorMessage = message
}
