package models

import (
	"time"

	"github.com/google/uuid"
)

// ReadingImage is one captured photo attached to a reading.
//
// An image is immutable once captured, so it has no locally_edited state: it
// starts at uploading and moves to synced or error. The upload is gated on the
// parent reading having a backend reading id.
type ReadingImage struct {
	LocalID          string     `json:"localId"`
	ReadingLocalID   string     `json:"readingLocalId"`
	ReadingServerID  int64      `json:"readingServerId"`
	BackendReadingID *int64     `json:"backendReadingId,omitempty"`
	StoredPath       string     `json:"storedPath"`
	FileSize         int64      `json:"fileSize"`
	MimeType         string     `json:"mimeType"`
	RemoteURL        string     `json:"remoteUrl,omitempty"`
	SyncStatus       SyncStatus `json:"syncStatus"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	CapturedAt       time.Time  `json:"capturedAt"`
	Deleted          bool       `json:"-"`
}

// NewReadingImage creates a captured image pending upload.
func NewReadingImage(reading *Reading, storedPath string, fileSize int64, mimeType string, capturedAt time.Time) *ReadingImage {
	return &ReadingImage{
		LocalID:          uuid.New().String(),
		ReadingLocalID:   reading.LocalID,
		ReadingServerID:  reading.ServerID,
		BackendReadingID: reading.BackendReadingID,
		StoredPath:       storedPath,
		FileSize:         fileSize,
		MimeType:         mimeType,
		SyncStatus:       SyncStatusUploading,
		CapturedAt:       capturedAt.UTC(),
	}
}

// CanAttach reports whether the remote attach endpoint can be called.
func (i *ReadingImage) CanAttach() bool {
	return i.BackendReadingID != nil
}

// MarkSynced records a successful attach and the server-hosted URL.
func (i *ReadingImage) MarkSynced(remoteURL string) {
	i.SyncStatus = SyncStatusSynced
	i.RemoteURL = remoteURL
	i.ErrorMessage = ""
}

// MarkError records a failed attach attempt.
func (i *ReadingImage) MarkError(message string) {
	i.SyncStatus = SyncStatusError
	i.ErrorMessage = message
}
