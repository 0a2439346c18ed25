package models

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is a write-once diagnostic record captured on the device. Entries
// are delivered best-effort on upload and hard-deleted locally once the
// server confirms receipt; they are the only entity without soft deletion.
type LogEntry struct {
	LocalID      string    `json:"localId"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	Context      string    `json:"context,omitempty"`
	DeviceID     string    `json:"deviceId"`
	Status       LogStatus `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewLogEntry creates a pending diagnostic entry.
func NewLogEntry(level, message, context, deviceID string) *LogEntry {
	return &LogEntry{
		LocalID:   uuid.New().String(),
		Level:     level,
		Message:   message,
		Context:   context,
		DeviceID:  deviceID,
		Status:    LogStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
