package models

// SyncStatus is the per-record synchronization lifecycle state.
//
// The engine owns every transition; UI layers only request them through the
// typed operations on the sync engine and read the current value back.
type SyncStatus string

const (
	// SyncStatusSynced means the record matches the server's copy.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusLocallyEdited means the record has unsent local changes.
	SyncStatusLocallyEdited SyncStatus = "locally_edited"
	// SyncStatusUploading means an upload for the record is in flight.
	SyncStatusUploading SyncStatus = "uploading"
	// SyncStatusError means the last upload attempt failed. Always retryable.
	SyncStatusError SyncStatus = "error"
)

// IsDirty reports whether the record carries unresolved local state. A dirty
// record must never be overwritten by a download.
func (s SyncStatus) IsDirty() bool {
	return s != SyncStatusSynced
}

// CanUpload reports whether an upload pass should pick the record up.
func (s SyncStatus) CanUpload() bool {
	return s == SyncStatusLocallyEdited || s == SyncStatusError
}

// CanMarkEdited reports whether a user mutation should change the status.
// A record that is already dirty or in flight keeps its current status.
func (s SyncStatus) CanMarkEdited() bool {
	return s == SyncStatusSynced
}

// LogStatus is the lifecycle state of a diagnostic log entry. Logs are
// write-once and hard-deleted after confirmed delivery, so they never
// reach a synced state locally.
type LogStatus string

const (
	LogStatusPending   LogStatus = "pending"
	LogStatusUploading LogStatus = "uploading"
	LogStatusSynced    LogStatus = "synced"
	LogStatusError     LogStatus = "error"
)

// CanUpload reports whether a log entry is still awaiting delivery.
func (s LogStatus) CanUpload() bool {
	return s == LogStatusPending || s == LogStatusError
}
