package models

// PendingCounts aggregates how many records of each kind still need an
// upload. The counts are derived from the records' sync status and are used
// for UI badges and the pre-pull gate; the statuses themselves remain the
// authoritative state.
type PendingCounts struct {
	Readings     int `json:"readings"`
	Images       int `json:"images"`
	Observations int `json:"observations"`
	Comments     int `json:"comments"`
	Logs         int `json:"logs"`
}

// Total returns the combined pending count across categories. Logs are
// excluded: they are delivered silently and never block a pull.
func (c PendingCounts) Total() int {
	return c.Readings + c.Images + c.Observations + c.Comments
}

// HasPending reports whether any user-visible record still needs an upload.
func (c PendingCounts) HasPending() bool {
	return c.Total() > 0
}
