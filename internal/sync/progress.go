package sync

import "time"

// CategoryProgress is the running count for one record category inside an
// upload pass.
type CategoryProgress struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (c *CategoryProgress) success() {
	c.Attempted++
	c.Succeeded++
}

func (c *CategoryProgress) failure() {
	c.Attempted++
	c.Failed++
}

// ProgressReport is the aggregate outcome of one UploadAll pass. Per-record
// failures are captured on the records themselves; the report is the only
// failure signal that leaves the engine.
type ProgressReport struct {
	Readings     CategoryProgress `json:"readings"`
	Images       CategoryProgress `json:"images"`
	Observations CategoryProgress `json:"observations"`
	Comments     CategoryProgress `json:"comments"`
	Logs         CategoryProgress `json:"logs"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// TotalFailed returns the failure count across user-visible categories.
func (r *ProgressReport) TotalFailed() int {
	return r.Readings.Failed + r.Images.Failed + r.Observations.Failed + r.Comments.Failed
}

// TotalAttempted returns the attempt count across user-visible categories.
func (r *ProgressReport) TotalAttempted() int {
	return r.Readings.Attempted + r.Images.Attempted + r.Observations.Attempted + r.Comments.Attempted
}

// PullReport is the aggregate outcome of one download pull.
type PullReport struct {
	PeriodsPulled      int `json:"periodsPulled"`
	PeriodsThrottled   int `json:"periodsThrottled"`
	ReadingsCreated    int `json:"readingsCreated"`
	ReadingsRefreshed  int `json:"readingsRefreshed"`
	DirtySkipped       int `json:"dirtySkipped"`
	ObservationsMerged int `json:"observationsMerged"`
	CommentsMerged     int `json:"commentsMerged"`
	PeriodsClosed      int `json:"periodsClosed"`
	AssetsSwept        int `json:"assetsSwept"`
}
