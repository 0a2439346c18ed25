package models

import (
	"fmt"
	"time"
)

// Period identifies one billing period (month/year).
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Key returns the canonical storage key for the period, e.g. "2026-08".
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) String() string { return p.Key() }

// ParsePeriod parses a period key like "2026-08".
func ParsePeriod(key string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(key, "%d-%d", &p.Year, &p.Month); err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", key, err)
	}
	if p.Month < 1 || p.Month > 12 || p.Year < 2000 {
		return Period{}, fmt.Errorf("invalid period %q", key)
	}
	return p, nil
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Month == 0 && p.Year == 0 }

// PeriodSummary is the read-only aggregate kept for a closed period after its
// row-level data has been evicted from the detailed store.
type PeriodSummary struct {
	Period
	Closed           bool      `json:"closed"`
	ReadingCount     int       `json:"readingCount"`
	CompletedCount   int       `json:"completedCount"`
	TotalConsumption float64   `json:"totalConsumption"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PeriodSyncState tracks when a period was last fully pulled, backing the
// pull throttle.
type PeriodSyncState struct {
	Period
	LastPullAt *time.Time `json:"lastPullAt,omitempty"`
}
