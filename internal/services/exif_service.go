package services

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// CaptureMetadata is the subset of EXIF data the engine cares about for a
// field capture: how to orient the pixels and when the photo was taken.
type CaptureMetadata struct {
	Orientation int
	DateTaken   *time.Time
}

// ExtractCaptureMetadata reads EXIF from image bytes. Missing or unreadable
// EXIF is not an error; defaults are returned instead.
func ExtractCaptureMetadata(data []byte) *CaptureMetadata {
	result := &CaptureMetadata{Orientation: 1}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return result
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if val, err := tag.Int(0); err == nil && val >= 1 && val <= 8 {
			result.Orientation = val
		}
	}

	if dt, err := x.DateTime(); err == nil {
		utc := dt.UTC()
		result.DateTaken = &utc
	}

	return result
}
