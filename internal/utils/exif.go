package utils

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Extracts the capture time from image EXIF data.
func CaptureTime(data []byte, mimeType string) (time.Time, error) {
	block := exifBlock(data, mimeType)
	if len(block) == 0 {
		return time.Time{}, fmt.Errorf("no EXIF data")
	}

	x, err := exif.Decode(bytes.NewReader(block))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	if dt, err := x.DateTime(); err == nil {
		return dt, nil
	}

	// Fall back to DateTimeOriginal, typically "2006:01:02 15:04:05"
	dateTag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, fmt.Errorf("no capture time: %w", err)
	}
	dateStr, err := dateTag.StringVal()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid capture time: %w", err)
	}
	return ParseTimestamp(dateStr)
}

// Parses ISO 8601 (with or without zone) and EXIF timestamps.
func ParseTimestamp(timestamp string) (time.Time, error) {
	formats := []string{
		time.RFC3339,          // "2006-01-02T15:04:05Z07:00" (with timezone)
		"2006:01:02 15:04:05", // EXIF format
		"2006-01-02T15:04:05", // ISO 8601 without timezone
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, timestamp)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", timestamp, lastErr)
}

// FormatTimestamp converts a timestamp to the "02/01/2006 15:04" form used
// in agency observations.
func FormatTimestamp(timestamp string) (string, error) {
	t, err := ParseTimestamp(timestamp)
	if err != nil {
		return "", err
	}
	return FormatCaptureTime(t), nil
}

func FormatCaptureTime(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}
