package config

import (
	"fmt"
	"time"

	"waybackproxy/internal/archive"
)

// FirstCapture is the date of the archive's oldest capture.
var FirstCapture = time.Date(1996, time.May, 10, 0, 0, 0, 0, time.UTC)

// ValidateDate checks a target date in YYYY, YYYYMM, YYYYMMDD or longer
// archive form and requires it to fall between 1996 and now.
func ValidateDate(date string, now time.Time) error {
	ts, err := archive.PadTimestamp(date)
	if err != nil {
		return err
	}
	t, _ := archive.ParseTimestamp(ts)
	if t.Year() < FirstCapture.Year() || t.Year() > now.Year() {
		return fmt.Errorf("date %q outside 1996-%d", date, now.Year())
	}
	return nil
}
