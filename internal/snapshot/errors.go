package snapshot

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the archive has no capture of the URL at all.
	ErrNotFound = errors.New("snapshot not found")

	// ErrToleranceViolation is matched by *ToleranceError.
	ErrToleranceViolation = errors.New("snapshot outside date tolerance")
)

// ToleranceError reports a snapshot captured too long after the target date.
type ToleranceError struct {
	Timestamp string
	Target    time.Time
	Days      int
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("snapshot %s is more than %d days after %s",
		e.Timestamp, e.Days, e.Target.Format("2006-01-02"))
}

func (e *ToleranceError) Is(target error) bool { return target == ErrToleranceViolation }
