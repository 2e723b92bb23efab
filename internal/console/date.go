// Package console is the terminal front panel: a date selector that retargets
// the running proxy.
package console

import (
	"fmt"
	"time"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/config"
)

// Segment is the part of the date the arrow keys change.
type Segment int

const (
	SegmentYear Segment = iota
	SegmentMonth
	SegmentDay
)

func (s Segment) String() string {
	switch s {
	case SegmentMonth:
		return "M"
	case SegmentDay:
		return "D"
	}
	return "Y"
}

// DateSelector holds a date between the first archive capture and today.
type DateSelector struct {
	year, month, day int
	segment          Segment
	now              func() time.Time
}

// NewDateSelector starts at date (YYYY, YYYYMM or YYYYMMDD and longer
// timestamps). now may be nil.
func NewDateSelector(date string, now func() time.Time) (*DateSelector, error) {
	if now == nil {
		now = time.Now
	}
	padded, err := archive.PadTimestamp(date)
	if err != nil {
		return nil, err
	}
	t, err := archive.ParseTimestamp(padded)
	if err != nil {
		return nil, err
	}
	s := &DateSelector{year: t.Year(), month: int(t.Month()), day: t.Day(), now: now}
	s.clamp()
	return s, nil
}

func (s *DateSelector) Segment() Segment { return s.segment }

// NextSegment cycles Y, M, D.
func (s *DateSelector) NextSegment() Segment {
	s.segment = (s.segment + 1) % 3
	return s.segment
}

func (s *DateSelector) PrevSegment() Segment {
	s.segment = (s.segment + 2) % 3
	return s.segment
}

func (s *DateSelector) Increment() { s.change(1) }
func (s *DateSelector) Decrement() { s.change(-1) }

func (s *DateSelector) change(delta int) {
	switch s.segment {
	case SegmentYear:
		s.year += delta
	case SegmentMonth:
		s.month += delta
	case SegmentDay:
		s.day += delta
	}
	s.clamp()
}

// clamp keeps the date a real calendar day within the archive's range.
// Segments saturate rather than wrap.
func (s *DateSelector) clamp() {
	today := s.now()
	first := config.FirstCapture

	s.year = between(s.year, first.Year(), today.Year())

	minMonth, maxMonth := 1, 12
	if s.year == first.Year() {
		minMonth = int(first.Month())
	}
	if s.year == today.Year() {
		maxMonth = int(today.Month())
	}
	s.month = between(s.month, minMonth, maxMonth)

	minDay, maxDay := 1, daysIn(s.year, time.Month(s.month))
	if s.year == first.Year() && s.month == int(first.Month()) {
		minDay = first.Day()
	}
	if s.year == today.Year() && s.month == int(today.Month()) {
		maxDay = today.Day()
	}
	s.day = between(s.day, minDay, maxDay)
}

func between(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Wayback returns the date as YYYYMMDD.
func (s *DateSelector) Wayback() string {
	return fmt.Sprintf("%04d%02d%02d", s.year, s.month, s.day)
}

// Parts returns the year, month and day as displayed.
func (s *DateSelector) Parts() [3]string {
	return [3]string{
		fmt.Sprintf("%04d", s.year),
		fmt.Sprintf("%02d", s.month),
		fmt.Sprintf("%02d", s.day),
	}
}

// String renders the date with the selected segment in brackets, e.g.
// "2001-[10]-25".
func (s *DateSelector) String() string {
	p := s.Parts()
	p[s.segment] = "[" + p[s.segment] + "]"
	return p[0] + "-" + p[1] + "-" + p[2]
}
