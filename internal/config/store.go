package config

import (
	"sync/atomic"
	"time"

	"waybackproxy/internal/archive"
)

// Snapshot is the immutable view of the settings a single request works
// with. Requests load it once and never see a half-applied change.
type Snapshot struct {
	// Date is the target date padded to a 14-digit timestamp.
	Date string
	// RawDate is the date as configured, passed verbatim to the
	// availability endpoint.
	RawDate string
	Target  time.Time
	// ToleranceDays bounds forward drift; negative means unlimited.
	ToleranceDays int

	WaybackAPI         bool
	QuickImages        QuickImages
	GeocitiesFix       bool
	ContentTypeCharset bool

	Whitelist *Whitelist
}

// ToleranceUnlimited reports whether any forward drift is accepted.
func (s *Snapshot) ToleranceUnlimited() bool { return s.ToleranceDays < 0 }

// Snapshot builds the per-request view of c. wl may be nil.
func (c Config) Snapshot(wl *Whitelist) (*Snapshot, error) {
	date, err := archive.PadTimestamp(c.Wayback.Date)
	if err != nil {
		return nil, err
	}
	target, err := archive.ParseTimestamp(date)
	if err != nil {
		return nil, err
	}
	if wl == nil {
		wl = &Whitelist{}
	}
	return &Snapshot{
		Date:               date,
		RawDate:            c.Wayback.Date,
		Target:             target,
		ToleranceDays:      c.Wayback.DateTolerance,
		WaybackAPI:         c.Wayback.API,
		QuickImages:        c.Wayback.QuickImages,
		GeocitiesFix:       c.Wayback.GeocitiesFix,
		ContentTypeCharset: c.Wayback.ContentTypeCharset,
		Whitelist:          wl,
	}, nil
}

// WithDate returns a copy of s targeting date.
func (s *Snapshot) WithDate(date string) (*Snapshot, error) {
	padded, err := archive.PadTimestamp(date)
	if err != nil {
		return nil, err
	}
	target, _ := archive.ParseTimestamp(padded)
	next := *s
	next.Date = padded
	next.RawDate = date
	next.Target = target
	return &next, nil
}

// Store publishes the current Snapshot to concurrent readers.
type Store struct {
	p atomic.Pointer[Snapshot]
}

func NewStore(s *Snapshot) *Store {
	st := &Store{}
	st.p.Store(s)
	return st
}

func (st *Store) Load() *Snapshot { return st.p.Load() }

// Swap installs s and returns the previous snapshot.
func (st *Store) Swap(s *Snapshot) *Snapshot { return st.p.Swap(s) }

// Update applies fn to the current snapshot until it is installed without a
// concurrent writer racing it. fn must not mutate its argument.
func (st *Store) Update(fn func(*Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	for {
		old := st.p.Load()
		next, err := fn(old)
		if err != nil {
			return nil, err
		}
		if st.p.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}
