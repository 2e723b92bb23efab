// Package snapshot decides which archived capture answers a request and keeps
// a page and its assets pinned to the same capture.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/config"
	"waybackproxy/internal/lru"
)

// Lookuper asks the archive for the capture closest to a date.
type Lookuper interface {
	LookupAvailability(ctx context.Context, original, targetDate string) (string, error)
}

// Source names where a resolved timestamp came from.
type Source string

const (
	SourceCache        Source = "cache"
	SourceAvailability Source = "availability"
	SourceTargetDate   Source = "date"
)

// Resolved is the capture chosen for a URL and role.
type Resolved struct {
	URL       string
	Timestamp string
	Role      archive.Role
	Source    Source
}

type snapKey struct {
	url  string
	role archive.Role
}

type availKey struct {
	url  string
	date string
}

func (k availKey) String() string { return k.date + " " + k.url }

type Options struct {
	Capacity int
	TTL      time.Duration
	Clock    lru.Clock
	// Disk is an optional persistent tier for availability answers.
	Disk *DiskStore
}

// Stats is a point-in-time view of the resolver caches.
type Stats struct {
	Snapshots    int
	Availability int
	Disk         int
	Hits         uint64
	Misses       uint64
	Lookups      uint64
}

// Resolver maps (URL, role) to a capture timestamp. It is safe for concurrent
// use.
type Resolver struct {
	lookup    Lookuper
	snapshots *lru.Cache[snapKey, string]
	avail     *lru.Cache[availKey, Answer]
	disk      *DiskStore

	hits    atomic.Uint64
	misses  atomic.Uint64
	lookups atomic.Uint64
}

func NewResolver(lookup Lookuper, opts Options) *Resolver {
	return &Resolver{
		lookup:    lookup,
		snapshots: lru.New[snapKey, string](opts.Capacity, opts.TTL, opts.Clock),
		avail:     lru.New[availKey, Answer](opts.Capacity, opts.TTL, opts.Clock),
		disk:      opts.Disk,
	}
}

// Resolve returns the timestamp to fetch url with role under cfg. Errors are
// ErrNotFound and *ToleranceError.
//
// A live cache hit is returned as-is, even when cfg targets another date than
// the one it was resolved under; callers changing the date call Purge.
func (r *Resolver) Resolve(ctx context.Context, url string, role archive.Role, cfg *config.Snapshot) (Resolved, error) {
	key := snapKey{url: url, role: role}
	if ts, ok := r.snapshots.Get(key); ok {
		r.hits.Add(1)
		return Resolved{URL: url, Timestamp: ts, Role: role, Source: SourceCache}, nil
	}
	r.misses.Add(1)

	candidate, source := cfg.Date, SourceTargetDate
	cacheable := true
	if cfg.WaybackAPI {
		ans, err := r.availability(ctx, url, cfg)
		switch {
		case err != nil:
			// the archive can still redirect a plain date request to its
			// nearest capture
			slog.Warn("Availability lookup failed, using target date", "url", url, "error", err)
			cacheable = false
		case !ans.Found:
			return Resolved{}, ErrNotFound
		default:
			candidate, source = ans.Timestamp, SourceAvailability
		}
	}

	if err := CheckTolerance(candidate, cfg); err != nil {
		return Resolved{}, err
	}
	if cacheable {
		r.snapshots.Put(key, candidate)
	}
	return Resolved{URL: url, Timestamp: candidate, Role: role, Source: source}, nil
}

func (r *Resolver) availability(ctx context.Context, url string, cfg *config.Snapshot) (Answer, error) {
	key := availKey{url: url, date: cfg.Date}
	if ans, ok := r.avail.Get(key); ok {
		return ans, nil
	}
	if r.disk != nil {
		if ans, ok := r.disk.Get(key.String()); ok {
			r.avail.Put(key, ans)
			return ans, nil
		}
	}

	r.lookups.Add(1)
	ts, err := r.lookup.LookupAvailability(ctx, url, cfg.RawDate)
	var ans Answer
	switch {
	case err == nil:
		ans = Answer{Timestamp: ts, Found: true}
	case errors.Is(err, archive.ErrNotFound):
		ans = Answer{}
	default:
		return Answer{}, err
	}
	r.avail.Put(key, ans)
	if r.disk != nil {
		r.disk.PutAsync(key.String(), ans)
	}
	return ans, nil
}

// Remember pins url and role to ts. It is used once a fetch reveals the
// capture actually served and for the assets of a page.
func (r *Resolver) Remember(url string, role archive.Role, ts string) {
	if ts == "" {
		return
	}
	r.snapshots.Put(snapKey{url: url, role: role}, ts)
}

// CheckTolerance reports a *ToleranceError when ts lies more than the
// configured number of days after the target date. Earlier captures always
// pass.
func CheckTolerance(ts string, cfg *config.Snapshot) error {
	if cfg.ToleranceUnlimited() {
		return nil
	}
	padded, err := archive.PadTimestamp(ts)
	if err != nil {
		// archive-provided values that do not parse cannot be judged
		return nil
	}
	t, _ := archive.ParseTimestamp(padded)
	limit := cfg.Target.AddDate(0, 0, cfg.ToleranceDays)
	if t.After(limit) {
		return &ToleranceError{Timestamp: padded, Target: cfg.Target, Days: cfg.ToleranceDays}
	}
	return nil
}

// Purge drops every cached resolution, used when the target date changes.
func (r *Resolver) Purge() {
	r.snapshots.Clear()
	r.avail.Clear()
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Resolver) Sweep() int {
	return r.snapshots.Sweep() + r.avail.Sweep()
}

func (r *Resolver) Stats() Stats {
	s := Stats{
		Snapshots:    r.snapshots.Len(),
		Availability: r.avail.Len(),
		Hits:         r.hits.Load(),
		Misses:       r.misses.Load(),
		Lookups:      r.lookups.Load(),
	}
	if r.disk != nil {
		s.Disk = r.disk.Len()
	}
	return s
}
