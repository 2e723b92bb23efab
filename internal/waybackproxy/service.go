// Package waybackproxy serves HTTP proxy requests from archived snapshots.
package waybackproxy

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/config"
	"waybackproxy/internal/snapshot"
)

type Options struct {
	// SweepEvery drops expired resolver entries periodically; 0 disables.
	SweepEvery time.Duration
	// StatsEvery logs a stats line periodically; 0 disables.
	StatsEvery time.Duration
	// OriginTimeout bounds whitelisted requests to live origins.
	OriginTimeout time.Duration
}

// Service is the shared state behind every request: settings, archive
// client, resolver caches and the live-origin client.
type Service struct {
	store    *config.Store
	archive  *archive.Client
	resolver *snapshot.Resolver
	origin   *http.Client

	stopCh chan struct{}
	wg     sync.WaitGroup

	upstreamLog *rateLimitedLogger
	stats       *statsCollector
}

func NewService(store *config.Store, client *archive.Client, resolver *snapshot.Resolver, opts Options) *Service {
	if opts.OriginTimeout <= 0 {
		opts.OriginTimeout = 30 * time.Second
	}
	s := &Service{
		store:    store,
		archive:  client,
		resolver: resolver,
		origin: &http.Client{
			Timeout: opts.OriginTimeout,
			Transport: &http.Transport{
				Proxy:               nil,
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		stopCh:      make(chan struct{}),
		upstreamLog: newRateLimitedLogger(time.Minute),
		stats:       newStatsCollector(),
	}

	if opts.StatsEvery > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(opts.StatsEvery)
		}()
	}
	if opts.SweepEvery > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sweepLoop(opts.SweepEvery)
		}()
	}
	return s
}

// Close stops the background loops.
func (s *Service) Close() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Resolver exposes the shared resolver, for purging after a date change.
func (s *Service) Resolver() *snapshot.Resolver { return s.resolver }

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.logStats()
		}
	}
}

func (s *Service) logStats() {
	ss := s.stats.Snapshot()
	rs := s.resolver.Stats()
	fields := []any{
		"snapshots", rs.Snapshots,
		"availability", rs.Availability,
		"disk", rs.Disk,
		"hits", rs.Hits,
		"misses", rs.Misses,
		"lookups", rs.Lookups,
		"responses", ss.Responses,
		"rewritten", ss.Rewritten,
		"passthrough", ss.Passthrough,
		"failures", ss.Failures,
		"resp", config.FormatBytes(ss.MinBytes) + "/" + config.FormatBytes(ss.AvgBytes) + "/" + config.FormatBytes(ss.MaxBytes),
	}
	if rss, ok := processRSSBytes(); ok {
		fields = append(fields, "rss", config.FormatBytes(rss))
	}
	slog.Info("Stats", fields...)
}

func (s *Service) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if n := s.resolver.Sweep(); n > 0 {
				slog.Debug("Swept expired resolver entries", "count", n)
			}
		}
	}
}
