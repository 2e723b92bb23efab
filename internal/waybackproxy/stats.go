package waybackproxy

import (
	"math"
	"sync/atomic"
)

// statsCollector tracks sizes of bodies served from the archive.
type statsCollector struct {
	responses  atomic.Uint64
	totalBytes atomic.Uint64
	minBytes   atomic.Uint64
	maxBytes   atomic.Uint64

	rewritten   atomic.Uint64
	passthrough atomic.Uint64
	failures    atomic.Uint64
}

func newStatsCollector() *statsCollector {
	s := &statsCollector{}
	s.minBytes.Store(math.MaxUint64)
	return s
}

func (s *statsCollector) Observe(n int, rewritten bool) {
	if n < 0 {
		n = 0
	}
	v := uint64(n)
	s.responses.Add(1)
	s.totalBytes.Add(v)
	if rewritten {
		s.rewritten.Add(1)
	}

	for {
		cur := s.minBytes.Load()
		if v >= cur || s.minBytes.CompareAndSwap(cur, v) {
			break
		}
	}
	for {
		cur := s.maxBytes.Load()
		if v <= cur || s.maxBytes.CompareAndSwap(cur, v) {
			break
		}
	}
}

type statsSnapshot struct {
	Responses   uint64
	Rewritten   uint64
	Passthrough uint64
	Failures    uint64
	TotalBytes  uint64
	MinBytes    uint64
	MaxBytes    uint64
	AvgBytes    uint64
}

func (s *statsCollector) Snapshot() statsSnapshot {
	out := statsSnapshot{
		Responses:   s.responses.Load(),
		Rewritten:   s.rewritten.Load(),
		Passthrough: s.passthrough.Load(),
		Failures:    s.failures.Load(),
		TotalBytes:  s.totalBytes.Load(),
		MaxBytes:    s.maxBytes.Load(),
	}
	if out.Responses == 0 {
		return out
	}
	if minv := s.minBytes.Load(); minv != math.MaxUint64 {
		out.MinBytes = minv
	}
	out.AvgBytes = out.TotalBytes / out.Responses
	return out
}
