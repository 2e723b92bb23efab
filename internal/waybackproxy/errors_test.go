package waybackproxy

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/snapshot"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"method", errUnsupportedMethod, http.StatusNotImplemented},
		{"scheme", errUnsupportedScheme, http.StatusNotImplemented},
		{"malformed", fmt.Errorf("%w: missing host", errMalformedRequest), http.StatusBadRequest},
		{"tolerance", &snapshot.ToleranceError{Timestamp: "20200201000000", Target: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Days: 10}, http.StatusPreconditionFailed},
		{"not found", snapshot.ErrNotFound, http.StatusNotFound},
		{"archive not found", archive.ErrNotFound, http.StatusNotFound},
		{"upstream 5xx", &archive.UpstreamError{StatusCode: 503, URL: "http://web.archive.org/web/x"}, http.StatusBadGateway},
		{"unavailable", fmt.Errorf("fetch: %w", archive.ErrUpstreamUnavailable), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			if status != tt.expected {
				t.Errorf("statusFor(%v) = %d, expected %d", tt.err, status, tt.expected)
			}
			if msg == "" {
				t.Error("statusFor() returned an empty message")
			}
		})
	}
}

func TestCopyHeadersDropsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "text/html")
	src.Set("Connection", "keep-alive, X-Secret")
	src.Set("X-Secret", "1")
	src.Set("Keep-Alive", "timeout=5")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Proxy-Authorization", "Basic Zm9v")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	dst := http.Header{}
	copyHeaders(dst, src)

	for _, h := range []string{"Connection", "X-Secret", "Keep-Alive", "Transfer-Encoding", "Proxy-Authorization"} {
		if dst.Get(h) != "" {
			t.Errorf("%s should not be copied", h)
		}
	}
	if dst.Get("Content-Type") != "text/html" {
		t.Error("Content-Type not copied")
	}
	if got := dst.Values("Set-Cookie"); len(got) != 2 {
		t.Errorf("Set-Cookie = %v, expected both values", got)
	}
}

func TestStatsCollector(t *testing.T) {
	s := newStatsCollector()
	if got := s.Snapshot(); got.Responses != 0 || got.MinBytes != 0 {
		t.Errorf("empty Snapshot() = %+v", got)
	}
	s.Observe(100, true)
	s.Observe(300, false)
	s.Observe(-5, false)
	s.passthrough.Add(2)

	got := s.Snapshot()
	if got.Responses != 3 || got.Rewritten != 1 || got.Passthrough != 2 {
		t.Errorf("counters = %+v", got)
	}
	if got.MinBytes != 0 || got.MaxBytes != 300 || got.AvgBytes != 400/3 {
		t.Errorf("sizes = %+v", got)
	}
}

func TestRateLimitedLoggerSuppresses(t *testing.T) {
	l := newRateLimitedLogger(time.Hour)
	for i := 0; i < 5; i++ {
		l.Warn("Archive fetch failed", "attempt", i)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.suppressed != 4 {
		t.Errorf("suppressed = %d, expected 4", l.suppressed)
	}
}
