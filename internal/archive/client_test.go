package archive

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReplayRoot = srv.URL
	cfg.AvailabilityURL = srv.URL + "/wayback/available"
	cfg.ReadTimeout = 2 * time.Second
	cfg.RequestTimeout = 5 * time.Second
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config uses defaults", config: nil},
		{name: "default config", config: DefaultConfig()},
		{name: "missing host", config: &Config{ReplayRoot: "/web"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("NewClient() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			if !c.IsArchiveHost("web.archive.org") {
				t.Error("web.archive.org should be an archive host")
			}
			if c.IsArchiveHost("example.com") {
				t.Error("example.com should not be an archive host")
			}
		})
	}
}

func TestSnapshotURL(t *testing.T) {
	c, err := NewClient(nil)
	if err != nil {
		t.Fatal(err)
	}
	got := c.SnapshotURL("http://example.com/", "20011025000000", RoleIdentity)
	expected := "http://web.archive.org/web/20011025000000id_/http://example.com/"
	if got != expected {
		t.Errorf("SnapshotURL() = %q, expected %q", got, expected)
	}
}

func TestFetchSnapshotFollowsArchiveRedirects(t *testing.T) {
	// ServeMux would clean the embedded "http://", so route by hand
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "identity" {
			t.Errorf("Accept-Encoding = %q, expected identity", r.Header.Get("Accept-Encoding"))
		}
		switch r.URL.Path {
		case "/web/20011025000000id_/http://example.com/":
			w.Header().Set("Location", "/web/20011103101010id_/http://example.com/")
			w.WriteHeader(http.StatusFound)
		case "/web/20011103101010id_/http://example.com/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>hello</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20011025000000", RoleIdentity)
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if string(resp.Body) != "<html>hello</html>" {
		t.Errorf("Body = %q", resp.Body)
	}
	ref, ok := resp.Replay(c.Hosts()...)
	if !ok {
		t.Fatalf("Replay() could not parse %q", resp.FinalURL)
	}
	if ref.Timestamp != "20011103101010" || ref.Role != RoleIdentity || ref.URL != "http://example.com/" {
		t.Errorf("Replay() = %+v", ref)
	}
}

func TestFetchSnapshotStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "missing"):
			http.Error(w, "not archived", http.StatusNotFound)
		case strings.Contains(r.URL.Path, "broken"):
			http.Error(w, "boom", http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	resp, err := c.FetchSnapshot(ctx, "http://example.com/missing", "20011025000000", RoleImage)
	if err != nil {
		t.Fatalf("404 should be returned as a response, got error %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, expected 404", resp.StatusCode)
	}

	_, err = c.FetchSnapshot(ctx, "http://example.com/broken", "20011025000000", RoleImage)
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("UpstreamError.StatusCode = %d", upErr.StatusCode)
	}
}

func TestFetchSnapshotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20011025000000", RoleIdentity)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestFetchSnapshotReusesConnections(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	c := newTestClient(t, srv)
	for i := 0; i < 5; i++ {
		if _, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20011025000000", RoleIdentity); err != nil {
			t.Fatalf("FetchSnapshot() error = %v", err)
		}
	}
	if n := conns.Load(); n != 1 {
		t.Errorf("opened %d connections for sequential requests, expected 1", n)
	}
}

func TestLookupAvailability(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		expected string
		err      error
	}{
		{
			name:     "closest snapshot",
			body:     `{"url":"example.com","archived_snapshots":{"closest":{"status":"200","available":true,"url":"http://web.archive.org/web/20011103101010/http://example.com/","timestamp":"20011103101010"}}}`,
			status:   http.StatusOK,
			expected: "20011103101010",
		},
		{
			name:   "nothing archived",
			body:   `{"url":"example.com","archived_snapshots":{}}`,
			status: http.StatusOK,
			err:    ErrNotFound,
		},
		{
			name:   "unavailable capture",
			body:   `{"archived_snapshots":{"closest":{"available":false,"timestamp":"20011103101010"}}}`,
			status: http.StatusOK,
			err:    ErrNotFound,
		},
		{
			name:   "malformed json",
			body:   `<html>rate limited</html>`,
			status: http.StatusOK,
			err:    ErrMalformedAnswer,
		},
		{
			name:   "bad timestamp",
			body:   `{"archived_snapshots":{"closest":{"available":true,"timestamp":"2001"}}}`,
			status: http.StatusOK,
			err:    ErrMalformedAnswer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/wayback/available" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				if r.URL.Query().Get("url") != "http://example.com/" || r.URL.Query().Get("timestamp") != "20011025" {
					t.Errorf("unexpected query %q", r.URL.RawQuery)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			got, err := c.LookupAvailability(context.Background(), "http://example.com/", "20011025")
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("LookupAvailability() error = %v, expected %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupAvailability() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("LookupAvailability() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestLookupAvailabilityServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.LookupAvailability(context.Background(), "http://example.com/", "20011025")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("server errors must not be reported as not found")
	}
}
