// Package archive talks to the Wayback Machine: the snapshot replay endpoint
// and the availability lookup API.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures the archive client.
type Config struct {
	// ReplayRoot is the scheme and host serving /web/ replays.
	ReplayRoot string
	// AvailabilityURL is the availability lookup endpoint.
	AvailabilityURL string

	MaxConns       int
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers.
	ReadTimeout time.Duration
	// RequestTimeout bounds a whole request including the body.
	RequestTimeout time.Duration
	UserAgent      string
}

// DefaultConfig returns the settings used against the public archive.
func DefaultConfig() *Config {
	return &Config{
		ReplayRoot:      "http://web.archive.org",
		AvailabilityURL: "http://archive.org/wayback/available",
		MaxConns:        64,
		ConnectTimeout:  10 * time.Second,
		ReadTimeout:     60 * time.Second,
		RequestTimeout:  120 * time.Second,
		UserAgent:       "waybackproxy/1.0",
	}
}

// Response is a fetched snapshot.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FinalURL is the replay URL the archive ended up serving after its own
	// redirects.
	FinalURL string
}

// Replay parses FinalURL back into its timestamp, role and original URL.
func (r *Response) Replay(hosts ...string) (ReplayRef, bool) {
	u, err := url.Parse(r.FinalURL)
	if err != nil {
		return ReplayRef{}, false
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return ParseReplayURL(path, hosts...)
}

// Client fetches snapshots over a shared connection pool. It is safe for
// concurrent use.
type Client struct {
	http   *http.Client
	config *Config
	root   string
	hosts  []string
}

// NewClient creates a client. A nil config means DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	root, err := url.Parse(config.ReplayRoot)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid replay root %q", config.ReplayRoot)
	}
	if _, err := url.Parse(config.AvailabilityURL); err != nil {
		return nil, fmt.Errorf("invalid availability url: %w", err)
	}
	maxConns := config.MaxConns
	if maxConns <= 0 {
		maxConns = 64
	}

	hosts := append([]string{}, DefaultHosts...)
	if !hostIn(root.Host, hosts) {
		hosts = append(hosts, strings.ToLower(root.Host))
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
		DisableCompression:    true,
	}

	c := &Client{
		config: config,
		root:   strings.TrimRight(root.Scheme+"://"+root.Host, "/"),
		hosts:  hosts,
	}
	c.http = &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			// redirects leaving the archive are the capture's business, not ours
			if !hostIn(req.URL.Host, c.hosts) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// Root is the scheme and host replays are fetched from.
func (c *Client) Root() string { return c.root }

// Hosts returns the hostnames that serve this archive's replay namespace.
func (c *Client) Hosts() []string { return c.hosts }

// IsArchiveHost reports whether host (optionally with port) belongs to the
// archive.
func (c *Client) IsArchiveHost(host string) bool { return hostIn(host, c.hosts) }

// SnapshotURL builds the replay URL for original at timestamp.
func (c *Client) SnapshotURL(original, timestamp string, role Role) string {
	return c.root + ReplayPath(original, timestamp, role)
}

// FetchSnapshot GETs the replay of original at timestamp. 2xx, 3xx and 4xx
// answers are returned as-is; 5xx answers become *UpstreamError and
// transport failures wrap ErrUpstreamUnavailable.
func (c *Client) FetchSnapshot(ctx context.Context, original, timestamp string, role Role) (*Response, error) {
	target := c.SnapshotURL(original, timestamp, role)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logCall(target, time.Since(start), 0, err)
		return nil, &unavailableError{url: target, err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logCall(target, time.Since(start), resp.StatusCode, err)
		return nil, &unavailableError{url: target, err: err}
	}
	c.logCall(target, time.Since(start), resp.StatusCode, nil)

	if resp.StatusCode >= 500 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: target}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

type availabilityAnswer struct {
	URL               string `json:"url"`
	ArchivedSnapshots struct {
		Closest *struct {
			Status    string `json:"status"`
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// LookupAvailability asks the archive for the capture of original closest to
// targetDate and returns its 14-digit timestamp, or ErrNotFound.
func (c *Client) LookupAvailability(ctx context.Context, original, targetDate string) (string, error) {
	q := url.Values{}
	q.Set("url", original)
	q.Set("timestamp", targetDate)
	target := c.config.AvailabilityURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create availability request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logCall(target, time.Since(start), 0, err)
		return "", &unavailableError{url: target, err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	c.logCall(target, time.Since(start), resp.StatusCode, nil)

	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{StatusCode: resp.StatusCode, URL: target}
	}

	var answer availabilityAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return "", &unavailableError{url: target, err: err}
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}

	closest := answer.ArchivedSnapshots.Closest
	if closest == nil || !closest.Available {
		return "", ErrNotFound
	}
	if _, err := ParseTimestamp(closest.Timestamp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	return closest.Timestamp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept-Encoding", "identity")
}

func (c *Client) logCall(target string, duration time.Duration, status int, err error) {
	fields := []any{
		"url", target,
		"duration", duration,
		"status", status,
	}
	if err != nil {
		fields = append(fields, "error", err)
		slog.Warn("Archive request failed", fields...)
		return
	}
	slog.Debug("Archive request completed", fields...)
}
