package waybackproxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// passthrough relays r to the live origin and streams the answer back as-is.
func (s *Service) passthrough(w http.ResponseWriter, r *http.Request, target *url.URL, log *slog.Logger) int {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return http.StatusBadGateway
	}
	copyHeaders(req.Header, r.Header)
	req.Host = target.Host

	resp, err := s.origin.Do(req)
	if err != nil {
		s.upstreamLog.Warn("Origin request failed", "url", target.String(), "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return http.StatusBadGateway
	}
	defer func() { _ = resp.Body.Close() }()

	copyHeaders(w.Header(), resp.Header)
	w.Header().Set("Connection", "close")
	w.WriteHeader(resp.StatusCode)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		log.Debug("Origin body copy interrupted", "url", target.String(), "bytes", n, "error", err)
	}
	s.stats.passthrough.Add(1)
	return resp.StatusCode
}

// copyHeaders copies src into dst without hop-by-hop headers, including
// those named by src's Connection header.
func copyHeaders(dst, src http.Header) {
	skip := map[string]bool{"Host": true}
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				skip[http.CanonicalHeaderKey(f)] = true
			}
		}
	}
	for k, vs := range src {
		if skip[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
