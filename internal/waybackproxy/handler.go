package waybackproxy

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/config"
	"waybackproxy/internal/rewrite"
	"waybackproxy/internal/snapshot"
)

// request carries what one client request works with from admission to
// response.
type request struct {
	ctx context.Context
	cfg *config.Snapshot
	log *slog.Logger
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	// a single snapshot for the whole request
	cfg := s.store.Load()
	log := slog.With("request_id", uuid.NewString())
	w.Header().Set("Connection", "close")

	status := s.serve(w, r, &request{ctx: r.Context(), cfg: cfg, log: log})

	log.Info("Request served",
		"method", r.Method,
		"url", r.URL.String(),
		"status", status,
		"duration", time.Since(start),
	)
}

func (s *Service) serve(w http.ResponseWriter, r *http.Request, req *request) int {
	if r.Method != http.MethodGet {
		return writeError(w, errUnsupportedMethod)
	}
	target, user, err := requestTarget(r)
	if err != nil {
		return writeError(w, err)
	}

	if req.cfg.Whitelist.Match(target.Host) {
		return s.passthrough(w, r, target, req.log)
	}
	if req.cfg.GeocitiesFix {
		if loc, ok := geocitiesRedirect(target); ok {
			http.Redirect(w, r, loc, http.StatusFound)
			return http.StatusFound
		}
	}

	if ref, ok := s.preResolved(r, target, user); ok {
		return s.fetch(w, req, ref, false)
	}
	if s.archive.IsArchiveHost(target.Host) {
		// archive pages outside the replay namespace are served live
		return s.passthrough(w, r, target, req.log)
	}

	original := target.String()
	role := pickRole(target, r.Header.Get("Accept"))
	res, err := s.resolver.Resolve(req.ctx, original, role, req.cfg)
	if err != nil {
		return writeError(w, err)
	}
	req.log.Debug("Resolved snapshot", "url", original, "timestamp", res.Timestamp, "role", role, "source", res.Source)
	return s.fetch(w, req, archive.ReplayRef{Timestamp: res.Timestamp, Role: role, URL: original}, true)
}

// fetch retrieves ref from the archive and writes the answer. guess allows a
// single redirect guess when the capture is missing or is a redirect notice.
func (s *Service) fetch(w http.ResponseWriter, req *request, ref archive.ReplayRef, guess bool) int {
	resp, err := s.archive.FetchSnapshot(req.ctx, ref.URL, ref.Timestamp, ref.Role)
	if err != nil {
		s.stats.failures.Add(1)
		s.upstreamLog.Warn("Archive fetch failed", "url", ref.URL, "timestamp", ref.Timestamp, "error", err)
		return writeError(w, err)
	}

	served := ref.Timestamp
	if r, ok := resp.Replay(s.archive.Hosts()...); ok {
		served = r.Timestamp
		if !archive.SameOriginal(r.URL, ref.URL) {
			// the capture was a redirect the archive followed for us
			s.resolver.Remember(r.URL, ref.Role, r.Timestamp)
			req.log.Debug("Archive redirected", "from", ref.URL, "to", r.URL, "timestamp", r.Timestamp)
			return redirect(w, r.URL)
		}
	}

	ct := resp.Header.Get("Content-Type")
	notice := resp.StatusCode == http.StatusOK && rewrite.IsHTML(ct) && rewrite.IsCrawlRedirectNotice(resp.Body)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden || notice {
		if guess {
			if status, ok := s.guess(w, req, ref, resp); ok {
				return status
			}
		}
		if !notice {
			http.Error(w, "not archived: "+ref.URL, resp.StatusCode)
			return resp.StatusCode
		}
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return s.relayRedirect(w, resp)
	}

	if err := snapshot.CheckTolerance(served, req.cfg); err != nil {
		return writeError(w, err)
	}
	s.resolver.Remember(ref.URL, ref.Role, served)

	return s.write(w, req, resp, ref, served, false)
}

// guess tries the page's redirect destination once.
func (s *Service) guess(w http.ResponseWriter, req *request, ref archive.ReplayRef, resp *archive.Response) (int, bool) {
	dest, ok := rewrite.GuessRedirect(resp.Body, ref.URL, s.archive.Hosts())
	if !ok {
		return 0, false
	}
	req.log.Debug("Guessed redirect", "from", ref.URL, "to", dest)

	res, err := s.resolver.Resolve(req.ctx, dest, ref.Role, req.cfg)
	if err != nil {
		req.log.Debug("Guessed destination did not resolve", "url", dest, "error", err)
		return 0, false
	}
	destResp, err := s.archive.FetchSnapshot(req.ctx, dest, res.Timestamp, ref.Role)
	if err != nil || destResp.StatusCode != http.StatusOK {
		return 0, false
	}
	served := res.Timestamp
	if r, ok := destResp.Replay(s.archive.Hosts()...); ok {
		served = r.Timestamp
	}
	if err := snapshot.CheckTolerance(served, req.cfg); err != nil {
		return 0, false
	}
	s.resolver.Remember(dest, ref.Role, served)
	return s.write(w, req, destResp, archive.ReplayRef{Timestamp: served, Role: ref.Role, URL: dest}, served, true), true
}

// write sends a fetched capture, rewriting HTML.
func (s *Service) write(w http.ResponseWriter, req *request, resp *archive.Response, ref archive.ReplayRef, served string, moved bool) int {
	ct := resp.Header.Get("Content-Type")
	body := resp.Body
	rewritten := false

	h := w.Header()
	if rewrite.IsHTML(ct) {
		res, err := rewrite.Rewrite(body, ct, rewrite.Options{
			BaseURL:      ref.URL,
			Timestamp:    served,
			Mode:         assetMode(req.cfg.QuickImages),
			Charset:      req.cfg.ContentTypeCharset,
			ArchiveRoot:  s.archive.Root(),
			ArchiveHosts: s.archive.Hosts(),
			AbsoluteRefs: moved,
		})
		if err != nil {
			req.log.Warn("Rewrite failed, relaying raw body", "url", ref.URL, "error", err)
			ct = rewrite.StripCharset(ct, req.cfg.ContentTypeCharset)
		} else {
			body, ct, rewritten = res.Body, res.ContentType, true
			for _, a := range res.Assets {
				s.resolver.Remember(a.URL, a.Role, a.Timestamp)
			}
		}
	} else {
		ct = rewrite.StripCharset(ct, req.cfg.ContentTypeCharset)
	}

	if ct != "" {
		h.Set("Content-Type", ct)
	}
	if lm := resp.Header.Get("X-Archive-Orig-Last-Modified"); lm != "" {
		h.Set("Last-Modified", lm)
	}
	h.Set("X-Wayback-Timestamp", served)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)

	s.stats.Observe(len(body), rewritten)
	return resp.StatusCode
}

// relayRedirect passes on a redirect that leaves the archive, with replay
// locations laundered back to the original URL.
func (s *Service) relayRedirect(w http.ResponseWriter, resp *archive.Response) int {
	loc := resp.Header.Get("Location")
	if r, ok := archive.ParseReplayURL(loc, s.archive.Hosts()...); ok {
		loc = r.URL
	}
	if loc == "" {
		http.Error(w, "redirect without location", http.StatusBadGateway)
		return http.StatusBadGateway
	}
	w.Header().Set("Location", loc)
	w.WriteHeader(resp.StatusCode)
	return resp.StatusCode
}

func redirect(w http.ResponseWriter, loc string) int {
	w.Header().Set("Location", loc)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusFound)
	_, _ = w.Write([]byte("moved to " + loc + "\n"))
	return http.StatusFound
}

func assetMode(q config.QuickImages) rewrite.AssetMode {
	switch q {
	case config.QuickImagesOn:
		return rewrite.ModeQuickImages
	case config.QuickImagesAuth:
		return rewrite.ModeQuickImagesAuth
	}
	return rewrite.ModeStandard
}
