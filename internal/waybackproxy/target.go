package waybackproxy

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"waybackproxy/internal/archive"
)

// requestTarget returns the URL a proxy request asks for, from the
// absolute-form request line or from the path plus Host header. Userinfo is
// moved out of the returned URL.
func requestTarget(r *http.Request) (*url.URL, *url.Userinfo, error) {
	var u url.URL
	if r.URL.IsAbs() {
		u = *r.URL
	} else {
		host := r.Host
		if host == "" {
			return nil, nil, fmt.Errorf("%w: missing host", errMalformedRequest)
		}
		u = url.URL{
			Scheme:   "http",
			Host:     host,
			Path:     r.URL.Path,
			RawPath:  r.URL.RawPath,
			RawQuery: r.URL.RawQuery,
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" {
		return nil, nil, errUnsupportedScheme
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("%w: missing host", errMalformedRequest)
	}
	archive.Canonicalize(&u)
	u.Fragment, u.RawFragment = "", ""
	user := u.User
	u.User = nil
	return &u, user, nil
}

var imageExts = map[string]bool{
	".gif": true, ".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".ico": true, ".xbm": true, ".tif": true, ".tiff": true, ".webp": true,
	".svg": true,
}

// pickRole chooses how the archive should serve target, from its extension
// and then the client's Accept header.
func pickRole(target *url.URL, accept string) archive.Role {
	switch ext := strings.ToLower(path.Ext(target.Path)); {
	case imageExts[ext]:
		return archive.RoleImage
	case ext == ".js":
		return archive.RoleScript
	case ext == ".css":
		return archive.RoleStyle
	}
	accept = strings.ToLower(accept)
	switch {
	case strings.HasPrefix(accept, "image/"):
		return archive.RoleImage
	case strings.HasPrefix(accept, "text/css"):
		return archive.RoleStyle
	case strings.Contains(accept, "javascript"):
		return archive.RoleScript
	}
	return archive.RoleIdentity
}

// preResolved extracts a capture chosen by a previously rewritten page: a
// request addressed to the archive's replay namespace, or timestamp and role
// carried as credentials.
func (s *Service) preResolved(r *http.Request, target *url.URL, user *url.Userinfo) (archive.ReplayRef, bool) {
	if s.archive.IsArchiveHost(target.Host) {
		p := target.EscapedPath()
		if target.RawQuery != "" {
			p += "?" + target.RawQuery
		}
		ref, ok := archive.ParseReplayURL(p, s.archive.Hosts()...)
		if ok && ref.Role == "" {
			ref.Role = archive.RoleIdentity
		}
		return ref, ok
	}

	ts, role := "", ""
	if user != nil {
		ts = user.Username()
		role, _ = user.Password()
	} else if u, p, ok := r.BasicAuth(); ok {
		ts, role = u, p
	}
	if ts == "" {
		return archive.ReplayRef{}, false
	}
	if _, err := archive.PadTimestamp(ts); err != nil || !archive.Role(role).Valid() {
		return archive.ReplayRef{}, false
	}
	return archive.ReplayRef{Timestamp: ts, Role: archive.Role(role), URL: target.String()}, true
}
