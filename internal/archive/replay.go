package archive

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Role is the two-letter flag appended to a snapshot timestamp. It tells the
// archive how to serve the capture.
type Role string

const (
	// RoleIdentity serves the capture unmodified, without replay
	// instrumentation.
	RoleIdentity Role = "id_"
	RoleImage    Role = "im_"
	RoleScript   Role = "js_"
	RoleStyle    Role = "cs_"
)

// Valid reports whether r looks like an archive role flag.
func (r Role) Valid() bool {
	return len(r) == 3 && r[2] == '_' && isLower(r[0]) && isLower(r[1])
}

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }

// TimestampLayout is the archive's 14-digit capture timestamp.
const TimestampLayout = "20060102150405"

// PadTimestamp expands a partial date (YYYY, YYYYMM, YYYYMMDD, ...) into a
// full 14-digit timestamp. Missing month and day become 01, missing time
// digits become 0.
func PadTimestamp(date string) (string, error) {
	if len(date) < 4 || len(date) > 14 || !allDigits(date) {
		return "", fmt.Errorf("invalid archive date %q", date)
	}
	ts := date
	switch len(date) {
	case 4:
		ts += "0101"
	case 6:
		ts += "01"
	case 5, 7:
		return "", fmt.Errorf("invalid archive date %q", date)
	}
	ts += strings.Repeat("0", 14-len(ts))
	if _, err := ParseTimestamp(ts); err != nil {
		return "", err
	}
	return ts, nil
}

// ParseTimestamp parses a 14-digit archive timestamp as UTC.
func ParseTimestamp(ts string) (time.Time, error) {
	if len(ts) != 14 || !allDigits(ts) {
		return time.Time{}, fmt.Errorf("invalid archive timestamp %q", ts)
	}
	t, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid archive timestamp %q: %w", ts, err)
	}
	return t, nil
}

// FormatTimestamp renders t as a 14-digit archive timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// DefaultHosts are the hostnames that serve the archive's replay namespace.
var DefaultHosts = []string{"web.archive.org", "archive.org", "wayback.archive.org"}

// ReplayRef is a reference into the replay namespace,
// /web/<timestamp><role>/<original url>.
type ReplayRef struct {
	Timestamp string
	Role      Role
	URL       string
}

var replayPathRe = regexp.MustCompile(`^/web/([0-9]{1,14})([a-z]{2}_)?/(.+)$`)

// ParseReplayURL recognises ref as an archive replay reference. Root-relative
// references are always accepted; absolute and protocol-relative references
// only when their host is one of hosts (or DefaultHosts when none are given).
// The returned URL is the normalised original URL.
func ParseReplayURL(ref string, hosts ...string) (ReplayRef, bool) {
	ref = strings.TrimSpace(ref)
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}

	path := ref
	if !strings.HasPrefix(ref, "/web/") {
		rest, ok := stripScheme(ref)
		if !ok {
			return ReplayRef{}, false
		}
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return ReplayRef{}, false
		}
		if !hostIn(rest[:i], hosts) {
			return ReplayRef{}, false
		}
		path = rest[i:]
	}

	m := replayPathRe.FindStringSubmatch(path)
	if m == nil {
		return ReplayRef{}, false
	}
	original, ok := NormalizeOriginal(m[3])
	if !ok {
		return ReplayRef{}, false
	}
	return ReplayRef{Timestamp: m[1], Role: Role(m[2]), URL: original}, true
}

// stripScheme removes "http://", "https://" or "//" and returns the rest.
func stripScheme(ref string) (string, bool) {
	lower := strings.ToLower(ref)
	for _, p := range []string{"http://", "https://", "//"} {
		if strings.HasPrefix(lower, p) {
			return ref[len(p):], true
		}
	}
	return "", false
}

func hostIn(hostport string, hosts []string) bool {
	host := strings.ToLower(hostport)
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h {
			return true
		}
		if !strings.Contains(h, ":") {
			if hh, _, ok := strings.Cut(host, ":"); ok && hh == h {
				return true
			}
		}
	}
	return false
}

// NormalizeOriginal turns the original-URL part of a replay path into an
// absolute canonical URL. The archive collapses "http://" into "http:/" in
// some captures and omits the scheme in others.
func NormalizeOriginal(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "http:/"):
		raw = "http://" + raw[len("http:/"):]
	case strings.HasPrefix(lower, "https:/"):
		raw = "https://" + raw[len("https:/"):]
	case strings.HasPrefix(raw, "//"):
		raw = "http:" + raw
	default:
		raw = "http://" + raw
	}
	return CanonicalURL(raw)
}

// ReplayPath builds /web/<timestamp><role>/<original>.
func ReplayPath(original, timestamp string, role Role) string {
	return "/web/" + timestamp + string(role) + "/" + original
}

// SameOriginal reports whether two original URLs name the same resource once
// canonicalized. The scheme is not compared, so an https capture of an http
// request still matches.
func SameOriginal(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	Canonicalize(ua)
	Canonicalize(ub)
	return ua.Host == ub.Host && ua.EscapedPath() == ub.EscapedPath() && ua.RawQuery == ub.RawQuery
}
