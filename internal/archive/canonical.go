package archive

import (
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// Canonicalize rewrites u in place into the form snapshot lookups are keyed
// on: lowercase scheme and host, no default port, "/" for an empty path and
// the path escaped from its decoded form. Two spellings of the same resource
// canonicalize to the same string. The fragment is left alone; callers
// building keys drop it.
func Canonicalize(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.TrimSuffix(strings.ToLower(u.Host), ":")
	if port, ok := defaultPorts[u.Scheme]; ok {
		host = strings.TrimSuffix(host, ":"+port)
	}
	u.Host = host
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}
	u.RawPath = ""
}

// CanonicalURL parses raw and returns its canonical form.
func CanonicalURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	Canonicalize(u)
	return u.String(), true
}
