package waybackproxy

import (
	"net/url"
	"strings"
)

const geocitiesMirror = "www.oocities.org"

// geocitiesRedirect maps a GeoCities URL onto its mirror. Vanity subdomains
// become the first path segment.
func geocitiesRedirect(target *url.URL) (string, bool) {
	host := target.Hostname()
	if host != "geocities.com" && !strings.HasSuffix(host, ".geocities.com") {
		return "", false
	}
	p := target.EscapedPath()
	if sub := strings.TrimSuffix(host, ".geocities.com"); sub != host && sub != "www" {
		p = "/" + sub + p
	}
	u := url.URL{Scheme: "http", Host: geocitiesMirror}
	loc := u.String() + p
	if target.RawQuery != "" {
		loc += "?" + target.RawQuery
	}
	return loc, true
}
