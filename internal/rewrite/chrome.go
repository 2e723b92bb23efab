package rewrite

import (
	"strings"

	"golang.org/x/net/html"
)

// chromeIDs are elements the archive injects around replayed pages.
var chromeIDs = map[string]bool{
	"wm-ipp-base":  true,
	"wm-ipp":       true,
	"wm-ipp-print": true,
	"donato":       true,
	"wm-capinfo":   true,
}

var chromeScriptMarkers = []string{
	"__wm.",
	"wombat",
	"archive_analytics",
	"_wm.bt",
	"wbhack",
	"WB_wombat_Init",
}

var chromeCommentMarkers = []string{
	"FILE ARCHIVED ON",
	"playback timings",
	"End Wayback Rewrite JS Include",
}

// stripChrome removes archive-injected markup from doc.
func stripChrome(doc *html.Node, hosts []string) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isChrome(n, hosts) {
			doomed = append(doomed, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func isChrome(n *html.Node, hosts []string) bool {
	switch n.Type {
	case html.CommentNode:
		for _, m := range chromeCommentMarkers {
			if strings.Contains(n.Data, m) {
				return true
			}
		}
		return false
	case html.ElementNode:
	default:
		return false
	}

	if chromeIDs[attr(n, "id")] {
		return true
	}
	switch n.Data {
	case "script":
		if src := attr(n, "src"); src != "" {
			return isArchiveStatic(src, hosts)
		}
		text := textContent(n)
		for _, m := range chromeScriptMarkers {
			if strings.Contains(text, m) {
				return true
			}
		}
	case "link":
		return isArchiveStatic(attr(n, "href"), hosts)
	case "style":
		// the toolbar's stylesheet is inlined with its own ids
		return strings.Contains(textContent(n), "#wm-ipp")
	}
	return false
}

// isArchiveStatic reports whether ref loads one of the archive's own
// replay support files.
func isArchiveStatic(ref string, hosts []string) bool {
	if ref == "" {
		return false
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "/_static/") || strings.HasPrefix(lower, "/static/js/") {
		return true
	}
	rest, ok := stripScheme(lower)
	if !ok {
		return false
	}
	host, path, _ := strings.Cut(rest, "/")
	if !hostMatch(host, hosts) {
		return false
	}
	path = "/" + path
	return strings.HasPrefix(path, "/_static/") ||
		strings.HasPrefix(path, "/static/") ||
		strings.HasPrefix(path, "/includes/")
}

func stripScheme(ref string) (string, bool) {
	for _, p := range []string{"http://", "https://", "//"} {
		if strings.HasPrefix(ref, p) {
			return ref[len(p):], true
		}
	}
	return "", false
}

func hostMatch(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
		if hh, _, ok := strings.Cut(host, ":"); ok && hh == h {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
