package rewrite

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"waybackproxy/internal/archive"
)

type rewriter struct {
	opts   Options
	base   *url.URL
	hosts  []string
	root   string
	seen   map[Asset]bool
	assets []Asset
}

func newRewriter(opts Options) *rewriter {
	hosts := opts.ArchiveHosts
	if len(hosts) == 0 {
		hosts = archive.DefaultHosts
	}
	root := strings.TrimRight(opts.ArchiveRoot, "/")
	if root == "" {
		root = "http://" + archive.DefaultHosts[0]
	}
	base, _ := url.Parse(opts.BaseURL)
	return &rewriter{
		opts:  opts,
		base:  base,
		hosts: hosts,
		root:  root,
		seen:  map[Asset]bool{},
	}
}

// refAttrs are the attributes holding URL references.
var refAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"background": true,
	"lowsrc":     true,
	"data":       true,
	"codebase":   true,
	"poster":     true,
}

// roleFor classifies the reference held in attribute key of n. An empty role
// means a document reference.
func roleFor(n *html.Node, key string) archive.Role {
	switch n.Data {
	case "img":
		return archive.RoleImage
	case "input":
		if strings.EqualFold(attr(n, "type"), "image") && key == "src" {
			return archive.RoleImage
		}
	case "body", "table", "td", "th", "tr":
		if key == "background" {
			return archive.RoleImage
		}
	case "script":
		if key == "src" {
			return archive.RoleScript
		}
	case "link":
		rel := strings.Fields(strings.ToLower(attr(n, "rel")))
		for _, r := range rel {
			switch r {
			case "stylesheet":
				return archive.RoleStyle
			case "icon":
				return archive.RoleImage
			}
		}
	case "embed", "object", "applet":
		return archive.RoleImage
	case "video", "audio", "source":
		return archive.RoleImage
	}
	return ""
}

func (rw *rewriter) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		rw.element(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rw.walk(c)
	}
}

func (rw *rewriter) element(n *html.Node) {
	for i, a := range n.Attr {
		key := strings.ToLower(a.Key)
		switch {
		case refAttrs[key]:
			n.Attr[i].Val = rw.ref(a.Val, roleFor(n, key))
		case key == "style":
			n.Attr[i].Val = rw.css(a.Val)
		case key == "content" && strings.EqualFold(attr(n, "http-equiv"), "refresh"):
			n.Attr[i].Val = rw.refresh(a.Val)
		}
	}
	if n.Data == "style" {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				c.Data = rw.css(c.Data)
			}
		}
	}
}

// ref rewrites one reference. Replay references become the original URL;
// with a quick-images mode, asset references point back into the archive.
func (rw *rewriter) ref(val string, role archive.Role) string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" || skipRef(trimmed) {
		return val
	}

	original, ts := "", ""
	r, replay := archive.ParseReplayURL(trimmed, rw.hosts...)
	if replay {
		original, ts = r.URL, r.Timestamp
	} else if role != "" || rw.opts.AbsoluteRefs {
		original = rw.resolve(trimmed)
	}
	if original == "" {
		return val
	}

	if role == "" {
		return original
	}
	if ts == "" {
		ts = rw.opts.Timestamp
	}
	if ts != "" {
		if padded, err := archive.PadTimestamp(ts); err == nil {
			ts = padded
		}
		rw.addAsset(Asset{URL: original, Timestamp: ts, Role: role})
	}

	switch rw.opts.Mode {
	case ModeQuickImages:
		if ts != "" {
			return rw.root + archive.ReplayPath(original, ts, role)
		}
	case ModeQuickImagesAuth:
		if ts != "" {
			if u, err := url.Parse(original); err == nil {
				u.Scheme = "http"
				u.User = url.UserPassword(ts, string(role))
				return u.String()
			}
		}
	}
	if replay || rw.opts.AbsoluteRefs {
		return original
	}
	return val
}

func (rw *rewriter) addAsset(a Asset) {
	a.URL, _, _ = strings.Cut(a.URL, "#")
	if rw.seen[a] {
		return
	}
	rw.seen[a] = true
	rw.assets = append(rw.assets, a)
}

// resolve makes ref absolute against the page URL.
func (rw *rewriter) resolve(ref string) string {
	if rw.base == nil {
		return ""
	}
	u, err := rw.base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	archive.Canonicalize(u)
	return u.String()
}

func skipRef(ref string) bool {
	if strings.HasPrefix(ref, "#") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, p := range []string{"javascript:", "mailto:", "data:", "about:", "news:", "ftp:", "telnet:", "gopher:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

var cssURLRe = regexp.MustCompile(`(?i)url\(\s*(['"]?)([^'")]+)(['"]?)\s*\)`)

func (rw *rewriter) css(s string) string {
	return cssURLRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := cssURLRe.FindStringSubmatch(m)
		return "url(" + sub[1] + rw.ref(sub[2], archive.RoleImage) + sub[3] + ")"
	})
}

var refreshURLRe = regexp.MustCompile(`(?i)^(\s*\d*\s*;?\s*url\s*=\s*['"]?)([^'"]+)(['"]?\s*)$`)

func (rw *rewriter) refresh(content string) string {
	m := refreshURLRe.FindStringSubmatch(content)
	if m == nil {
		return content
	}
	return m[1] + rw.ref(m[2], "") + m[3]
}
