package rewrite

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"waybackproxy/internal/archive"
)

// Page is a fetched document offered to redirect guessers.
type Page struct {
	Body []byte
	Doc  *html.Node
}

// Guesser extracts a redirect destination from a page, or returns "".
// Results may be relative or point into the replay namespace.
type Guesser func(p *Page) string

// DefaultGuessers are tried in order by GuessRedirect.
var DefaultGuessers = []Guesser{CrawlNotice, MetaRefresh, ScriptLocation}

// GuessRedirect looks for the page body's intended destination. The result is
// an absolute original URL different from base.
func GuessRedirect(body []byte, base string, hosts []string, guessers ...Guesser) (string, bool) {
	if len(guessers) == 0 {
		guessers = DefaultGuessers
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	p := &Page{Body: body, Doc: doc}

	for _, g := range guessers {
		dest := strings.TrimSpace(g(p))
		if dest == "" {
			continue
		}
		if r, ok := archive.ParseReplayURL(dest, hosts...); ok {
			dest = r.URL
		} else {
			u, err := baseURL.Parse(dest)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				continue
			}
			dest = u.String()
		}
		if archive.SameOriginal(dest, base) {
			continue
		}
		return dest, true
	}
	return "", false
}

// IsCrawlRedirectNotice reports whether body is the archive's page saying the
// capture itself was a redirect.
func IsCrawlRedirectNotice(body []byte) bool {
	return bytes.Contains(body, []byte("response at crawl time")) &&
		bytes.Contains(body, []byte("Redirecting to"))
}

// CrawlNotice follows the link on the archive's crawl-time redirect notice.
func CrawlNotice(p *Page) string {
	if !IsCrawlRedirectNotice(p.Body) {
		return ""
	}
	var dest, fallback string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if dest != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if href != "" && hasClass(n.Parent, "impatient") {
				dest = href
				return
			}
			if fallback == "" && strings.Contains(href, "/web/") {
				fallback = href
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.Doc)
	if dest == "" {
		return fallback
	}
	return dest
}

// MetaRefresh reads <meta http-equiv="refresh" content="0; url=...">.
func MetaRefresh(p *Page) string {
	var dest string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if dest != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" && strings.EqualFold(attr(n, "http-equiv"), "refresh") {
			if m := refreshURLRe.FindStringSubmatch(attr(n, "content")); m != nil {
				dest = m[2]
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.Doc)
	return dest
}

var scriptLocationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:window|document|top|self|parent)?\.?location(?:\.href)?\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`location\.(?:replace|assign)\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`window\.open\(\s*["']([^"']+)["']\s*,\s*["']_(?:self|top)["']`),
}

// ScriptLocation finds location assignments in inline scripts.
func ScriptLocation(p *Page) string {
	var scripts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && attr(n, "src") == "" {
			scripts = append(scripts, textContent(n))
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			if onload := attr(n, "onload"); onload != "" {
				scripts = append(scripts, onload)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.Doc)

	for _, s := range scripts {
		for _, re := range scriptLocationRes {
			if m := re.FindStringSubmatch(s); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
