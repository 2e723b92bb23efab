package config

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
)

// Whitelist holds hosts that bypass the archive and are fetched live.
type Whitelist struct {
	exact  map[string]struct{}
	suffix []string
}

// ParseWhitelist reads one host per line. Blank lines and lines starting with
// '#' are skipped. Entries starting with "." or "*." only match subdomains;
// plain entries match the host itself and its subdomains.
func ParseWhitelist(r io.Reader) (*Whitelist, error) {
	wl := &Whitelist{exact: map[string]struct{}{}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		wl.add(line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return wl, nil
}

// NewWhitelist builds a whitelist from literal entries.
func NewWhitelist(entries ...string) *Whitelist {
	wl := &Whitelist{exact: map[string]struct{}{}}
	for _, e := range entries {
		wl.add(e)
	}
	return wl
}

func (wl *Whitelist) add(entry string) {
	entry = strings.ToLower(entry)
	switch {
	case strings.HasPrefix(entry, "*."):
		wl.suffix = append(wl.suffix, entry[1:])
	case strings.HasPrefix(entry, "."):
		wl.suffix = append(wl.suffix, entry)
	default:
		entry = stripPort(entry)
		wl.exact[entry] = struct{}{}
		wl.suffix = append(wl.suffix, "."+entry)
	}
}

// LoadWhitelist reads path. A missing file yields an empty whitelist.
func LoadWhitelist(path string) (*Whitelist, error) {
	if path == "" {
		return NewWhitelist(), nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewWhitelist(), nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseWhitelist(f)
}

// Match reports whether host (with or without port) is whitelisted.
func (wl *Whitelist) Match(host string) bool {
	if wl == nil {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(stripPort(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := wl.exact[host]; ok {
		return true
	}
	for _, s := range wl.suffix {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// Len is the number of entries.
func (wl *Whitelist) Len() int {
	if wl == nil {
		return 0
	}
	n := len(wl.exact)
	for _, s := range wl.suffix {
		if _, ok := wl.exact[s[1:]]; !ok {
			n++
		}
	}
	return n
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(host, "[]")
}
