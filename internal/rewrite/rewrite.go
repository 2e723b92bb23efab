// Package rewrite turns archived HTML back into the page as it was served:
// archive chrome is removed and replay references are laundered back to the
// original URLs.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding"

	"waybackproxy/internal/archive"
)

// ErrRewrite means the body could not be rewritten. Callers relay the raw
// body instead.
var ErrRewrite = errors.New("rewrite failed")

// AssetMode selects how asset references are emitted.
type AssetMode int

const (
	// ModeStandard emits bare original URLs for everything.
	ModeStandard AssetMode = iota
	// ModeQuickImages points assets straight at the archive replay URL.
	ModeQuickImages
	// ModeQuickImagesAuth carries timestamp and role as URL userinfo:
	// http://<ts>:<role>@host/path.
	ModeQuickImagesAuth
)

type Options struct {
	// BaseURL is the original URL of the page.
	BaseURL string
	// Timestamp is the capture the page was served from. Asset references
	// without their own timestamp are pinned to it.
	Timestamp string
	Mode      AssetMode
	// Charset keeps the charset parameter in the returned content type.
	Charset bool
	// ArchiveRoot is the scheme and host quick-images URLs point at.
	ArchiveRoot  string
	ArchiveHosts []string
	// AbsoluteRefs makes relative references absolute against BaseURL, for
	// pages served under another URL than their own.
	AbsoluteRefs bool
}

// Asset is an embedded resource found while rewriting.
type Asset struct {
	URL       string
	Timestamp string
	Role      archive.Role
}

type Result struct {
	Body        []byte
	ContentType string
	// Charset is the declared source encoding, empty when the page
	// declares none.
	Charset string
	Assets  []Asset
}

var toolbarRe = regexp.MustCompile(`(?is)<!--\s*BEGIN WAYBACK TOOLBAR INSERT\s*-->.*?<!--\s*END WAYBACK TOOLBAR INSERT\s*-->`)

// Rewrite rewrites an HTML body fetched from the archive.
func Rewrite(body []byte, contentType string, opts Options) (*Result, error) {
	// Undeclared bodies are rewritten byte for byte and keep the upstream
	// content type; a guessed charset is never advertised.
	decoded := body
	enc, name, declared := sourceEncoding(body, contentType)
	if declared {
		var err error
		if decoded, err = enc.NewDecoder().Bytes(body); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrRewrite, name, err)
		}
	}
	decoded = toolbarRe.ReplaceAll(decoded, nil)

	doc, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewrite, err)
	}

	rw := newRewriter(opts)
	stripChrome(doc, rw.hosts)
	rw.walk(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("%w: render: %v", ErrRewrite, err)
	}

	out := buf.Bytes()
	if declared && name != "utf-8" {
		out, err = encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes(out)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s: %v", ErrRewrite, name, err)
		}
	}

	return &Result{
		Body:        out,
		ContentType: ContentType(contentType, name, opts.Charset),
		Charset:     name,
		Assets:      rw.assets,
	}, nil
}
