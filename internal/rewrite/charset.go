package rewrite

import (
	"bytes"
	"mime"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

// prescanLen matches the window browsers scan for a <meta> charset.
const prescanLen = 1024

// sourceEncoding returns the encoding body declares through a byte order
// mark, the charset parameter of contentType or a <meta> tag. declared is
// false when the charset would only be guessed.
func sourceEncoding(body []byte, contentType string) (enc encoding.Encoding, name string, declared bool) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if certain {
		return enc, name, true
	}
	if label := metaCharset(body); label != "" {
		if enc, name = charset.Lookup(label); enc != nil {
			return enc, name, true
		}
	}
	return nil, "", false
}

// metaCharset returns the charset label of the first <meta charset> or
// <meta http-equiv="Content-Type"> within the prescan window.
func metaCharset(body []byte) string {
	if len(body) > prescanLen {
		body = body[:prescanLen]
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tag, hasAttr := z.TagName()
			if string(tag) != "meta" || !hasAttr {
				continue
			}
			var httpEquiv, content string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch string(key) {
				case "charset":
					return strings.TrimSpace(string(val))
				case "http-equiv":
					httpEquiv = strings.ToLower(strings.TrimSpace(string(val)))
				case "content":
					content = string(val)
				}
			}
			if httpEquiv != "content-type" {
				continue
			}
			if _, params, err := mime.ParseMediaType(content); err == nil && params["charset"] != "" {
				return params["charset"]
			}
		}
	}
}
