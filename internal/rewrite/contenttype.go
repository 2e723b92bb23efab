package rewrite

import (
	"mime"
	"strings"
)

// ContentType returns the MIME type of ct, with "; charset=<name>" appended
// when keep is set and a charset is known.
func ContentType(ct, charsetName string, keep bool) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	if mt == "" {
		mt = "text/html"
	}
	if !keep || charsetName == "" {
		return mt
	}
	return mt + "; charset=" + charsetName
}

// IsHTML reports whether ct names an HTML document.
func IsHTML(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// StripCharset drops every parameter from ct unless keep is set.
func StripCharset(ct string, keep bool) string {
	if keep || ct == "" {
		return ct
	}
	return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
}
