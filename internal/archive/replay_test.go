package archive

import (
	"testing"
	"time"
)

func TestPadTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		expected string
		wantErr  bool
	}{
		{name: "year", date: "2001", expected: "20010101000000"},
		{name: "year month", date: "200110", expected: "20011001000000"},
		{name: "full date", date: "20011025", expected: "20011025000000"},
		{name: "date and hour", date: "2001102513", expected: "20011025130000"},
		{name: "full timestamp", date: "20011025123456", expected: "20011025123456"},
		{name: "too short", date: "200", wantErr: true},
		{name: "odd length", date: "20011", wantErr: true},
		{name: "not digits", date: "2001-10-25", wantErr: true},
		{name: "bad month", date: "200113", wantErr: true},
		{name: "too long", date: "200110251234567", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PadTimestamp(tt.date)
			if tt.wantErr {
				if err == nil {
					t.Errorf("PadTimestamp(%q) = %q, expected error", tt.date, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("PadTimestamp(%q) error = %v", tt.date, err)
			}
			if got != tt.expected {
				t.Errorf("PadTimestamp(%q) = %q, expected %q", tt.date, got, tt.expected)
			}
		})
	}
}

func TestParseFormatTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("20011025123456")
	if err != nil {
		t.Fatalf("ParseTimestamp() error = %v", err)
	}
	expected := time.Date(2001, 10, 25, 12, 34, 56, 0, time.UTC)
	if !ts.Equal(expected) {
		t.Errorf("ParseTimestamp() = %v, expected %v", ts, expected)
	}
	if got := FormatTimestamp(ts); got != "20011025123456" {
		t.Errorf("FormatTimestamp() = %q", got)
	}
	if _, err := ParseTimestamp("2001102512345"); err == nil {
		t.Error("ParseTimestamp() should reject 13 digits")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleIdentity, RoleImage, RoleScript, RoleStyle, "if_"} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	for _, r := range []Role{"", "im", "IM_", "i1_", "imx"} {
		if r.Valid() {
			t.Errorf("%q should be invalid", r)
		}
	}
}

func TestParseReplayURL(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		hosts    []string
		expected ReplayRef
		ok       bool
	}{
		{
			name:     "root relative image",
			ref:      "/web/20011025000000im_/http://example.com/logo.gif",
			expected: ReplayRef{Timestamp: "20011025000000", Role: RoleImage, URL: "http://example.com/logo.gif"},
			ok:       true,
		},
		{
			name:     "absolute archive url",
			ref:      "http://web.archive.org/web/20011025000000/http://example.com/",
			expected: ReplayRef{Timestamp: "20011025000000", URL: "http://example.com/"},
			ok:       true,
		},
		{
			name:     "https and port",
			ref:      "https://web.archive.org:443/web/2001js_/http://example.com/a.js",
			expected: ReplayRef{Timestamp: "2001", Role: RoleScript, URL: "http://example.com/a.js"},
			ok:       true,
		},
		{
			name:     "protocol relative",
			ref:      "//web.archive.org/web/20011025000000cs_/http://example.com/s.css",
			expected: ReplayRef{Timestamp: "20011025000000", Role: RoleStyle, URL: "http://example.com/s.css"},
			ok:       true,
		},
		{
			name:     "collapsed scheme slashes",
			ref:      "/web/20011025000000/http:/example.com/page.html",
			expected: ReplayRef{Timestamp: "20011025000000", URL: "http://example.com/page.html"},
			ok:       true,
		},
		{
			name:     "canonical original",
			ref:      "/web/20011101120000im_/http://WWW.Example.com:80/%7Eme/logo.gif",
			expected: ReplayRef{Timestamp: "20011101120000", Role: RoleImage, URL: "http://www.example.com/~me/logo.gif"},
			ok:       true,
		},
		{
			name:     "missing scheme",
			ref:      "/web/20011025000000/example.com/page.html?x=1",
			expected: ReplayRef{Timestamp: "20011025000000", URL: "http://example.com/page.html?x=1"},
			ok:       true,
		},
		{
			name:     "custom archive host",
			ref:      "http://127.0.0.1:8080/web/20011025000000im_/http://example.com/a.png",
			hosts:    []string{"127.0.0.1:8080"},
			expected: ReplayRef{Timestamp: "20011025000000", Role: RoleImage, URL: "http://example.com/a.png"},
			ok:       true,
		},
		{name: "foreign host", ref: "http://example.com/web/20011025000000/http://x.com/"},
		{name: "plain relative", ref: "images/logo.gif"},
		{name: "archive static asset", ref: "/_static/js/wombat.js"},
		{name: "no original", ref: "/web/20011025000000im_/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseReplayURL(tt.ref, tt.hosts...)
			if ok != tt.ok {
				t.Fatalf("ParseReplayURL(%q) ok = %v, expected %v", tt.ref, ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("ParseReplayURL(%q) = %+v, expected %+v", tt.ref, got, tt.expected)
			}
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"http://WWW.Example.COM/Logo.gif", "http://www.example.com/Logo.gif"},
		{"HTTP://example.com:80", "http://example.com/"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"http://example.com:443/a", "http://example.com:443/a"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
		{"http://example.com:/a", "http://example.com/a"},
		{"http://example.com/%7Euser/a%20b.gif", "http://example.com/~user/a%20b.gif"},
		{"http://example.com/a?Q=%7E#frag", "http://example.com/a?Q=%7E#frag"},
	}
	for _, tt := range tests {
		got, ok := CanonicalURL(tt.raw)
		if !ok || got != tt.expected {
			t.Errorf("CanonicalURL(%q) = %q, %v, expected %q", tt.raw, got, ok, tt.expected)
		}
	}
	if _, ok := CanonicalURL("/relative"); ok {
		t.Error("CanonicalURL accepted a URL without a host")
	}
}

func TestSameOriginal(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"http://example.com", "http://example.com/", true},
		{"http://Example.com/a", "http://example.com/a", true},
		{"http://example.com/a", "http://example.com/b", false},
		{"http://example.com/a?x=1", "http://example.com/a", false},
		{"http://example.com:80/%7Euser/", "https://example.com/~user/", true},
	}
	for _, tt := range tests {
		if got := SameOriginal(tt.a, tt.b); got != tt.expected {
			t.Errorf("SameOriginal(%q, %q) = %v, expected %v", tt.a, tt.b, got, tt.expected)
		}
	}
}
