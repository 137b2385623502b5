package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return (s == "http" || s == "https") && parsed.Host != ""
}

// Join appends path segments to base, keeping exactly one slash between them.
func Join(base string, elem ...string) string {
	out := strings.TrimRight(base, "/")
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		out += "/" + e
	}
	return out
}

// OrDefault returns u when it is an absolute http(s) URL, otherwise def.
// Remote documents are untrusted: a URL field pointing at file:// or garbage
// must not replace a known-good location.
func OrDefault(u, def string) string {
	u = strings.TrimSpace(u)
	if IsHTTPOrHTTPS(u) {
		return u
	}
	return def
}

// Redact strips userinfo and query from u for logging.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<invalid url>"
	}
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
