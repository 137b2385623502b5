package channels

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Entry is one playable channel from the playlist.
type Entry struct {
	Name string // display name: text after the descriptor's first unquoted comma
	URL  string

	// Optional descriptor attributes.
	TvgID   string
	TvgLogo string
	Group   string
}

// ParseM3U parses an extended playlist. A record is an #EXTINF line followed,
// after blank lines, by a line that does not start with '#'. Anything else is
// skipped: a descriptor followed by another comment line, a URL with no
// descriptor, a descriptor at end of input.
func ParseM3U(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var (
		entries []Entry
		pending *Entry
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			pending = parseEXTINF(line)
			continue
		}
		if strings.HasPrefix(line, "#") {
			pending = nil
			continue
		}
		if pending != nil {
			pending.URL = line
			entries = append(entries, *pending)
			pending = nil
		}
	}
	return entries, sc.Err()
}

// ParseM3UBytes parses playlist bytes (e.g. from cache).
func ParseM3UBytes(data []byte) ([]Entry, error) {
	return ParseM3U(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
}

// parseEXTINF returns nil when the descriptor carries no name.
func parseEXTINF(line string) *Entry {
	body := strings.TrimPrefix(line, "#EXTINF:")
	comma := firstUnquotedComma(body)
	if comma < 0 {
		// Unbalanced quote: take the name after the first comma.
		comma = strings.IndexByte(body, ',')
	}
	if comma < 0 {
		return nil
	}
	name := strings.TrimSpace(body[comma+1:])
	if name == "" {
		return nil
	}
	attrs := parseAttrs(body[:comma])
	return &Entry{
		Name:    name,
		TvgID:   attrs["tvg-id"],
		TvgLogo: attrs["tvg-logo"],
		Group:   attrs["group-title"],
	}
}

func firstUnquotedComma(s string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

// parseAttrs reads key="value" pairs from the duration/attribute section.
func parseAttrs(s string) map[string]string {
	attrs := map[string]string{}
	for {
		eq := strings.Index(s, `="`)
		if eq < 0 {
			return attrs
		}
		key := s[:eq]
		if sp := strings.LastIndexAny(key, " \t"); sp >= 0 {
			key = key[sp+1:]
		}
		rest := s[eq+2:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return attrs
		}
		if key != "" {
			attrs[strings.ToLower(key)] = rest[:end]
		}
		s = rest[end+1:]
	}
}
