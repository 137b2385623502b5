// Package logos maps channel display names to logo files.
//
// Resolution order, first hit wins:
//  1. exact match on the lowercased name
//  2. substring match against mapping keys with " hd" removed, either direction
//  3. file name generated from the auto-generation rules
//  4. none
package logos

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedMapping marks a mapping document that does not decode.
var ErrMalformedMapping = errors.New("logos: malformed mapping")

// Mapping is the remote channel-logo mapping document.
type Mapping struct {
	Version  int               `json:"version"`
	Mappings map[string]string `json:"mappings"`
	Rules    Rules             `json:"auto_generation_rules"`
	// Files lists logo files published on the host that no mapping points to.
	Files []string `json:"files,omitempty"`
}

// Rules derive a file name from a channel name when no mapping matches.
// Replacement keys are applied longest first, so "матч!" wins over "матч".
type Rules struct {
	RemoveHD         bool              `json:"remove_hd"`
	Replacements     map[string]string `json:"replacements"`
	CharReplacements map[string]string `json:"char_replacements"`
	FileExtension    string            `json:"file_extension"`
}

// ParseMapping decodes a mapping document. Keys are lowercased.
func ParseMapping(data []byte) (Mapping, error) {
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrMalformedMapping, err)
	}
	if len(m.Mappings) == 0 && len(m.Rules.Replacements) == 0 && len(m.Files) == 0 {
		return Mapping{}, fmt.Errorf("%w: no mappings, rules or files", ErrMalformedMapping)
	}
	lower := make(map[string]string, len(m.Mappings))
	for k, v := range m.Mappings {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || strings.TrimSpace(v) == "" {
			continue
		}
		lower[k] = strings.TrimSpace(v)
	}
	m.Mappings = lower
	return m, nil
}

// Default is used until a mapping has ever been fetched.
func Default() Mapping {
	return Mapping{
		Version: 0,
		Mappings: map[string]string{
			"первый канал hd": "ortl.png",
			"россия 1 hd":     "rossiya-1.png",
			"россия-24":       "rossiya-24.png",
			"россия культура": "kultura.png",
			"нтв hd":          "ntv.png",
			"тнт hd":          "tnt.png",
			"стс hd":          "sts.png",
			"тв-3 hd":         "tv-3.png",
			"звезда hd":       "tvzvezda.png",
			"рен тв hd":       "ren_tv.png",
			"тв центр hd":     "tvc.png",
			"5 канал россия":  "5-kanal.png",
			"домашний hd":     "domashniy.png",
			"пятница hd":      "friday.png",
			"мир hd":          "mir.png",
			"отр hd":          "otr.png",
			"рбк":             "rbc.png",
			"спас":            "spas.png",
			"карусель":        "karusel.png",
			"муз тв":          "muz.png",
			"матч тв":         "match_tv.png",
			"матч! тв":        "match_tv.png",
		},
		Rules: Rules{
			RemoveHD: true,
			Replacements: map[string]string{
				"тв центр": "tvc",
				"тв-3":     "tv-3",
				"5 канал":  "5-kanal",
				"россия":   "rossiya",
				"первый":   "perviy",
				"канал":    "kanal",
				"нтв":      "ntv",
				"рен":      "ren",
				"тв":       "tv",
				"центр":    "centr",
				"звезда":   "tvzvezda",
				"домашний": "domashniy",
				"культура": "kultura",
				"пятница":  "friday",
				"карусель": "karusel",
				"матч!":    "match_tv",
				"матч":     "match_tv",
				"мир":      "mir",
				"муз":      "muz",
				"рбк":      "rbc",
				"отр":      "otr",
				"спас":     "spas",
				"стс":      "sts",
				"тнт":      "tnt",
			},
			CharReplacements: map[string]string{
				" ": "_",
				"-": "_",
				".": "_",
				"!": "",
			},
			FileExtension: ".png",
		},
		Files: []string{"muz.png", "karusel.png", "spas.png", "match_tv.png"},
	}
}

// Match says which rule resolved a name.
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchSubstring
	MatchGenerated
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchSubstring:
		return "substring"
	case MatchGenerated:
		return "generated"
	default:
		return "none"
	}
}

type pattern struct {
	key, stripped, file string
}

type replacement struct{ from, to string }

// Resolver answers name lookups for one Mapping. Safe for concurrent use.
type Resolver struct {
	mapping  Mapping
	patterns []pattern // longest key first
	repl     []replacement
	charRepl []replacement
	ext      string
	known    map[string]bool
}

// NewResolver precomputes lookup tables for m.
func NewResolver(m Mapping) *Resolver {
	r := &Resolver{mapping: m, known: map[string]bool{}}
	for k, f := range m.Mappings {
		r.patterns = append(r.patterns, pattern{key: k, stripped: strings.ReplaceAll(k, " hd", ""), file: f})
		r.known[f] = true
	}
	sort.Slice(r.patterns, func(i, j int) bool {
		a, b := r.patterns[i], r.patterns[j]
		if len(a.stripped) != len(b.stripped) {
			return len(a.stripped) > len(b.stripped)
		}
		return a.key < b.key
	})
	r.repl = sortedReplacements(m.Rules.Replacements)
	r.charRepl = sortedReplacements(m.Rules.CharReplacements)
	r.ext = m.Rules.FileExtension
	if r.ext == "" {
		r.ext = ".png"
	}
	if !strings.HasPrefix(r.ext, ".") {
		r.ext = "." + r.ext
	}
	for _, f := range m.Files {
		if f = strings.TrimSpace(f); f != "" {
			r.known[f] = true
		}
	}
	return r
}

func sortedReplacements(m map[string]string) []replacement {
	out := make([]replacement, 0, len(m))
	for from, to := range m {
		if from == "" {
			continue
		}
		out = append(out, replacement{strings.ToLower(from), to})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].from) != len(out[j].from) {
			return len(out[i].from) > len(out[j].from)
		}
		return out[i].from < out[j].from
	})
	return out
}

// Version of the underlying mapping.
func (r *Resolver) Version() int { return r.mapping.Version }

// Resolve returns the logo file for a channel name. A generated name is only
// returned when it is a known file (listed in the mapping); otherwise MatchNone.
func (r *Resolver) Resolve(channelName string) (string, Match) {
	name := strings.ToLower(strings.TrimSpace(channelName))
	if name == "" {
		return "", MatchNone
	}
	if f, ok := r.mapping.Mappings[name]; ok {
		return f, MatchExact
	}
	for _, p := range r.patterns {
		if p.stripped == "" {
			continue
		}
		if strings.Contains(name, p.stripped) || strings.Contains(p.stripped, name) {
			return p.file, MatchSubstring
		}
	}
	if gen := r.Generate(name); gen != "" && r.known[gen] {
		return gen, MatchGenerated
	}
	return "", MatchNone
}

// Generate applies the auto-generation rules. Returns "" when nothing is left.
func (r *Resolver) Generate(channelName string) string {
	s := strings.ToLower(strings.TrimSpace(channelName))
	for _, rp := range r.repl {
		s = strings.ReplaceAll(s, rp.from, rp.to)
	}
	if r.mapping.Rules.RemoveHD {
		s = strings.ReplaceAll(s, "hd", "")
	}
	for _, rp := range r.charRepl {
		s = strings.ReplaceAll(s, rp.from, rp.to)
	}
	s = strings.Trim(s, "_ ")
	if s == "" {
		return ""
	}
	return s + r.ext
}

// Files returns every logo file the mapping knows of, sorted.
func (r *Resolver) Files() []string {
	out := make([]string, 0, len(r.known))
	for f := range r.known {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
