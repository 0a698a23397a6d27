// Package uri implements the wildcard URI matching used to index
// subscriptions by channel and resource pattern.
//
// A pattern matches a URI segment-by-segment: scheme and host segments are
// compared case-insensitively, path segments case-sensitively. A literal
// segment must match exactly; "*" matches exactly one segment; a trailing
// "**" (or an empty trailing path segment) matches any suffix, including
// zero further segments.
package uri

import "strings"

const (
	singleWildcard = "*"
	suffixWildcard = "**"
)

// Pattern is a parsed URI pattern. Parsing happens once, at subscription
// registration time, so matching never re-splits strings on the hot path.
type Pattern struct {
	raw      string
	scheme   []string // the lower-cased scheme, as a one-element slice
	host     []string
	path     []string
	suffix   bool // true if the pattern's path ends in ** or an empty segment
}

// ParsePattern parses a URI pattern of the form scheme://host/path/segs.
// Host segments are split on ".", path segments on "/". A trailing empty
// path segment (produced by a pattern ending in "/") or a literal "**"
// final segment sets suffix matching.
func ParsePattern(raw string) Pattern {
	scheme, rest := splitScheme(raw)
	host, path := splitAuthority(rest)

	p := Pattern{
		raw:    raw,
		scheme: []string{strings.ToLower(scheme)},
		host:   lowerAll(splitNonEmpty(host, '.')),
	}

	segs := strings.Split(path, "/")
	// strings.Split on a leading "/" produces a leading "" element; drop it.
	if len(segs) > 0 && segs[0] == "" {
		segs = segs[1:]
	}
	if len(segs) > 0 {
		last := segs[len(segs)-1]
		if last == suffixWildcard || last == "" {
			p.suffix = true
			segs = segs[:len(segs)-1]
		}
	}
	p.path = segs
	return p
}

// Raw returns the original pattern string.
func (p Pattern) Raw() string { return p.raw }

// Match reports whether p matches the given URI.
func (p Pattern) Match(raw string) bool {
	scheme, rest := splitScheme(raw)
	host, path := splitAuthority(rest)

	if !matchSegments(p.scheme, []string{strings.ToLower(scheme)}, false) {
		return false
	}
	if !matchSegments(p.host, lowerAll(splitNonEmpty(host, '.')), false) {
		return false
	}

	segs := strings.Split(path, "/")
	if len(segs) > 0 && segs[0] == "" {
		segs = segs[1:]
	}
	return matchSegments(p.path, segs, p.suffix)
}

// matchSegments compares a pattern's segments against a URI's segments.
// When suffix is true, extra trailing URI segments beyond len(pattern) are
// accepted unconditionally (the "**" case); otherwise lengths must match.
func matchSegments(pattern, actual []string, suffix bool) bool {
	if !suffix && len(pattern) != len(actual) {
		return false
	}
	if suffix && len(actual) < len(pattern) {
		return false
	}
	for i, seg := range pattern {
		if seg == singleWildcard {
			continue
		}
		if seg != actual[i] {
			return false
		}
	}
	return true
}

func splitScheme(raw string) (scheme, rest string) {
	if i := strings.Index(raw, "://"); i >= 0 {
		return raw[:i], raw[i+3:]
	}
	return "", raw
}

func splitAuthority(rest string) (host, path string) {
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}

func splitNonEmpty(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, string(sep))
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerAll(segs []string) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = strings.ToLower(s)
	}
	return out
}
