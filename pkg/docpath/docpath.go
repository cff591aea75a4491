// Package docpath matches slash-separated document paths against patterns
// such as "artifacts/{app}/public/data/scenarios/{id}".
package docpath

import "strings"

// Pattern is a compiled path pattern. Segments wrapped in braces bind one
// non-empty path segment each; every other segment must match literally.
type Pattern struct {
	raw      string
	segments []string
}

// Compile parses a pattern. It never fails; an empty pattern matches nothing.
func Compile(pattern string) Pattern {
	return Pattern{raw: pattern, segments: Split(pattern)}
}

func (p Pattern) String() string { return p.raw }

// Match reports whether path matches p and returns the bound segments.
func (p Pattern) Match(path string) (map[string]string, bool) {
	parts := Split(path)
	if len(p.segments) == 0 || len(parts) != len(p.segments) {
		return nil, false
	}
	vars := make(map[string]string)
	for i, seg := range p.segments {
		if name, ok := variable(seg); ok {
			vars[name] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return vars, true
}

// Split trims surrounding slashes and returns the path segments. Paths with
// empty segments ("a//b") yield nil.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

// Clean normalises a path to its canonical form without surrounding slashes.
func Clean(path string) string {
	return strings.Join(Split(path), "/")
}

// Last returns the final segment of path.
func Last(path string) string {
	parts := Split(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func variable(seg string) (string, bool) {
	if len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
