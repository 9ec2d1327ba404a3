// Package keypath implements the key paths used to address values inside an
// observed graph.
//
// A Path is an ordered sequence of keys from the observed root to a nested
// value. Paths are rendered as dot-delimited strings only at the edges (change
// callbacks, subscription buckets); internally the key sequence is kept so
// keys containing the separator stay unambiguous.
package keypath

import (
	"strconv"
	"strings"
)

// Separator joins path segments in their string form.
const Separator = "."

// Path is the route of keys from the root to a value. The root path is empty.
type Path []string

// String renders the path as a dot-delimited string.
func (p Path) String() string {
	return strings.Join(p, Separator)
}

// IsRoot reports whether p addresses the root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Concat returns a new path with key appended. An empty key returns a copy of p
// unchanged.
func (p Path) Concat(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	if key == "" {
		return out
	}
	return append(out, key)
}

// Initial returns the path of the owner of the last segment.
func (p Path) Initial() Path {
	if len(p) == 0 {
		return Path{}
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

// HasPrefix reports whether prefix is an ancestor of, or equal to, p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// After returns the segments of p that follow prefix. Callers must check
// HasPrefix first; a non-matching prefix yields nil.
func (p Path) After(prefix Path) Path {
	if !p.HasPrefix(prefix) {
		return nil
	}
	out := make(Path, len(p)-len(prefix))
	copy(out, p[len(prefix):])
	return out
}

// Equal reports whether both paths hold the same keys.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

// Split parses a canonical dot string into a Path. The empty string is the
// root.
func Split(path string) Path {
	if path == "" {
		return Path{}
	}
	return Path(strings.Split(path, Separator))
}

// Normalize rewrites a JS-style access path into its canonical dot form:
// quote characters are stripped and bracket indices become dot segments, so
// `a[0]["b"].c` becomes `a.0.b.c`.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		switch r {
		case '"', '\'', '`':
			continue
		case '[':
			b.WriteString(Separator)
		case ']':
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), Separator)
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", Separator)
	}
	return out
}

// Parse normalizes path and splits it into keys.
func Parse(path string) Path {
	return Split(Normalize(path))
}

// Index parses key as a slice index. It returns false for anything that is not
// a non-negative decimal integer.
func Index(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return idx, true
}

const symbolPrefix = "Symbol("

// Symbol renders a symbolic key. Symbol keys live in the same string key space
// as regular keys and render deterministically in paths.
func Symbol(description string) string {
	return symbolPrefix + description + ")"
}

// IsSymbol reports whether key was produced by Symbol.
func IsSymbol(key string) bool {
	return strings.HasPrefix(key, symbolPrefix) && strings.HasSuffix(key, ")")
}
