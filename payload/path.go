package payload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrInvalidPath is returned when a path cannot be parsed.
var ErrInvalidPath = errors.New("invalid payload path")

type segmentKind uint8

const (
	segKey segmentKind = iota
	segIndex
	segWildcard
)

type segment struct {
	kind  segmentKind
	key   string
	index int
}

// Path addresses values inside a payload document.
type Path struct {
	raw  string
	segs []segment
}

// ParsePath parses a dotted path with optional [N] and [] array selectors.
func ParsePath(s string) (Path, error) {
	p := Path{raw: s}
	if s == "" {
		return p, fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	i := 0
	expectKey := true
	for i < len(s) {
		switch {
		case s[i] == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return p, fmt.Errorf("%w %q: unterminated [", ErrInvalidPath, s)
			}
			if len(p.segs) == 0 {
				return p, fmt.Errorf("%w %q: selector without key", ErrInvalidPath, s)
			}
			inner := s[i+1 : i+end]
			if inner == "" {
				p.segs = append(p.segs, segment{kind: segWildcard})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return p, fmt.Errorf("%w %q: bad index %q", ErrInvalidPath, s, inner)
				}
				p.segs = append(p.segs, segment{kind: segIndex, index: n})
			}
			i += end + 1
			expectKey = false
		case s[i] == '.':
			if expectKey {
				return p, fmt.Errorf("%w %q: empty key", ErrInvalidPath, s)
			}
			i++
			expectKey = true
		case !expectKey:
			return p, fmt.Errorf("%w %q: missing . at %d", ErrInvalidPath, s, i)
		case s[i] == '"':
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return p, fmt.Errorf("%w %q: unterminated quote", ErrInvalidPath, s)
			}
			p.segs = append(p.segs, segment{kind: segKey, key: s[i+1 : i+1+end]})
			i += end + 2
			expectKey = false
		default:
			end := strings.IndexAny(s[i:], ".[")
			if end < 0 {
				end = len(s) - i
			}
			p.segs = append(p.segs, segment{kind: segKey, key: s[i : i+end]})
			i += end
			expectKey = false
		}
	}
	if expectKey {
		return p, fmt.Errorf("%w %q: trailing .", ErrInvalidPath, s)
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the path as given to ParsePath.
func (p Path) String() string { return p.raw }

// HasWildcard reports whether the path contains a [] selector.
func (p Path) HasWildcard() bool {
	for _, s := range p.segs {
		if s.kind == segWildcard {
			return true
		}
	}
	return false
}

// resolve expands the path against doc into concrete gjson paths, one per
// addressed location. Wildcards fan out over the current array length; a
// wildcard over a missing or non-array value addresses nothing.
func (p Path) resolve(doc []byte) []string {
	paths := []string{""}
	for _, s := range p.segs {
		next := paths[:0:0]
		for _, prefix := range paths {
			switch s.kind {
			case segKey:
				next = append(next, join(prefix, escapeKey(s.key)))
			case segIndex:
				next = append(next, join(prefix, strconv.Itoa(s.index)))
			case segWildcard:
				arr := gjson.GetBytes(doc, prefix)
				if !arr.IsArray() {
					continue
				}
				for i := range len(arr.Array()) {
					next = append(next, join(prefix, strconv.Itoa(i)))
				}
			}
		}
		paths = next
	}
	return paths
}

func join(prefix, part string) string {
	if prefix == "" {
		return part
	}
	return prefix + "." + part
}

func escapeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

// values returns the values addressed by p in doc.
func (p Path) values(doc []byte) []any {
	var out []any
	for _, gp := range p.resolve(doc) {
		if r := gjson.GetBytes(doc, gp); r.Exists() {
			out = append(out, r.Value())
		}
	}
	return out
}

// mergeAt merges partial into the object at every location addressed by p.
// A missing or non-object value is replaced by partial.
func (p Path) mergeAt(doc []byte, partial Payload, marshal func(any) ([]byte, error)) ([]byte, error) {
	for _, gp := range p.resolve(doc) {
		merged := Payload{}
		if r := gjson.GetBytes(doc, gp); r.IsObject() {
			if cur, ok := r.Value().(map[string]any); ok {
				merged = cur
			}
		}
		merged.Merge(partial)

		raw, err := marshal(merged)
		if err != nil {
			return nil, err
		}
		if doc, err = sjson.SetRawBytes(doc, gp, raw); err != nil {
			return nil, fmt.Errorf("set %s: %w", p.raw, err)
		}
	}
	return doc, nil
}

// deleteAt removes every location addressed by p and returns the removed
// values. Locations are removed back to front so array indexes stay valid.
func (p Path) deleteAt(doc []byte) ([]byte, []any, error) {
	paths := p.resolve(doc)
	removed := make([]any, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		r := gjson.GetBytes(doc, paths[i])
		if !r.Exists() {
			continue
		}
		var err error
		if doc, err = sjson.DeleteBytes(doc, paths[i]); err != nil {
			return nil, nil, fmt.Errorf("delete %s: %w", p.raw, err)
		}
		removed = append(removed, r.Value())
	}
	// Report in document order.
	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}
	return doc, removed, nil
}
