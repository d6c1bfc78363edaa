// Package keyexpr implements key expressions: slash-separated resource
// addresses with wildcard matching.
//
// A key expression is a non-empty sequence of chunks separated by '/'.
// A chunk is either a verbatim string, the single-chunk wildcard "*",
// the multi-chunk wildcard "**", or a verbatim string containing the
// sub-chunk wildcard "$*" (matching any run of characters within one
// chunk). The characters '/', '*', '$', '#' and '?' carry structure and
// may not appear verbatim inside a chunk.
package keyexpr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty is returned for the empty string, which addresses nothing.
	ErrEmpty = errors.New("keyexpr: empty key expression")
	// ErrMalformed is returned for structurally invalid expressions.
	ErrMalformed = errors.New("keyexpr: malformed key expression")
)

// KeyExpr is a validated, canonized key expression.
type KeyExpr struct {
	str    string
	chunks []string
}

// New validates and canonizes s. It returns ErrEmpty for "" and
// ErrMalformed for anything that violates chunk structure.
func New(s string) (*KeyExpr, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return nil, fmt.Errorf("%w: %q has a leading or trailing '/'", ErrMalformed, s)
	}
	chunks := strings.Split(s, "/")
	for _, c := range chunks {
		if err := validateChunk(c); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
		}
	}
	chunks = canonize(chunks)
	return &KeyExpr{str: strings.Join(chunks, "/"), chunks: chunks}, nil
}

func validateChunk(c string) error {
	if c == "" {
		return errors.New("empty chunk")
	}
	if c == "*" || c == "**" {
		return nil
	}
	for i := 0; i < len(c); i++ {
		switch c[i] {
		case '#', '?':
			return fmt.Errorf("reserved character %q", c[i])
		case '*':
			// '*' inside a verbatim chunk is only legal as part of "$*".
			if i == 0 || c[i-1] != '$' {
				return errors.New("'*' must be a whole chunk or preceded by '$'")
			}
		case '$':
			if i+1 >= len(c) || c[i+1] != '*' {
				return errors.New("'$' must be followed by '*'")
			}
		}
	}
	return nil
}

// canonize collapses runs of "**" and absorbs "*" chunks adjacent to a
// "**" into it ("**/*" and "*/**" address the same set as "**" plus one
// mandatory chunk, which canonizes to "*/**").
func canonize(chunks []string) []string {
	out := chunks[:0:0]
	for _, c := range chunks {
		n := len(out)
		if c == "**" && n > 0 && out[n-1] == "**" {
			continue
		}
		// Keep "**" rightmost across adjacent "*" so "**/*" and
		// "*/**" share one canonical form.
		if c == "*" && n > 0 && out[n-1] == "**" {
			out[n-1] = "*"
			c = "**"
		}
		out = append(out, c)
	}
	return out
}

// String returns the canonized textual form.
func (k *KeyExpr) String() string { return k.str }

// IsWild reports whether k contains any wildcard.
func (k *KeyExpr) IsWild() bool {
	for _, c := range k.chunks {
		if c == "*" || c == "**" || strings.Contains(c, "$*") {
			return true
		}
	}
	return false
}

// Intersects reports whether k and o address at least one common key.
func (k *KeyExpr) Intersects(o *KeyExpr) bool {
	return intersect(k.chunks, o.chunks)
}

// Includes reports whether every key addressed by o is also addressed
// by k.
func (k *KeyExpr) Includes(o *KeyExpr) bool {
	return include(k.chunks, o.chunks)
}

// Matches reports whether the literal key s is addressed by k. It is a
// convenience for matching published keys against declared expressions.
func (k *KeyExpr) Matches(s string) bool {
	o, err := New(s)
	if err != nil {
		return false
	}
	return k.Intersects(o)
}

func intersect(a, b []string) bool {
	switch {
	case len(a) == 0:
		return len(b) == 0 || allSuper(b)
	case len(b) == 0:
		return allSuper(a)
	case a[0] == "**":
		// "**" consumes zero chunks, or one chunk of b.
		return intersect(a[1:], b) || intersect(a, b[1:])
	case b[0] == "**":
		return intersect(a, b[1:]) || intersect(a[1:], b)
	case chunkIntersects(a[0], b[0]):
		return intersect(a[1:], b[1:])
	}
	return false
}

func include(a, b []string) bool {
	switch {
	case len(a) == 0:
		return len(b) == 0
	case a[0] == "**":
		if include(a[1:], b) {
			return true
		}
		return len(b) > 0 && include(a, b[1:])
	case len(b) == 0 || b[0] == "**":
		return false
	case chunkIncludes(a[0], b[0]):
		return include(a[1:], b[1:])
	}
	return false
}

func allSuper(chunks []string) bool {
	for _, c := range chunks {
		if c != "**" {
			return false
		}
	}
	return true
}

// chunkIntersects decides whether two single chunks can address a
// common value. For chunks carrying "$*" it checks that the fixed
// prefixes and suffixes are mutually compatible, which is exact for the
// single-"$*" forms produced in practice.
func chunkIntersects(a, b string) bool {
	if a == "*" || b == "*" {
		return true
	}
	aw, bw := strings.Contains(a, "$*"), strings.Contains(b, "$*")
	switch {
	case !aw && !bw:
		return a == b
	case aw && !bw:
		return subMatch(a, b)
	case !aw && bw:
		return subMatch(b, a)
	}
	ap, as := fixedEnds(a)
	bp, bs := fixedEnds(b)
	return (strings.HasPrefix(ap, bp) || strings.HasPrefix(bp, ap)) &&
		(strings.HasSuffix(as, bs) || strings.HasSuffix(bs, as))
}

func chunkIncludes(a, b string) bool {
	if a == "*" {
		return b != "**"
	}
	if strings.Contains(a, "$*") {
		if strings.Contains(b, "$*") || b == "*" {
			return false
		}
		return subMatch(a, b)
	}
	return a == b
}

// subMatch matches the literal chunk s against pattern p, where each
// "$*" in p matches any (possibly empty) run of characters.
func subMatch(p, s string) bool {
	parts := strings.Split(p, "$*")
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

func fixedEnds(p string) (prefix, suffix string) {
	first := strings.Index(p, "$*")
	last := strings.LastIndex(p, "$*")
	return p[:first], p[last+2:]
}
