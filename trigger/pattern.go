package trigger

import (
	"fmt"
	"strings"
)

// Pattern is a document path template such as
// "clientes/{clienteId}/transacoes/{dr}/items/{itemId}".
type Pattern struct {
	raw      string
	segments []string
}

func ParsePattern(raw string) (Pattern, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty document pattern")
	}
	segments := strings.Split(raw, "/")
	if len(segments)%2 != 0 {
		return Pattern{}, fmt.Errorf("document pattern %q must have an even number of segments", raw)
	}
	seen := map[string]bool{}
	for _, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("document pattern %q has an empty segment", raw)
		}
		if name, ok := wildcard(seg); ok {
			if name == "" || seen[name] {
				return Pattern{}, fmt.Errorf("document pattern %q has an invalid wildcard %q", raw, seg)
			}
			seen[name] = true
		}
	}
	return Pattern{raw: raw, segments: segments}, nil
}

// MustParsePattern is ParsePattern for package-level patterns.
func MustParsePattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) String() string { return p.raw }

// Match returns the wildcard values when path names a document matching p.
func (p Pattern) Match(path string) (map[string]string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != len(p.segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range p.segments {
		if parts[i] == "" {
			return nil, false
		}
		if name, ok := wildcard(seg); ok {
			params[name] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// Names lists the wildcard names in path order.
func (p Pattern) Names() []string {
	var names []string
	for _, seg := range p.segments {
		if name, ok := wildcard(seg); ok {
			names = append(names, name)
		}
	}
	return names
}

func wildcard(seg string) (string, bool) {
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
