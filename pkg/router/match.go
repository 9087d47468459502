package router

import (
	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

type capture struct {
	name string
	key  jsongraph.Key
}

// Match is one concrete path claimed by a route pattern.
type Match struct {
	// Path has exactly one key per pattern segment.
	Path jsongraph.Path
	// Suffix holds the requested positions beyond the end of the pattern.
	Suffix jsongraph.PathSet

	captures []capture
}

// Captured returns the key bound to the named capture.
func (m Match) Captured(name string) (jsongraph.Key, bool) {
	for _, c := range m.captures {
		if c.name == name {
			return c.key, true
		}
	}
	return jsongraph.Key{}, false
}

// Captures returns the captured keys by name.
func (m Match) Captures() map[string]jsongraph.Key {
	out := make(map[string]jsongraph.Key, len(m.captures))
	for _, c := range m.captures {
		out[c.name] = c.key
	}
	return out
}

// Property returns the last key of the matched path.
func (m Match) Property() jsongraph.Key {
	return m.Path[len(m.Path)-1]
}

// Match expands ps against p. It returns one Match per combination of accepted keys, in
// requested order, or nil when ps is shorter than p or some position accepts no key.
func (p *Pattern) Match(ps jsongraph.PathSet) []Match {
	if len(ps) < len(p.segments) {
		return nil
	}

	accepted := make([]jsongraph.KeySet, len(p.segments))
	for i, s := range p.segments {
		keys := make(jsongraph.KeySet, 0, len(ps[i]))
		seen := make(map[jsongraph.Key]struct{}, len(ps[i]))
		for _, k := range ps[i] {
			if !s.accepts(k) {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			return nil
		}
		accepted[i] = keys
	}

	var suffix jsongraph.PathSet
	if len(ps) > len(p.segments) {
		suffix = ps[len(p.segments):]
	}

	paths := jsongraph.PathSet(accepted).Expand()
	matches := make([]Match, 0, len(paths))
	for _, path := range paths {
		matches = append(matches, p.newMatch(path, suffix))
	}
	return matches
}

// MatchPath matches a single concrete path.
func (p *Pattern) MatchPath(path jsongraph.Path) (Match, bool) {
	if len(path) < len(p.segments) {
		return Match{}, false
	}
	for i, s := range p.segments {
		if !s.accepts(path[i]) {
			return Match{}, false
		}
	}

	var suffix jsongraph.PathSet
	for _, k := range path[len(p.segments):] {
		suffix = append(suffix, jsongraph.KeySet{k})
	}

	return p.newMatch(path[:len(p.segments)].Append(), suffix), true
}

func (p *Pattern) newMatch(path jsongraph.Path, suffix jsongraph.PathSet) Match {
	m := Match{Path: path, Suffix: suffix}
	for i, s := range p.segments {
		if s.Kind != SegmentLiteral {
			m.captures = append(m.captures, capture{name: s.Name, key: path[i]})
		}
	}
	return m
}
