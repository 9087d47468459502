package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

type SegmentKind int

const (
	// SegmentLiteral matches any key of a fixed set.
	SegmentLiteral SegmentKind = iota
	// SegmentKeys captures every requested key.
	SegmentKeys
	// SegmentIntegers captures every requested integer key.
	SegmentIntegers
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentLiteral:
		return "literal"
	case SegmentKeys:
		return "keys"
	case SegmentIntegers:
		return "integers"
	default:
		return "unknown"
	}
}

// Segment is one position of a route pattern.
type Segment struct {
	Kind SegmentKind
	// Literals holds the accepted keys of a SegmentLiteral.
	Literals jsongraph.KeySet
	// Name binds the keys captured by SegmentKeys and SegmentIntegers.
	Name string
}

func (s Segment) accepts(k jsongraph.Key) bool {
	switch s.Kind {
	case SegmentKeys:
		return true
	case SegmentIntegers:
		return k.IsInteger()
	default:
		for _, lit := range s.Literals {
			if lit == k {
				return true
			}
		}
		return false
	}
}

// Pattern is a parsed route pattern such as videosById[{keys:videoIds}].rating["count","total"].
// A Pattern is immutable and safe for concurrent use.
type Pattern struct {
	raw      string
	segments []Segment
}

// MustParsePattern is like ParsePattern but panics on error.
func MustParsePattern(raw string) *Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePattern parses a dot separated route pattern. Identifiers are literal keys, brackets hold
// a list of quoted strings and integers, or a {keys:name} / {integers:name} capture.
func ParsePattern(raw string) (*Pattern, error) {
	p := &patternParser{input: raw}
	segments, err := p.parse()
	if err != nil {
		return nil, &ConfigurationError{Route: raw, Reason: err.Error()}
	}

	seen := make(map[string]struct{})
	for _, s := range segments {
		if s.Kind == SegmentLiteral {
			continue
		}
		if _, ok := seen[s.Name]; ok {
			return nil, &ConfigurationError{Route: raw, Reason: fmt.Sprintf("duplicate capture name '%s'", s.Name)}
		}
		seen[s.Name] = struct{}{}
	}

	return &Pattern{raw: raw, segments: segments}, nil
}

func (p *Pattern) String() string {
	return p.raw
}

// Len returns the number of segments.
func (p *Pattern) Len() int {
	return len(p.segments)
}

// Segments returns a copy of the segments of p.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Segment returns the i-th segment of p.
func (p *Pattern) Segment(i int) Segment {
	return p.segments[i]
}

// Captures returns the capture names in pattern order.
func (p *Pattern) Captures() []string {
	var names []string
	for _, s := range p.segments {
		if s.Kind != SegmentLiteral {
			names = append(names, s.Name)
		}
	}
	return names
}

// Overlaps reports whether some requested path could be claimed by both a and b.
// Two patterns overlap when every position they share accepts a common key.
func Overlaps(a, b *Pattern) bool {
	n := min(len(a.segments), len(b.segments))
	for i := 0; i < n; i++ {
		if !compatible(a.segments[i], b.segments[i]) {
			return false
		}
	}
	return true
}

func compatible(a, b Segment) bool {
	if a.Kind == SegmentLiteral && b.Kind == SegmentLiteral {
		for _, k := range a.Literals {
			if b.accepts(k) {
				return true
			}
		}
		return false
	}
	if a.Kind == SegmentLiteral {
		a, b = b, a
	}
	if b.Kind == SegmentLiteral {
		for _, k := range b.Literals {
			if a.accepts(k) {
				return true
			}
		}
		return false
	}
	return true
}

type patternParser struct {
	input string
	pos   int
}

func (p *patternParser) parse() ([]Segment, error) {
	if strings.TrimSpace(p.input) == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	var segments []Segment
	for p.pos < len(p.input) {
		switch c := p.input[p.pos]; {
		case c == '[':
			s, err := p.bracket()
			if err != nil {
				return nil, err
			}
			segments = append(segments, s)
		case c == '.':
			if len(segments) == 0 {
				return nil, fmt.Errorf("pattern starts with '.'")
			}
			p.pos++
			if p.pos >= len(p.input) || !isIdentStart(p.input[p.pos]) {
				return nil, fmt.Errorf("expected an identifier at offset %d", p.pos)
			}
		case isIdentStart(c):
			if len(segments) > 0 && p.input[p.pos-1] != '.' {
				return nil, fmt.Errorf("missing '.' before identifier at offset %d", p.pos)
			}
			segments = append(segments, Segment{Kind: SegmentLiteral, Literals: jsongraph.KeySet{jsongraph.StringKey(p.ident())}})
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, p.pos)
		}
	}

	return segments, nil
}

func (p *patternParser) ident() string {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// bracket parses [ ... ] starting at the opening bracket.
func (p *patternParser) bracket() (Segment, error) {
	p.pos++
	p.skipSpace()

	if p.peek() == '{' {
		s, err := p.capture()
		if err != nil {
			return Segment{}, err
		}
		p.skipSpace()
		if err := p.expect(']'); err != nil {
			return Segment{}, err
		}
		return s, nil
	}

	literals := jsongraph.KeySet{}
	for {
		p.skipSpace()
		switch c := p.peek(); {
		case c == ']':
			p.pos++
			if len(literals) == 0 {
				return Segment{}, fmt.Errorf("empty key list")
			}
			return Segment{Kind: SegmentLiteral, Literals: literals}, nil
		case c == '"' || c == '\'':
			s, err := p.quoted(c)
			if err != nil {
				return Segment{}, err
			}
			literals = append(literals, jsongraph.StringKey(s))
		case c == '-' || isDigit(c):
			n, err := p.integer()
			if err != nil {
				return Segment{}, err
			}
			literals = append(literals, jsongraph.IntKey(n))
		default:
			return Segment{}, fmt.Errorf("unexpected character %q at offset %d", c, p.pos)
		}

		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if p.peek() != ']' {
			return Segment{}, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

// capture parses {keys:name} or {integers:name}.
func (p *patternParser) capture() (Segment, error) {
	p.pos++
	p.skipSpace()

	var kind SegmentKind
	switch word := p.ident(); word {
	case "keys":
		kind = SegmentKeys
	case "integers":
		kind = SegmentIntegers
	default:
		return Segment{}, fmt.Errorf("unknown capture type '%s'", word)
	}

	p.skipSpace()
	if err := p.expect(':'); err != nil {
		return Segment{}, err
	}
	p.skipSpace()
	if !isIdentStart(p.peek()) {
		return Segment{}, fmt.Errorf("expected a capture name at offset %d", p.pos)
	}
	name := p.ident()
	p.skipSpace()
	if err := p.expect('}'); err != nil {
		return Segment{}, err
	}

	return Segment{Kind: kind, Name: name}, nil
}

func (p *patternParser) quoted(quote byte) (string, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '\\':
			p.pos += 2
		case quote:
			p.pos++
			body := p.input[start+1 : p.pos-1]
			if quote == '\'' {
				body = strings.ReplaceAll(body, `\'`, `'`)
				body = strings.ReplaceAll(body, `"`, `\"`)
			}
			s, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return "", fmt.Errorf("malformed string at offset %d", start)
			}
			return s, nil
		default:
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string at offset %d", start)
}

func (p *patternParser) integer() (int64, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
		p.pos++
	}
	n, err := strconv.ParseInt(p.input[start:p.pos], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed integer at offset %d", start)
	}
	return n, nil
}

func (p *patternParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *patternParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *patternParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
