// Package jsongraph models the sparse result graph returned to graph-query
// clients: path keys, requested path sets, result entries and the
// assembled JSON Graph envelope.
package jsongraph

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key is a single path key. It holds either a string or an integer.
// The zero value is the empty string key.
type Key struct {
	str   string
	num   int64
	isInt bool
}

// StringKey returns a string key.
func StringKey(s string) Key {
	return Key{str: s}
}

// IntKey returns an integer key.
func IntKey(n int64) Key {
	return Key{num: n, isInt: true}
}

// IsInteger reports whether k is an integer key.
func (k Key) IsInteger() bool {
	return k.isInt
}

// Integer returns the integer value of k and whether k is an integer key.
func (k Key) Integer() (int64, bool) {
	return k.num, k.isInt
}

// String returns the JSON Graph member name of k. Integer keys are rendered in decimal.
func (k Key) String() string {
	if k.isInt {
		return strconv.FormatInt(k.num, 10)
	}
	return k.str
}

// Value returns k as a string or an int64.
func (k Key) Value() any {
	if k.isInt {
		return k.num
	}
	return k.str
}

func (k Key) Equal(other Key) bool {
	return k == other
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Value())
}

// KeySet is the set of keys requested at one position of a path set.
type KeySet []Key

// Path is a concrete, ordered sequence of keys.
type Path []Key

// PathOf builds a path from strings, integers and keys. It panics on any other type
// and is meant for route tables and tests.
func PathOf(keys ...any) Path {
	p := make(Path, 0, len(keys))
	for _, k := range keys {
		p = append(p, keyOf(k))
	}
	return p
}

func keyOf(v any) Key {
	switch k := v.(type) {
	case Key:
		return k
	case string:
		return StringKey(k)
	case int:
		return IntKey(int64(k))
	case int32:
		return IntKey(int64(k))
	case int64:
		return IntKey(k)
	default:
		panic(fmt.Sprintf("jsongraph: unsupported key type %T", v))
	}
}

// Equal reports whether p and other hold identical keys.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading subsequence of p.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

// Append returns a new path made of p followed by keys.
func (p Path) Append(keys ...Key) Path {
	out := make(Path, 0, len(p)+len(keys))
	out = append(out, p...)
	return append(out, keys...)
}

// Values returns the keys of p as strings and int64s.
func (p Path) Values() []any {
	out := make([]any, len(p))
	for i, k := range p {
		out[i] = k.Value()
	}
	return out
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, k := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		if k.isInt {
			b.WriteString(strconv.FormatInt(k.num, 10))
		} else {
			b.WriteString(strconv.Quote(k.str))
		}
	}
	b.WriteByte(']')
	return b.String()
}

// PathSet is a requested path where every position may hold several keys.
type PathSet []KeySet

// PathSetOf builds a path set. Each argument is either a single key (string, integer or Key)
// or a key set ([]string, []int, []any or KeySet). It panics on any other type.
func PathSetOf(positions ...any) PathSet {
	ps := make(PathSet, 0, len(positions))
	for _, pos := range positions {
		switch v := pos.(type) {
		case KeySet:
			ps = append(ps, v)
		case []string:
			ks := make(KeySet, 0, len(v))
			for _, s := range v {
				ks = append(ks, StringKey(s))
			}
			ps = append(ps, ks)
		case []int:
			ks := make(KeySet, 0, len(v))
			for _, n := range v {
				ks = append(ks, IntKey(int64(n)))
			}
			ps = append(ps, ks)
		case []any:
			ks := make(KeySet, 0, len(v))
			for _, k := range v {
				ks = append(ks, keyOf(k))
			}
			ps = append(ps, ks)
		default:
			ps = append(ps, KeySet{keyOf(v)})
		}
	}
	return ps
}

// Count returns the number of paths Expand would produce, saturating at math.MaxInt.
func (ps PathSet) Count() int {
	if len(ps) == 0 {
		return 0
	}
	n := 1
	for _, ks := range ps {
		if len(ks) == 0 {
			return 0
		}
		if n > math.MaxInt/len(ks) {
			return math.MaxInt
		}
		n *= len(ks)
	}
	return n
}

// Expand returns the cartesian product of ps, leftmost position varying slowest.
// An empty key set at any position yields no paths.
func (ps PathSet) Expand() []Path {
	if len(ps) == 0 {
		return nil
	}

	paths := []Path{{}}
	for _, ks := range ps {
		next := make([]Path, 0, len(paths)*len(ks))
		for _, p := range paths {
			for _, k := range ks {
				next = append(next, p.Append(k))
			}
		}
		paths = next
	}
	return paths
}
