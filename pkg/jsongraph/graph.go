package jsongraph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrConflictingEntries = errors.New("conflicting graph entries")

var (
	_ json.Marshaler        = (*Graph)(nil)
	_ msgpack.CustomEncoder = (*Graph)(nil)
)

type node struct {
	children map[string]*node
	entry    *Entry
}

// Graph assembles entries into a sparse JSON Graph. Keys are compared by their
// member name, so integer key 3 and string key "3" address the same location.
// A Graph is not safe for concurrent use.
type Graph struct {
	root    *node
	entries []Entry
}

func NewGraph() *Graph {
	return &Graph{root: &node{}}
}

// Add places e in the graph. It fails with ErrConflictingEntries when the location
// already holds an entry, or when e's path runs through or under another entry.
func (g *Graph) Add(e Entry) error {
	if len(e.Path) == 0 {
		return fmt.Errorf("%w: entry has an empty path", ErrConflictingEntries)
	}

	n := g.root
	for _, k := range e.Path {
		if n.entry != nil {
			return fmt.Errorf("%w: %s lies under %s", ErrConflictingEntries, e.Path, n.entry.Path)
		}
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[k.String()]
		if !ok {
			child = &node{}
			n.children[k.String()] = child
		}
		n = child
	}

	if n.entry != nil {
		return fmt.Errorf("%w: %s is set twice", ErrConflictingEntries, e.Path)
	}
	if len(n.children) > 0 {
		return fmt.Errorf("%w: %s covers existing entries", ErrConflictingEntries, e.Path)
	}

	n.entry = &e
	g.entries = append(g.entries, e)
	return nil
}

// Lookup returns the entry stored exactly at path.
func (g *Graph) Lookup(path Path) (Entry, bool) {
	n := g.root
	for _, k := range path {
		child, ok := n.children[k.String()]
		if !ok {
			return Entry{}, false
		}
		n = child
	}
	if n.entry == nil {
		return Entry{}, false
	}
	return *n.entry, true
}

// Entries returns the entries of g in insertion order.
func (g *Graph) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	copy(out, g.entries)
	return out
}

func (g *Graph) Len() int {
	return len(g.entries)
}

type envelope struct {
	JSONGraph map[string]any `json:"jsonGraph" msgpack:"jsonGraph"`
	Paths     [][]any        `json:"paths" msgpack:"paths"`
}

func (g *Graph) envelope() envelope {
	paths := make([][]any, 0, len(g.entries))
	for _, e := range g.entries {
		paths = append(paths, e.Path.Values())
	}
	return envelope{
		JSONGraph: g.root.tree(),
		Paths:     paths,
	}
}

func (n *node) tree() map[string]any {
	out := make(map[string]any, len(n.children))
	for name, child := range n.children {
		if child.entry != nil {
			out[name] = child.entry.sentinel()
			continue
		}
		out[name] = child.tree()
	}
	return out
}

// sentinel renders the entry as a JSON Graph leaf.
func (e *Entry) sentinel() any {
	if e.Err != nil {
		return map[string]any{"$type": "error", "value": e.Err}
	}

	switch v := e.Value.(type) {
	case nil:
		return map[string]any{"$type": "atom"}
	case Ref:
		return map[string]any{"$type": "ref", "value": Path(v).Values()}
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return map[string]any{"$type": "atom", "value": v}
	}
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.envelope())
}

func (g *Graph) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(g.envelope())
}
