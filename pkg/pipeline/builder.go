package pipeline

import (
	"context"
	"fmt"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
)

// RequestBuilder groups matches and builds one backend request per group.
type RequestBuilder[Req any] struct {
	depth int
	build func(g Group) (Req, error)
}

var (
	_ Stage[[]router.Match, []Call[struct{}]] = (*RequestBuilder[struct{}])(nil)
	_ router.Validator                        = (*RequestBuilder[struct{}])(nil)
)

// CreateRequestsFromPaths groups matches whose first depth keys are identical and calls build
// once per group with the path of the group's first match. A build error fails only that group.
func CreateRequestsFromPaths[Req any](depth int, build func(path jsongraph.Path) (Req, error)) *RequestBuilder[Req] {
	return &RequestBuilder[Req]{
		depth: depth,
		build: func(g Group) (Req, error) {
			return build(g.Matches[0].Path)
		},
	}
}

// CreateRequestFromPaths builds a single request out of every match of the route.
func CreateRequestFromPaths[Req any](build func(paths []jsongraph.Path) (Req, error)) *RequestBuilder[Req] {
	return &RequestBuilder[Req]{
		depth: 0,
		build: func(g Group) (Req, error) {
			paths := make([]jsongraph.Path, 0, len(g.Matches))
			for _, m := range g.Matches {
				paths = append(paths, m.Path)
			}
			return build(paths)
		},
	}
}

// Depth returns the number of leading keys that identify a group.
func (b *RequestBuilder[Req]) Depth() int {
	return b.depth
}

func (b *RequestBuilder[Req]) Validate(pattern *router.Pattern) error {
	if b.depth < 0 || b.depth > pattern.Len() {
		return fmt.Errorf("grouping depth %d is outside pattern of length %d", b.depth, pattern.Len())
	}
	return nil
}

// Run groups matches in first seen order. Call i is built from group i.
func (b *RequestBuilder[Req]) Run(_ context.Context, matches []router.Match) ([]Call[Req], error) {
	var groups []Group
	index := make(map[string]int)
	for _, m := range matches {
		prefix := m.Path[:min(b.depth, len(m.Path))]
		key := prefix.String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Prefix: prefix})
		}
		groups[i].Matches = append(groups[i].Matches, m)
	}

	calls := make([]Call[Req], len(groups))
	for i, g := range groups {
		calls[i].Group = g
		calls[i].Request, calls[i].Err = b.build(g)
	}
	return calls, nil
}
