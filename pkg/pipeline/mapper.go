package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
)

// ResultMapper expands every outcome back into one entry per match of its group.
type ResultMapper[Res any] struct {
	depth  int
	picker Picker[Res]
	value  func(m router.Match, result Res) (any, error)
}

var (
	_ Stage[[]Outcome[struct{}], []jsongraph.Entry] = (*ResultMapper[struct{}])(nil)
	_ router.Validator                              = (*ResultMapper[struct{}])(nil)
)

// MapProps places picker's value for the trailing key of each match. depth must equal the
// grouping depth used to build the requests. A failed outcome yields an error entry for each
// of its matches.
func MapProps[Res any](depth int, picker Picker[Res]) *ResultMapper[Res] {
	return &ResultMapper[Res]{
		depth:  depth,
		picker: picker,
		value: func(m router.Match, result Res) (any, error) {
			return picker.Pick(m.Property(), result)
		},
	}
}

// MapValues computes each match's value from the match itself and the result of its group.
func MapValues[Res any](depth int, value func(m router.Match, result Res) (any, error)) *ResultMapper[Res] {
	return &ResultMapper[Res]{depth: depth, value: value}
}

func (m *ResultMapper[Res]) Depth() int {
	return m.depth
}

// Validate checks that a tail property list only names properties the picker serves.
func (m *ResultMapper[Res]) Validate(pattern *router.Pattern) error {
	if m.depth < 0 || m.depth > pattern.Len() {
		return fmt.Errorf("mapping depth %d is outside pattern of length %d", m.depth, pattern.Len())
	}
	if m.picker == nil {
		return nil
	}

	properties := m.picker.Properties()
	if properties == nil {
		return nil
	}

	tail := pattern.Segment(pattern.Len() - 1)
	if tail.Kind != router.SegmentLiteral {
		return fmt.Errorf("pattern must end with a property list, got a %s capture", tail.Kind)
	}
	for _, k := range tail.Literals {
		if !slices.Contains(properties, k.String()) {
			return fmt.Errorf("%w: no extractor for '%s'", ErrUnknownProperty, k)
		}
	}
	return nil
}

func (m *ResultMapper[Res]) Run(_ context.Context, outcomes []Outcome[Res]) ([]jsongraph.Entry, error) {
	var entries []jsongraph.Entry
	for _, o := range outcomes {
		for _, match := range o.Group.Matches {
			if o.Err != nil {
				entries = append(entries, jsongraph.NewError(match.Path, o.Err))
				continue
			}

			v, err := m.value(match, o.Value)
			if err != nil {
				entries = append(entries, jsongraph.NewError(match.Path, err))
				continue
			}
			entries = append(entries, jsongraph.NewValue(match.Path, v))
		}
	}
	return entries, nil
}
