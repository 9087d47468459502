package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

var ErrUnknownProperty = errors.New("unknown property")

// Picker extracts the value of one property out of a backend result.
type Picker[Res any] interface {
	Pick(property jsongraph.Key, result Res) (any, error)
	// Properties lists the property names the picker serves. nil means any property.
	Properties() []string
}

type responsePicker[Res any] struct {
	extractors map[string]func(Res) any
}

// ResponsePicker picks by exact property name. A property without an extractor yields
// ErrUnknownProperty, and routes listing such a property are rejected when the router loads.
func ResponsePicker[Res any](extractors map[string]func(Res) any) Picker[Res] {
	return &responsePicker[Res]{extractors: extractors}
}

func (p *responsePicker[Res]) Pick(property jsongraph.Key, result Res) (any, error) {
	extract, ok := p.extractors[property.String()]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownProperty, property)
	}
	return extract(result), nil
}

func (p *responsePicker[Res]) Properties() []string {
	names := make([]string, 0, len(p.extractors))
	for name := range p.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type defaultPicker[Res any] struct{}

// DefaultResponsePicker returns the whole result whatever the property.
func DefaultResponsePicker[Res any]() Picker[Res] {
	return defaultPicker[Res]{}
}

func (defaultPicker[Res]) Pick(_ jsongraph.Key, result Res) (any, error) {
	return result, nil
}

func (defaultPicker[Res]) Properties() []string {
	return nil
}

// PickerFunc adapts a function to a Picker serving any property.
type PickerFunc[Res any] func(property jsongraph.Key, result Res) (any, error)

func (f PickerFunc[Res]) Pick(property jsongraph.Key, result Res) (any, error) {
	return f(property, result)
}

func (f PickerFunc[Res]) Properties() []string {
	return nil
}
