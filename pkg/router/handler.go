package router

import (
	"context"
	"encoding/json"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

// GetHandler resolves every match a route claimed in one request.
// It must return one entry per match; failures belong in error entries.
type GetHandler interface {
	Get(ctx context.Context, matches []Match) ([]jsongraph.Entry, error)
}

// CallHandler performs a mutation on a single matched path.
type CallHandler interface {
	Call(ctx context.Context, match Match, args []json.RawMessage) ([]jsongraph.Entry, error)
}

// Validator is implemented by handlers that can check themselves against the pattern
// they are bound to. New runs it while loading the route table.
type Validator interface {
	Validate(pattern *Pattern) error
}

type GetHandlerFunc func(ctx context.Context, matches []Match) ([]jsongraph.Entry, error)

func (f GetHandlerFunc) Get(ctx context.Context, matches []Match) ([]jsongraph.Entry, error) {
	return f(ctx, matches)
}

type CallHandlerFunc func(ctx context.Context, match Match, args []json.RawMessage) ([]jsongraph.Entry, error)

func (f CallHandlerFunc) Call(ctx context.Context, match Match, args []json.RawMessage) ([]jsongraph.Entry, error) {
	return f(ctx, match, args)
}

// Route declares a pattern and the handlers serving it. Either handler may be nil.
type Route struct {
	Pattern string
	Get     GetHandler
	Call    CallHandler
}
