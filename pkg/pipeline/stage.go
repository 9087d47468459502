// Package pipeline provides typed stages that turn the matches of a route into backend
// requests, execute them concurrently and map the results back onto graph entries.
package pipeline

import (
	"context"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
)

// Stage transforms the output of the previous stage into the input of the next one.
type Stage[In, Out any] interface {
	Run(ctx context.Context, in In) (Out, error)
}

type StageFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

func (f StageFunc[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// Then composes two stages left to right.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return StageFunc[A, C](func(ctx context.Context, in A) (C, error) {
		mid, err := first.Run(ctx, in)
		if err != nil {
			var zero C
			return zero, err
		}
		return second.Run(ctx, mid)
	})
}

// Group is a set of matches sharing the same leading keys.
type Group struct {
	Prefix  jsongraph.Path
	Matches []router.Match
}

// Call is the backend request built for one group, or the error that prevented building it.
type Call[Req any] struct {
	Group   Group
	Request Req
	Err     error
}

// Outcome pairs the result of a call with the group it was built from.
type Outcome[Res any] struct {
	Group Group
	Value Res
	Err   error
}

// depther is implemented by stages whose behavior depends on a grouping depth.
type depther interface {
	Depth() int
}
