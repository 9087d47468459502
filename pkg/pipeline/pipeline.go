package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
)

// GetPipeline is a router.GetHandler made of a request builder, an executor and a result mapper.
type GetPipeline[Req, Res any] struct {
	stages []any
	run    Stage[[]router.Match, []jsongraph.Entry]
}

var (
	_ router.GetHandler = (*GetPipeline[struct{}, struct{}])(nil)
	_ router.Validator  = (*GetPipeline[struct{}, struct{}])(nil)
)

// CreateGetPipeline threads matches through build, execute and mapResults in that order.
func CreateGetPipeline[C, Req, Res any](
	build *RequestBuilder[Req],
	execute *Executor[C, Req, Res],
	mapResults *ResultMapper[Res],
) *GetPipeline[Req, Res] {
	requests := Then[[]router.Match, []Call[Req], []Outcome[Res]](build, execute)
	return &GetPipeline[Req, Res]{
		stages: []any{build, execute, mapResults},
		run:    Then[[]router.Match, []Outcome[Res], []jsongraph.Entry](requests, mapResults),
	}
}

func (p *GetPipeline[Req, Res]) Get(ctx context.Context, matches []router.Match) ([]jsongraph.Entry, error) {
	return p.run.Run(ctx, matches)
}

// Validate runs every stage's own validation and checks that the stages that group and
// ungroup matches agree on their depth.
func (p *GetPipeline[Req, Res]) Validate(pattern *router.Pattern) error {
	depth := -1
	for _, s := range p.stages {
		if v, ok := s.(router.Validator); ok {
			if err := v.Validate(pattern); err != nil {
				return err
			}
		}
		d, ok := s.(depther)
		if !ok {
			continue
		}
		if depth >= 0 && d.Depth() != depth {
			return fmt.Errorf("requests are grouped at depth %d but results are mapped at depth %d", depth, d.Depth())
		}
		depth = d.Depth()
	}
	return nil
}

// CallPipeline is a router.CallHandler performing one unbatched backend request.
type CallPipeline[C, Req, Res any] struct {
	build     func(m router.Match, args []json.RawMessage) (Req, error)
	executor  *Executor[C, Req, Res]
	mapResult func(m router.Match, result Res) ([]jsongraph.Entry, error)
}

var _ router.CallHandler = (*CallPipeline[struct{}, struct{}, struct{}])(nil)

// CreateCallPipeline builds a request from the matched path and the call arguments, invokes
// the backend and maps its single result to entries.
func CreateCallPipeline[C, Req, Res any](
	build func(m router.Match, args []json.RawMessage) (Req, error),
	client C,
	invoke Invoker[C, Req, Res],
	mapResult func(m router.Match, result Res) ([]jsongraph.Entry, error),
	opts ...ExecutorOption,
) *CallPipeline[C, Req, Res] {
	return &CallPipeline[C, Req, Res]{
		build:     build,
		executor:  DoRequests(client, invoke, opts...),
		mapResult: mapResult,
	}
}

func (p *CallPipeline[C, Req, Res]) Call(ctx context.Context, m router.Match, args []json.RawMessage) ([]jsongraph.Entry, error) {
	req, err := p.build(m, args)
	if err != nil {
		return nil, err
	}

	res, err := p.executor.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	return p.mapResult(m, res)
}
