package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
	"github.com/HadesArchitect/killrvideo-web/pkg/telemetry"
)

var tracer = otel.Tracer("pkg/router")

// DefaultMaxPaths bounds how many concrete paths one get request may expand to.
const DefaultMaxPaths = 10000

var (
	matchedPathsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "router_matched_paths_total",
		Help:      "The total number of requested paths claimed by a route.",
	})

	unmatchedPathsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "router_unmatched_paths_total",
		Help:      "The total number of requested paths that no route claimed.",
	})
)

type route struct {
	pattern *Pattern
	get     GetHandler
	call    CallHandler
}

// Router dispatches graph queries to an ordered, immutable route table.
// It is safe for concurrent use.
type Router struct {
	routes              []route
	getLengths          []int
	logger              logger.Logger
	maxConcurrentRoutes int
	maxPaths            int
}

type RouterOption func(r *Router)

func WithLogger(l logger.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithMaxConcurrentRoutes bounds how many route handlers run at once for one request.
// A value <= 0 means no bound.
func WithMaxConcurrentRoutes(n int) RouterOption {
	return func(r *Router) {
		r.maxConcurrentRoutes = n
	}
}

// WithMaxPaths bounds how many concrete paths the path sets of one get request may
// expand to. A value <= 0 means no bound.
func WithMaxPaths(n int) RouterOption {
	return func(r *Router) {
		r.maxPaths = n
	}
}

// New parses and validates the route table. Patterns are tried in the given order.
// Any malformed pattern, failing handler validation or pair of overlapping patterns
// yields a *ConfigurationError.
func New(routes []Route, opts ...RouterOption) (*Router, error) {
	r := &Router{
		logger:   logger.NewNoopLogger(),
		maxPaths: DefaultMaxPaths,
	}
	for _, opt := range opts {
		opt(r)
	}

	lengths := make(map[int]struct{})
	for _, decl := range routes {
		pattern, err := ParsePattern(decl.Pattern)
		if err != nil {
			return nil, err
		}

		for _, h := range []any{decl.Get, decl.Call} {
			v, ok := h.(Validator)
			if !ok {
				continue
			}
			if err := v.Validate(pattern); err != nil {
				return nil, &ConfigurationError{Route: decl.Pattern, Reason: "handler does not fit the pattern", Err: err}
			}
		}

		for _, existing := range r.routes {
			if Overlaps(existing.pattern, pattern) {
				return nil, &ConfigurationError{
					Route:  decl.Pattern,
					Reason: fmt.Sprintf("overlaps route '%s'", existing.pattern),
				}
			}
		}

		r.routes = append(r.routes, route{pattern: pattern, get: decl.Get, call: decl.Call})
		if decl.Get != nil {
			if _, ok := lengths[pattern.Len()]; !ok {
				lengths[pattern.Len()] = struct{}{}
				r.getLengths = append(r.getLengths, pattern.Len())
			}
		}

		r.logger.Debug("registered route",
			logger.String("route", decl.Pattern),
			logger.Bool("get", decl.Get != nil),
			logger.Bool("call", decl.Call != nil))
	}

	r.logger.Info(fmt.Sprintf("loaded %d routes", len(r.routes)))
	return r, nil
}

// Get resolves a batch of requested path sets into one graph. Per-path failures are
// reported as error entries. An error is returned only when ctx is done or when two
// entries claim the same location, which means the route table is misconfigured, or
// when the request expands to more paths than allowed (*TooManyPathsError).
func (r *Router) Get(ctx context.Context, pathSets []jsongraph.PathSet) (*jsongraph.Graph, error) {
	ctx, span := tracer.Start(ctx, "router.Get", trace.WithAttributes(
		attribute.Int("path_sets", len(pathSets)),
	))
	defer span.End()

	if err := r.checkPathCount(pathSets); err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	claimed := make(map[string]struct{})
	matchesByRoute := make([][]Match, len(r.routes))
	for _, ps := range pathSets {
		for i, rt := range r.routes {
			if rt.get == nil {
				continue
			}
			for _, m := range rt.pattern.Match(ps) {
				key := m.Path.String()
				if _, ok := claimed[key]; ok {
					continue
				}
				claimed[key] = struct{}{}
				matchesByRoute[i] = append(matchesByRoute[i], m)
			}
		}
	}
	matchedPathsCounter.Add(float64(len(claimed)))

	results := make([][]jsongraph.Entry, len(r.routes))
	pool, poolCtx := errgroup.WithContext(ctx)
	if r.maxConcurrentRoutes > 0 {
		pool.SetLimit(r.maxConcurrentRoutes)
	}
	for i, matches := range matchesByRoute {
		if len(matches) == 0 {
			continue
		}
		pool.Go(func() error {
			results[i] = r.resolve(poolCtx, r.routes[i], matches)
			return nil
		})
	}
	_ = pool.Wait()

	if err := ctx.Err(); err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	graph := jsongraph.NewGraph()
	for _, entries := range results {
		for _, e := range entries {
			if err := graph.Add(e); err != nil {
				telemetry.TraceError(span, err)
				return nil, err
			}
		}
	}

	unmatched := 0
	seen := make(map[string]struct{})
	for _, ps := range pathSets {
		for _, path := range ps.Expand() {
			if r.claimedPrefix(claimed, path) {
				continue
			}
			key := path.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			unmatched++

			r.logger.DebugWithContext(ctx, "path not found", logger.String("path", key))
			if err := graph.Add(jsongraph.NewError(path, ErrPathNotFound)); err != nil {
				r.logger.DebugWithContext(ctx, "dropping not found entry", logger.String("path", key), logger.Error(err))
			}
		}
	}
	unmatchedPathsCounter.Add(float64(unmatched))

	span.SetAttributes(attribute.Int("matched", len(claimed)), attribute.Int("unmatched", unmatched))
	return graph, nil
}

func (r *Router) checkPathCount(pathSets []jsongraph.PathSet) error {
	if r.maxPaths <= 0 {
		return nil
	}
	total := 0
	for _, ps := range pathSets {
		n := ps.Count()
		if n > r.maxPaths-total {
			return &TooManyPathsError{Paths: n + min(total, math.MaxInt-n), Limit: r.maxPaths}
		}
		total += n
	}
	return nil
}

func (r *Router) claimedPrefix(claimed map[string]struct{}, path jsongraph.Path) bool {
	for _, n := range r.getLengths {
		if n > len(path) {
			continue
		}
		if _, ok := claimed[path[:n].String()]; ok {
			return true
		}
	}
	return false
}

// resolve runs the get handler of rt and guarantees one entry per match.
func (r *Router) resolve(ctx context.Context, rt route, matches []Match) []jsongraph.Entry {
	var (
		entries []jsongraph.Entry
		err     error
	)
	recoveredErr := panics.Try(func() {
		entries, err = rt.get.Get(ctx, matches)
	})
	if recoveredErr != nil {
		err = recoveredErr.AsError()
	}

	if err != nil {
		r.logger.ErrorWithContext(ctx, "route handler failed",
			logger.String("route", rt.pattern.String()),
			logger.Int("matches", len(matches)),
			logger.Error(err))

		entries = make([]jsongraph.Entry, 0, len(matches))
		for _, m := range matches {
			entries = append(entries, jsongraph.NewError(m.Path, err))
		}
		return entries
	}

	covered := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Path) >= rt.pattern.Len() {
			covered[e.Path[:rt.pattern.Len()].String()] = struct{}{}
		}
	}
	for _, m := range matches {
		if _, ok := covered[m.Path.String()]; ok {
			continue
		}
		r.logger.WarnWithContext(ctx, "route handler returned no value for a match",
			logger.String("route", rt.pattern.String()),
			logger.String("path", m.Path.String()))
		entries = append(entries, jsongraph.Entry{
			Path: m.Path,
			Err:  &jsongraph.ErrorAtom{Message: "no value was produced for this path", Code: jsongraph.CodeMissingValue},
		})
	}

	return entries
}

// Call performs the mutation addressed by path on the first route matching it.
// A path no route matches yields a not found entry; a matching route without a call
// handler yields an *UnimplementedRouteError entry.
func (r *Router) Call(ctx context.Context, path jsongraph.Path, args []json.RawMessage) (*jsongraph.Graph, error) {
	ctx, span := tracer.Start(ctx, "router.Call", trace.WithAttributes(
		attribute.String("path", path.String()),
	))
	defer span.End()

	graph := jsongraph.NewGraph()
	for _, rt := range r.routes {
		m, ok := rt.pattern.MatchPath(path)
		if !ok {
			continue
		}
		span.SetAttributes(attribute.String("route", rt.pattern.String()))

		if rt.call == nil {
			err := &UnimplementedRouteError{Route: rt.pattern.String()}
			r.logger.WarnWithContext(ctx, "call on a route without a call handler", logger.String("route", rt.pattern.String()))
			return graph, graph.Add(jsongraph.NewError(m.Path, err))
		}

		var (
			entries []jsongraph.Entry
			err     error
		)
		recoveredErr := panics.Try(func() {
			entries, err = rt.call.Call(ctx, m, args)
		})
		if recoveredErr != nil {
			err = recoveredErr.AsError()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			telemetry.TraceError(span, ctxErr)
			return nil, ctxErr
		}
		if err != nil {
			r.logger.ErrorWithContext(ctx, "call handler failed", logger.String("route", rt.pattern.String()), logger.Error(err))
			return graph, graph.Add(jsongraph.NewError(m.Path, err))
		}

		for _, e := range entries {
			if err := graph.Add(e); err != nil {
				telemetry.TraceError(span, err)
				return nil, err
			}
		}
		return graph, nil
	}

	unmatchedPathsCounter.Inc()
	r.logger.DebugWithContext(ctx, "path not found", logger.String("path", path.String()))
	return graph, graph.Add(jsongraph.NewError(path, ErrPathNotFound))
}

// IsConfigurationError reports whether err comes from loading a route table.
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}
