package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
)

// echoHandler returns the last key of every match as its value.
func echoHandler(calls *atomic.Int32) GetHandlerFunc {
	return func(ctx context.Context, matches []Match) ([]jsongraph.Entry, error) {
		if calls != nil {
			calls.Add(1)
		}
		entries := make([]jsongraph.Entry, 0, len(matches))
		for _, m := range matches {
			entries = append(entries, jsongraph.NewValue(m.Path, m.Property().String()))
		}
		return entries, nil
	}
}

type rejectingValidator struct {
	GetHandlerFunc
}

func (rejectingValidator) Validate(*Pattern) error {
	return errors.New("depth mismatch")
}

func TestNew(t *testing.T) {
	t.Run("valid_table", func(t *testing.T) {
		log, logs := logger.NewObserverLogger("debug")
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(nil)},
			{Pattern: `videosById[{keys:videoIds}].rating.rate`},
		}, WithLogger(log))
		require.NoError(t, err)
		require.NotNil(t, r)
		require.Equal(t, 1, logs.FilterMessage("loaded 2 routes").Len())
	})

	t.Run("malformed_pattern", func(t *testing.T) {
		_, err := New([]Route{{Pattern: `videosById[`}})
		require.True(t, IsConfigurationError(err))
	})

	t.Run("overlapping_routes", func(t *testing.T) {
		_, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(nil)},
			{Pattern: `videosById[{keys:ids}].rating.total`, Get: echoHandler(nil)},
		})
		require.True(t, IsConfigurationError(err))
		require.ErrorContains(t, err, "overlaps")
	})

	t.Run("handler_validation", func(t *testing.T) {
		_, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].title`, Get: rejectingValidator{echoHandler(nil)}},
		})
		require.True(t, IsConfigurationError(err))
		require.ErrorContains(t, err, "depth mismatch")
	})
}

func TestRouterGet(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	t.Run("fan_out_across_routes", func(t *testing.T) {
		var ratingCalls, titleCalls atomic.Int32
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(&ratingCalls)},
			{Pattern: `videosById[{keys:videoIds}].title`, Get: echoHandler(&titleCalls)},
		}, WithMaxConcurrentRoutes(1))
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{
			jsongraph.PathSetOf("videosById", []string{"a", "b"}, "rating", []string{"count", "total"}),
			jsongraph.PathSetOf("videosById", []string{"a", "b"}, "title"),
		})
		require.NoError(t, err)
		require.Equal(t, 6, graph.Len())
		require.Equal(t, int32(1), ratingCalls.Load())
		require.Equal(t, int32(1), titleCalls.Load())

		e, ok := graph.Lookup(jsongraph.PathOf("videosById", "b", "rating", "total"))
		require.True(t, ok)
		require.Equal(t, "total", e.Value)
	})

	t.Run("unmatched_path", func(t *testing.T) {
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(nil)},
		})
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{jsongraph.PathSetOf("foo", "bar", "baz")})
		require.NoError(t, err)
		require.Equal(t, 1, graph.Len())

		e, ok := graph.Lookup(jsongraph.PathOf("foo", "bar", "baz"))
		require.True(t, ok)
		require.Equal(t, jsongraph.CodeNotFound, e.Err.Code)
	})

	t.Run("partially_matched_path_set", func(t *testing.T) {
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(nil)},
		})
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{
			jsongraph.PathSetOf("videosById", "a", "rating", []string{"count", "average", "average"}),
		})
		require.NoError(t, err)
		require.Equal(t, 2, graph.Len())

		e, ok := graph.Lookup(jsongraph.PathOf("videosById", "a", "rating", "average"))
		require.True(t, ok)
		require.Equal(t, jsongraph.CodeNotFound, e.Err.Code)
	})

	t.Run("empty_key_set", func(t *testing.T) {
		var calls atomic.Int32
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(&calls)},
		})
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{
			jsongraph.PathSetOf("videosById", []string{}, "rating", "count"),
		})
		require.NoError(t, err)
		require.Equal(t, 0, graph.Len())
		require.Equal(t, int32(0), calls.Load())
	})

	t.Run("routes_without_get_are_skipped", func(t *testing.T) {
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating.rate`},
		})
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{jsongraph.PathSetOf("videosById", "a", "rating", "rate")})
		require.NoError(t, err)
		e, ok := graph.Lookup(jsongraph.PathOf("videosById", "a", "rating", "rate"))
		require.True(t, ok)
		require.Equal(t, jsongraph.CodeNotFound, e.Err.Code)
	})

	t.Run("handler_error_becomes_error_entries", func(t *testing.T) {
		log, logs := logger.NewObserverLogger("error")
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: GetHandlerFunc(func(context.Context, []Match) ([]jsongraph.Entry, error) {
				return nil, errors.New("ratings unavailable")
			})},
			{Pattern: `videosById[{keys:videoIds}].title`, Get: echoHandler(nil)},
		}, WithLogger(log))
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{
			jsongraph.PathSetOf("videosById", "a", "rating", []string{"count", "total"}),
			jsongraph.PathSetOf("videosById", "a", "title"),
		})
		require.NoError(t, err)
		require.Equal(t, 3, graph.Len())

		for _, prop := range []string{"count", "total"} {
			e, ok := graph.Lookup(jsongraph.PathOf("videosById", "a", "rating", prop))
			require.True(t, ok)
			require.Equal(t, "ratings unavailable", e.Err.Message)
		}
		e, _ := graph.Lookup(jsongraph.PathOf("videosById", "a", "title"))
		require.Equal(t, "title", e.Value)

		require.Equal(t, 1, logs.FilterMessage("route handler failed").Len())
	})

	t.Run("handler_panic_is_contained", func(t *testing.T) {
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].title`, Get: GetHandlerFunc(func(context.Context, []Match) ([]jsongraph.Entry, error) {
				panic("boom")
			})},
		})
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{jsongraph.PathSetOf("videosById", "a", "title")})
		require.NoError(t, err)
		e, ok := graph.Lookup(jsongraph.PathOf("videosById", "a", "title"))
		require.True(t, ok)
		require.True(t, e.IsError())
		require.Contains(t, e.Err.Message, "boom")
	})

	t.Run("missing_values_are_filled", func(t *testing.T) {
		log, logs := logger.NewObserverLogger("warn")
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].title`, Get: GetHandlerFunc(func(_ context.Context, matches []Match) ([]jsongraph.Entry, error) {
				return []jsongraph.Entry{jsongraph.NewValue(matches[0].Path, "first")}, nil
			})},
		}, WithLogger(log))
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), []jsongraph.PathSet{jsongraph.PathSetOf("videosById", []string{"a", "b"}, "title")})
		require.NoError(t, err)
		require.Equal(t, 2, graph.Len())

		e, _ := graph.Lookup(jsongraph.PathOf("videosById", "b", "title"))
		require.Equal(t, jsongraph.CodeMissingValue, e.Err.Code)

		entries := logs.FilterMessage("route handler returned no value for a match").All()
		require.Len(t, entries, 1)
		require.Contains(t, entries[0].ContextMap(), "path")
	})

	t.Run("conflicting_entries", func(t *testing.T) {
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].title`, Get: GetHandlerFunc(func(_ context.Context, matches []Match) ([]jsongraph.Entry, error) {
				return []jsongraph.Entry{
					jsongraph.NewValue(matches[0].Path, 1),
					jsongraph.NewValue(matches[0].Path, 2),
				}, nil
			})},
		})
		require.NoError(t, err)

		_, err = r.Get(context.Background(), []jsongraph.PathSet{jsongraph.PathSetOf("videosById", "a", "title")})
		require.ErrorIs(t, err, jsongraph.ErrConflictingEntries)
	})

	t.Run("request_expanding_past_the_default_limit", func(t *testing.T) {
		var calls atomic.Int32
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(&calls)},
		})
		require.NoError(t, err)

		pathSets, err := jsongraph.ParsePathSets(`[["nope",{"from":0,"to":199},{"from":0,"to":199},{"from":0,"to":199}]]`)
		require.NoError(t, err)

		graph, err := r.Get(context.Background(), pathSets)
		require.Nil(t, graph)

		var tooMany *TooManyPathsError
		require.ErrorAs(t, err, &tooMany)
		require.Equal(t, 200*200*200, tooMany.Paths)
		require.Equal(t, DefaultMaxPaths, tooMany.Limit)
		require.Equal(t, int32(0), calls.Load())
	})

	t.Run("path_limit_spans_path_sets", func(t *testing.T) {
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(nil)},
		}, WithMaxPaths(4))
		require.NoError(t, err)

		within := jsongraph.PathSetOf("videosById", []string{"a", "b"}, "rating", []string{"count", "total"})
		graph, err := r.Get(context.Background(), []jsongraph.PathSet{within})
		require.NoError(t, err)
		require.Equal(t, 4, graph.Len())

		_, err = r.Get(context.Background(), []jsongraph.PathSet{
			within,
			jsongraph.PathSetOf("videosById", "c", "rating", "count"),
		})
		var tooMany *TooManyPathsError
		require.ErrorAs(t, err, &tooMany)
		require.Equal(t, 5, tooMany.Paths)
	})

	t.Run("cancelled_request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		r, err := New([]Route{
			{Pattern: `videosById[{keys:videoIds}].title`, Get: GetHandlerFunc(func(ctx context.Context, matches []Match) ([]jsongraph.Entry, error) {
				cancel()
				return echoHandler(nil)(ctx, matches)
			})},
		})
		require.NoError(t, err)

		graph, err := r.Get(ctx, []jsongraph.PathSet{jsongraph.PathSetOf("videosById", "a", "title")})
		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, graph)
	})
}

func TestRouterCall(t *testing.T) {
	rateHandler := CallHandlerFunc(func(_ context.Context, m Match, args []json.RawMessage) ([]jsongraph.Entry, error) {
		if len(args) != 1 {
			return nil, errors.New("expected one argument")
		}
		var rating int
		if err := json.Unmarshal(args[0], &rating); err != nil {
			return nil, err
		}
		return []jsongraph.Entry{jsongraph.NewValue(m.Path, rating)}, nil
	})

	r, err := New([]Route{
		{Pattern: `videosById[{keys:videoIds}].rating["count","total"]`, Get: echoHandler(nil)},
		{Pattern: `videosById[{keys:videoIds}].rating.rate`},
		{Pattern: `usersById[{keys:userIds}].rate`, Call: rateHandler},
	}, WithLogger(&logger.ZapLogger{Logger: zap.NewNop()}))
	require.NoError(t, err)

	t.Run("unimplemented", func(t *testing.T) {
		path := jsongraph.PathOf("videosById", "a", "rating", "rate")
		graph, err := r.Call(context.Background(), path, []json.RawMessage{json.RawMessage(`5`)})
		require.NoError(t, err)

		e, ok := graph.Lookup(path)
		require.True(t, ok)
		require.Equal(t, jsongraph.CodeNotImplemented, e.Err.Code)
		require.Contains(t, e.Err.Message, "not implemented")
	})

	t.Run("route_without_call_handler_claims_the_path", func(t *testing.T) {
		path := jsongraph.PathOf("videosById", "a", "rating", "count")
		graph, err := r.Call(context.Background(), path, nil)
		require.NoError(t, err)

		e, _ := graph.Lookup(path)
		require.Equal(t, jsongraph.CodeNotImplemented, e.Err.Code)
	})

	t.Run("not_found", func(t *testing.T) {
		path := jsongraph.PathOf("foo", "bar", "baz")
		graph, err := r.Call(context.Background(), path, nil)
		require.NoError(t, err)

		e, ok := graph.Lookup(path)
		require.True(t, ok)
		require.Equal(t, jsongraph.CodeNotFound, e.Err.Code)
	})

	t.Run("success", func(t *testing.T) {
		path := jsongraph.PathOf("usersById", "u", "rate")
		graph, err := r.Call(context.Background(), path, []json.RawMessage{json.RawMessage(`4`)})
		require.NoError(t, err)

		e, _ := graph.Lookup(path)
		require.Equal(t, 4, e.Value)
	})

	t.Run("handler_error", func(t *testing.T) {
		path := jsongraph.PathOf("usersById", "u", "rate")
		graph, err := r.Call(context.Background(), path, nil)
		require.NoError(t, err)

		e, _ := graph.Lookup(path)
		require.Equal(t, "expected one argument", e.Err.Message)
		require.Equal(t, jsongraph.CodeInternalError, e.Err.Code)
	})
}
