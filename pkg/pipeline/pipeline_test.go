package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
)

type ratingRequest struct {
	VideoID string
}

type ratingResponse struct {
	VideoID string
	Count   int64
	Total   int64
}

type fakeRatings struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (f *fakeRatings) getRating(_ context.Context, req ratingRequest) (ratingResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.VideoID)
	f.mu.Unlock()

	if err := f.failFor[req.VideoID]; err != nil {
		return ratingResponse{}, err
	}
	return ratingResponse{VideoID: req.VideoID, Count: 2, Total: 9}, nil
}

const ratingsPattern = `videosById[{keys:videoIds}].rating["count","total"]`

func newRatingsPipeline(client *fakeRatings, opts ...ExecutorOption) *GetPipeline[ratingRequest, ratingResponse] {
	return CreateGetPipeline(
		CreateRequestsFromPaths(2, func(path jsongraph.Path) (ratingRequest, error) {
			if path[1].String() == "" {
				return ratingRequest{}, errors.New("empty id")
			}
			return ratingRequest{VideoID: path[1].String()}, nil
		}),
		DoRequests(client, func(ctx context.Context, req ratingRequest, client *fakeRatings) (ratingResponse, error) {
			return client.getRating(ctx, req)
		}, opts...),
		MapProps(2, ResponsePicker(map[string]func(ratingResponse) any{
			"count": func(r ratingResponse) any { return r.Count },
			"total": func(r ratingResponse) any { return r.Total },
		})),
	)
}

func matchAll(t *testing.T, pattern string, ps jsongraph.PathSet) []router.Match {
	t.Helper()
	return router.MustParsePattern(pattern).Match(ps)
}

func lookup(t *testing.T, entries []jsongraph.Entry, path jsongraph.Path) jsongraph.Entry {
	t.Helper()
	for _, e := range entries {
		if e.Path.Equal(path) {
			return e
		}
	}
	t.Fatalf("no entry at %s", path)
	return jsongraph.Entry{}
}

func TestGetPipeline(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	t.Run("one_request_per_video", func(t *testing.T) {
		client := &fakeRatings{}
		p := newRatingsPipeline(client)

		matches := matchAll(t, ratingsPattern, jsongraph.PathSetOf("videosById", []string{"a", "b"}, "rating", []string{"count", "total"}))
		entries, err := p.Get(context.Background(), matches)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		require.ElementsMatch(t, []string{"a", "b"}, client.calls)

		require.Equal(t, int64(2), lookup(t, entries, jsongraph.PathOf("videosById", "a", "rating", "count")).Value)
		require.Equal(t, int64(9), lookup(t, entries, jsongraph.PathOf("videosById", "b", "rating", "total")).Value)
	})

	t.Run("partial_failure", func(t *testing.T) {
		client := &fakeRatings{failFor: map[string]error{"a": errors.New("ratings service unavailable")}}
		p := newRatingsPipeline(client)

		matches := matchAll(t, ratingsPattern, jsongraph.PathSetOf("videosById", []string{"a", "b"}, "rating", []string{"count", "total"}))
		entries, err := p.Get(context.Background(), matches)
		require.NoError(t, err)
		require.Len(t, entries, 4)

		for _, prop := range []string{"count", "total"} {
			failed := lookup(t, entries, jsongraph.PathOf("videosById", "a", "rating", prop))
			require.True(t, failed.IsError())
			require.Equal(t, jsongraph.CodeBackendError, failed.Err.Code)
			require.Equal(t, "ratings service unavailable", failed.Err.Message)

			ok := lookup(t, entries, jsongraph.PathOf("videosById", "b", "rating", prop))
			require.False(t, ok.IsError())
		}
	})

	t.Run("build_failure_skips_invocation", func(t *testing.T) {
		client := &fakeRatings{}
		p := newRatingsPipeline(client)

		matches := matchAll(t, ratingsPattern, jsongraph.PathSetOf("videosById", []string{"", "b"}, "rating", "count"))
		entries, err := p.Get(context.Background(), matches)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, []string{"b"}, client.calls)
		require.Equal(t, "empty id", lookup(t, entries, jsongraph.PathOf("videosById", "", "rating", "count")).Err.Message)
	})

	t.Run("empty_key_set", func(t *testing.T) {
		client := &fakeRatings{}
		p := newRatingsPipeline(client)

		matches := matchAll(t, ratingsPattern, jsongraph.PathSetOf("videosById", []string{}, "rating", "count"))
		entries, err := p.Get(context.Background(), matches)
		require.NoError(t, err)
		require.Empty(t, entries)
		require.Empty(t, client.calls)
	})

	t.Run("validates_against_pattern", func(t *testing.T) {
		p := newRatingsPipeline(&fakeRatings{})
		require.NoError(t, p.Validate(router.MustParsePattern(ratingsPattern)))

		err := p.Validate(router.MustParsePattern(`videosById[{keys:videoIds}].rating["count","average"]`))
		require.ErrorIs(t, err, ErrUnknownProperty)

		err = p.Validate(router.MustParsePattern(`videosById[{keys:videoIds}]`))
		require.Error(t, err)
	})

	t.Run("depth_mismatch", func(t *testing.T) {
		p := CreateGetPipeline(
			CreateRequestsFromPaths(2, func(path jsongraph.Path) (ratingRequest, error) {
				return ratingRequest{VideoID: path[1].String()}, nil
			}),
			DoRequests(&fakeRatings{}, func(ctx context.Context, req ratingRequest, client *fakeRatings) (ratingResponse, error) {
				return client.getRating(ctx, req)
			}),
			MapProps(3, DefaultResponsePicker[ratingResponse]()),
		)
		err := p.Validate(router.MustParsePattern(ratingsPattern))
		require.ErrorContains(t, err, "depth")
	})
}

func TestCreateRequestsFromPaths(t *testing.T) {
	builder := CreateRequestsFromPaths(4, func(path jsongraph.Path) (string, error) {
		return path[1].String() + "/" + path[3].String(), nil
	})
	require.Equal(t, 4, builder.Depth())

	matches := matchAll(t, `usersById[{keys:userIds}].ratings[{keys:videoIds}]["rating"]`,
		jsongraph.PathSetOf("usersById", []string{"u1", "u2"}, "ratings", []string{"v1", "v2"}, "rating"))
	calls, err := builder.Run(context.Background(), matches)
	require.NoError(t, err)

	requests := make([]string, 0, len(calls))
	for _, c := range calls {
		require.Len(t, c.Group.Matches, 1)
		require.True(t, c.Group.Prefix.Equal(c.Group.Matches[0].Path[:4]))
		requests = append(requests, c.Request)
	}
	require.Equal(t, []string{"u1/v1", "u1/v2", "u2/v1", "u2/v2"}, requests)
}

func TestCreateRequestFromPaths(t *testing.T) {
	builder := CreateRequestFromPaths(func(paths []jsongraph.Path) ([]string, error) {
		ids := make([]string, 0, len(paths))
		for _, p := range paths {
			ids = append(ids, p[1].String())
		}
		return ids, nil
	})

	matches := matchAll(t, ratingsPattern, jsongraph.PathSetOf("videosById", []string{"a", "b"}, "rating", "count"))
	calls, err := builder.Run(context.Background(), matches)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, []string{"a", "b"}, calls[0].Request)
	require.Len(t, calls[0].Group.Matches, 2)
}

func TestDoRequests(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	calls := func(n int) []Call[int] {
		out := make([]Call[int], n)
		for i := range out {
			out[i] = Call[int]{Request: i}
		}
		return out
	}

	t.Run("invocations_run_concurrently", func(t *testing.T) {
		const n = 8
		var started sync.WaitGroup
		started.Add(n)
		release := make(chan struct{})
		go func() {
			started.Wait()
			close(release)
		}()

		executor := DoRequests(struct{}{}, func(ctx context.Context, req int, _ struct{}) (int, error) {
			started.Done()
			select {
			case <-release:
				return req * 10, nil
			case <-time.After(5 * time.Second):
				return 0, errors.New("invocations were not issued concurrently")
			}
		})

		outcomes, err := executor.Run(context.Background(), calls(n))
		require.NoError(t, err)
		require.Len(t, outcomes, n)
		for i, o := range outcomes {
			require.NoError(t, o.Err)
			require.Equal(t, i*10, o.Value)
		}
	})

	t.Run("bounded_concurrency", func(t *testing.T) {
		var running, peak atomic.Int32
		executor := DoRequests(struct{}{}, func(ctx context.Context, req int, _ struct{}) (int, error) {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				current := peak.Load()
				if n <= current || peak.CompareAndSwap(current, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			return req, nil
		}, WithMaxConcurrency(2), WithName("bounded"))

		outcomes, err := executor.Run(context.Background(), calls(10))
		require.NoError(t, err)
		require.Len(t, outcomes, 10)
		require.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("failures_are_isolated_and_classified", func(t *testing.T) {
		errOdd := errors.New("odd request")
		executor := DoRequests(struct{}{}, func(ctx context.Context, req int, _ struct{}) (int, error) {
			if req%2 == 1 {
				return 0, fmt.Errorf("request %d: %w", req, errOdd)
			}
			if req == 4 {
				panic("backend exploded")
			}
			return req, nil
		})

		outcomes, err := executor.Run(context.Background(), calls(6))
		require.NoError(t, err)

		for i, o := range outcomes {
			switch {
			case i%2 == 1:
				require.ErrorIs(t, o.Err, errOdd)
				require.ErrorIs(t, o.Err, ErrBackendInvocation)
				require.Equal(t, fmt.Sprintf("request %d: odd request", i), o.Err.Error())
			case i == 4:
				require.ErrorIs(t, o.Err, ErrBackendInvocation)
				require.Contains(t, o.Err.Error(), "backend exploded")
			default:
				require.NoError(t, o.Err)
				require.Equal(t, i, o.Value)
			}
		}
	})

	t.Run("cancelled_request_discards_results", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var invoked atomic.Int32
		executor := DoRequests(struct{}{}, func(ctx context.Context, req int, _ struct{}) (int, error) {
			if invoked.Add(1) == 1 {
				cancel()
			}
			<-ctx.Done()
			return 0, ctx.Err()
		})

		outcomes, err := executor.Run(ctx, calls(3))
		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, outcomes)
	})
}

func TestPickers(t *testing.T) {
	res := ratingResponse{Count: 1, Total: 5}

	picker := ResponsePicker(map[string]func(ratingResponse) any{
		"total": func(r ratingResponse) any { return r.Total },
		"count": func(r ratingResponse) any { return r.Count },
	})
	require.Equal(t, []string{"count", "total"}, picker.Properties())

	v, err := picker.Pick(jsongraph.StringKey("total"), res)
	require.NoError(t, err)
	require.Equal(t, int64(5), v)

	_, err = picker.Pick(jsongraph.StringKey("average"), res)
	require.ErrorIs(t, err, ErrUnknownProperty)

	v, err = DefaultResponsePicker[ratingResponse]().Pick(jsongraph.StringKey("anything"), res)
	require.NoError(t, err)
	require.Equal(t, res, v)
	require.Nil(t, DefaultResponsePicker[ratingResponse]().Properties())

	fn := PickerFunc[ratingResponse](func(property jsongraph.Key, r ratingResponse) (any, error) {
		return property.String(), nil
	})
	v, err = fn.Pick(jsongraph.StringKey("x"), res)
	require.NoError(t, err)
	require.Equal(t, "x", v)
}

func TestMapValues(t *testing.T) {
	mapper := MapValues(2, func(m router.Match, r ratingResponse) (any, error) {
		if m.Property().String() == "total" {
			return nil, errors.New("hidden")
		}
		return r.Count, nil
	})

	matches := matchAll(t, ratingsPattern, jsongraph.PathSetOf("videosById", "a", "rating", []string{"count", "total"}))
	entries, err := mapper.Run(context.Background(), []Outcome[ratingResponse]{
		{Group: Group{Prefix: jsongraph.PathOf("videosById", "a"), Matches: matches}, Value: ratingResponse{Count: 3}},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(3), entries[0].Value)
	require.Equal(t, "hidden", entries[1].Err.Message)
	require.NoError(t, mapper.Validate(router.MustParsePattern(ratingsPattern)))
}

type rateRequest struct {
	VideoID string
	Rating  int
}

func TestCallPipeline(t *testing.T) {
	var got rateRequest
	p := CreateCallPipeline(
		func(m router.Match, args []json.RawMessage) (rateRequest, error) {
			if len(args) != 1 {
				return rateRequest{}, errors.New("expected a rating")
			}
			var rating int
			if err := json.Unmarshal(args[0], &rating); err != nil {
				return rateRequest{}, err
			}
			id, _ := m.Captured("videoIds")
			return rateRequest{VideoID: id.String(), Rating: rating}, nil
		},
		struct{}{},
		func(ctx context.Context, req rateRequest, _ struct{}) (int, error) {
			got = req
			if req.Rating > 5 {
				return 0, errors.New("rating out of range")
			}
			return req.Rating, nil
		},
		func(m router.Match, rating int) ([]jsongraph.Entry, error) {
			return []jsongraph.Entry{jsongraph.NewValue(m.Path, rating)}, nil
		},
	)

	m, ok := router.MustParsePattern(`videosById[{keys:videoIds}].rating.rate`).MatchPath(jsongraph.PathOf("videosById", "v1", "rating", "rate"))
	require.True(t, ok)

	entries, err := p.Call(context.Background(), m, []json.RawMessage{json.RawMessage(`4`)})
	require.NoError(t, err)
	require.Equal(t, rateRequest{VideoID: "v1", Rating: 4}, got)
	require.Equal(t, 4, entries[0].Value)

	_, err = p.Call(context.Background(), m, nil)
	require.ErrorContains(t, err, "expected a rating")

	_, err = p.Call(context.Background(), m, []json.RawMessage{json.RawMessage(`9`)})
	require.ErrorIs(t, err, ErrBackendInvocation)
}
