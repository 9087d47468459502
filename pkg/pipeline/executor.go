package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
	"github.com/HadesArchitect/killrvideo-web/internal/concurrency"
	interrors "github.com/HadesArchitect/killrvideo-web/internal/errors"
	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
	"github.com/HadesArchitect/killrvideo-web/pkg/telemetry"
)

var tracer = otel.Tracer("pkg/pipeline")

// ErrBackendInvocation classifies every failed backend invocation. The original backend error
// stays in the chain and provides the message.
var ErrBackendInvocation error = &jsongraph.ErrorAtom{Message: "backend invocation failed", Code: jsongraph.CodeBackendError}

var (
	backendRequestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "pipeline_backend_requests_total",
		Help:      "The total number of backend invocations issued by pipelines, by outcome.",
	}, []string{"outcome"})

	backendRequestDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "pipeline_backend_request_duration_ms",
		Help:                            "The duration (in ms) of backend invocations issued by pipelines.",
		Buckets:                         []float64{1, 3, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})
)

// Invoker performs one backend request with a shared client.
type Invoker[C, Req, Res any] func(ctx context.Context, req Req, client C) (Res, error)

// Executor issues every call of a request concurrently and joins on all of them.
type Executor[C, Req, Res any] struct {
	client         C
	invoke         Invoker[C, Req, Res]
	name           string
	maxConcurrency int
	logger         logger.Logger
}

var _ Stage[[]Call[struct{}], []Outcome[struct{}]] = (*Executor[struct{}, struct{}, struct{}])(nil)

type ExecutorOption func(o *executorOptions)

type executorOptions struct {
	name           string
	maxConcurrency int
	logger         logger.Logger
}

// WithName labels spans and logs of the invocations.
func WithName(name string) ExecutorOption {
	return func(o *executorOptions) {
		o.name = name
	}
}

// WithMaxConcurrency bounds the invocations in flight for one request. A value <= 0 means no bound.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(o *executorOptions) {
		o.maxConcurrency = n
	}
}

func WithLogger(l logger.Logger) ExecutorOption {
	return func(o *executorOptions) {
		o.logger = l
	}
}

// DoRequests returns a stage invoking invoke(ctx, request, client) for every call built
// by the previous stage. Calls that failed to build are passed through untouched.
func DoRequests[C, Req, Res any](client C, invoke Invoker[C, Req, Res], opts ...ExecutorOption) *Executor[C, Req, Res] {
	o := executorOptions{
		name:   "backend",
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Executor[C, Req, Res]{
		client:         client,
		invoke:         invoke,
		name:           o.name,
		maxConcurrency: o.maxConcurrency,
		logger:         o.logger,
	}
}

// Run fans out all calls and waits for every one of them. A failed invocation only fails its
// own outcome. If ctx is done by the time all invocations settle, the outcomes are discarded
// and ctx.Err() is returned.
func (e *Executor[C, Req, Res]) Run(ctx context.Context, calls []Call[Req]) ([]Outcome[Res], error) {
	outcomes := make([]Outcome[Res], len(calls))

	pool := concurrency.NewPool(ctx, e.maxConcurrency)
	for i, call := range calls {
		outcomes[i].Group = call.Group
		if call.Err != nil {
			outcomes[i].Err = call.Err
			continue
		}
		pool.Go(func(ctx context.Context) error {
			outcomes[i].Value, outcomes[i].Err = e.Invoke(ctx, call.Request)
			return nil
		})
	}
	_ = pool.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Invoke performs a single invocation. Panics and errors are returned wrapped with
// ErrBackendInvocation.
func (e *Executor[C, Req, Res]) Invoke(ctx context.Context, req Req) (Res, error) {
	ctx, span := tracer.Start(ctx, "pipeline.doRequest", trace.WithAttributes(
		attribute.String("backend", e.name),
	))
	defer span.End()

	start := time.Now()
	var (
		res Res
		err error
	)
	recoveredErr := panics.Try(func() {
		res, err = e.invoke(ctx, req, e.client)
	})
	if recoveredErr != nil {
		err = recoveredErr.AsError()
	}
	backendRequestDurationHistogram.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		backendRequestsCounter.WithLabelValues("failure").Inc()
		telemetry.TraceError(span, err)
		if !errors.Is(err, context.Canceled) {
			e.logger.WarnWithContext(ctx, "backend invocation failed",
				logger.String("backend", e.name),
				logger.Error(err))
		}

		var zero Res
		return zero, interrors.With(err, ErrBackendInvocation)
	}

	backendRequestsCounter.WithLabelValues("success").Inc()
	return res, nil
}
