// Package server exposes a router over HTTP as a Falcor style model endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
	"github.com/HadesArchitect/killrvideo-web/pkg/telemetry"
)

var tracer = otel.Tracer("pkg/server")

const (
	// ModelPath is where the handler is mounted.
	ModelPath = "/model.json"

	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/x-msgpack"

	CodeInvalidRequest = "invalid_request"

	defaultMaxBodyBytes = 1 << 20
	defaultMaxPathSets  = 100
)

var (
	requestDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "model_request_duration_ms",
		Help:                            "The duration (in ms) of a model request.",
		Buckets:                         []float64{1, 5, 10, 25, 50, 100, 200, 300, 500, 1000, 2000, 5000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	}, []string{"method", "status"})
)

// Router is the part of router.Router the handler depends on.
type Router interface {
	Get(ctx context.Context, pathSets []jsongraph.PathSet) (*jsongraph.Graph, error)
	Call(ctx context.Context, path jsongraph.Path, args []json.RawMessage) (*jsongraph.Graph, error)
}

// Server serves graph queries at ModelPath.
type Server struct {
	router       Router
	logger       logger.Logger
	maxBodyBytes int64
	maxPathSets  int
}

type ServerOption func(s *Server)

func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMaxBodyBytes bounds the size of a POST body.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// WithMaxPathSets bounds how many path sets one get request may carry.
func WithMaxPathSets(n int) ServerOption {
	return func(s *Server) {
		s.maxPathSets = n
	}
}

func New(r Router, opts ...ServerOption) *Server {
	s := &Server{
		router:       r,
		logger:       logger.NewNoopLogger(),
		maxBodyBytes: defaultMaxBodyBytes,
		maxPathSets:  defaultMaxPathSets,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requestError is a client mistake reported with a 4xx status.
type requestError struct {
	status int
	atom   *jsongraph.ErrorAtom
}

func (e *requestError) Error() string {
	return e.atom.Message
}

func badRequest(format string, args ...any) error {
	return &requestError{
		status: http.StatusBadRequest,
		atom:   &jsongraph.ErrorAtom{Message: fmt.Sprintf(format, args...), Code: CodeInvalidRequest},
	}
}

// ServeHTTP handles
//
//	GET|POST /model.json?method=get&paths=[...]
//	GET|POST /model.json?method=call&callPath=[...]&arguments=[...]
//
// POST parameters are read from a form encoded body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracer.Start(r.Context(), "server.ModelJSON")
	defer span.End()

	method := "unknown"
	status := http.StatusOK
	defer func() {
		requestDurationHistogram.
			WithLabelValues(method, fmt.Sprint(status)).
			Observe(float64(time.Since(start).Milliseconds()))
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		status = http.StatusMethodNotAllowed
		s.writeError(w, r, status, &jsongraph.ErrorAtom{Message: "method not allowed", Code: CodeInvalidRequest})
		return
	}

	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	}
	if err := r.ParseForm(); err != nil {
		status = http.StatusBadRequest
		s.writeError(w, r, status, &jsongraph.ErrorAtom{Message: "malformed request body: " + err.Error(), Code: CodeInvalidRequest})
		return
	}

	method = r.Form.Get("method")
	span.SetAttributes(attribute.String("method", method))

	var (
		graph *jsongraph.Graph
		err   error
	)
	switch method {
	case "get":
		graph, err = s.get(ctx, r)
	case "call":
		graph, err = s.call(ctx, r)
	default:
		err = badRequest("unsupported method '%s'", method)
		method = "unknown"
	}

	if err != nil {
		telemetry.TraceError(span, err)
		var reqErr *requestError
		switch {
		case errors.As(err, &reqErr):
			status = reqErr.status
			s.writeError(w, r, status, reqErr.atom)
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
			s.writeError(w, r, status, &jsongraph.ErrorAtom{Message: "request timed out", Code: jsongraph.CodeBackendError})
		case errors.Is(err, context.Canceled):
			// client went away
			status = 499
		default:
			status = http.StatusInternalServerError
			s.logger.ErrorWithContext(ctx, "model request failed", logger.String("method", method), logger.Error(err))
			s.writeError(w, r, status, &jsongraph.ErrorAtom{Message: "internal server error", Code: jsongraph.CodeInternalError})
		}
		return
	}

	s.write(w, r, http.StatusOK, graph)
}

func (s *Server) get(ctx context.Context, r *http.Request) (*jsongraph.Graph, error) {
	raw := r.Form.Get("paths")
	if raw == "" {
		return nil, badRequest("missing 'paths' parameter")
	}

	pathSets, err := jsongraph.ParsePathSets(raw)
	if err != nil {
		return nil, badRequest("invalid 'paths' parameter: %v", err)
	}
	if s.maxPathSets > 0 && len(pathSets) > s.maxPathSets {
		return nil, badRequest("too many path sets: %d exceeds the limit of %d", len(pathSets), s.maxPathSets)
	}

	graph, err := s.router.Get(ctx, pathSets)
	var tooMany *router.TooManyPathsError
	if errors.As(err, &tooMany) {
		return nil, badRequest("too many paths: %v", tooMany)
	}
	return graph, err
}

func (s *Server) call(ctx context.Context, r *http.Request) (*jsongraph.Graph, error) {
	raw := r.Form.Get("callPath")
	if raw == "" {
		return nil, badRequest("missing 'callPath' parameter")
	}

	path, err := jsongraph.ParsePath(raw)
	if err != nil {
		return nil, badRequest("invalid 'callPath' parameter: %v", err)
	}

	args, err := jsongraph.ParseArguments(r.Form.Get("arguments"))
	if err != nil {
		return nil, badRequest("invalid 'arguments' parameter: %v", err)
	}

	return s.router.Call(ctx, path, args)
}

func wantsMsgpack(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		for _, part := range strings.Split(accept, ",") {
			mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if strings.EqualFold(mediaType, ContentTypeMsgpack) {
				return true
			}
		}
	}
	return false
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, body any) {
	var (
		buf         []byte
		err         error
		contentType = ContentTypeJSON
	)
	if wantsMsgpack(r) {
		contentType = ContentTypeMsgpack
		buf, err = msgpack.Marshal(body)
	} else {
		buf, err = json.Marshal(body)
	}
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "failed to encode response", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(buf); err != nil {
		s.logger.DebugWithContext(r.Context(), "failed to write response", logger.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, atom *jsongraph.ErrorAtom) {
	s.write(w, r, status, atom)
}
