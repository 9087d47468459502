package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
)

func TestNewHandler(t *testing.T) {
	var seen string
	handler := NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = id
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/model.json", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, resp.Header().Get(RequestIDHeader))
	_, err := ulid.Parse(seen)
	require.NoError(t, err)
}

func TestInitIDUsesTraceID(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	require.Equal(t, traceID.String(), InitID(ctx))
}

func TestFromContextWithoutID(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}

func TestNewHandlerAddsRequestIDToContextLogs(t *testing.T) {
	l, logs := logger.NewObserverLogger("debug")
	handler := NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.InfoWithContext(r.Context(), "resolving paths")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/model.json", nil))

	entries := logs.FilterMessage("resolving paths").All()
	require.Len(t, entries, 1)
	require.Equal(t, resp.Header().Get(RequestIDHeader), entries[0].ContextMap()["request_id"])
}
