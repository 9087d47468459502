package mocks

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	otlpcollector "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
)

// MockTracingServer is an OTLP trace collector recording the names of the spans it receives.
type MockTracingServer struct {
	otlpcollector.UnimplementedTraceServiceServer

	addr string

	mu          sync.Mutex
	exportCount int
	spanNames   []string
}

var _ otlpcollector.TraceServiceServer = (*MockTracingServer)(nil)

func (s *MockTracingServer) Export(_ context.Context, req *otlpcollector.ExportTraceServiceRequest) (*otlpcollector.ExportTraceServiceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exportCount++
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				s.spanNames = append(s.spanNames, span.GetName())
			}
		}
	}
	return &otlpcollector.ExportTraceServiceResponse{}, nil
}

// NewMockTracingServer starts a collector on a random local port. It stops when the test ends.
func NewMockTracingServer(t testing.TB) *MockTracingServer {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mockServer := &MockTracingServer{addr: lis.Addr().String()}
	server := grpc.NewServer()
	otlpcollector.RegisterTraceServiceServer(server, mockServer)

	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	return mockServer
}

// Addr is the host:port the collector listens on.
func (s *MockTracingServer) Addr() string {
	return s.addr
}

func (s *MockTracingServer) GetExportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportCount
}

// SpanNames returns the names of all the spans exported so far.
func (s *MockTracingServer) SpanNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spanNames...)
}
