// Package run contains the command to run the KillrVideo web tier.
package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
	serverconfig "github.com/HadesArchitect/killrvideo-web/internal/server/config"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
	"github.com/HadesArchitect/killrvideo-web/pkg/middleware"
	"github.com/HadesArchitect/killrvideo-web/pkg/middleware/logging"
	"github.com/HadesArchitect/killrvideo-web/pkg/middleware/recovery"
	"github.com/HadesArchitect/killrvideo-web/pkg/middleware/requestid"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
	"github.com/HadesArchitect/killrvideo-web/pkg/routes"
	"github.com/HadesArchitect/killrvideo-web/pkg/server"
	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings"
	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings/remote"
	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings/sqlstore"
	"github.com/HadesArchitect/killrvideo-web/pkg/telemetry"
)

// HealthzPath answers liveness probes without touching any backend.
const HealthzPath = "/healthz"

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the KillrVideo web tier",
		Long:  "Run the KillrVideo web tier, serving graph queries on the /model.json endpoint.",
		Run:   run,
		Args:  cobra.NoArgs,
	}

	bindRunFlags(cmd)

	return cmd
}

// ReadConfig returns the server configuration based on the values provided in the server's 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/killrvideo', '$HOME/.killrvideo', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*serverconfig.Config, error) {
	config := serverconfig.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	return config, nil
}

func run(_ *cobra.Command, _ []string) {
	config, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := config.Verify(); err != nil {
		panic(err)
	}

	logger := logger.MustNewLogger(config.Log.Format, config.Log.Level, config.Log.TimestampFormat)
	serverCtx := &ServerContext{Logger: logger}
	if err := serverCtx.Run(context.Background(), config); err != nil {
		panic(err)
	}
}

type ServerContext struct {
	Logger logger.Logger
}

// telemetryConfig returns the function that must be called to shut down tracing.
// The context provided to this function should be error-free, or shut down will be incomplete.
func (s *ServerContext) telemetryConfig(config *serverconfig.Config) func() error {
	if config.Trace.Enabled {
		s.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', tls: %t", config.Trace.SampleRatio, config.Trace.OTLP.Endpoint, config.Trace.OTLP.TLS.Enabled))

		options := []telemetry.TracerOption{
			telemetry.WithOTLPEndpoint(
				config.Trace.OTLP.Endpoint,
			),
			telemetry.WithAttributes(
				semconv.ServiceNameKey.String(config.Trace.ServiceName),
				semconv.ServiceVersionKey.String(build.Version),
			),
			telemetry.WithSamplingRatio(config.Trace.SampleRatio),
			telemetry.WithSlowTraceThreshold(config.Trace.SlowThreshold),
		}

		if !config.Trace.OTLP.TLS.Enabled {
			options = append(options, telemetry.WithOTLPInsecure())
		}

		tp := telemetry.MustNewTracerProvider(options...)
		return func() error {
			// the batch span processor may take up to 5 seconds to flush
			ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
			defer cancel()
			return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
		}
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
	return func() error {
		return nil
	}
}

// ratingsConfig builds the configured ratings backend and stacks the timeout, retry and
// cache wrappers on top of it, innermost first.
func (s *ServerContext) ratingsConfig(ctx context.Context, config *serverconfig.Config) (ratings.Service, error) {
	var (
		svc ratings.Service
		err error
	)

	switch config.Ratings.Backend {
	case serverconfig.BackendMemory:
		svc = ratings.NewMemoryService()
	case serverconfig.BackendSQLite, serverconfig.BackendPostgres, serverconfig.BackendMySQL:
		opts := []sqlstore.DatastoreOption{
			sqlstore.WithUsername(config.Ratings.Username),
			sqlstore.WithPassword(config.Ratings.Password),
			sqlstore.WithLogger(s.Logger),
			sqlstore.WithMaxOpenConns(config.Ratings.MaxOpenConns),
			sqlstore.WithMaxIdleConns(config.Ratings.MaxIdleConns),
			sqlstore.WithConnMaxIdleTime(config.Ratings.ConnMaxIdleTime),
			sqlstore.WithConnMaxLifetime(config.Ratings.ConnMaxLifetime),
		}
		if config.Ratings.Metrics {
			opts = append(opts, sqlstore.WithMetrics())
		}

		svc, err = sqlstore.New(ctx, config.Ratings.Backend, config.Ratings.URI, sqlstore.NewConfig(opts...))
		if err != nil {
			return nil, fmt.Errorf("initialize %s ratings datastore: %w", config.Ratings.Backend, err)
		}
	case serverconfig.BackendRemote:
		svc, err = remote.New(config.Ratings.URI, remote.WithMaxRetries(int(config.Ratings.MaxRetries)))
		if err != nil {
			return nil, fmt.Errorf("initialize remote ratings client: %w", err)
		}
	default:
		return nil, fmt.Errorf("ratings backend '%s' is unsupported", config.Ratings.Backend)
	}

	svc = ratings.WithTimeout(svc, config.Ratings.Timeout)
	// the remote client already retries at the transport
	if config.Ratings.Backend != serverconfig.BackendRemote {
		svc = ratings.WithRetry(svc, config.Ratings.MaxRetries)
	}

	if config.Ratings.Cache.Enabled {
		cached, err := ratings.NewCachedService(svc, config.Ratings.Cache.Limit, config.Ratings.Cache.TTL)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("initialize ratings cache: %w", err)
		}
		svc = cached
	}

	s.Logger.Info(fmt.Sprintf("using '%s' ratings backend", config.Ratings.Backend))

	return svc, nil
}

// modelHandler wraps the /model.json handler with the per request middleware. The outermost
// handler runs first.
func (s *ServerContext) modelHandler(config *serverconfig.Config, r server.Router) http.Handler {
	var handler http.Handler = server.New(r,
		server.WithLogger(s.Logger),
		server.WithMaxBodyBytes(config.HTTP.MaxBodyBytes),
		server.WithMaxPathSets(config.HTTP.MaxPathSets),
	)

	if config.HTTP.UpstreamTimeout > 0 {
		handler = middleware.NewTimeoutHandler(config.HTTP.UpstreamTimeout, s.Logger).Handler(handler)
	}
	handler = logging.NewHandler(handler, s.Logger)
	handler = requestid.NewHandler(handler)

	if config.Trace.Enabled {
		handler = otelhttp.NewHandler(handler, "model.json")
	}

	return handler
}

func (s *ServerContext) runHTTPServer(config *serverconfig.Config, r server.Router) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(server.ModelPath, s.modelHandler(config, r))
	mux.HandleFunc(HealthzPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", server.ContentTypeJSON)
		_, _ = w.Write([]byte(`{"status":"SERVING"}`))
	})

	httpServer := &http.Server{
		Addr: config.HTTP.Addr,
		Handler: recovery.HTTPPanicRecoveryHandler(cors.New(cors.Options{
			AllowedOrigins:   config.HTTP.CORSAllowedOrigins,
			AllowCredentials: true,
			AllowedHeaders:   config.HTTP.CORSAllowedHeaders,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodHead},
		}).Handler(mux), s.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", config.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	tlsEnabled := config.HTTP.TLS != nil && config.HTTP.TLS.Enabled
	if tlsEnabled {
		s.Logger.Info("HTTP TLS is enabled, serving connections using the provided certificate")
	} else {
		s.Logger.Warn("HTTP TLS is disabled, serving connections using insecure plaintext")
	}

	go func() {
		s.Logger.Info("listening", zap.String("addr", listener.Addr().String()))

		var serveErr error
		if tlsEnabled {
			serveErr = httpServer.ServeTLS(listener, config.HTTP.TLS.CertPath, config.HTTP.TLS.KeyPath)
		} else {
			serveErr = httpServer.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.Logger.Fatal("HTTP server closed with unexpected error", zap.Error(serveErr))
		}
		s.Logger.Info("closed")
	}()

	return httpServer, nil
}

func (s *ServerContext) Run(ctx context.Context, config *serverconfig.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, os.Kill, syscall.SIGTERM)
	defer stop()

	tracerProviderCloser := s.telemetryConfig(config)

	svc, err := s.ratingsConfig(ctx, config)
	if err != nil {
		return err
	}
	defer svc.Close()

	r, err := router.New(
		routes.RatingsRoutes(svc,
			routes.WithMaxConcurrentRequests(config.Router.MaxConcurrentRequests),
			routes.WithLogger(s.Logger),
		),
		router.WithLogger(s.Logger),
		router.WithMaxConcurrentRoutes(config.Router.MaxConcurrentRoutes),
		router.WithMaxPaths(config.Router.MaxPaths),
	)
	if err != nil {
		return fmt.Errorf("invalid route table: %w", err)
	}

	var profilerServer *http.Server
	if config.Profiler.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		profilerServer = &http.Server{Addr: config.Profiler.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			s.Logger.Info(fmt.Sprintf("🔬 starting pprof profiler on '%s'", config.Profiler.Addr))

			if err := profilerServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					s.Logger.Fatal("failed to start pprof profiler", zap.Error(err))
				}
			}
			s.Logger.Info("profiler shut down.")
		}()
	}

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer = &http.Server{Addr: config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			s.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", config.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					s.Logger.Fatal("failed to start prometheus metrics server", zap.Error(err))
				}
			}
			s.Logger.Info("metrics server shut down.")
		}()
	}

	s.Logger.Info(
		"starting killrvideo web tier...",
		zap.String("version", build.Version),
		zap.String("date", build.Date),
		zap.String("commit", build.Commit),
		zap.String("go-version", goruntime.Version()),
		zap.Any("config", config),
	)

	httpServer, err := s.runHTTPServer(config, r)
	if err != nil {
		return err
	}

	// wait for cancellation signal
	<-ctx.Done()
	s.Logger.Info("attempting to shutdown gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		s.Logger.Info("failed to shutdown the http server", zap.Error(err))
	}

	if profilerServer != nil {
		if err := profilerServer.Shutdown(ctx); err != nil {
			s.Logger.Info("failed to shutdown the profiler", zap.Error(err))
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			s.Logger.Info("failed to shutdown the prometheus metrics server", zap.Error(err))
		}
	}

	if err := tracerProviderCloser(); err != nil {
		s.Logger.Error("failed to shutdown tracing", zap.Error(err))
	}

	s.Logger.Info("server exited. goodbye 👋")

	return nil
}
