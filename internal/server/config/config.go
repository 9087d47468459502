// Package config contains all knobs and defaults used to configure the KillrVideo web
// tier when running as a standalone server.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"time"
)

const (
	DefaultMaxConcurrentRoutes   = 0
	DefaultMaxConcurrentRequests = 0
	DefaultMaxPathSets           = 100
	DefaultMaxPaths              = 10000
	DefaultMaxBodyBytes          = 1 << 20

	DefaultRatingsTimeout    = 2 * time.Second
	DefaultRatingsMaxRetries = 2
	DefaultRatingsCacheLimit = 10000
	DefaultRatingsCacheTTL   = 10 * time.Second
)

// Ratings backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRemote   = "remote"
)

var backends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendMySQL, BackendRemote}

// HTTPConfig defines HTTP server configurations.
type HTTPConfig struct {
	Addr string
	TLS  *TLSConfig

	// UpstreamTimeout is the timeout for every model request, backend calls included.
	UpstreamTimeout time.Duration

	// MaxPathSets is the maximum number of path sets accepted in one get request.
	MaxPathSets int

	// MaxBodyBytes is the maximum size of a POST body.
	MaxBodyBytes int64

	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
}

// TLSConfig defines configuration specific to Transport Layer Security (TLS) settings.
type TLSConfig struct {
	Enabled  bool
	CertPath string `mapstructure:"cert"`
	KeyPath  string `mapstructure:"key"`
}

// LogConfig defines server logging configurations.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string

	// SlowThreshold keeps only the traces whose root span took at least this long. Zero keeps
	// every sampled trace.
	SlowThreshold time.Duration
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// ProfilerConfig defines server configurations specific to pprof profiling.
type ProfilerConfig struct {
	Enabled bool
	Addr    string
}

// MetricConfig defines configurations for serving custom metrics from the server.
type MetricConfig struct {
	Enabled bool
	Addr    string
}

// RatingsCacheConfig defines the result cache placed in front of the ratings backend.
type RatingsCacheConfig struct {
	Enabled bool
	Limit   int64 // (in items)
	TTL     time.Duration
}

// RatingsConfig defines the ratings backend the routes call.
type RatingsConfig struct {
	// Backend is one of 'memory', 'sqlite', 'postgres', 'mysql' or 'remote'.
	Backend string

	// URI is the database connection string for the SQL backends and the base URL of the
	// ratings API for the remote backend.
	URI      string
	Username string
	Password string

	// Timeout bounds every backend call. Zero disables it.
	Timeout time.Duration

	// MaxRetries is how many times a failed lookup is retried.
	MaxRetries uint64

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// Metrics exports the connection pool statistics of the SQL backends.
	Metrics bool

	Cache RatingsCacheConfig
}

// RouterConfig bounds the fan out of one graph request.
type RouterConfig struct {
	// MaxConcurrentRoutes is how many routes resolve at once for one request. Zero means no bound.
	MaxConcurrentRoutes int

	// MaxConcurrentRequests is how many backend requests one route issues at once. Zero means
	// no bound.
	MaxConcurrentRequests int

	// MaxPaths is how many concrete paths the path sets of one get request may expand
	// to. Zero means no bound.
	MaxPaths int
}

type Config struct {
	HTTP     HTTPConfig
	Log      LogConfig
	Trace    TraceConfig
	Profiler ProfilerConfig
	Metrics  MetricConfig
	Ratings  RatingsConfig
	Router   RouterConfig
}

func (cfg *Config) Verify() error {
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.HTTP.TLS != nil && cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.CertPath == "" || cfg.HTTP.TLS.KeyPath == "" {
			return errors.New("'http.tls.cert' and 'http.tls.key' configs must be set")
		}
	}

	if cfg.Trace.SlowThreshold < 0 {
		return errors.New("config 'trace.slowThreshold' must not be negative")
	}

	if cfg.HTTP.UpstreamTimeout < 0 {
		return errors.New("config 'http.upstreamTimeout' must not be negative")
	}

	if cfg.Ratings.Timeout > 0 && cfg.HTTP.UpstreamTimeout > 0 && cfg.Ratings.Timeout > cfg.HTTP.UpstreamTimeout {
		return fmt.Errorf(
			"config 'ratings.timeout' (%s) cannot be higher than 'http.upstreamTimeout' config (%s)",
			cfg.Ratings.Timeout,
			cfg.HTTP.UpstreamTimeout,
		)
	}

	if !slices.Contains(backends, cfg.Ratings.Backend) {
		return fmt.Errorf("config 'ratings.backend' must be one of %v", backends)
	}

	switch cfg.Ratings.Backend {
	case BackendPostgres, BackendMySQL, BackendSQLite:
		if cfg.Ratings.URI == "" {
			return fmt.Errorf("config 'ratings.uri' must be set for the '%s' backend", cfg.Ratings.Backend)
		}
	case BackendRemote:
		u, err := url.Parse(cfg.Ratings.URI)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("config 'ratings.uri' must be an http(s) URL for the 'remote' backend")
		}
	}

	if cfg.Ratings.Cache.Enabled {
		if cfg.Ratings.Cache.Limit <= 0 {
			return errors.New("config 'ratings.cache.limit' must be a positive integer")
		}
		if cfg.Ratings.Cache.TTL <= 0 {
			return errors.New("config 'ratings.cache.ttl' must be a positive duration")
		}
	}

	if cfg.Router.MaxConcurrentRoutes < 0 || cfg.Router.MaxConcurrentRequests < 0 {
		return errors.New("config 'router.maxConcurrentRoutes' and 'router.maxConcurrentRequests' must not be negative")
	}

	if cfg.Router.MaxPaths < 0 {
		return errors.New("config 'router.maxPaths' must not be negative")
	}

	return nil
}

// DefaultConfig is the KillrVideo web tier default configurations.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:               "0.0.0.0:3000",
			TLS:                &TLSConfig{Enabled: false},
			UpstreamTimeout:    5 * time.Second,
			MaxPathSets:        DefaultMaxPathSets,
			MaxBodyBytes:       DefaultMaxBodyBytes,
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedHeaders: []string{"*"},
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 0.2,
			ServiceName: "killrvideo-web",
		},
		Profiler: ProfilerConfig{
			Enabled: false,
			Addr:    ":3001",
		},
		Metrics: MetricConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
		Ratings: RatingsConfig{
			Backend:      BackendMemory,
			Timeout:      DefaultRatingsTimeout,
			MaxRetries:   DefaultRatingsMaxRetries,
			MaxIdleConns: 10,
			MaxOpenConns: 30,
			Cache: RatingsCacheConfig{
				Enabled: false,
				Limit:   DefaultRatingsCacheLimit,
				TTL:     DefaultRatingsCacheTTL,
			},
		},
		Router: RouterConfig{
			MaxConcurrentRoutes:   DefaultMaxConcurrentRoutes,
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			MaxPaths:              DefaultMaxPaths,
		},
	}
}

// MustDefaultConfig returns default server config with the profiler and metrics turned off.
func MustDefaultConfig() *Config {
	config := DefaultConfig()

	config.Metrics.Enabled = false

	return config
}

// MustDefaultConfigWithRandomPorts returns default server config but with a random port for
// the http address and with the profiler and metrics turned off.
// This function may panic if somehow a random port cannot be chosen.
func MustDefaultConfigWithRandomPorts() *Config {
	config := MustDefaultConfig()

	httpPort, httpPortReleaser := TCPRandomPort()
	defer httpPortReleaser()

	config.HTTP.Addr = fmt.Sprintf("0.0.0.0:%d", httpPort)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	l, err := net.Listen("tcp", "")
	if err != nil {
		panic(err)
	}
	return l.Addr().(*net.TCPAddr).Port, func() {
		l.Close()
	}
}
