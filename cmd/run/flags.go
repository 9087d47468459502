package run

import (
	"github.com/spf13/cobra"

	"github.com/HadesArchitect/killrvideo-web/cmd/util"
	serverconfig "github.com/HadesArchitect/killrvideo-web/internal/server/config"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlags(command *cobra.Command) {
	defaultConfig := serverconfig.DefaultConfig()
	flags := command.Flags()

	flags.String("http-addr", defaultConfig.HTTP.Addr, "the host:port address to serve the HTTP server on")
	util.MustBindPFlag("http.addr", flags.Lookup("http-addr"))
	util.MustBindEnv("http.addr", "KILLRVIDEO_HTTP_ADDR")

	flags.Bool("http-tls-enabled", defaultConfig.HTTP.TLS.Enabled, "enable/disable transport layer security (TLS)")
	util.MustBindPFlag("http.tls.enabled", flags.Lookup("http-tls-enabled"))
	util.MustBindEnv("http.tls.enabled", "KILLRVIDEO_HTTP_TLS_ENABLED")

	flags.String("http-tls-cert", defaultConfig.HTTP.TLS.CertPath, "the (absolute) file path of the certificate to use for the TLS connection")
	util.MustBindPFlag("http.tls.cert", flags.Lookup("http-tls-cert"))
	util.MustBindEnv("http.tls.cert", "KILLRVIDEO_HTTP_TLS_CERT")

	flags.String("http-tls-key", defaultConfig.HTTP.TLS.KeyPath, "the (absolute) file path of the TLS key that should be used for the TLS connection")
	util.MustBindPFlag("http.tls.key", flags.Lookup("http-tls-key"))
	util.MustBindEnv("http.tls.key", "KILLRVIDEO_HTTP_TLS_KEY")

	command.MarkFlagsRequiredTogether("http-tls-enabled", "http-tls-cert", "http-tls-key")

	flags.Duration("http-upstream-timeout", defaultConfig.HTTP.UpstreamTimeout, "the timeout duration of a model request, backend calls included")
	util.MustBindPFlag("http.upstreamTimeout", flags.Lookup("http-upstream-timeout"))
	util.MustBindEnv("http.upstreamTimeout", "KILLRVIDEO_HTTP_UPSTREAM_TIMEOUT", "KILLRVIDEO_HTTP_UPSTREAMTIMEOUT")

	flags.Int("http-max-path-sets", defaultConfig.HTTP.MaxPathSets, "the maximum number of path sets accepted in one get request")
	util.MustBindPFlag("http.maxPathSets", flags.Lookup("http-max-path-sets"))
	util.MustBindEnv("http.maxPathSets", "KILLRVIDEO_HTTP_MAX_PATH_SETS", "KILLRVIDEO_HTTP_MAXPATHSETS")

	flags.Int64("http-max-body-bytes", defaultConfig.HTTP.MaxBodyBytes, "the maximum size in bytes of a POST body")
	util.MustBindPFlag("http.maxBodyBytes", flags.Lookup("http-max-body-bytes"))
	util.MustBindEnv("http.maxBodyBytes", "KILLRVIDEO_HTTP_MAX_BODY_BYTES", "KILLRVIDEO_HTTP_MAXBODYBYTES")

	flags.StringSlice("http-cors-allowed-origins", defaultConfig.HTTP.CORSAllowedOrigins, "specifies the CORS allowed origins")
	util.MustBindPFlag("http.corsAllowedOrigins", flags.Lookup("http-cors-allowed-origins"))
	util.MustBindEnv("http.corsAllowedOrigins", "KILLRVIDEO_HTTP_CORS_ALLOWED_ORIGINS", "KILLRVIDEO_HTTP_CORSALLOWEDORIGINS")

	flags.StringSlice("http-cors-allowed-headers", defaultConfig.HTTP.CORSAllowedHeaders, "specifies the CORS allowed headers")
	util.MustBindPFlag("http.corsAllowedHeaders", flags.Lookup("http-cors-allowed-headers"))
	util.MustBindEnv("http.corsAllowedHeaders", "KILLRVIDEO_HTTP_CORS_ALLOWED_HEADERS", "KILLRVIDEO_HTTP_CORSALLOWEDHEADERS")

	flags.String("ratings-backend", defaultConfig.Ratings.Backend, "the ratings backend ('memory', 'sqlite', 'postgres', 'mysql' or 'remote')")
	util.MustBindPFlag("ratings.backend", flags.Lookup("ratings-backend"))
	util.MustBindEnv("ratings.backend", "KILLRVIDEO_RATINGS_BACKEND")

	flags.String("ratings-uri", defaultConfig.Ratings.URI, "the database connection uri of the SQL backends or the base URL of the remote ratings API")
	util.MustBindPFlag("ratings.uri", flags.Lookup("ratings-uri"))
	util.MustBindEnv("ratings.uri", "KILLRVIDEO_RATINGS_URI")

	flags.String("ratings-username", "", "the connection username to use to connect to the database (overwrites any username provided in the connection uri)")
	util.MustBindPFlag("ratings.username", flags.Lookup("ratings-username"))
	util.MustBindEnv("ratings.username", "KILLRVIDEO_RATINGS_USERNAME")

	flags.String("ratings-password", "", "the connection password to use to connect to the database (overwrites any password provided in the connection uri)")
	util.MustBindPFlag("ratings.password", flags.Lookup("ratings-password"))
	util.MustBindEnv("ratings.password", "KILLRVIDEO_RATINGS_PASSWORD")

	flags.Duration("ratings-timeout", defaultConfig.Ratings.Timeout, "the timeout of every call to the ratings backend (0 disables it)")
	util.MustBindPFlag("ratings.timeout", flags.Lookup("ratings-timeout"))
	util.MustBindEnv("ratings.timeout", "KILLRVIDEO_RATINGS_TIMEOUT")

	flags.Uint64("ratings-max-retries", defaultConfig.Ratings.MaxRetries, "how many times a failed ratings lookup is retried")
	util.MustBindPFlag("ratings.maxRetries", flags.Lookup("ratings-max-retries"))
	util.MustBindEnv("ratings.maxRetries", "KILLRVIDEO_RATINGS_MAX_RETRIES", "KILLRVIDEO_RATINGS_MAXRETRIES")

	flags.Int("ratings-max-open-conns", defaultConfig.Ratings.MaxOpenConns, "the maximum number of open connections to the ratings database")
	util.MustBindPFlag("ratings.maxOpenConns", flags.Lookup("ratings-max-open-conns"))
	util.MustBindEnv("ratings.maxOpenConns", "KILLRVIDEO_RATINGS_MAX_OPEN_CONNS", "KILLRVIDEO_RATINGS_MAXOPENCONNS")

	flags.Int("ratings-max-idle-conns", defaultConfig.Ratings.MaxIdleConns, "the maximum number of connections to the ratings database in the idle connection pool")
	util.MustBindPFlag("ratings.maxIdleConns", flags.Lookup("ratings-max-idle-conns"))
	util.MustBindEnv("ratings.maxIdleConns", "KILLRVIDEO_RATINGS_MAX_IDLE_CONNS", "KILLRVIDEO_RATINGS_MAXIDLECONNS")

	flags.Duration("ratings-conn-max-idle-time", defaultConfig.Ratings.ConnMaxIdleTime, "the maximum amount of time a connection to the ratings database may be idle")
	util.MustBindPFlag("ratings.connMaxIdleTime", flags.Lookup("ratings-conn-max-idle-time"))
	util.MustBindEnv("ratings.connMaxIdleTime", "KILLRVIDEO_RATINGS_CONN_MAX_IDLE_TIME", "KILLRVIDEO_RATINGS_CONNMAXIDLETIME")

	flags.Duration("ratings-conn-max-lifetime", defaultConfig.Ratings.ConnMaxLifetime, "the maximum amount of time a connection to the ratings database may be reused")
	util.MustBindPFlag("ratings.connMaxLifetime", flags.Lookup("ratings-conn-max-lifetime"))
	util.MustBindEnv("ratings.connMaxLifetime", "KILLRVIDEO_RATINGS_CONN_MAX_LIFETIME", "KILLRVIDEO_RATINGS_CONNMAXLIFETIME")

	flags.Bool("ratings-metrics-enabled", defaultConfig.Ratings.Metrics, "enable/disable sql metrics for the ratings database")
	util.MustBindPFlag("ratings.metrics", flags.Lookup("ratings-metrics-enabled"))
	util.MustBindEnv("ratings.metrics", "KILLRVIDEO_RATINGS_METRICS_ENABLED")

	flags.Bool("ratings-cache-enabled", defaultConfig.Ratings.Cache.Enabled, "enable/disable caching of ratings lookups")
	util.MustBindPFlag("ratings.cache.enabled", flags.Lookup("ratings-cache-enabled"))
	util.MustBindEnv("ratings.cache.enabled", "KILLRVIDEO_RATINGS_CACHE_ENABLED")

	flags.Int64("ratings-cache-limit", defaultConfig.Ratings.Cache.Limit, "the maximum number of ratings lookups kept in the cache")
	util.MustBindPFlag("ratings.cache.limit", flags.Lookup("ratings-cache-limit"))
	util.MustBindEnv("ratings.cache.limit", "KILLRVIDEO_RATINGS_CACHE_LIMIT")

	flags.Duration("ratings-cache-ttl", defaultConfig.Ratings.Cache.TTL, "the time a cached ratings lookup stays valid")
	util.MustBindPFlag("ratings.cache.ttl", flags.Lookup("ratings-cache-ttl"))
	util.MustBindEnv("ratings.cache.ttl", "KILLRVIDEO_RATINGS_CACHE_TTL")

	flags.Int("router-max-concurrent-routes", defaultConfig.Router.MaxConcurrentRoutes, "the maximum number of routes resolved at once for one request (0 means no bound)")
	util.MustBindPFlag("router.maxConcurrentRoutes", flags.Lookup("router-max-concurrent-routes"))
	util.MustBindEnv("router.maxConcurrentRoutes", "KILLRVIDEO_ROUTER_MAX_CONCURRENT_ROUTES", "KILLRVIDEO_ROUTER_MAXCONCURRENTROUTES")

	flags.Int("router-max-concurrent-requests", defaultConfig.Router.MaxConcurrentRequests, "the maximum number of backend requests one route issues at once (0 means no bound)")
	util.MustBindPFlag("router.maxConcurrentRequests", flags.Lookup("router-max-concurrent-requests"))
	util.MustBindEnv("router.maxConcurrentRequests", "KILLRVIDEO_ROUTER_MAX_CONCURRENT_REQUESTS", "KILLRVIDEO_ROUTER_MAXCONCURRENTREQUESTS")

	flags.Int("router-max-paths", defaultConfig.Router.MaxPaths, "the maximum number of concrete paths one get request may expand to (0 means no bound)")
	util.MustBindPFlag("router.maxPaths", flags.Lookup("router-max-paths"))
	util.MustBindEnv("router.maxPaths", "KILLRVIDEO_ROUTER_MAX_PATHS", "KILLRVIDEO_ROUTER_MAXPATHS")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "KILLRVIDEO_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "KILLRVIDEO_LOG_LEVEL")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages")
	util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
	util.MustBindEnv("log.timestampFormat", "KILLRVIDEO_LOG_TIMESTAMP_FORMAT")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "KILLRVIDEO_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "KILLRVIDEO_TRACE_OTLP_ENDPOINT")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")
	util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
	util.MustBindEnv("trace.otlp.tls.enabled", "KILLRVIDEO_TRACE_OTLP_TLS_ENABLED")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "KILLRVIDEO_TRACE_SAMPLE_RATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces.")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "KILLRVIDEO_TRACE_SERVICE_NAME")

	flags.Duration("trace-slow-threshold", defaultConfig.Trace.SlowThreshold, "export only the traces whose root span took at least this long (0 exports every sampled trace)")
	util.MustBindPFlag("trace.slowThreshold", flags.Lookup("trace-slow-threshold"))
	util.MustBindEnv("trace.slowThreshold", "KILLRVIDEO_TRACE_SLOW_THRESHOLD")

	flags.Bool("profiler-enabled", defaultConfig.Profiler.Enabled, "enable/disable pprof profiling")
	util.MustBindPFlag("profiler.enabled", flags.Lookup("profiler-enabled"))
	util.MustBindEnv("profiler.enabled", "KILLRVIDEO_PROFILER_ENABLED")

	flags.String("profiler-addr", defaultConfig.Profiler.Addr, "the host:port address to serve the pprof profiler server on")
	util.MustBindPFlag("profiler.addr", flags.Lookup("profiler-addr"))
	util.MustBindEnv("profiler.addr", "KILLRVIDEO_PROFILER_ADDRESS")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "KILLRVIDEO_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "KILLRVIDEO_METRICS_ADDR")
}
