package sqlstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/HadesArchitect/killrvideo-web/assets"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
)

const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
)

// Config holds the connection settings of a Datastore.
type Config struct {
	Username        string
	Password        string
	Logger          logger.Logger
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	ExportMetrics   bool
}

// DatastoreOption defines a function type used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithConnectTimeout bounds how long New keeps retrying to reach the database.
func WithConnectTimeout(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnectTimeout = d
	}
}

// WithMetrics exports the connection pool statistics to Prometheus.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{
		ConnectTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	return cfg
}

type dialect struct {
	driver        string
	migrationsDir string
	placeholder   sq.PlaceholderFormat
}

func dialectFor(engine string) (dialect, error) {
	switch engine {
	case EngineSQLite:
		return dialect{driver: "sqlite", migrationsDir: assets.SqliteMigrationDir, placeholder: sq.Question}, nil
	case EnginePostgres:
		return dialect{driver: "pgx", migrationsDir: assets.PostgresMigrationDir, placeholder: sq.Dollar}, nil
	case EngineMySQL:
		return dialect{driver: "mysql", migrationsDir: assets.MySQLMigrationDir, placeholder: sq.Question}, nil
	case "":
		return dialect{}, fmt.Errorf("missing datastore engine type")
	default:
		return dialect{}, fmt.Errorf("unknown datastore engine type: %s", engine)
	}
}

// PrepareURI applies credential overrides to uri, and for SQLite the pragmas it needs.
func PrepareURI(engine, uri, username, password string) (string, error) {
	switch engine {
	case EngineMySQL:
		dsn, err := mysqldriver.ParseDSN(uri)
		if err != nil {
			return "", fmt.Errorf("invalid database uri: %w", err)
		}
		if username != "" {
			dsn.User = username
		}
		if password != "" {
			dsn.Passwd = password
		}
		dsn.ParseTime = true
		return dsn.FormatDSN(), nil
	case EnginePostgres:
		if username == "" && password == "" {
			return uri, nil
		}
		dbURI, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("invalid database uri: %w", err)
		}
		if username == "" && dbURI.User != nil {
			username = dbURI.User.Username()
		}
		if password == "" && dbURI.User != nil {
			password, _ = dbURI.User.Password()
		}
		dbURI.User = url.UserPassword(username, password)
		return dbURI.String(), nil
	case EngineSQLite:
		return PrepareDSN(uri)
	default:
		return uri, nil
	}
}

// PrepareDSN sets the SQLite journal mode, busy timeout and transaction lock mode unless uri
// already specifies them.
func PrepareDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	return uri + "?" + query.Encode(), nil
}
