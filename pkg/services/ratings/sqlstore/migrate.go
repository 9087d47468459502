package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"

	"github.com/HadesArchitect/killrvideo-web/assets"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig struct {
	Engine        string
	URI           string
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Username      string
	Password      string
	Logger        logger.Logger
}

func (c MigrationConfig) logger() logger.Logger {
	if c.Logger == nil {
		return logger.NewNoopLogger()
	}
	return c.Logger
}

func openForMigrations(ctx context.Context, cfg MigrationConfig) (*sql.DB, dialect, error) {
	d, err := dialectFor(cfg.Engine)
	if err != nil {
		return nil, dialect{}, err
	}

	uri, err := PrepareURI(cfg.Engine, cfg.URI, cfg.Username, cfg.Password)
	if err != nil {
		return nil, dialect{}, err
	}

	db, err := goose.OpenDBWithDriver(d.driver, uri)
	if err != nil {
		return nil, dialect{}, fmt.Errorf("failed to open a connection to the datastore: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.Timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, dialect{}, fmt.Errorf("failed to initialize database connection: %w", err)
	}

	goose.SetBaseFS(assets.EmbedMigrations)
	return db, d, nil
}

// RunMigrations migrates the ratings schema to cfg.TargetVersion, or to the latest version
// when TargetVersion is 0.
func RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	log := cfg.logger()

	goose.SetLogger(goose.NopLogger())
	goose.SetVerbose(cfg.Verbose)

	db, d, err := openForMigrations(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	currentVersion, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get %s db version: %w", cfg.Engine, err)
	}
	log.Info("current schema version", logger.String("engine", cfg.Engine), logger.Any("version", currentVersion))

	if cfg.TargetVersion == 0 {
		if err := goose.UpContext(ctx, db, d.migrationsDir); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", cfg.Engine, err)
		}
		log.Info("migration done", logger.String("engine", cfg.Engine))
		return nil
	}

	target := int64(cfg.TargetVersion)
	switch {
	case target < currentVersion:
		if err := goose.DownToContext(ctx, db, d.migrationsDir, target); err != nil {
			return fmt.Errorf("failed to run %s migrations down to %v: %w", cfg.Engine, target, err)
		}
	case target > currentVersion:
		if err := goose.UpToContext(ctx, db, d.migrationsDir, target); err != nil {
			return fmt.Errorf("failed to run %s migrations up to %v: %w", cfg.Engine, target, err)
		}
	default:
		log.Info("nothing to migrate", logger.String("engine", cfg.Engine))
		return nil
	}

	log.Info("migration done", logger.String("engine", cfg.Engine), logger.Any("version", target))
	return nil
}

// GetCurrentVersion returns the schema version of the database described by cfg.
func GetCurrentVersion(ctx context.Context, cfg MigrationConfig) (int64, error) {
	goose.SetLogger(goose.NopLogger())

	db, _, err := openForMigrations(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return goose.GetDBVersionContext(ctx, db)
}
