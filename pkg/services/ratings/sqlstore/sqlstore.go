// Package sqlstore implements the ratings service on top of SQLite, Postgres or MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings"
)

var tracer = otel.Tracer("pkg/services/ratings/sqlstore")

// ErrCollision is returned when two writers insert the same rating row concurrently.
var ErrCollision = errors.New("item already exists")

const (
	videoRatingsTable       = "video_ratings"
	videoRatingsByUserTable = "video_ratings_by_user"
)

// Datastore is a SQL implementation of [ratings.Service].
type Datastore struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	engine           string
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
}

var _ ratings.Service = (*Datastore)(nil)

// New connects to the database at uri and waits, up to cfg.ConnectTimeout, until it answers.
// The schema must have been migrated beforehand with RunMigrations.
func New(ctx context.Context, engine, uri string, cfg *Config) (*Datastore, error) {
	d, err := dialectFor(engine)
	if err != nil {
		return nil, err
	}

	uri, err = PrepareURI(engine, uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, uri)
	if err != nil {
		return nil, fmt.Errorf("initialize %s connection: %w", engine, err)
	}

	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout
	attempt := 1
	err = backoff.Retry(func() error {
		err := db.PingContext(ctx)
		if err != nil {
			cfg.Logger.Info("waiting for database", logger.String("engine", engine), logger.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", engine, err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, build.ProjectName)
		if err := prometheus.Register(collector); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return &Datastore{
		stbl:             sq.StatementBuilder.PlaceholderFormat(d.placeholder).RunWith(db),
		db:               db,
		engine:           engine,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

func (s *Datastore) startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, s.engine+"."+name)
}

// Close see [ratings.Service].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

// GetRating see [ratings.Service].GetRating.
func (s *Datastore) GetRating(ctx context.Context, req *ratings.GetRatingRequest) (*ratings.GetRatingResponse, error) {
	ctx, span := s.startTrace(ctx, "GetRating")
	defer span.End()

	res := &ratings.GetRatingResponse{VideoID: req.VideoID}
	err := s.stbl.
		Select("rating_counter", "rating_total").
		From(videoRatingsTable).
		Where(sq.Eq{"video_id": req.VideoID.Value}).
		QueryRowContext(ctx).
		Scan(&res.RatingsCount, &res.RatingsTotal)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, HandleSQLError(err)
	}

	return res, nil
}

// GetUserRating see [ratings.Service].GetUserRating.
func (s *Datastore) GetUserRating(ctx context.Context, req *ratings.GetUserRatingRequest) (*ratings.GetUserRatingResponse, error) {
	ctx, span := s.startTrace(ctx, "GetUserRating")
	defer span.End()

	res := &ratings.GetUserRatingResponse{VideoID: req.VideoID, UserID: req.UserID}
	err := s.stbl.
		Select("rating").
		From(videoRatingsByUserTable).
		Where(sq.Eq{"video_id": req.VideoID.Value, "user_id": req.UserID.Value}).
		QueryRowContext(ctx).
		Scan(&res.Rating)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, HandleSQLError(err)
	}

	return res, nil
}

// RateVideo see [ratings.Service].RateVideo.
func (s *Datastore) RateVideo(ctx context.Context, req *ratings.RateVideoRequest) (*ratings.RateVideoResponse, error) {
	ctx, span := s.startTrace(ctx, "RateVideo")
	defer span.End()

	if err := ratings.ValidateRating(req.Rating); err != nil {
		return nil, err
	}

	err := s.retryBusy(func() error {
		return s.rateVideo(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	return &ratings.RateVideoResponse{}, nil
}

func (s *Datastore) rateVideo(ctx context.Context, req *ratings.RateVideoRequest) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	stbl := s.stbl.RunWith(txn)
	userFilter := sq.Eq{"video_id": req.VideoID.Value, "user_id": req.UserID.Value}

	var previous int32
	err = stbl.
		Select("rating").
		From(videoRatingsByUserTable).
		Where(userFilter).
		QueryRowContext(ctx).
		Scan(&previous)

	var countDelta, totalDelta int64
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = stbl.
			Insert(videoRatingsByUserTable).
			Columns("video_id", "user_id", "rating").
			Values(req.VideoID.Value, req.UserID.Value, req.Rating).
			ExecContext(ctx)
		if err != nil {
			return HandleSQLError(err)
		}
		countDelta, totalDelta = 1, int64(req.Rating)
	case err != nil:
		return HandleSQLError(err)
	default:
		_, err = stbl.
			Update(videoRatingsByUserTable).
			Set("rating", req.Rating).
			Set("rated_at", sq.Expr("CURRENT_TIMESTAMP")).
			Where(userFilter).
			ExecContext(ctx)
		if err != nil {
			return HandleSQLError(err)
		}
		totalDelta = int64(req.Rating - previous)
	}

	if countDelta != 0 || totalDelta != 0 {
		res, err := stbl.
			Update(videoRatingsTable).
			Set("rating_counter", sq.Expr("rating_counter + ?", countDelta)).
			Set("rating_total", sq.Expr("rating_total + ?", totalDelta)).
			Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
			Where(sq.Eq{"video_id": req.VideoID.Value}).
			ExecContext(ctx)
		if err != nil {
			return HandleSQLError(err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return HandleSQLError(err)
		}
		if rows == 0 {
			_, err = stbl.
				Insert(videoRatingsTable).
				Columns("video_id", "rating_counter", "rating_total").
				Values(req.VideoID.Value, countDelta, totalDelta).
				ExecContext(ctx)
			if err != nil {
				return HandleSQLError(err)
			}
		}
	}

	if err := txn.Commit(); err != nil {
		return HandleSQLError(err)
	}

	s.logger.DebugWithContext(ctx, "video rated",
		logger.String("video_id", req.VideoID.Value),
		logger.String("user_id", req.UserID.Value))
	return nil
}

// retryBusy retries fn while SQLite reports the database as locked.
func (s *Datastore) retryBusy(fn func() error) error {
	if s.engine != EngineSQLite {
		return fn()
	}

	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}

// HandleSQLError maps unique constraint violations of every supported engine to ErrCollision
// and wraps anything else.
func HandleSQLError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", ErrCollision, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrCollision, err)
	}

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return fmt.Errorf("%w: %w", ErrCollision, err)
	}

	return fmt.Errorf("sql error: %w", err)
}
