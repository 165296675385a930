package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lexmatrix/internal/infrastructure/config"
)

// Open connects to the SQL database named by the configuration. The memory driver has no
// connection and is rejected here.
func Open(cfg *config.Config, logger logrus.FieldLogger) (*sql.DB, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database driver: %w", err)
	}

	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database dsn: %w", err)
	}

	switch driver {
	case config.DriverPostgres:
		return openPostgres(cfg, dsn, logger)
	case config.DriverSQLite:
		return openSQLite(dsn)
	default:
		return nil, nil, fmt.Errorf("driver %q has no SQL connection", driver)
	}
}

func openPostgres(cfg *config.Config, dsn string, logger logrus.FieldLogger) (*sql.DB, func(), error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.Database.LogSQL {
		connCfg.Tracer = &tracelog.TraceLog{
			Logger:   tracelog.LoggerFunc(traceToLogrus(logger)),
			LogLevel: tracelog.LogLevelTrace,
		}
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

func openSQLite(dsn string) (*sql.DB, func(), error) {
	db, err := sql.Open(config.DriverSQLite, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

func traceToLogrus(logger logrus.FieldLogger) func(context.Context, tracelog.LogLevel, string, map[string]any) {
	return func(_ context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
		entry := logger.WithField("component", "pgx").WithFields(logrus.Fields(data))
		switch lvl {
		case tracelog.LogLevelError:
			entry.Error(msg)
		case tracelog.LogLevelWarn:
			entry.Warn(msg)
		case tracelog.LogLevelInfo:
			entry.Info(msg)
		default:
			entry.Debug(msg)
		}
	}
}
