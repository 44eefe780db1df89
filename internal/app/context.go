package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"asylum/internal/config"
	"asylum/internal/db"
	"asylum/internal/descriptor"
	"asylum/internal/engine"
	"asylum/internal/logging"
	"asylum/internal/migrate"
	"asylum/internal/query"
)

// App bundles the wired core for one process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Dialect   db.Dialect
	Engine    engine.Engine
	Query     query.Service
	StartedAt time.Time
}

// Bootstrap opens the store named by cfg, applies migrations, and builds the
// engine and query services on top of it.
func Bootstrap(workspace string, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	conn, dialect, err := db.Open(db.Config{
		Workspace: workspace,
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, dialect)
	eng.Logger = logger
	eng.Descriptor = descriptor.Options{Strict: cfg.Descriptor.StrictMerge, Logger: logger}

	q := query.New(eng.Repo)
	q.MaxPageSize = cfg.Pagination.MaxPageSize

	logger.Info("store ready", "driver", dialect.Driver)
	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        conn,
		Dialect:   dialect,
		Engine:    eng,
		Query:     q,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
