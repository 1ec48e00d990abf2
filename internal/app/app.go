// Package app assembles the forum's components from a Config.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"forumcore/internal/auth"
	"forumcore/internal/clock"
	"forumcore/internal/config"
	"forumcore/internal/content"
	"forumcore/internal/db"
	"forumcore/internal/logging"
	"forumcore/internal/moderation"
	"forumcore/internal/server"
	"forumcore/internal/session"
)

type App struct {
	Config     *config.Config
	DB         *sql.DB
	Log        *slog.Logger
	Sessions   *session.Manager
	Auth       *auth.Service
	Content    *content.Service
	Moderation *moderation.Engine
	Server     *server.Server

	logCloser io.Closer
}

// New opens the logger and the migrated database and wires every service.
// Close releases both.
func New(cfg *config.Config) (*App, error) {
	log, closer, err := logging.New(cfg.Level(), cfg.LogFile)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}

	a, err := wire(cfg, conn, log)
	if err != nil {
		conn.Close()
		closer.Close()
		return nil, err
	}
	a.logCloser = closer
	return a, nil
}

func wire(cfg *config.Config, conn *sql.DB, log *slog.Logger) (*App, error) {
	store, err := session.NewStore(cfg.SessionStore, conn)
	if err != nil {
		return nil, err
	}
	clk := clock.Real{}

	sessions := session.NewManager(store, cfg.IdleTimeout(),
		session.WithClock(clk),
		session.WithLogger(log.With("component", "session")),
		session.WithCSRFBypass(cfg.SkipCSRF()),
	)
	authSvc := auth.NewService(conn, sessions,
		auth.WithVerifier(auth.BcryptVerifier{Cost: cfg.BcryptCost}),
		auth.WithClock(clk),
		auth.WithLogger(log.With("component", "auth")),
	)
	contentSvc := content.NewService(conn, clk, log.With("component", "content"))
	modEngine := moderation.NewEngine(conn, clk, log.With("component", "moderation"))

	srv := server.New(server.Deps{
		DB:            conn,
		Auth:          authSvc,
		Sessions:      sessions,
		Content:       contentSvc,
		Moderation:    modEngine,
		Log:           log.With("component", "http"),
		SecureCookies: !cfg.Debug,
	})

	return &App{
		Config:     cfg,
		DB:         conn,
		Log:        log,
		Sessions:   sessions,
		Auth:       authSvc,
		Content:    contentSvc,
		Moderation: modEngine,
		Server:     srv,
	}, nil
}

// StartSweeper schedules idle-session cleanup on the configured schedule.
func (a *App) StartSweeper() (*session.Sweeper, error) {
	return session.StartSweeper(a.Sessions, a.Config.SweepSchedule, a.Log.With("component", "sweeper"))
}

func (a *App) Close() error {
	var errs []error
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
