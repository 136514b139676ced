package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"cms-go/internal/cms"
	"cms-go/internal/config"
	"cms-go/internal/database"
	"cms-go/internal/objectstore"
	"cms-go/internal/session"
	"cms-go/internal/syncbus"
)

// CMSApp is the application layer between the CLI and cms.Service. It
// constructs all dependencies from config, audits mutating commands, and
// releases everything on Close.
type CMSApp struct {
	cfg      *config.Config
	db       *database.SQLDatabase
	store    cms.ObjectStore
	hub      *syncbus.Hub
	sessions cms.SessionStore
	service  *cms.Service
	logger   cms.Logger
	clock    cms.Clock
	auditor  *Auditor
	warnOnce sync.Once
	logFile  *os.File
	stop     context.CancelFunc
	closers  []func()
}

// NewCMSApp creates a fully wired CMSApp from cfg. The caller must call
// Close when done.
func NewCMSApp(ctx context.Context, cfg *config.Config, verbose bool) (*CMSApp, error) {
	return newCMSApp(ctx, cfg, verbose, cms.SystemClock{})
}

func newCMSApp(ctx context.Context, cfg *config.Config, verbose bool, clock cms.Clock) (*CMSApp, error) {
	opID := clock.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, opID, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	a := &CMSApp{cfg: cfg, logger: logger, clock: clock, logFile: logFile}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *CMSApp) open(ctx context.Context) error {
	db, err := database.NewDatabaseFromConfig(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date (run `cms db migrate`): %w", err)
	}

	store, err := objectstore.NewObjectStoreFromConfig(ctx, a.cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("creating object store: %w", err)
	}
	a.store = store

	busCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a.stop = stop
	hub, err := syncbus.NewHubFromConfig(busCtx, a.cfg.Sync, db, a.logger)
	if err != nil {
		return fmt.Errorf("creating sync bus: %w", err)
	}
	a.hub = hub
	if err := hub.Start(busCtx); err != nil {
		return err
	}

	sessions, err := session.NewStoreFromConfig(ctx, a.cfg.Session)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	a.sessions = sessions

	a.service = cms.NewService(db, store, hub, sessions, a.logger, a.clock, cms.UUIDs{})
	a.auditor = NewAuditor(db, a.clock, a.logger)
	return nil
}

// Service returns the wired service.
func (a *CMSApp) Service() *cms.Service { return a.service }

// Logger returns the application logger.
func (a *CMSApp) Logger() cms.Logger { return a.logger }

// Track runs fn as an audited command-line operation. On the in-process
// sync bus it warns once that running servers will not see the change.
func (a *CMSApp) Track(ctx context.Context, name, parameters string, fn func() error) error {
	if a.cfg.Sync.Type == "memory" {
		a.warnOnce.Do(func() {
			a.logger.Warn("sync type is memory: a running `cms serve` will not see this change until its cache expires (use sync type journal or redis)")
		})
	}
	return a.auditor.Track(ctx, name, parameters, fn)
}

// ValidateStore checks that the object store is reachable and writable.
func (a *CMSApp) ValidateStore(ctx context.Context) error {
	return a.store.ValidateSetup(ctx)
}

// Close releases every resource. It returns the first error encountered.
func (a *CMSApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, c := range a.closers {
		c()
	}
	if a.hub != nil {
		keep(a.hub.Close())
	}
	if a.stop != nil {
		a.stop()
	}
	if c, ok := a.sessions.(interface{ Close() error }); ok {
		keep(c.Close())
	}
	if c, ok := a.store.(interface{ Close() error }); ok {
		keep(c.Close())
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			keep(fmt.Errorf("closing database: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// Migrate applies pending schema migrations to the configured metadata
// store without wiring the rest of the application.
func Migrate(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := database.NewDatabaseFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
