// Package server initializes and runs the main application server.
// It selects the storage backend, runs schema migrations, performs the
// startup reconciliation pass for letters left waiting by an interrupted
// submission, and starts the HTTP server.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/driftletter/driftletter/internal/logging"
	"github.com/driftletter/driftletter/internal/server/config"
	"github.com/driftletter/driftletter/internal/server/httpapi"
	"github.com/driftletter/driftletter/internal/server/matching"
	"github.com/driftletter/driftletter/internal/server/repositories/repomanager"
	"github.com/driftletter/driftletter/internal/server/services"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	userService     *services.UserService
	letterService   *services.LetterService
	deliveryService *services.DeliveryService
}

func NewApp(c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	var db *sql.DB
	var rm repomanager.RepositoryManager

	if c.DatabaseDSN == "" {
		// Development mode only; nothing survives a restart.
		rm = repomanager.NewInMemoryRepositoryManager()
	} else {
		var err error
		db, err = sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		rm = repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(context.Background(), db); err != nil {
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}

	us := services.NewUserService(db, rm, c)
	ls := services.NewLetterService(db, rm, c)
	ds := services.NewDeliveryService(db, rm, ls, us, matching.New(nil), logger)

	return &App{
		config:          c,
		logger:          logger,
		db:              db,
		userService:     us,
		letterService:   ls,
		deliveryService: ds,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger,
		app.userService, app.letterService, app.deliveryService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runReconcileLoop finishes waiting letters: once at startup and then on
// every tick until shutdown.
func (app *App) runReconcileLoop(ctx context.Context) {

	if _, err := app.deliveryService.Reconcile(ctx); err != nil {
		app.logger.Error(ctx, "startup reconcile failed", "error", err.Error())
	}

	if app.config.ReconcileInterval <= 0 {
		return
	}

	ticker := time.NewTicker(app.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.deliveryService.Reconcile(ctx); err != nil {
				app.logger.Error(ctx, "reconcile failed", "error", err.Error())
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runReconcileLoop(ctx)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err.Error())
		}
	}
}
