package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/config"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/tracing"
	"github.com/klokku/treasury/pkg/identity"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg      config.Application
	db       *pgxpool.Pool
	router   *mux.Router
	srv      *http.Server
	shutdown func(context.Context) error
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	// DB + migrations
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(cfg.Database); err != nil {
		db.Close()
		return nil, err
	}

	// Stage approver roles must resolve before any voucher can enter the workflow.
	roles, err := identity.LoadRoleCatalog(ctx, identity.NewRepo(db), identity.RequiredRoles)
	if err != nil {
		db.Close()
		return nil, err
	}

	shutdownTracing := tracing.Setup(cfg.Tracing)

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps := BuildDependencies(db, roles, cfg)

	// Middleware chain
	SetupMiddleware(r, deps)

	// Routes
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, router: r, srv: srv, shutdown: shutdownTracing}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests before closing the pool.
func (a *Application) Run(ctx context.Context) error {
	defer a.db.Close()
	defer func() {
		if err := a.shutdown(context.Background()); err != nil {
			log.Warnf("failed to stop tracing: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		serveErr <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
