package test_utils

import (
	"context"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/config"
	"github.com/klokku/treasury/internal/database"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	image        = "postgres:18.1-alpine"
	snapshotName = "treasury-migrated"
)

// TestWithDB starts Postgres, migrates it and snapshots the migrated state so tests can
// Restore between cases. The returned opener gives a fresh pool; close it before restoring.
func TestWithDB() (*postgres.PostgresContainer, func() *pgxpool.Pool) {
	ctx := context.Background()

	migrations, err := database.MigrationsPath()
	if err != nil {
		log.Fatalf("Failed to locate migrations: %v", err)
	}
	// dev/ sits next to migrations/ at the module root
	initScript := filepath.Join(filepath.Dir(migrations), "dev", "init.sql")

	cfg := config.Database{
		User:   "test_treasury",
		Pass:   "test_treasury",
		Name:   "treasury",
		Schema: "treasury",
		// one connection per caller in the concurrency tests
		MaxConns: 60,
	}

	container, err := postgres.Run(ctx, image,
		postgres.WithInitScripts(initScript),
		postgres.WithDatabase(cfg.Name),
		postgres.WithUsername(cfg.User),
		postgres.WithPassword(cfg.Pass),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("Failed to start postgres container: %v", err)
	}

	if cfg.Host, err = container.Host(ctx); err != nil {
		log.Fatalf("Failed to resolve container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("Failed to resolve container port: %v", err)
	}
	cfg.Port = port.Int()
	log.Infof("Postgres container started at %s:%d", cfg.Host, cfg.Port)

	if err := database.Migrate(cfg); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	if err := container.Snapshot(ctx, postgres.WithSnapshotName(snapshotName)); err != nil {
		log.Fatalf("Failed to snapshot postgres container: %v", err)
	}

	return container, func() *pgxpool.Pool {
		db, err := database.Open(cfg)
		if err != nil {
			log.Fatalf("Failed to open database connection: %v", err)
		}
		return db
	}
}
