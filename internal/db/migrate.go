package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/udisondev/d20core/internal/db/migrations"
)

// Migration dialects; each has its own directory in migrations.FS.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var gooseDialects = map[string]goose.Dialect{
	DialectPostgres: goose.DialectPostgres,
	DialectSQLite:   goose.DialectSQLite3,
}

// RunMigrations applies every pending migration of dialect to sqlDB.
func RunMigrations(ctx context.Context, dialect string, sqlDB *sql.DB) error {
	gd, ok := gooseDialects[dialect]
	if !ok {
		return fmt.Errorf("unknown migration dialect %q", dialect)
	}
	dir, err := fs.Sub(migrations.FS, dialect)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", dialect, err)
	}
	p, err := goose.NewProvider(gd, sqlDB, dir)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		slog.Debug("migration applied", "dialect", dialect, "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// MigratePostgres runs the postgres migrations on the given DSN.
func MigratePostgres(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()
	return RunMigrations(ctx, DialectPostgres, sqlDB)
}
