package store

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/irisett-go/irisett/internal/errs"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// Migrate verifies the schema version and applies any registered numbered
// upgrade scripts in ascending order, per the Persistence Gateway's
// startup contract (spec.md §4.1). It is safe to call on every process
// start: goose no-ops once the schema is current.
func Migrate(ctx context.Context, g Gateway) error {
	gw, ok := g.(*gateway)
	if !ok {
		return errs.New(errs.KindPersistence, "Migrate requires a gateway opened via store.Open")
	}

	var (
		fsys    embed.FS
		dir     string
		dialect string
	)
	switch gw.dialect {
	case DialectPostgres:
		fsys, dir, dialect = postgresMigrations, "migrations/postgres", "postgres"
	case DialectSQLite:
		fsys, dir, dialect = sqliteMigrations, "migrations/sqlite", "sqlite3"
	default:
		return errs.New(errs.KindPersistence, "unknown dialect for migration")
	}

	goose.SetBaseFS(fsys)
	if err := goose.SetDialect(dialect); err != nil {
		return errs.Wrap(errs.KindPersistence, "failed to set migration dialect", err)
	}

	if err := goose.UpContext(ctx, gw.db, dir); err != nil {
		return errs.Wrap(errs.KindPersistence, "failed to apply migrations", err)
	}
	return nil
}
