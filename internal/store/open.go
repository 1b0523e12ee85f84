package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers the "sqlite" database/sql driver

	"github.com/irisett-go/irisett/internal/config"
	"github.com/irisett-go/irisett/internal/errs"
)

// Open connects to the database named by cfg.Driver and returns a Gateway
// wrapping it. It does not run migrations — callers invoke Migrate
// separately so a caller can inspect the schema version first.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Gateway, error) {
	var (
		driverName string
		dsn        string
		dialect    Dialect
	)

	switch cfg.Driver {
	case "relational":
		driverName = "pgx"
		dialect = DialectPostgres
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	case "embedded-file":
		driverName = "sqlite"
		dialect = DialectSQLite
		dsn = cfg.Location
	default:
		return nil, errs.New(errs.KindInvalidArguments, fmt.Sprintf("unknown database driver %q", cfg.Driver))
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "failed to open database", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindPersistence, "failed to connect to database", err)
	}

	if dialect == DialectSQLite {
		// modernc.org/sqlite serializes writers internally; a single
		// connection avoids "database is locked" under concurrent writers.
		db.SetMaxOpenConns(1)
	}

	return &gateway{db: db, dialect: dialect}, nil
}
