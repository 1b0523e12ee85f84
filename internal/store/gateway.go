package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/irisett-go/irisett/internal/errs"
)

// Row is a single fetched row, keyed by column name — the generic shape
// fetchAll/fetchRow return before the caller maps it onto a domain
// record, matching the Persistence Gateway's contract in spec.md §4.1.
type Row map[string]any

// Cursor is the transactional handle passed to a Transact callback. It
// exposes only execute/lastInsertId, per spec.md §4.1 — reads inside a
// transaction go through the same Execute-returning-rows path as
// Gateway.FetchAll by passing the cursor's underlying querier.
type Cursor interface {
	FetchAll(ctx context.Context, query string, args ...any) ([]Row, error)
	FetchRow(ctx context.Context, query string, args ...any) (Row, error)
	FetchScalar(ctx context.Context, query string, args ...any) (any, error)
	Execute(ctx context.Context, query string, args ...any) (lastInsertID int64, err error)
}

// Statement is one (sql, args) pair for ExecuteBatch.
type Statement struct {
	SQL  string
	Args []any
}

// Gateway is the Persistence Gateway contract from spec.md §4.1.
type Gateway interface {
	Cursor
	// ExecuteBatch runs every statement in one transaction, committing on
	// success and rolling back on any failure.
	ExecuteBatch(ctx context.Context, stmts []Statement) error
	// Transact runs fn inside one transaction, committing if fn returns
	// nil and rolling back otherwise.
	Transact(ctx context.Context, fn func(ctx context.Context, c Cursor) error) error
	// Dialect reports which placeholder/returning style this gateway uses.
	Dialect() Dialect
	Close() error
	DB() *sql.DB
}

// Dialect captures the handful of SQL differences between the two
// supported drivers (placeholder style and how to recover the id of a
// just-inserted row).
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

type gateway struct {
	db      *sql.DB
	dialect Dialect
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rewritePlaceholders rewrites the "?" placeholders every statement in
// this package is written with into Postgres's "$1, $2, ..." form. A
// naive positional scan is safe here because none of this package's SQL
// text contains a literal "?" inside a string or comment.
func rewritePlaceholders(query string, dialect Dialect) string {
	if dialect != DialectPostgres {
		return query
	}
	var b []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b = append(b, '$')
			b = append(b, []byte(itoa(n))...)
			continue
		}
		b = append(b, query[i])
	}
	return string(b)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func fetchAll(ctx context.Context, q queryer, query string, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.WrapSQL("query failed", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.WrapSQL("failed to read columns", query, err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.WrapSQL("scan failed", query, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapSQL("row iteration failed", query, err)
	}
	return out, nil
}

func fetchRow(ctx context.Context, q queryer, query string, args ...any) (Row, error) {
	rows, err := fetchAll(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func fetchScalar(ctx context.Context, q queryer, query string, args ...any) (any, error) {
	row, err := fetchRow(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	for _, v := range row {
		return v, nil
	}
	return nil, nil
}

func (g *gateway) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return fetchAll(ctx, g.db, rewritePlaceholders(query, g.dialect), args...)
}

func (g *gateway) FetchRow(ctx context.Context, query string, args ...any) (Row, error) {
	return fetchRow(ctx, g.db, rewritePlaceholders(query, g.dialect), args...)
}

func (g *gateway) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	return fetchScalar(ctx, g.db, rewritePlaceholders(query, g.dialect), args...)
}

func (g *gateway) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return execute(ctx, g.db, g.dialect, query, args...)
}

// execute rewrites query for the target dialect and, on Postgres, appends
// "RETURNING id" to bare INSERT statements so every caller can write one
// driver-agnostic statement instead of branching on dialect itself —
// the same "one code path, two drivers" design as rewritePlaceholders.
func execute(ctx context.Context, q queryer, dialect Dialect, query string, args ...any) (int64, error) {
	rewritten := rewritePlaceholders(query, dialect)

	if dialect == DialectPostgres && isBareInsert(query) {
		rows, err := q.QueryContext(ctx, rewritten+" RETURNING id", args...)
		if err != nil {
			return 0, errs.WrapSQL("execute failed", query, err)
		}
		defer rows.Close()
		var id int64
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return 0, errs.WrapSQL("failed to read returning id", query, err)
			}
		}
		return id, rows.Err()
	}

	res, err := q.ExecContext(ctx, rewritten, args...)
	if err != nil {
		return 0, errs.WrapSQL("execute failed", query, err)
	}
	if dialect != DialectSQLite {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		// Statement had no auto-increment id (e.g. an UPDATE); not an error.
		return 0, nil
	}
	return id, nil
}

func isBareInsert(query string) bool {
	trimmed := strings.TrimSpace(query)
	return len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "insert") && !strings.Contains(strings.ToUpper(trimmed), "RETURNING")
}

func (g *gateway) ExecuteBatch(ctx context.Context, stmts []Statement) error {
	return g.Transact(ctx, func(ctx context.Context, c Cursor) error {
		for _, s := range stmts {
			if _, err := c.Execute(ctx, s.SQL, s.Args...); err != nil {
				return err
			}
		}
		return nil
	})
}

type txCursor struct {
	tx      *sql.Tx
	dialect Dialect
}

func (c *txCursor) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return fetchAll(ctx, c.tx, rewritePlaceholders(query, c.dialect), args...)
}
func (c *txCursor) FetchRow(ctx context.Context, query string, args ...any) (Row, error) {
	return fetchRow(ctx, c.tx, rewritePlaceholders(query, c.dialect), args...)
}
func (c *txCursor) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	return fetchScalar(ctx, c.tx, rewritePlaceholders(query, c.dialect), args...)
}
func (c *txCursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return execute(ctx, c.tx, c.dialect, query, args...)
}

func (g *gateway) Transact(ctx context.Context, fn func(ctx context.Context, c Cursor) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindPersistence, "failed to begin transaction", err)
	}

	if err := fn(ctx, &txCursor{tx: tx, dialect: g.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errs.Wrap(errs.KindPersistence, fmt.Sprintf("rollback failed after error %v", err), rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindPersistence, "commit failed", err)
	}
	return nil
}

func (g *gateway) Dialect() Dialect { return g.dialect }
func (g *gateway) Close() error     { return g.db.Close() }
func (g *gateway) DB() *sql.DB      { return g.db }
