package sqlite

import (
	"context"
	"database/sql"
)

// dbExecutor abstracts *sql.DB and *sql.Tx so repositories can run inside
// or outside a managed transaction
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
