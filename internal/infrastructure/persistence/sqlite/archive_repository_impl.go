package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jesmann/epgmerge/internal/application/port/output"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
	"github.com/jesmann/epgmerge/internal/domain/repository"
	"github.com/jesmann/epgmerge/internal/infrastructure/transaction"
)

// daysLeftExpr computes remaining validity at query time from the current
// wall-clock date, so listings change day-to-day without a write
const daysLeftExpr = "(days_included - 1 - CAST(julianday(date('now')) - julianday(date(created_at)) AS INTEGER))"

// ArchiveRepositoryImpl implements repository.ArchiveRepository with SQLite
type ArchiveRepositoryImpl struct {
	db        *sql.DB
	txManager output.TransactionManager
}

// NewArchiveRepository creates a new SQLite-based archive repository
func NewArchiveRepository(db *sql.DB, txManager output.TransactionManager) repository.ArchiveRepository {
	return &ArchiveRepositoryImpl{db: db, txManager: txManager}
}

// getDB returns the appropriate database executor from context
func (r *ArchiveRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// RecordCurrent demotes the existing current record (if any) under
// demotedName and inserts rec as the new current. Runs in one transaction;
// readers see either the old or the new consistent state.
func (r *ArchiveRepositoryImpl) RecordCurrent(ctx context.Context, rec *artifact.Record, demotedName string) error {
	if _, ok := transaction.GetTxFromContext(ctx); ok {
		return r.recordCurrentTx(ctx, rec, demotedName)
	}
	return r.txManager.InTransaction(ctx, func(txCtx context.Context) error {
		return r.recordCurrentTx(txCtx, rec, demotedName)
	})
}

func (r *ArchiveRepositoryImpl) recordCurrentTx(ctx context.Context, rec *artifact.Record, demotedName string) error {
	db := r.getDB(ctx)

	prior, err := r.findCurrent(ctx, db)
	if err != nil {
		return err
	}

	if prior != nil {
		if demotedName == "" {
			return fmt.Errorf("index has current record %s but no archived name was provided", prior.Filename())
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE archives SET filename = ?, is_current = 0 WHERE is_current = 1`,
			demotedName,
		); err != nil {
			return fmt.Errorf("demote current record failed: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO archives (filename, created_at, channels, programs, days_included, size_bytes, is_current)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		rec.Filename(),
		rec.CreatedAt().UTC().Format(time.RFC3339),
		rec.Channels(),
		rec.Programs(),
		rec.DaysIncluded(),
		rec.SizeBytes(),
	); err != nil {
		return fmt.Errorf("insert current record failed: %w", err)
	}

	return nil
}

// Find returns the record for a filename
func (r *ArchiveRepositoryImpl) Find(ctx context.Context, filename string) (*artifact.Record, error) {
	db := r.getDB(ctx)
	row := db.QueryRowContext(ctx,
		`SELECT filename, created_at, channels, programs, days_included, size_bytes, is_current
		 FROM archives WHERE filename = ?`, filename)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", filename, artifact.ErrNotFound)
		}
		return nil, fmt.Errorf("find archive failed: %w", err)
	}
	return rec, nil
}

// FindCurrent returns the current record, or nil when none exists
func (r *ArchiveRepositoryImpl) FindCurrent(ctx context.Context) (*artifact.Record, error) {
	return r.findCurrent(ctx, r.getDB(ctx))
}

func (r *ArchiveRepositoryImpl) findCurrent(ctx context.Context, db dbExecutor) (*artifact.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT filename, created_at, channels, programs, days_included, size_bytes, is_current
		 FROM archives WHERE is_current = 1`)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find current record failed: %w", err)
	}
	return rec, nil
}

// List returns records per the query
func (r *ArchiveRepositoryImpl) List(ctx context.Context, q repository.ArchiveQuery) ([]*artifact.Record, error) {
	orderCol, ok := sortColumns[q.Sort]
	if !ok {
		orderCol = sortColumns[repository.SortByDate]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(
		`SELECT filename, created_at, channels, programs, days_included, size_bytes, is_current
		 FROM archives ORDER BY %s %s, filename ASC`, orderCol, direction)
	args := []interface{}{}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archives failed: %w", err)
	}
	defer rows.Close()

	var out []*artifact.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive row failed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// sortColumns maps query sort keys to ORDER BY expressions. Keeping the
// mapping closed also keeps user input out of the SQL string.
var sortColumns = map[repository.SortKey]string{
	repository.SortByName:         "filename",
	repository.SortByDate:         "created_at",
	repository.SortBySize:         "size_bytes",
	repository.SortByChannels:     "channels",
	repository.SortByPrograms:     "programs",
	repository.SortByDaysIncluded: "days_included",
	repository.SortByDaysLeft:     daysLeftExpr,
}

// Delete removes a record; the current record is protected
func (r *ArchiveRepositoryImpl) Delete(ctx context.Context, filename string) error {
	db := r.getDB(ctx)

	var isCurrent bool
	err := db.QueryRowContext(ctx, `SELECT is_current FROM archives WHERE filename = ?`, filename).Scan(&isCurrent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", filename, artifact.ErrNotFound)
		}
		return fmt.Errorf("check archive record failed: %w", err)
	}
	if isCurrent {
		return fmt.Errorf("%s: %w", filename, artifact.ErrForbidden)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM archives WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("delete archive record failed: %w", err)
	}
	return nil
}

// CountAll returns the total number of records, current included
func (r *ArchiveRepositoryImpl) CountAll(ctx context.Context) (int, error) {
	db := r.getDB(ctx)
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count archives failed: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*artifact.Record, error) {
	var (
		filename     string
		createdAtStr string
		channels     int
		programs     int
		daysIncluded int
		sizeBytes    int64
		isCurrent    bool
	)
	if err := row.Scan(&filename, &createdAtStr, &channels, &programs, &daysIncluded, &sizeBytes, &isCurrent); err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAtStr, err)
	}
	return artifact.Reconstruct(filename, createdAt, channels, programs, daysIncluded, sizeBytes, isCurrent), nil
}
