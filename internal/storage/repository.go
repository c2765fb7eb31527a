package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"findash/internal/core"
	"findash/internal/dashboard"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteRepository implements the dashboard transaction store and the
// auth user store on one sqlite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ dashboard.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) ListDatasets(ctx context.Context) ([]core.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM datasets ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []core.Dataset
	for rows.Next() {
		var d core.Dataset
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateDataset(ctx context.Context, name string) (core.Dataset, error) {
	d := core.Dataset{ID: uuid.NewString(), Name: name}
	if err := d.Validate(); err != nil {
		return core.Dataset{}, err
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO datasets (id, name) VALUES (?, ?)`, d.ID, d.Name)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("create dataset: %w", err)
	}

	slog.InfoContext(ctx, "Dataset created", "id", d.ID, "name", d.Name)
	return d, nil
}

// QueryTransactions returns the transactions of a dataset whose issue date
// falls in [start, end], split by type. The end bound is inclusive: the
// query advances it to the start of the following day.
func (r *SQLiteRepository) QueryTransactions(ctx context.Context, datasetID string, start, end time.Time) (dashboard.QueryResult, error) {
	var res dashboard.QueryResult

	lower := dayStart(start).Unix()
	upper := dayStart(end).AddDate(0, 0, 1).Unix()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, type, value, subcategory, payment_method, issue_date, dataset_id, file_id
		FROM transactions
		WHERE dataset_id = ? AND issue_ts >= ? AND issue_ts < ?
		ORDER BY issue_ts, rowid`,
		datasetID, lower, upper)
	if err != nil {
		return res, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Description, &t.Type, &t.Value, &t.Subcategory,
			&t.PaymentMethod, &t.IssueDate, &t.DatasetID, &t.FileID); err != nil {
			return res, fmt.Errorf("scan transaction: %w", err)
		}
		switch t.Type {
		case core.Revenue:
			res.Revenues = append(res.Revenues, t)
		default:
			res.Expenses = append(res.Expenses, t)
		}
	}
	return res, rows.Err()
}

func (r *SQLiteRepository) ListImportedFiles(ctx context.Context, datasetID string) ([]core.ImportedFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, file_name, transaction_count, imported_at
		FROM imported_files
		WHERE dataset_id = ?
		ORDER BY imported_at DESC`,
		datasetID)
	if err != nil {
		return nil, fmt.Errorf("list imported files: %w", err)
	}
	defer rows.Close()

	var out []core.ImportedFile
	for rows.Next() {
		var f core.ImportedFile
		if err := rows.Scan(&f.ID, &f.FileName, &f.TransactionCount, &f.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan imported file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CommitImport writes the batch record and all of its rows in one
// transaction: either the whole file lands or none of it does.
func (r *SQLiteRepository) CommitImport(ctx context.Context, datasetID, fileName string, parsed []core.ParsedTransaction) (core.ImportedFile, error) {
	file := core.ImportedFile{
		ID:               uuid.NewString(),
		FileName:         fileName,
		TransactionCount: len(parsed),
		ImportedAt:       time.Now().UTC(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ImportedFile{}, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO imported_files (id, dataset_id, file_name, transaction_count, imported_at)
		VALUES (?, ?, ?, ?, ?)`,
		file.ID, datasetID, file.FileName, file.TransactionCount, file.ImportedAt)
	if err != nil {
		return core.ImportedFile{}, fmt.Errorf("insert imported file: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, dataset_id, file_id, description, type, value, subcategory, payment_method, issue_date, issue_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.ImportedFile{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range parsed {
		if err := p.Validate(); err != nil {
			return core.ImportedFile{}, fmt.Errorf("row %q: %w", p.Description, err)
		}
		ts, err := core.ParseIssueDate(p.IssueDate)
		if err != nil {
			return core.ImportedFile{}, fmt.Errorf("row %q: %w", p.Description, err)
		}
		_, err = stmt.ExecContext(ctx, uuid.NewString(), datasetID, file.ID,
			p.Description, string(p.Type), p.Value, p.Subcategory, p.PaymentMethod,
			p.IssueDate, ts.Unix())
		if err != nil {
			return core.ImportedFile{}, fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.ImportedFile{}, fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Import batch committed",
		"dataset", datasetID,
		"file_id", file.ID,
		"file", fileName,
		"rows", len(parsed))
	return file, nil
}

// DeleteImport removes the batch record and every transaction carrying its
// file ID as one unit.
func (r *SQLiteRepository) DeleteImport(ctx context.Context, datasetID, fileID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM imported_files WHERE id = ? AND dataset_id = ?`, fileID, datasetID)
	if err != nil {
		return fmt.Errorf("delete imported file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("imported file %s: %w", fileID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Import batch deleted", "dataset", datasetID, "file_id", fileID)
	return nil
}

// GetImportedFile loads one batch record, used by the export worker.
func (r *SQLiteRepository) GetImportedFile(ctx context.Context, fileID string) (core.ImportedFile, error) {
	var f core.ImportedFile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, file_name, transaction_count, imported_at
		FROM imported_files WHERE id = ?`, fileID).
		Scan(&f.ID, &f.FileName, &f.TransactionCount, &f.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportedFile{}, fmt.Errorf("imported file %s: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return core.ImportedFile{}, fmt.Errorf("get imported file: %w", err)
	}
	return f, nil
}

// dayStart normalizes a bound to UTC midnight of its calendar date, the
// same normalization issue_ts is stored with.
func dayStart(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
