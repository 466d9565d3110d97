package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/flowguard/flowguard/pkg/engine"
	"github.com/flowguard/flowguard/pkg/execution"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// logColumns is the schema every log table must satisfy.
var logColumns = []string{"source", "message", "level", "created_at"}

// SQLiteStore is the SQLite-backed log sink and run store. It satisfies
// engine.LogSink.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	table string
}

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// Table is the log table name. Defaults to run_logs.
	Table string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var _ engine.LogSink = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, execution.NewError(execution.KindLoggingConfiguration,
			"database path is required", nil)
	}
	table := cfg.Table
	if table == "" {
		table = "run_logs"
	}
	return &SQLiteStore{
		path:  cfg.Path,
		table: table,
	}, nil
}

// Init opens the database, enables WAL mode, and runs migrations so the
// storage location exists before the first record arrives.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return execution.NewError(execution.KindLoggingConfiguration,
			"failed to open database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return execution.NewError(execution.KindLoggingConfiguration,
			"failed to ping database", err)
	}

	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	if err := s.ensureLogTable(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs the embedded schema migrations.
func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ensureLogTable lazily creates a non-default log table and verifies that
// whatever table ends up being used carries the expected columns.
func (s *SQLiteStore) ensureLogTable(ctx context.Context) error {
	if s.table != "run_logs" {
		create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			level TEXT NOT NULL CHECK (level IN ('INFO', 'WARNING', 'ERROR')),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table)
		if _, err := s.db.ExecContext(ctx, create); err != nil {
			return execution.NewError(execution.KindLoggingConfiguration,
				fmt.Sprintf("failed to create log table %s", s.table), err)
		}
	}
	return s.checkLogSchema(ctx)
}

// checkLogSchema verifies the log table is structurally compatible.
func (s *SQLiteStore) checkLogSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%q)", s.table))
	if err != nil {
		return execution.NewError(execution.KindLoggingConfiguration,
			fmt.Sprintf("failed to inspect log table %s", s.table), err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range logColumns {
		if !present[col] {
			return execution.NewError(execution.KindLoggingConfiguration,
				fmt.Sprintf("log table %s is missing column %s", s.table, col), nil)
		}
	}
	return nil
}

// Ping reports sink reachability, including schema compatibility.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return execution.NewError(execution.KindLoggingConfiguration,
			"log store not initialized", nil)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return execution.NewError(execution.KindLoggingConfiguration,
			"log store unreachable", err)
	}
	return s.checkLogSchema(ctx)
}

// Record stores one classified log record. Implements engine.LogSink.
func (s *SQLiteStore) Record(ctx context.Context, rec engine.Record) error {
	query := fmt.Sprintf(
		"INSERT INTO %q (source, message, level, created_at) VALUES (?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, query,
		rec.Source, rec.Message, string(rec.Level), rec.Timestamp); err != nil {
		return execution.NewError(execution.KindLoggingConfiguration,
			"failed to store log record", err)
	}
	return nil
}

// ListLogs returns the most recent log entries for a source, newest first.
func (s *SQLiteStore) ListLogs(ctx context.Context, source string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT id, source, message, level, created_at
		FROM %q
		WHERE source = ? OR ? = ''
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	entries := []*LogEntry{}
	for rows.Next() {
		entry := &LogEntry{}
		if err := rows.Scan(&entry.ID, &entry.Source, &entry.Message,
			&entry.Level, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
		run.UpdatedAt = now
	}

	query := `
		INSERT INTO runs (id, workflow_path, mode, status, started_at, completed_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowPath,
		run.Mode,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, workflow_path, mode, status, started_at, completed_at, error, created_at, updated_at
		FROM runs
		WHERE id = ?
	`
	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.WorkflowPath,
		&run.Mode,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus updates the status of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	var completedAt *time.Time
	now := time.Now().UTC()
	if status == RunStatusCompleted || status == RunStatusFailed || status == RunStatusTimedOut {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns lists runs with pagination, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, workflow_path, mode, status, started_at, completed_at, error, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID,
			&run.WorkflowPath,
			&run.Mode,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
