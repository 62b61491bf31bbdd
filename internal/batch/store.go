package batch

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"murmur/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users must clear their task database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound indicates the requested task does not exist.
var ErrNotFound = errors.New("task not found")

// Store manages task persistence backed by SQLite. Insertion order is the
// intended execution order; rowid preserves it.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database in the configured log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "tasks.db"))
}

// OpenPath opens a task database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'murmur batch clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// Add persists a new task at the end of the queue.
func (s *Store) Add(ctx context.Context, task *Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (
            id, input_file, output_dir, model, formats, language,
            status, progress, error_message, error_code,
            created_at, started_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.InputFile,
		task.OutputDir,
		task.Options.Model,
		strings.Join(task.Options.Formats, ","),
		task.Options.Language,
		task.Status,
		task.Progress,
		task.ErrorMsg,
		task.ErrorCode,
		formatTime(task.CreatedAt),
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID fetches a single task.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// List returns tasks in insertion order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	query := selectColumns + " FROM tasks"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Update persists the mutable fields of a task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET
            status = ?, progress = ?, error_message = ?, error_code = ?,
            started_at = ?, completed_at = ?
        WHERE id = ?`,
		task.Status,
		task.Progress,
		task.ErrorMsg,
		task.ErrorCode,
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes a task. Removing a running task is the caller's
// responsibility to avoid; the scheduler does not guard against it.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("remove task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove task: rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes completed and cancelled tasks and reports how many
// were deleted.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE status IN (?, ?)", StatusCompleted, StatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks")
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed resets failed tasks to pending. With no ids, all failed tasks
// are reset; otherwise only the named ones.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	query := `UPDATE tasks SET
        status = ?, progress = 0, error_message = '', error_code = '',
        started_at = NULL, completed_at = NULL
    WHERE status = ?`
	args := []any{StatusPending, StatusFailed}
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += " AND id IN (" + strings.Join(placeholders, ", ") + ")"
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning returns tasks stuck in the running state to pending. Used on
// startup after an unclean shutdown.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, progress = 0, started_at = NULL WHERE status = ?`,
		StatusPending, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running: %w", err)
	}
	return res.RowsAffected()
}

// Health returns aggregated task counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM tasks GROUP BY status")
	if err != nil {
		return Summary{}, fmt.Errorf("task health: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending = count
		case StatusRunning:
			summary.Running = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

const selectColumns = `SELECT
    id, input_file, output_dir, model, formats, language,
    status, progress, error_message, error_code,
    created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var formats string
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(
		&task.ID,
		&task.InputFile,
		&task.OutputDir,
		&task.Options.Model,
		&formats,
		&task.Options.Language,
		&task.Status,
		&task.Progress,
		&task.ErrorMsg,
		&task.ErrorCode,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if formats != "" {
		task.Options.Formats = strings.Split(formats, ",")
	}
	task.CreatedAt = parseTime(createdAt)
	task.StartedAt = parseNullableTime(startedAt)
	task.CompletedAt = parseNullableTime(completedAt)
	return &task, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	parsed := parseTime(value.String)
	return &parsed
}
