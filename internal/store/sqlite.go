package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/seo-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lighthouse_tasks (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'submitted',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lighthouse_tasks_status ON lighthouse_tasks(status);
CREATE INDEX IF NOT EXISTS idx_lighthouse_tasks_created_at ON lighthouse_tasks(created_at);
`

const taskColumns = `id, task_id, url, status, created_at, updated_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTask stores ref as a submitted task. Recording a task id again
// replaces its URL and resets its status.
func (s *SQLiteStore) RecordTask(ctx context.Context, ref model.TaskReference) (*model.TaskRecord, error) {
	if ref.TaskID == "" {
		return nil, eris.New("sqlite: record task: empty task id")
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lighthouse_tasks (id, task_id, url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET url = excluded.url, status = excluded.status, updated_at = excluded.updated_at`,
		uuid.New().String(), ref.TaskID, ref.OriginalInput, string(model.TaskStatusSubmitted), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record task %s", ref.TaskID)
	}
	return s.GetTask(ctx, ref.TaskID)
}

// ImportTasks records refs in a single transaction, keeping the status of
// tasks that already exist.
func (s *SQLiteStore) ImportTasks(ctx context.Context, refs []model.TaskReference) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lighthouse_tasks (id, task_id, url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET url = excluded.url, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, ref := range refs {
		if ref.TaskID == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), ref.TaskID, ref.OriginalInput, string(model.TaskStatusSubmitted), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import task %s", ref.TaskID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: import: rows affected")
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import: commit")
	}
	return n, nil
}

// GetTask returns the record for taskID, or nil if the task is unknown.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*model.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM lighthouse_tasks WHERE task_id = ?`,
		taskID,
	)
	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get task %s", taskID)
	}
	return rec, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM lighthouse_tasks WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, task_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close() //nolint:errcheck

	var tasks []model.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		tasks = append(tasks, *rec)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lighthouse_tasks SET status = ?, updated_at = ? WHERE task_id = ?`,
		string(status), time.Now().UTC(), taskID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update task status %s", taskID)
	}
	return checkRowsAffected(res, "task", taskID)
}

// CountTasks counts tasks created at or after since, grouped by status.
func (s *SQLiteStore) CountTasks(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM lighthouse_tasks WHERE created_at >= ? GROUP BY status`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count tasks")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task count")
		}
		counts[model.TaskStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count tasks iterate")
}

// LoadHistory verifies the database is reachable. SQLite history is never
// lazily loaded.
func (s *SQLiteStore) LoadHistory(ctx context.Context, _ string) error {
	return s.Ping(ctx)
}

func (s *SQLiteStore) OriginalInput(ctx context.Context, taskID string) (string, bool, error) {
	return originalInput(ctx, s, taskID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*model.TaskRecord, error) {
	var r model.TaskRecord
	var status string
	if err := row.Scan(&r.ID, &r.TaskID, &r.URL, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.TaskStatus(status)
	return &r, nil
}
