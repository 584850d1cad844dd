package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-cli/internal/db"
	"github.com/sells-group/seo-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const recordTaskSQL = `INSERT INTO lighthouse_tasks (id, task_id, url, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (task_id) DO UPDATE SET url = EXCLUDED.url, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING ` + taskColumns

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare each distinct query once per connection.
	pgxCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lighthouse_tasks (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	task_id    TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'submitted',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lighthouse_tasks_status ON lighthouse_tasks(status);
CREATE INDEX IF NOT EXISTS idx_lighthouse_tasks_created_at ON lighthouse_tasks(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// RecordTask stores ref as a submitted task. Recording a task id again
// replaces its URL and resets its status.
func (s *PostgresStore) RecordTask(ctx context.Context, ref model.TaskReference) (*model.TaskRecord, error) {
	if ref.TaskID == "" {
		return nil, eris.New("postgres: record task: empty task id")
	}
	now := time.Now().UTC()

	rec, err := scanTask(s.pool.QueryRow(ctx, recordTaskSQL,
		uuid.New().String(), ref.TaskID, ref.OriginalInput, string(model.TaskStatusSubmitted), now, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record task %s", ref.TaskID)
	}
	return rec, nil
}

// ImportTasks bulk-loads refs, keeping the status of tasks that already
// exist.
func (s *PostgresStore) ImportTasks(ctx context.Context, refs []model.TaskReference) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(refs))
	for _, ref := range refs {
		if ref.TaskID == "" {
			continue
		}
		rows = append(rows, []any{
			uuid.New().String(), ref.TaskID, ref.OriginalInput, string(model.TaskStatusSubmitted), now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "lighthouse_tasks",
		Columns:      []string{"id", "task_id", "url", "status", "created_at", "updated_at"},
		ConflictKeys: []string{"task_id"},
		UpdateCols:   []string{"url", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import tasks")
	}
	return n, nil
}

// GetTask returns the record for taskID, or nil if the task is unknown.
func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*model.TaskRecord, error) {
	rec, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM lighthouse_tasks WHERE task_id = $1`,
		taskID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get task %s", taskID)
	}
	return rec, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM lighthouse_tasks WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC, task_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, *rec)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lighthouse_tasks SET status = $1, updated_at = $2 WHERE task_id = $3`,
		string(status), time.Now().UTC(), taskID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update task status %s", taskID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "task %s", taskID)
	}
	return nil
}

// CountTasks counts tasks created at or after since, grouped by status.
func (s *PostgresStore) CountTasks(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM lighthouse_tasks WHERE created_at >= $1 GROUP BY status`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count tasks")
	}
	defer rows.Close()

	counts := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task count")
		}
		counts[model.TaskStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count tasks iterate")
}

// LoadHistory verifies the pool can reach the database.
func (s *PostgresStore) LoadHistory(ctx context.Context, _ string) error {
	return s.Ping(ctx)
}

func (s *PostgresStore) OriginalInput(ctx context.Context, taskID string) (string, bool, error) {
	return originalInput(ctx, s, taskID)
}
