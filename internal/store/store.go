package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-cli/internal/model"
)

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Status       model.TaskStatus `json:"status,omitempty"`
	CreatedAfter time.Time        `json:"created_after,omitempty"`
	Limit        int              `json:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty"`
}

// Store is the task history: every Lighthouse task submitted through this
// tool, the URL it audits and its last resolved status.
type Store interface {
	// Tasks
	RecordTask(ctx context.Context, ref model.TaskReference) (*model.TaskRecord, error)
	ImportTasks(ctx context.Context, refs []model.TaskReference) (int64, error)
	GetTask(ctx context.Context, taskID string) (*model.TaskRecord, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.TaskRecord, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error
	CountTasks(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error)

	// History lookups used by the resolver.
	LoadHistory(ctx context.Context, taskID string) error
	OriginalInput(ctx context.Context, taskID string) (string, bool, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when an update targets a task with no history row.
var ErrNotFound = eris.New("not found")

const defaultListLimit = 100

// originalInput resolves a task's URL through GetTask.
func originalInput(ctx context.Context, s Store, taskID string) (string, bool, error) {
	rec, err := s.GetTask(ctx, taskID)
	if err != nil {
		return "", false, err
	}
	if rec == nil || rec.URL == "" {
		return "", false, nil
	}
	return rec.URL, true, nil
}
