package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-cli/internal/model"
)

// Snapshot holds a point-in-time view of resolution health.
type Snapshot struct {
	// Tasks created within the lookback window, by last known status.
	Total      int `json:"total"`
	Submitted  int `json:"submitted"`
	InProgress int `json:"in_progress"`
	Complete   int `json:"complete"`
	NotFound   int `json:"not_found"`
	Failed     int `json:"failed"`

	// FailRate is (not_found + error) / finished.
	FailRate float64 `json:"fail_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished counts tasks with a terminal status.
func (s *Snapshot) Finished() int {
	return s.Complete + s.NotFound + s.Failed
}

// Pending counts tasks still waiting on the provider.
func (s *Snapshot) Pending() int {
	return s.Submitted + s.InProgress
}

// TaskCounter is the part of the history store the collector reads.
type TaskCounter interface {
	CountTasks(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error)
}

// Collector gathers snapshots from the task history.
type Collector struct {
	tasks TaskCounter
}

// NewCollector creates a new snapshot collector.
func NewCollector(tasks TaskCounter) *Collector {
	return &Collector{tasks: tasks}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	counts, err := c.tasks.CountTasks(ctx, now.Add(-time.Duration(lookbackHours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count tasks")
	}

	for status, n := range counts {
		snap.Total += n
		switch status {
		case model.TaskStatusSubmitted:
			snap.Submitted += n
		case model.TaskStatusPending:
			snap.InProgress += n
		case model.TaskStatusComplete:
			snap.Complete += n
		case model.TaskStatusNotFound:
			snap.NotFound += n
		case model.TaskStatusFailed:
			snap.Failed += n
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.NotFound+snap.Failed) / float64(finished)
	}
	return snap, nil
}
