package model

import "time"

// ResolutionStatus is the terminal state of resolving a task's result. The
// string values are the ones reported on the HTTP surface.
type ResolutionStatus string

const (
	StatusComplete   ResolutionStatus = "completed"
	StatusInProgress ResolutionStatus = "in_progress"
	StatusNotFound   ResolutionStatus = "not_found"
	StatusError      ResolutionStatus = "error"
)

// TaskStatus is the last known state of a task in the history store.
type TaskStatus string

const (
	TaskStatusSubmitted TaskStatus = "submitted"
	TaskStatusComplete  TaskStatus = "completed"
	TaskStatusPending   TaskStatus = "in_progress"
	TaskStatusNotFound  TaskStatus = "not_found"
	TaskStatusFailed    TaskStatus = "error"
)

// TaskStatusFor maps a resolution outcome onto the stored task status.
func TaskStatusFor(s ResolutionStatus) TaskStatus {
	switch s {
	case StatusComplete:
		return TaskStatusComplete
	case StatusInProgress:
		return TaskStatusPending
	case StatusNotFound:
		return TaskStatusNotFound
	default:
		return TaskStatusFailed
	}
}

// TaskReference identifies one asynchronous provider job and the input it was
// created with.
type TaskReference struct {
	TaskID        string `json:"task_id"`
	OriginalInput string `json:"original_input"`
}

// TaskRecord is a task as kept in the history store.
type TaskRecord struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	URL       string     `json:"url"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Reference returns the task's TaskReference.
func (r TaskRecord) Reference() TaskReference {
	return TaskReference{TaskID: r.TaskID, OriginalInput: r.URL}
}
