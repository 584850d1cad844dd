package dataforseo

import "fmt"

// Provider status codes carried in response bodies. They are distinct from
// HTTP status codes.
const (
	CodeSuccess      = 20000
	CodeTaskCreated  = 20100
	CodeTaskNotFound = 40400
	CodeTaskInQueue  = 40501
)

// TasksReadyResponse is the response from GET /tasks_ready.
type TasksReadyResponse struct {
	StatusCode    int              `json:"status_code"`
	StatusMessage string           `json:"status_message"`
	Tasks         []TasksReadyTask `json:"tasks"`
}

// TasksReadyTask holds one page of ready task ids.
type TasksReadyTask struct {
	StatusCode    int         `json:"status_code"`
	StatusMessage string      `json:"status_message"`
	Result        []ReadyTask `json:"result"`
}

// ReadyTask is a completed task that has not been collected yet.
type ReadyTask struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ReadyIDs flattens every ready task id in the response.
func (r *TasksReadyResponse) ReadyIDs() []string {
	var ids []string
	for _, t := range r.Tasks {
		for _, res := range t.Result {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// HasResult reports whether at least one task carries a result list.
func (r *TasksReadyResponse) HasResult() bool {
	for _, t := range r.Tasks {
		if t.Result != nil {
			return true
		}
	}
	return false
}

// TaskResponse is the envelope returned by task_get, task_post and live.
type TaskResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []Task `json:"tasks"`
}

// FirstTask returns the first task in the envelope, or nil.
func (r *TaskResponse) FirstTask() *Task {
	if r == nil || len(r.Tasks) == 0 {
		return nil
	}
	return &r.Tasks[0]
}

// Task is one provider task inside an envelope.
type Task struct {
	ID            string           `json:"id"`
	StatusCode    int              `json:"status_code"`
	StatusMessage string           `json:"status_message"`
	Data          TaskData         `json:"data"`
	Result        []map[string]any `json:"result"`
}

// TaskData echoes the parameters the task was created with.
type TaskData struct {
	URL          string `json:"url"`
	Tag          string `json:"tag,omitempty"`
	Device       string `json:"device,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	LanguageName string `json:"language_name,omitempty"`
	Version      string `json:"version,omitempty"`
}

// LighthouseRequest describes one Lighthouse run. It is the element type of
// both the task_post and live request bodies.
type LighthouseRequest struct {
	URL          string `json:"url"`
	Device       string `json:"device,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	LanguageName string `json:"language_name,omitempty"`
	Version      string `json:"version,omitempty"`
	Tag          string `json:"tag,omitempty"`
}

// APIError is returned when DataForSEO responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dataforseo: HTTP %d: %s", e.StatusCode, e.Body)
}
