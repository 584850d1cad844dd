package lighthouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"

	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- DataForSEO Mock ---

type mockClient struct {
	mock.Mock
}

func (m *mockClient) TasksReady(ctx context.Context) (*dataforseo.TasksReadyResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataforseo.TasksReadyResponse), args.Error(1)
}

func (m *mockClient) TaskGet(ctx context.Context, id string) (*dataforseo.TaskResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataforseo.TaskResponse), args.Error(1)
}

func (m *mockClient) TaskPost(ctx context.Context, req dataforseo.LighthouseRequest) (*dataforseo.TaskResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataforseo.TaskResponse), args.Error(1)
}

func (m *mockClient) Live(ctx context.Context, req dataforseo.LighthouseRequest) (*dataforseo.TaskResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataforseo.TaskResponse), args.Error(1)
}

// liveURLs returns the URLs passed to Live, in call order.
func (m *mockClient) liveURLs() []string {
	var urls []string
	for _, c := range m.Calls {
		if c.Method == "Live" {
			urls = append(urls, c.Arguments.Get(1).(dataforseo.LighthouseRequest).URL)
		}
	}
	return urls
}

// --- History Mock ---

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) LoadHistory(ctx context.Context, taskID string) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *mockHistory) OriginalInput(ctx context.Context, taskID string) (string, bool, error) {
	args := m.Called(ctx, taskID)
	return args.String(0), args.Bool(1), args.Error(2)
}

// --- Recorder ---

type recordedAttempt struct {
	stage, outcome string
}

type fakeRecorder struct {
	attempts    []recordedAttempt
	resolutions []string
}

func (f *fakeRecorder) RecordAttempt(stage, outcome string) {
	f.attempts = append(f.attempts, recordedAttempt{stage, outcome})
}

func (f *fakeRecorder) RecordResolution(status, source string, _ time.Duration) {
	f.resolutions = append(f.resolutions, status+"|"+source)
}

// --- Fixtures ---

func readyResponse(ids ...string) *dataforseo.TasksReadyResponse {
	result := make([]dataforseo.ReadyTask, 0, len(ids))
	for _, id := range ids {
		result = append(result, dataforseo.ReadyTask{ID: id})
	}
	return &dataforseo.TasksReadyResponse{
		StatusCode: dataforseo.CodeSuccess,
		Tasks:      []dataforseo.TasksReadyTask{{StatusCode: dataforseo.CodeSuccess, Result: result}},
	}
}

func taskResponse(code int, msg, url string, result ...map[string]any) *dataforseo.TaskResponse {
	return &dataforseo.TaskResponse{
		StatusCode: dataforseo.CodeSuccess,
		Tasks: []dataforseo.Task{{
			ID:            "task-1",
			StatusCode:    code,
			StatusMessage: msg,
			Data:          dataforseo.TaskData{URL: url},
			Result:        result,
		}},
	}
}

func lighthouseReport() map[string]any {
	return map[string]any{
		"categories": map[string]any{"performance": map[string]any{"score": 0.9}},
		"audits":     map[string]any{"first-contentful-paint": map[string]any{"score": 1.0}},
	}
}

var testConfig = Config{
	Device:       "desktop",
	LocationName: "United States",
	LanguageName: "English",
	Version:      "10.0.0",
}
