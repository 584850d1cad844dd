package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/seo-cli/internal/config"
	"github.com/sells-group/seo-cli/internal/lighthouse"
	"github.com/sells-group/seo-cli/internal/resilience"
	"github.com/sells-group/seo-cli/internal/store"
	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

// fakeProvider is an in-memory DataForSEO Lighthouse API.
type fakeProvider struct {
	mu sync.Mutex

	// taskGet maps a task id to its task-level status code. Tasks with
	// code 20000 return report as their result.
	taskGet map[string]int
	// liveOK lists the URLs a live audit succeeds for.
	liveOK map[string]bool
	// missing lists task ids whose task_get answers HTTP 404, which the
	// client retries.
	missing map[string]bool
	// postID is the id handed out by task_post.
	postID string

	liveCalls []string
	taskGets  []string
	posted    []dataforseo.LighthouseRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		taskGet: make(map[string]int),
		liveOK:  make(map[string]bool),
		missing: make(map[string]bool),
	}
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.URL.Path == "/tasks_ready":
		writeJSON(w, http.StatusOK, map[string]any{
			"status_code": dataforseo.CodeSuccess,
			"tasks":       []any{map[string]any{"status_code": dataforseo.CodeSuccess, "result": []any{}}},
		})

	case strings.HasPrefix(r.URL.Path, "/task_get/json/"):
		id := strings.TrimPrefix(r.URL.Path, "/task_get/json/")
		p.taskGets = append(p.taskGets, id)
		if p.missing[id] {
			http.NotFound(w, r)
			return
		}
		code, ok := p.taskGet[id]
		if !ok {
			code = dataforseo.CodeTaskNotFound
		}
		task := map[string]any{"id": id, "status_code": code, "status_message": statusMessage(code)}
		if code == dataforseo.CodeSuccess {
			task["result"] = []any{report()}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status_code": dataforseo.CodeSuccess, "tasks": []any{task}})

	case r.URL.Path == "/live/json":
		var reqs []dataforseo.LighthouseRequest
		_ = json.NewDecoder(r.Body).Decode(&reqs)
		target := reqs[0].URL
		p.liveCalls = append(p.liveCalls, target)
		task := map[string]any{"status_code": 50000, "status_message": "Internal Error."}
		if p.liveOK[target] {
			task = map[string]any{"status_code": dataforseo.CodeSuccess, "result": []any{report()}}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status_code": dataforseo.CodeSuccess, "tasks": []any{task}})

	case r.URL.Path == "/task_post":
		var reqs []dataforseo.LighthouseRequest
		_ = json.NewDecoder(r.Body).Decode(&reqs)
		p.posted = append(p.posted, reqs...)
		writeJSON(w, http.StatusOK, map[string]any{
			"status_code": dataforseo.CodeSuccess,
			"tasks": []any{map[string]any{
				"id":             p.postID,
				"status_code":    dataforseo.CodeTaskCreated,
				"status_message": "Task Created.",
			}},
		})

	default:
		http.NotFound(w, r)
	}
}

func (p *fakeProvider) lives() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.liveCalls...)
}

// gets returns the task ids of every task_get call in arrival order.
func (p *fakeProvider) gets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.taskGets...)
}

func (p *fakeProvider) posts() []dataforseo.LighthouseRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dataforseo.LighthouseRequest(nil), p.posted...)
}

func statusMessage(code int) string {
	switch code {
	case dataforseo.CodeSuccess:
		return "Ok."
	case dataforseo.CodeTaskNotFound:
		return "Task Not Found."
	case dataforseo.CodeTaskInQueue:
		return "Task In Queue."
	default:
		return "Invalid Field."
	}
}

func report() map[string]any {
	return map[string]any{
		"categories": map[string]any{"performance": map[string]any{"score": 0.87}},
		"audits":     map[string]any{"speed-index": map[string]any{"score": 0.9}},
	}
}

// testEnv builds a resolverEnv against provider with a fresh SQLite store.
func testEnv(t *testing.T, provider http.Handler) *resolverEnv {
	t.Helper()
	return testEnvWithRetry(t, provider, resilience.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond})
}

func testEnvWithRetry(t *testing.T, provider http.Handler, retry resilience.RetryConfig) *resolverEnv {
	t.Helper()

	ts := httptest.NewServer(provider)
	t.Cleanup(ts.Close)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "seo.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	client := dataforseo.NewClient("login", "password",
		dataforseo.WithBaseURL(ts.URL),
		dataforseo.WithRetry(retry),
	)

	return &resolverEnv{
		Store:    st,
		Client:   client,
		Resolver: lighthouse.New(client, st, resolverConfig()),
	}
}

// withConfig installs c as the global config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func testConfig() *config.Config {
	return &config.Config{
		DataForSEO: config.DataForSEOConfig{
			Device:       "desktop",
			LocationName: "United States",
			LanguageName: "English",
			Version:      "9.6.8",
		},
		Store: config.StoreConfig{Driver: "sqlite"},
	}
}
