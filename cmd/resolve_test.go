package main

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/seo-cli/internal/lighthouse"
	"github.com/sells-group/seo-cli/internal/model"
	"github.com/sells-group/seo-cli/internal/resilience"
	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

func sampleResolutions() []*lighthouse.Resolution {
	payload := lighthouse.Normalize(report())
	return []*lighthouse.Resolution{
		{
			TaskID:     "t-1",
			Status:     model.StatusComplete,
			Payload:    &payload,
			SourceNote: lighthouse.SourceAlternateFallback + ":https://www.example.com",
			Attempts: []lighthouse.Attempt{
				{Stage: lighthouse.StagePrimaryFetch, Outcome: lighthouse.OutcomeNotFound},
				{Stage: lighthouse.StageAlternateFetch, InputVariant: "https://www.example.com", Outcome: lighthouse.OutcomeSuccess},
			},
		},
		{
			TaskID:    "t-2",
			Status:    model.StatusError,
			ErrorCode: 40006,
			Error:     "Invalid Field.",
		},
	}
}

func TestWriteResolutions_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResolutions(&buf, "json", sampleResolutions()))

	var views []resolutionView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 2)

	assert.Equal(t, "completed", views[0].Status)
	assert.Contains(t, views[0].AnalysisResult, "lighthouse_result")
	require.Len(t, views[0].Attempts, 2)
	assert.Equal(t, lighthouse.StagePrimaryFetch.String(), views[0].Attempts[0].Stage)
	assert.Equal(t, "https://www.example.com", views[0].Attempts[1].Input)

	assert.Equal(t, 40006, views[1].ErrorCode)
	assert.Nil(t, views[1].AnalysisResult)
	assert.NotNil(t, views[1].Attempts)
}

func TestWriteResolutions_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResolutions(&buf, "yaml", sampleResolutions()))

	var views []resolutionView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "t-1", views[0].TaskID)
	assert.Equal(t, "alternate_fallback:https://www.example.com", views[0].SourceNote)
	assert.Equal(t, "Invalid Field.", views[1].Error)
	assert.Contains(t, buf.String(), "task_id: t-2")
}

func TestResolveAll_KeepsArgumentOrder(t *testing.T) {
	withConfig(t, testConfig())
	provider := newFakeProvider()
	provider.taskGet["t-a"] = dataforseo.CodeSuccess
	provider.taskGet["t-c"] = dataforseo.CodeTaskInQueue
	env := testEnv(t, provider)

	_, err := env.Store.RecordTask(context.Background(), model.TaskReference{TaskID: "t-a", OriginalInput: "example.com"})
	require.NoError(t, err)

	ids := []string{"t-a", "t-b", "t-c"}
	results := resolveAll(context.Background(), env, ids, 0)
	require.Len(t, results, len(ids))

	for i, id := range ids {
		require.NotNil(t, results[i], id)
		assert.Equal(t, id, results[i].TaskID)
	}
	assert.Equal(t, model.StatusComplete, results[0].Status)
	assert.Equal(t, model.StatusNotFound, results[1].Status)
	assert.Equal(t, model.StatusInProgress, results[2].Status)

	rec, err := env.Store.GetTask(context.Background(), "t-a")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, rec.Status)
}

func TestResolveAll_SlowTaskDoesNotHoldUpOthers(t *testing.T) {
	withConfig(t, testConfig())
	provider := newFakeProvider()
	provider.missing["t-slow"] = true
	for _, id := range []string{"t-a", "t-b", "t-c"} {
		provider.taskGet[id] = dataforseo.CodeSuccess
	}
	// Three 404 retries back off 50+100+150ms before t-slow gives up.
	env := testEnvWithRetry(t, provider, resilience.RetryConfig{MaxRetries: 3, BaseDelay: 50 * time.Millisecond})

	ids := []string{"t-slow", "t-a", "t-b", "t-c"}
	results := resolveAll(context.Background(), env, ids, 2)
	require.Len(t, results, len(ids))
	for i, id := range ids {
		require.NotNil(t, results[i], id)
		assert.Equal(t, id, results[i].TaskID)
	}
	assert.Equal(t, model.StatusNotFound, results[0].Status)
	for _, res := range results[1:] {
		assert.Equal(t, model.StatusComplete, res.Status, res.TaskID)
	}

	// Every fast task is served while t-slow is still backing off.
	gets := provider.gets()
	lastSlow := lastIndex(gets, "t-slow")
	assert.Equal(t, 4, countOf(gets, "t-slow"))
	for _, id := range []string{"t-a", "t-b", "t-c"} {
		i := lastIndex(gets, id)
		require.GreaterOrEqual(t, i, 0, id)
		assert.Less(t, i, lastSlow, id)
	}
}

func lastIndex(s []string, v string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == v {
			return i
		}
	}
	return -1
}

func countOf(s []string, v string) int {
	n := 0
	for i := slices.Index(s, v); i >= 0; i = slices.Index(s, v) {
		n++
		s = s[i+1:]
	}
	return n
}
