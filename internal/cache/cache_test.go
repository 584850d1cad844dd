package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/seo-cli/internal/lighthouse"
	"github.com/sells-group/seo-cli/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(Config{Address: mr.Addr(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c, mr
}

func completed(taskID string) *lighthouse.Resolution {
	return &lighthouse.Resolution{
		TaskID: taskID,
		Status: model.StatusComplete,
		Payload: &lighthouse.Payload{AnalysisResult: map[string]any{
			"lighthouse_result": map[string]any{"categories": map[string]any{}},
		}},
		SourceNote: lighthouse.SourceLiveFallback,
	}
}

func TestNew_EmptyAddress(t *testing.T) {
	c, err := New(Config{})
	assert.ErrorIs(t, err, ErrEmptyAddress)
	assert.Nil(t, c)
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(Config{Address: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestPutAndGet(t *testing.T) {
	c, mr := newTestCache(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, completed("task-1")))
	assert.True(t, mr.Exists(keyPrefix+"task-1"))
	assert.Equal(t, 10*time.Minute, mr.TTL(keyPrefix+"task-1"))

	e, err := c.Get(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, lighthouse.SourceLiveFallback, e.SourceNote)
	assert.Contains(t, e.Payload.AnalysisResult, "lighthouse_result")
	assert.False(t, e.CachedAt.IsZero())
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(t, 0)

	e, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestGet_Expired(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, completed("task-1")))
	mr.FastForward(2 * time.Minute)

	e, err := c.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestGet_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, mr.Set(keyPrefix+"task-1", "{not json"))

	_, err := c.Get(context.Background(), "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode task-1")
}

func TestPut_SkipsIncomplete(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, &lighthouse.Resolution{TaskID: "task-2", Status: model.StatusInProgress}))
	require.NoError(t, c.Put(ctx, nil))
	assert.False(t, mr.Exists(keyPrefix+"task-2"))
}

func TestDefaultTTL(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, c.Put(context.Background(), completed("task-1")))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"task-1"))
}

func TestDelete(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, completed("task-1")))
	require.NoError(t, c.Delete(ctx, "task-1"))
	assert.False(t, mr.Exists(keyPrefix+"task-1"))
}

func TestGet_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), 0)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	mr.Close()

	_, err := c.Get(context.Background(), "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: get task-1")
}
