// Package cache keeps completed Lighthouse results in Redis so repeated polls
// for the same task skip the provider.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-cli/internal/lighthouse"
)

const (
	keyPrefix         = "seo:lighthouse:result:"
	connectionTimeout = 5 * time.Second
	defaultTTL        = time.Hour
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Config holds Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// Entry is a cached completed resolution.
type Entry struct {
	Payload    lighthouse.Payload `json:"payload"`
	SourceNote string             `json:"source_note"`
	CachedAt   time.Time          `json:"cached_at"`
}

// ResultCache stores completed results keyed by task id.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*ResultCache, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client. A non-positive ttl uses one hour.
func NewWithClient(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ResultCache{client: client, ttl: ttl}
}

// Get returns the cached entry for taskID. A miss returns (nil, nil).
func (c *ResultCache) Get(ctx context.Context, taskID string) (*Entry, error) {
	data, err := c.client.Get(ctx, keyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s", taskID)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrapf(err, "cache: decode %s", taskID)
	}
	return &e, nil
}

// Put caches res if it is complete. Other statuses are never cached since a
// later poll may still change them.
func (c *ResultCache) Put(ctx context.Context, res *lighthouse.Resolution) error {
	if res == nil || res.Payload == nil {
		return nil
	}

	data, err := json.Marshal(Entry{
		Payload:    *res.Payload,
		SourceNote: res.SourceNote,
		CachedAt:   time.Now().UTC(),
	})
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", res.TaskID)
	}
	if err := c.client.Set(ctx, keyPrefix+res.TaskID, data, c.ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: set %s", res.TaskID)
	}
	return nil
}

// Delete evicts taskID.
func (c *ResultCache) Delete(ctx context.Context, taskID string) error {
	return eris.Wrapf(c.client.Del(ctx, keyPrefix+taskID).Err(), "cache: delete %s", taskID)
}

// Close closes the Redis client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
