package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/seo-cli/internal/cache"
	"github.com/sells-group/seo-cli/internal/lighthouse"
	"github.com/sells-group/seo-cli/internal/metrics"
	"github.com/sells-group/seo-cli/internal/resilience"
	"github.com/sells-group/seo-cli/internal/store"
	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

// resolverEnv holds the store, provider client and resolver needed by the
// serve/resolve/submit commands.
type resolverEnv struct {
	Store    store.Store
	Client   dataforseo.Client
	Resolver *lighthouse.Resolver
	Cache    *cache.ResultCache // may be nil
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *resolverEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initResolver validates config for mode, opens and migrates the store, and
// builds the provider client and resolver. Callers should defer env.Close().
func initResolver(ctx context.Context, mode string) (*resolverEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	client := initClient()
	res := lighthouse.New(client, st, resolverConfig(), lighthouse.WithRecorder(m))

	return &resolverEnv{
		Store:    st,
		Client:   client,
		Resolver: res,
		Cache:    initCache(),
		Metrics:  m,
		Registry: reg,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "seo.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initClient() dataforseo.Client {
	retry := resilience.FromRetryConfig(
		cfg.Resolver.MaxRetries,
		cfg.Resolver.BaseDelayMs,
		cfg.Resolver.JitterFraction,
	)
	retry.OnRetry = resilience.RetryLogger("dataforseo", "lighthouse")

	opts := []dataforseo.Option{
		dataforseo.WithBaseURL(cfg.DataForSEO.BaseURL),
		dataforseo.WithRetry(retry),
	}
	if cfg.DataForSEO.TimeoutSecs > 0 {
		opts = append(opts, dataforseo.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.DataForSEO.TimeoutSecs) * time.Second,
		}))
	}
	if r := cfg.DataForSEO.RateLimitPerSec; r > 0 {
		opts = append(opts, dataforseo.WithRateLimiter(rate.NewLimiter(rate.Limit(r), 1)))
		zap.L().Info("dataforseo rate limit enabled", zap.Float64("per_sec", r))
	}
	return dataforseo.NewClient(cfg.DataForSEO.Login, cfg.DataForSEO.Password, opts...)
}

// initCache connects the Redis result cache. It is optional: an empty
// address or an unreachable server disables caching.
func initCache() *cache.ResultCache {
	if cfg.Redis.Address == "" {
		zap.L().Debug("SEO_REDIS_ADDRESS not set, result cache disabled")
		return nil
	}
	c, err := cache.New(cache.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      time.Duration(cfg.Redis.TTLMinutes) * time.Minute,
	})
	if err != nil {
		zap.L().Warn("result cache unavailable, continuing without it", zap.Error(err))
		return nil
	}
	zap.L().Info("result cache enabled", zap.String("address", cfg.Redis.Address))
	return c
}

func resolverConfig() lighthouse.Config {
	return lighthouse.Config{
		Device:       cfg.DataForSEO.Device,
		LocationName: cfg.DataForSEO.LocationName,
		LanguageName: cfg.DataForSEO.LanguageName,
		Version:      cfg.DataForSEO.Version,
	}
}
