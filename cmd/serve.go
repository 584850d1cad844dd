package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/seo-cli/internal/cache"
	"github.com/sells-group/seo-cli/internal/lighthouse"
	"github.com/sells-group/seo-cli/internal/metrics"
	"github.com/sells-group/seo-cli/internal/model"
	"github.com/sells-group/seo-cli/internal/monitoring"
	"github.com/sells-group/seo-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task-get HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initResolver(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		h := &taskHandler{
			resolver: env.Resolver,
			store:    env.Store,
			cache:    env.Cache,
			metrics:  env.Metrics,
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(h, env.Registry, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the health, metrics and task-get routes.
func buildRouter(h *taskHandler, gatherer prometheus.Gatherer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}
	r.Get("/api/lighthouse/task-get", h.taskGet)

	return r
}

// taskGetResponse is the task-get body. Data is present only on 200.
type taskGetResponse struct {
	Success bool                `json:"success"`
	Data    *lighthouse.Payload `json:"data,omitempty"`
	Status  string              `json:"status"`
	Error   string              `json:"error,omitempty"`
}

// taskHandler serves task-get. store, cache and metrics may be nil.
type taskHandler struct {
	resolver *lighthouse.Resolver
	store    store.Store
	cache    *cache.ResultCache
	metrics  *metrics.Metrics
}

func (h *taskHandler) taskGet(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		h.respond(w, http.StatusBadRequest, taskGetResponse{
			Status: string(model.StatusError),
			Error:  "taskId is required",
		})
		return
	}

	// A client disconnect must not abort the chain midway.
	ctx := context.WithoutCancel(r.Context())
	log := zap.L().With(zap.String("task_id", taskID))

	// refresh=true drops any cached result and resolves again.
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		h.evict(ctx, taskID)
	} else if entry := h.cached(ctx, taskID); entry != nil {
		log.Debug("task-get: cache hit", zap.String("source", entry.SourceNote))
		h.respond(w, http.StatusOK, taskGetResponse{
			Success: true,
			Data:    &entry.Payload,
			Status:  string(model.StatusComplete),
		})
		return
	}

	res := h.resolver.Resolve(ctx, taskID)
	persistResolution(ctx, h.store, h.cache, res)

	code, body := resolutionResponse(res)
	log.Info("task-get: resolved",
		zap.String("status", string(res.Status)),
		zap.String("source", res.SourceNote),
		zap.Int("attempts", len(res.Attempts)),
	)
	h.respond(w, code, body)
}

func (h *taskHandler) cached(ctx context.Context, taskID string) *cache.Entry {
	if h.cache == nil {
		return nil
	}
	entry, err := h.cache.Get(ctx, taskID)
	switch {
	case err != nil:
		zap.L().Warn("task-get: cache lookup failed", zap.String("task_id", taskID), zap.Error(err))
		h.recordCache("error")
	case entry == nil:
		h.recordCache("miss")
	default:
		h.recordCache("hit")
	}
	return entry
}

func (h *taskHandler) evict(ctx context.Context, taskID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, taskID); err != nil {
		zap.L().Warn("task-get: cache evict failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	h.recordCache("evict")
}

// persistResolution caches complete results and records the outcome in the
// history. st and c may be nil.
func persistResolution(ctx context.Context, st store.Store, c *cache.ResultCache, res *lighthouse.Resolution) {
	if c != nil {
		if err := c.Put(ctx, res); err != nil {
			zap.L().Warn("cache put failed", zap.String("task_id", res.TaskID), zap.Error(err))
		}
	}
	if st != nil {
		err := st.UpdateTaskStatus(ctx, res.TaskID, model.TaskStatusFor(res.Status))
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Tasks submitted outside this tool have no history row.
			zap.L().Debug("task status not recorded", zap.String("task_id", res.TaskID), zap.Error(err))
		case err != nil:
			zap.L().Warn("update task status failed", zap.String("task_id", res.TaskID), zap.Error(err))
		}
	}
}

func (h *taskHandler) recordCache(result string) {
	if h.metrics != nil {
		h.metrics.RecordCache(result)
	}
}

func (h *taskHandler) respond(w http.ResponseWriter, code int, body taskGetResponse) {
	if h.metrics != nil {
		h.metrics.RecordHTTP(code)
	}
	writeJSON(w, code, body)
}

// resolutionResponse maps a terminal resolution onto its HTTP status and body.
func resolutionResponse(res *lighthouse.Resolution) (int, taskGetResponse) {
	body := taskGetResponse{Status: string(res.Status)}
	switch res.Status {
	case model.StatusComplete:
		body.Success = true
		body.Data = res.Payload
		return http.StatusOK, body
	case model.StatusInProgress:
		return http.StatusAccepted, body
	case model.StatusNotFound:
		return http.StatusNotFound, body
	default:
		body.Status = string(model.StatusError)
		body.Error = res.Error
		if body.Error == "" {
			body.Error = "task resolution failed"
		}
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}
