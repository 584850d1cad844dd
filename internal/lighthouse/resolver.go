// Package lighthouse resolves the results of asynchronous Lighthouse audits
// run by DataForSEO.
//
// A resolution is one sequential pass: an advisory readiness probe, a fetch
// of the stored task result, and, when the task is missing or has an empty
// result, a live audit of the task's original URL followed by its scheme and
// www. variants. Whatever stage succeeds, the raw result is normalized into a
// single canonical shape.
package lighthouse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/seo-cli/internal/model"
	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

// Source notes recorded on complete resolutions.
const (
	SourceTaskGet           = "task_get"
	SourceLiveFallback      = "live_fallback"
	SourceAlternateFallback = "alternate_fallback"
)

// HistoryStore recovers the original input of tasks whose provider record is
// gone.
type HistoryStore interface {
	// LoadHistory makes any lazily-loaded history for taskID available.
	LoadHistory(ctx context.Context, taskID string) error
	// OriginalInput returns the input taskID was created with.
	OriginalInput(ctx context.Context, taskID string) (string, bool, error)
}

// Recorder observes stage attempts and finished resolutions.
type Recorder interface {
	RecordAttempt(stage, outcome string)
	RecordResolution(status, source string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(string, string)                    {}
func (nopRecorder) RecordResolution(string, string, time.Duration) {}

// Config holds the live-audit parameters sent with every fallback request.
type Config struct {
	Device       string
	LocationName string
	LanguageName string
	Version      string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// Resolver sequences the resolution stages. It holds no mutable state, so a
// single Resolver serves concurrent resolutions.
type Resolver struct {
	client   dataforseo.Client
	history  HistoryStore
	cfg      Config
	recorder Recorder
}

// New creates a Resolver. history may be nil, in which case tasks the
// provider no longer knows resolve as not found.
func New(client dataforseo.Client, history HistoryStore, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		client:   client,
		history:  history,
		cfg:      cfg,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the resolution chain for taskID once and returns a terminal
// resolution. It never returns an error: failures are reported through
// Resolution.Status.
func (r *Resolver) Resolve(ctx context.Context, taskID string) *Resolution {
	start := time.Now()
	res := &Resolution{TaskID: taskID}
	log := zap.L().With(zap.String("task_id", taskID))

	probe := r.ProbeReady(ctx, taskID)
	r.recordAttempt(res.record, Attempt{
		Stage:   StageReadinessProbe,
		Outcome: probe.attemptOutcome(),
		Detail:  probe.Err,
	})
	log.Debug("lighthouse: readiness probe",
		zap.Bool("ready", probe.Ready),
		zap.String("error", probe.Err),
	)

	stored := r.FetchStored(ctx, taskID)
	r.recordAttempt(res.record, Attempt{
		Stage:   StagePrimaryFetch,
		Outcome: stored.attemptOutcome(),
		Detail:  stored.detail(),
	})
	log.Debug("lighthouse: primary fetch", zap.Stringer("kind", stored.Kind))

	switch stored.Kind {
	case FetchFound:
		r.complete(res, stored.Raw, SourceTaskGet)

	case FetchInProgress:
		if !stored.Fallback {
			// 40501 reports in-progress without trying the live chain,
			// unlike the empty-result case below.
			log.Info("lighthouse: task still processing, skipping live fallback",
				zap.Int("code", stored.Code),
			)
			res.Status = model.StatusInProgress
			break
		}
		input := stored.URL
		if input == "" {
			input = r.recoverInput(ctx, taskID)
		}
		if input == "" || !r.fallback(ctx, res, input) {
			res.Status = model.StatusInProgress
		}

	case FetchNotFound:
		input := r.recoverInput(ctx, taskID)
		if input == "" {
			log.Info("lighthouse: task not found and no original input in history")
			res.Status = model.StatusNotFound
			break
		}
		if !r.fallback(ctx, res, input) {
			res.Status = model.StatusNotFound
		}

	default:
		res.Status = model.StatusError
		res.ErrorCode = stored.Code
		res.Error = stored.Message
		log.Warn("lighthouse: task_get failed",
			zap.Int("code", stored.Code),
			zap.String("message", stored.Message),
		)
	}

	r.recorder.RecordResolution(string(res.Status), res.SourceNote, time.Since(start))
	return res
}

// fallback runs the live fetch and then the alternate inputs, completing res
// on the first success.
func (r *Resolver) fallback(ctx context.Context, res *Resolution, input string) bool {
	log := zap.L().With(zap.String("task_id", res.TaskID), zap.String("input", input))

	live := r.FetchLive(ctx, input)
	r.recordAttempt(res.record, Attempt{
		Stage:   StageLiveFetch,
		Outcome: live.attemptOutcome(),
		Detail:  live.detail(),
	})
	if live.Kind == FetchFound {
		log.Info("lighthouse: resolved via live fallback")
		r.complete(res, live.Raw, SourceLiveFallback)
		return true
	}
	log.Info("lighthouse: live fallback failed, trying alternate inputs",
		zap.String("detail", live.detail()),
	)

	alt := r.fetchAlternates(ctx, input, res.record)
	if alt.Kind == FetchFound {
		log.Info("lighthouse: resolved via alternate input", zap.String("variant", alt.Variant))
		r.complete(res, alt.Raw, SourceAlternateFallback+":"+alt.Variant)
		return true
	}
	log.Info("lighthouse: alternate inputs exhausted", zap.String("detail", alt.Message))
	return false
}

func (r *Resolver) complete(res *Resolution, raw map[string]any, source string) {
	payload := Normalize(raw)
	res.Status = model.StatusComplete
	res.Payload = &payload
	res.SourceNote = source
}

// recoverInput asks the history store for the original input of taskID.
// Store failures are logged and treated as no input.
func (r *Resolver) recoverInput(ctx context.Context, taskID string) string {
	if r.history == nil {
		return ""
	}
	if err := r.history.LoadHistory(ctx, taskID); err != nil {
		zap.L().Warn("lighthouse: load history failed", zap.String("task_id", taskID), zap.Error(err))
	}
	input, ok, err := r.history.OriginalInput(ctx, taskID)
	if err != nil {
		zap.L().Warn("lighthouse: original input lookup failed", zap.String("task_id", taskID), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return input
}
