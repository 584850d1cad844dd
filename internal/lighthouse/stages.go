package lighthouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/seo-cli/internal/resilience"
	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

// ProbeResult is the advisory answer of the readiness probe.
type ProbeResult struct {
	Ready bool
	Err   string

	transient bool
}

func (p ProbeResult) attemptOutcome() AttemptOutcome {
	switch {
	case p.Ready:
		return OutcomeSuccess
	case p.Err == "":
		return OutcomeNotReady
	case p.transient:
		return OutcomeTransientError
	default:
		return OutcomePermanentError
	}
}

// ProbeReady reports whether taskID is in the provider's ready list. Any
// failure yields Ready=false with a readable error.
func (r *Resolver) ProbeReady(ctx context.Context, taskID string) ProbeResult {
	resp, err := r.client.TasksReady(ctx)
	if err != nil {
		return ProbeResult{Err: classified(err), transient: resilience.IsTransient(err)}
	}
	if resp.StatusCode != dataforseo.CodeSuccess || !resp.HasResult() {
		return ProbeResult{Err: fmt.Sprintf("tasks_ready: status %d: %s", resp.StatusCode, resp.StatusMessage)}
	}
	for _, id := range resp.ReadyIDs() {
		if id == taskID {
			return ProbeResult{Ready: true}
		}
	}
	return ProbeResult{}
}

// FetchStored retrieves the stored result of taskID.
func (r *Resolver) FetchStored(ctx context.Context, taskID string) FetchOutcome {
	resp, err := r.client.TaskGet(ctx, taskID)
	if err != nil {
		var apiErr *dataforseo.APIError
		if errors.As(err, &apiErr) {
			return FetchOutcome{Kind: FetchNotFound, Code: apiErr.StatusCode, Message: fmt.Sprintf("task_get returned HTTP %d", apiErr.StatusCode)}
		}
		return failed(0, classified(err), resilience.IsTransient(err))
	}
	if resp.StatusCode != dataforseo.CodeSuccess {
		return failed(resp.StatusCode, resp.StatusMessage, false)
	}

	task := resp.FirstTask()
	if task == nil {
		return failed(resp.StatusCode, "task_get response has no task", false)
	}

	switch task.StatusCode {
	case dataforseo.CodeSuccess:
		if len(task.Result) > 0 && task.Result[0] != nil {
			return found(task.Result[0])
		}
		return FetchOutcome{Kind: FetchInProgress, Fallback: true, URL: task.Data.URL, Message: "empty result"}
	case dataforseo.CodeTaskNotFound:
		return FetchOutcome{Kind: FetchNotFound, Code: task.StatusCode, Message: task.StatusMessage}
	case dataforseo.CodeTaskInQueue:
		return FetchOutcome{Kind: FetchInProgress, Code: task.StatusCode, Message: task.StatusMessage}
	default:
		return failed(task.StatusCode, task.StatusMessage, false)
	}
}

// FetchLive runs a synchronous audit of input, prefixing https:// when it
// carries no scheme.
func (r *Resolver) FetchLive(ctx context.Context, input string) FetchOutcome {
	target := EnsureScheme(input)
	resp, err := r.client.Live(ctx, r.liveRequest(target))
	if err != nil {
		code := 0
		var apiErr *dataforseo.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.StatusCode
		}
		return failed(code, classified(err), resilience.IsTransient(err))
	}
	if resp.StatusCode != dataforseo.CodeSuccess {
		return failed(resp.StatusCode, resp.StatusMessage, false)
	}

	task := resp.FirstTask()
	switch {
	case task == nil:
		return failed(resp.StatusCode, "live response has no task", false)
	case task.StatusCode != dataforseo.CodeSuccess:
		return failed(task.StatusCode, task.StatusMessage, false)
	case len(task.Result) == 0 || task.Result[0] == nil:
		return failed(task.StatusCode, "live response has no result", false)
	}
	return found(task.Result[0])
}

// FetchAlternates retries the live endpoint with the scheme and www. variants
// of input, skipping the form that was already tried, and stops at the first
// success.
func (r *Resolver) FetchAlternates(ctx context.Context, input string) FetchOutcome {
	return r.fetchAlternates(ctx, input, nil)
}

func (r *Resolver) fetchAlternates(ctx context.Context, input string, record func(Attempt)) FetchOutcome {
	tried := EnsureScheme(input)

	var errs []string
	for _, candidate := range Candidates(input) {
		if sameInput(candidate, tried) {
			continue
		}

		out := r.FetchLive(ctx, candidate)
		r.recordAttempt(record, Attempt{
			Stage:        StageAlternateFetch,
			InputVariant: candidate,
			Outcome:      out.attemptOutcome(),
			Detail:       out.detail(),
		})
		if out.Kind == FetchFound {
			out.Variant = candidate
			return out
		}

		zap.L().Debug("lighthouse: alternate input failed",
			zap.String("candidate", candidate),
			zap.String("detail", out.detail()),
		)
		errs = append(errs, candidate+": "+out.detail())
	}

	msg := "all alternate inputs failed"
	if len(errs) > 0 {
		msg += ": " + strings.Join(errs, "; ")
	}
	return notFound(msg)
}

// classified prefixes a transport error with its retry class.
func classified(err error) string {
	return resilience.ClassifyError(err) + ": " + err.Error()
}

func (r *Resolver) liveRequest(target string) dataforseo.LighthouseRequest {
	return dataforseo.LighthouseRequest{
		URL:          target,
		Device:       r.cfg.Device,
		LocationName: r.cfg.LocationName,
		LanguageName: r.cfg.LanguageName,
		Version:      r.cfg.Version,
	}
}

func (r *Resolver) recordAttempt(record func(Attempt), a Attempt) {
	r.recorder.RecordAttempt(a.Stage.String(), a.Outcome.String())
	if record != nil {
		record(a)
	}
}
