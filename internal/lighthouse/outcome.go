package lighthouse

import (
	"fmt"

	"github.com/sells-group/seo-cli/internal/model"
)

// Stage identifies one step of the resolution chain.
type Stage int

const (
	StageReadinessProbe Stage = iota
	StagePrimaryFetch
	StageLiveFetch
	StageAlternateFetch
)

func (s Stage) String() string {
	switch s {
	case StageReadinessProbe:
		return "readiness_probe"
	case StagePrimaryFetch:
		return "primary_fetch"
	case StageLiveFetch:
		return "live_fetch"
	case StageAlternateFetch:
		return "alternate_fetch"
	default:
		return "unknown"
	}
}

// MarshalText renders the stage name in JSON output.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AttemptOutcome is the result of a single stage attempt.
type AttemptOutcome int

const (
	OutcomeSuccess AttemptOutcome = iota
	OutcomeNotReady
	OutcomeNotFound
	OutcomeTransientError
	OutcomePermanentError
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomePermanentError:
		return "permanent_error"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome name in JSON output.
func (o AttemptOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Attempt records one try at one stage. InputVariant is only set for
// alternate fetches.
type Attempt struct {
	Stage        Stage          `json:"stage"`
	InputVariant string         `json:"input_variant,omitempty"`
	Outcome      AttemptOutcome `json:"outcome"`
	Detail       string         `json:"detail,omitempty"`
}

// FetchKind discriminates FetchOutcome.
type FetchKind int

const (
	FetchFound FetchKind = iota
	FetchNotFound
	FetchInProgress
	FetchError
)

func (k FetchKind) String() string {
	switch k {
	case FetchFound:
		return "found"
	case FetchNotFound:
		return "not_found"
	case FetchInProgress:
		return "in_progress"
	case FetchError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchOutcome is what a fetch stage reports to the orchestrator.
//
//   - Found: Raw holds the first result object.
//   - InProgress: Fallback tells whether the live chain may run; URL is the
//     task's original input when the provider echoed it.
//   - NotFound / Error: Code and Message describe the failure.
type FetchOutcome struct {
	Kind      FetchKind
	Raw       map[string]any
	URL       string
	Fallback  bool
	Variant   string
	Code      int
	Message   string
	Transient bool
}

func found(raw map[string]any) FetchOutcome {
	return FetchOutcome{Kind: FetchFound, Raw: raw}
}

func notFound(msg string) FetchOutcome {
	return FetchOutcome{Kind: FetchNotFound, Message: msg}
}

func failed(code int, msg string, transient bool) FetchOutcome {
	return FetchOutcome{Kind: FetchError, Code: code, Message: msg, Transient: transient}
}

// attemptOutcome maps a fetch outcome onto the attempt taxonomy.
func (f FetchOutcome) attemptOutcome() AttemptOutcome {
	switch f.Kind {
	case FetchFound:
		return OutcomeSuccess
	case FetchInProgress:
		return OutcomeNotReady
	case FetchNotFound:
		return OutcomeNotFound
	default:
		if f.Transient {
			return OutcomeTransientError
		}
		return OutcomePermanentError
	}
}

func (f FetchOutcome) detail() string {
	switch {
	case f.Code != 0 && f.Message != "":
		return fmt.Sprintf("%d: %s", f.Code, f.Message)
	case f.Message != "":
		return f.Message
	default:
		return ""
	}
}

// Resolution is the canonical output of Resolve. Payload is set if and only
// if Status is model.StatusComplete.
type Resolution struct {
	TaskID     string                 `json:"task_id"`
	Status     model.ResolutionStatus `json:"status"`
	Payload    *Payload               `json:"payload,omitempty"`
	SourceNote string                 `json:"source_note,omitempty"`
	ErrorCode  int                    `json:"error_code,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Attempts   []Attempt              `json:"attempts"`
}

func (r *Resolution) record(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}
