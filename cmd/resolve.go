package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/seo-cli/internal/lighthouse"
)

var (
	resolveFormat      string
	resolveConcurrency int
)

// attemptView is one stage attempt as printed by resolve.
type attemptView struct {
	Stage   string `json:"stage" yaml:"stage"`
	Input   string `json:"input_variant,omitempty" yaml:"input_variant,omitempty"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// resolutionView is a resolution as printed by resolve.
type resolutionView struct {
	TaskID         string         `json:"task_id" yaml:"task_id"`
	Status         string         `json:"status" yaml:"status"`
	SourceNote     string         `json:"source_note,omitempty" yaml:"source_note,omitempty"`
	ErrorCode      int            `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Error          string         `json:"error,omitempty" yaml:"error,omitempty"`
	AnalysisResult map[string]any `json:"analysis_result,omitempty" yaml:"analysis_result,omitempty"`
	Attempts       []attemptView  `json:"attempts" yaml:"attempts"`
}

func newResolutionView(res *lighthouse.Resolution) resolutionView {
	v := resolutionView{
		TaskID:     res.TaskID,
		Status:     string(res.Status),
		SourceNote: res.SourceNote,
		ErrorCode:  res.ErrorCode,
		Error:      res.Error,
		Attempts:   make([]attemptView, 0, len(res.Attempts)),
	}
	if res.Payload != nil {
		v.AnalysisResult = res.Payload.AnalysisResult
	}
	for _, a := range res.Attempts {
		v.Attempts = append(v.Attempts, attemptView{
			Stage:   a.Stage.String(),
			Input:   a.InputVariant,
			Outcome: a.Outcome.String(),
			Detail:  a.Detail,
		})
	}
	return v
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <task-id>...",
	Short: "Resolve the results of one or more Lighthouse tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if resolveFormat != "json" && resolveFormat != "yaml" {
			return eris.Errorf("unsupported format %q (json or yaml)", resolveFormat)
		}

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		limit := resolveConcurrency
		if limit <= 0 {
			limit = cfg.Resolver.Concurrency
		}

		results := resolveAll(ctx, env, args, limit)

		zap.L().Info("resolve complete", zap.Int("tasks", len(args)))
		return writeResolutions(os.Stdout, resolveFormat, results)
	},
}

// resolveAll resolves ids concurrently, at most limit at a time when limit is
// positive. Results keep the order of ids.
func resolveAll(ctx context.Context, env *resolverEnv, ids []string, limit int) []*lighthouse.Resolution {
	results := make([]*lighthouse.Resolution, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, taskID := range ids {
		g.Go(func() error {
			res := env.Resolver.Resolve(gctx, taskID)
			persistResolution(gctx, env.Store, env.Cache, res)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// writeResolutions prints results in the given format.
func writeResolutions(w io.Writer, format string, results []*lighthouse.Resolution) error {
	views := make([]resolutionView, 0, len(results))
	for _, res := range results {
		views = append(views, newResolutionView(res))
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "json", "output format (json or yaml)")
	resolveCmd.Flags().IntVar(&resolveConcurrency, "concurrency", 0, "max concurrent resolutions (default from config)")
	rootCmd.AddCommand(resolveCmd)
}
