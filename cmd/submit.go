package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/seo-cli/internal/lighthouse"
	"github.com/sells-group/seo-cli/internal/model"
	"github.com/sells-group/seo-cli/pkg/dataforseo"
)

var (
	submitURL string
	submitTag string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a Lighthouse task and record it in the history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "submit")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := submitTask(ctx, env, submitURL, submitTag)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// submitTask posts a task for url and records its id against the URL as
// given, so a later resolution can recover it.
func submitTask(ctx context.Context, env *resolverEnv, url, tag string) (*model.TaskRecord, error) {
	rc := resolverConfig()
	resp, err := env.Client.TaskPost(ctx, dataforseo.LighthouseRequest{
		URL:          lighthouse.EnsureScheme(url),
		Device:       rc.Device,
		LocationName: rc.LocationName,
		LanguageName: rc.LanguageName,
		Version:      rc.Version,
		Tag:          tag,
	})
	if err != nil {
		return nil, eris.Wrap(err, "submit: task_post")
	}

	task := resp.FirstTask()
	if resp.StatusCode != dataforseo.CodeSuccess || task == nil {
		return nil, eris.Errorf("submit: provider status %d: %s", resp.StatusCode, resp.StatusMessage)
	}
	if task.StatusCode != dataforseo.CodeTaskCreated && task.StatusCode != dataforseo.CodeSuccess {
		return nil, eris.Errorf("submit: task status %d: %s", task.StatusCode, task.StatusMessage)
	}

	rec, err := env.Store.RecordTask(ctx, model.TaskReference{TaskID: task.ID, OriginalInput: url})
	if err != nil {
		return nil, eris.Wrapf(err, "submit: record task %s", task.ID)
	}

	zap.L().Info("task submitted",
		zap.String("task_id", task.ID),
		zap.String("url", url),
	)
	return rec, nil
}

func init() {
	submitCmd.Flags().StringVar(&submitURL, "url", "", "URL to audit (required)")
	submitCmd.Flags().StringVar(&submitTag, "tag", "", "optional tag echoed back by the provider")
	_ = submitCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(submitCmd)
}
