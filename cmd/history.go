package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/seo-cli/internal/model"
	"github.com/sells-group/seo-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and seed the task history",
	Long:  "Commands for listing recorded Lighthouse tasks and importing task/URL pairs submitted elsewhere.",
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded tasks, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openHistory(cmd, "history")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.TaskFilter{
			Status: model.TaskStatus(status),
			Limit:  limit,
		}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		tasks, err := st.ListTasks(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(tasks) == 0 {
			fmt.Fprintln(os.Stderr, "No tasks found.")
			return nil
		}

		formatTaskList(os.Stdout, tasks)
		return nil
	},
}

// -- history import --

var historyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import task_id,url pairs from a CSV file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("csv")
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrap(err, "history import: open csv")
		}
		defer f.Close() //nolint:errcheck

		refs, err := parseTaskCSV(f)
		if err != nil {
			return eris.Wrapf(err, "history import: %s", path)
		}

		st, err := openHistory(cmd, "history")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportTasks(ctx, refs)
		if err != nil {
			return eris.Wrap(err, "history import")
		}

		zap.L().Info("import complete",
			zap.Int("rows", len(refs)),
			zap.Int64("imported", n),
			zap.String("csv", path),
		)
		return nil
	},
}

func openHistory(cmd *cobra.Command, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// parseTaskCSV reads task_id,url rows. A header row naming task_id is
// skipped; rows with an empty task id or URL are dropped.
func parseTaskCSV(r io.Reader) ([]model.TaskReference, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var refs []model.TaskReference
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if first {
			first = false
			if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "task_id") {
				continue
			}
		}
		if len(record) < 2 {
			continue
		}
		id, url := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		if id == "" || url == "" {
			continue
		}
		refs = append(refs, model.TaskReference{TaskID: id, OriginalInput: url})
	}
	return refs, nil
}

func formatTaskList(out io.Writer, tasks []model.TaskRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK_ID\tURL\tSTATUS\tCREATED\tUPDATED")
	_, _ = fmt.Fprintln(w, "-------\t---\t------\t-------\t-------")

	for _, t := range tasks {
		url := t.URL
		if r := []rune(url); len(r) > 40 {
			url = string(r[:37]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.TaskID,
			url,
			t.Status,
			t.CreatedAt.Format("2006-01-02 15:04"),
			t.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	historyListCmd.Flags().String("status", "", "filter by status (submitted, in_progress, completed, not_found, error)")
	historyListCmd.Flags().Int("limit", 50, "max tasks to show")
	historyListCmd.Flags().Duration("since", 0, "only tasks created within this duration (e.g. 24h)")

	historyImportCmd.Flags().String("csv", "", "path to CSV file of task_id,url rows (required)")
	_ = historyImportCmd.MarkFlagRequired("csv")

	historyCmd.AddCommand(historyListCmd, historyImportCmd)
	rootCmd.AddCommand(historyCmd)
}
