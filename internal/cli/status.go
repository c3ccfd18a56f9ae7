package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/agavecli/agsync/internal/config"
	"github.com/agavecli/agsync/internal/sync/index"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show transfer run history",
	Long: `Show recent transfer runs, or the per-item detail of one run. Run
history is recorded locally; no remote calls are made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusLimit int

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum runs to show")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fail(newFormatter(nil), "status", err)
	}
	out := newFormatter(cfg)

	configDir, err := config.GetConfigDir()
	if err != nil {
		return fail(out, "status", err)
	}
	db, err := index.Open(filepath.Join(configDir, historyFileName))
	if err != nil {
		return fail(out, "status", err)
	}
	defer db.Close()

	if len(args) == 1 {
		return showRunDetail(ctx, out, db, args[0])
	}

	runs, err := db.ListRuns(ctx, statusLimit)
	if err != nil {
		return fail(out, "status", err)
	}
	return out.WriteSuccess("status", runHistory(runs))
}

func showRunDetail(ctx context.Context, out *config.OutputFormatter, db *index.DB, runID string) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(out, "status", utils.NewAppError(
				utils.NewCLIError(utils.ErrCodeInvalidArgument, "no such run: "+runID).Build()))
		}
		return fail(out, "status", err)
	}
	items, err := db.ListItems(ctx, runID)
	if err != nil {
		return fail(out, "status", err)
	}
	return out.WriteSuccess("status", runDetail{Run: *run, Items: items})
}

// runHistory renders recent runs as a table
type runHistory []index.RunRecord

func (h runHistory) Headers() []string {
	return []string{"Run ID", "Started", "Command", "Remote Root", "Status", "OK", "Skip", "Fail"}
}

func (h runHistory) Rows() [][]string {
	rows := make([][]string, 0, len(h))
	for _, run := range h {
		rows = append(rows, []string{
			shortRunID(run.ID),
			time.Unix(run.StartedAt, 0).Format("2006-01-02 15:04"),
			run.Command,
			run.System + ":" + run.RemoteRoot,
			run.Status,
			fmt.Sprintf("%d", run.Succeeded),
			fmt.Sprintf("%d", run.Skipped),
			fmt.Sprintf("%d", run.Failed),
		})
	}
	return rows
}

func (h runHistory) EmptyMessage() string {
	return "No runs recorded yet."
}

// runDetail renders one run's items as a table, failures first
type runDetail struct {
	Run   index.RunRecord `json:"run"`
	Items []index.RunItem `json:"items"`
}

func (d runDetail) Headers() []string {
	return []string{"Outcome", "Kind", "Remote Path", "Detail"}
}

func (d runDetail) Rows() [][]string {
	rows := make([][]string, 0, len(d.Items))
	for _, item := range d.Items {
		detail := item.Detail
		if item.ErrorCode != "" {
			detail = item.ErrorCode + ": " + item.Detail
		}
		rows = append(rows, []string{item.Outcome, item.Kind, item.RemotePath, detail})
	}
	return rows
}

func (d runDetail) EmptyMessage() string {
	return "Run recorded no items."
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
