package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osinfra/glance-sync/internal/config"
	"github.com/osinfra/glance-sync/pkg/db"
	"github.com/osinfra/glance-sync/pkg/errors"
)

var historyRunID int64

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded sync runs and their outcomes",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int64Var(&historyRunID, "run", 0, "Show the per-pair outcomes of one run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := db.NewRepository(cfg.HistoryDB)
	if err != nil {
		return errors.Wrap(err, "history db init failed")
	}
	defer repo.Close()

	if historyRunID != 0 {
		return printRunOutcomes(ctx, repo, historyRunID)
	}
	return printRuns(ctx, repo)
}

func printRuns(ctx context.Context, repo *db.Repository) error {
	runs, err := repo.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No sync runs recorded")
		return nil
	}

	fmt.Printf("%-6s %-20s %-22s %8s %8s %8s %8s\n",
		"RUN", "MASTER", "STARTED", "IMAGES", "SYNCED", "SKIPPED", "FAILED")
	fmt.Println("-------------------------------------------------------------------------------------------")
	for _, run := range runs {
		fmt.Printf("%-6d %-20s %-22s %8d %8d %8d %8d\n",
			run.ID, run.Master, run.StartedAt, run.TotalImages, run.Synced, run.Skipped, run.Failed)
	}
	return nil
}

func printRunOutcomes(ctx context.Context, repo *db.Repository, runID int64) error {
	outcomes, err := repo.GetOutcomes(ctx, runID)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Printf("No outcomes recorded for run %d\n", runID)
		return nil
	}

	fmt.Printf("%-30s %-20s %-8s %s\n", "IMAGE", "SLAVE", "STATUS", "REASON")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, oc := range outcomes {
		reason := oc.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Printf("%-30s %-20s %-8s %s\n", oc.ImageName, oc.SlaveName, oc.Status, reason)
	}
	return nil
}
