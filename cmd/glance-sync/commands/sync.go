package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/osinfra/glance-sync/internal/config"
	"github.com/osinfra/glance-sync/pkg/db"
	"github.com/osinfra/glance-sync/pkg/errors"
	"github.com/osinfra/glance-sync/pkg/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync images from the master endpoint to all configured slaves",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	spec, err := syncer.NewSpec(cfg.SyncList, cfg.Pattern)
	if err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Master failures are fatal: without the authoritative catalog there
	// is nothing to sync.
	masterClient, err := connectEndpoint(ctx, cfg, cfg.Master)
	if err != nil {
		return errors.Wrapf(err, "master endpoint %q", cfg.Master)
	}
	masterCatalog, err := masterClient.ListImages(ctx)
	if err != nil {
		return errors.Wrapf(err, "master endpoint %q", cfg.Master)
	}

	eligible, warnings := syncer.Select(masterCatalog, spec)
	slog.Info("images_selected",
		"master", cfg.Master,
		"catalog_size", len(masterCatalog),
		"eligible", len(eligible),
		"no_match_warnings", len(warnings))

	staging, err := syncer.NewStaging(cfg.StagingDir, cfg.Clean, masterClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := staging.Cleanup(); err != nil {
			slog.Error("staging_cleanup_failed", "error", err)
		}
	}()

	// A slave that fails to connect still takes part in the run; the
	// orchestrator fails its pairs and carries on with the others.
	slaves := make([]*syncer.Endpoint, 0, len(cfg.Slaves))
	for _, name := range cfg.Slaves {
		client, err := connectEndpoint(ctx, cfg, name)
		slaves = append(slaves, &syncer.Endpoint{
			Name:   name,
			Role:   syncer.RoleSlave,
			Client: client,
			Err:    err,
		})
	}

	master := &syncer.Endpoint{Name: cfg.Master, Role: syncer.RoleMaster, Client: masterClient}
	report := syncer.NewOrchestrator(staging).Run(ctx, master, slaves, eligible)
	for _, warning := range warnings {
		slog.Warn("sync_no_match", "detail", warning)
		report.Warn(warning)
	}

	report.Render(os.Stdout)
	saveHistory(ctx, cfg, report)

	if report.HasFailures() {
		return fmt.Errorf("sync completed with %d failed transfers", report.Summary().Failed)
	}
	return nil
}

// saveHistory records the run in the history database. History is an
// inspection aid; a write failure is logged and does not change the
// run's exit status.
func saveHistory(ctx context.Context, cfg *config.Config, report *syncer.Report) {
	if err := ensureParentDir(cfg.HistoryDB); err != nil {
		slog.Error("history_write_failed", "db_path", cfg.HistoryDB, "error", err)
		return
	}
	repo, err := db.NewRepository(cfg.HistoryDB)
	if err != nil {
		slog.Error("history_write_failed", "db_path", cfg.HistoryDB, "error", err)
		return
	}
	defer repo.Close()

	summary := report.Summary()
	run := &db.Run{
		Master:      cfg.Master,
		StartedAt:   report.StartedAt().UTC().Format(time.RFC3339),
		FinishedAt:  time.Now().UTC().Format(time.RFC3339),
		TotalImages: summary.TotalImages,
		Synced:      summary.Synced,
		Skipped:     summary.Skipped,
		Failed:      summary.Failed,
	}
	var outcomes []db.Outcome
	report.Each(func(image, slave string, oc syncer.Outcome) {
		outcomes = append(outcomes, db.Outcome{
			ImageName: image,
			SlaveName: slave,
			Status:    string(oc.Status),
			Reason:    oc.Reason,
		})
	})

	if err := repo.CreateRun(ctx, run, outcomes); err != nil {
		slog.Error("history_write_failed", "db_path", cfg.HistoryDB, "error", err)
	}
}
