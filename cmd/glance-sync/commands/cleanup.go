package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/osinfra/glance-sync/internal/config"
	"github.com/osinfra/glance-sync/pkg/errors"
)

var cleanupHistory bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove staged image payloads",
	Long: `Removes the staging directory left behind by runs without the clean
flag. With --history the sync history database is removed as well.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupHistory, "history", false, "Also remove the sync history database")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := os.RemoveAll(cfg.StagingDir); err != nil {
		return errors.Wrapf(err, "failed to remove staging directory %s", cfg.StagingDir)
	}
	fmt.Printf("Removed staging directory %s\n", cfg.StagingDir)

	if cleanupHistory {
		if err := os.Remove(cfg.HistoryDB); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove history database %s", cfg.HistoryDB)
		}
		fmt.Printf("Removed history database %s\n", cfg.HistoryDB)
	}

	return nil
}
