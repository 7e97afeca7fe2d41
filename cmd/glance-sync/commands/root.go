package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "glance-sync",
	Short: "Synchronize image catalogs from a master image service to slave endpoints",
	Long: `glance-sync copies virtual machine images from one authoritative (master)
image service endpoint to one or more slave endpoints, so that slaves
converge to a subset or full copy of the master's image set. Endpoints
are defined in the configuration file; the image selection, staging
directory, and cleanup behavior can be overridden on the command line.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: glance-sync.yaml in ., $HOME/.glance-sync, /etc/glance-sync)")
	rootCmd.PersistentFlags().StringP("master", "m", "", "Name of the master endpoint from the endpoints section")
	rootCmd.PersistentFlags().StringSliceP("slaves", "s", nil, "Names of the slave endpoints to sync to")
	rootCmd.PersistentFlags().StringSliceP("images", "i", nil, "Image names to sync")
	rootCmd.PersistentFlags().StringP("pattern", "p", "", "Image name pattern to sync (full regular-expression match)")
	rootCmd.PersistentFlags().StringP("tmpdir", "t", "", "Staging directory for downloaded images (default /tmp/glance-sync)")
	rootCmd.PersistentFlags().BoolP("clean", "c", false, "Remove the staging directory after the run")
	rootCmd.PersistentFlags().String("history-db", "", "Sync history database path (default .glance-sync/history.db)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("master", rootCmd.PersistentFlags().Lookup("master"))
	viper.BindPFlag("slaves", rootCmd.PersistentFlags().Lookup("slaves"))
	viper.BindPFlag("images", rootCmd.PersistentFlags().Lookup("images"))
	viper.BindPFlag("pattern", rootCmd.PersistentFlags().Lookup("pattern"))
	viper.BindPFlag("staging-dir", rootCmd.PersistentFlags().Lookup("tmpdir"))
	viper.BindPFlag("clean", rootCmd.PersistentFlags().Lookup("clean"))
	viper.BindPFlag("history-db", rootCmd.PersistentFlags().Lookup("history-db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
