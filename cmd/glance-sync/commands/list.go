package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osinfra/glance-sync/internal/config"
	"github.com/osinfra/glance-sync/pkg/errors"
	"github.com/osinfra/glance-sync/pkg/syncer"
)

var listCmd = &cobra.Command{
	Use:   "list <endpoint>",
	Short: "List the image catalog of a configured endpoint",
	Long: `Lists the images on one configured endpoint. When --images or
--pattern is set, only the matching images are shown, using the same
selection rules as the sync command.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	endpointName := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	spec, err := syncer.NewSpec(cfg.SyncList, cfg.Pattern)
	if err != nil {
		return errors.Wrap(err, "config invalid")
	}

	client, err := connectEndpoint(ctx, cfg, endpointName)
	if err != nil {
		return err
	}
	catalog, err := client.ListImages(ctx)
	if err != nil {
		return err
	}

	images, warnings := syncer.Select(catalog, spec)
	if len(images) == 0 {
		fmt.Println("No images found")
		return nil
	}

	fmt.Printf("%-30s %-38s %-34s %12s\n", "NAME", "ID", "CHECKSUM", "SIZE")
	fmt.Println("--------------------------------------------------------------------------------------------------------------------")
	for _, img := range images {
		checksum := img.Checksum
		if checksum == "" {
			checksum = "-"
		}
		fmt.Printf("%-30s %-38s %-34s %12d\n", img.Name, img.ID, checksum, img.SizeBytes)
	}
	for _, warning := range warnings {
		fmt.Printf("WARNING: %s\n", warning)
	}

	return nil
}
