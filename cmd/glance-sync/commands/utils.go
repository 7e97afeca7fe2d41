package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/osinfra/glance-sync/internal/config"
	"github.com/osinfra/glance-sync/pkg/errors"
	"github.com/osinfra/glance-sync/pkg/imageservice"
)

// ensureParentDir creates the directory a file lives in.
func ensureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}
	return nil
}

// connectEndpoint builds the client adapter for a configured endpoint.
func connectEndpoint(ctx context.Context, cfg *config.Config, name string) (imageservice.Client, error) {
	epCfg, ok := cfg.Endpoints[name]
	if !ok {
		return nil, fmt.Errorf("endpoint %q is not defined under endpoints", name)
	}

	switch epCfg.Type {
	case "", config.TypeGlance:
		return imageservice.NewGlanceClient(ctx, name, imageservice.GlanceOptions{
			ImageURL:   epCfg.ImageURL(),
			AuthURL:    epCfg.AuthEndpoint(),
			Username:   epCfg.Username,
			Password:   epCfg.Password,
			Tenant:     epCfg.Tenant,
			DomainName: epCfg.Domain,
			Region:     epCfg.Region,
		})
	case config.TypeS3:
		return imageservice.NewS3Client(ctx, name, epCfg.Bucket, epCfg.Region, epCfg.Prefix)
	default:
		return nil, fmt.Errorf("endpoint %q has unknown type %q", name, epCfg.Type)
	}
}
