package imageservice

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/imagedata"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/images"

	"github.com/osinfra/glance-sync/pkg/errors"
)

// GlanceOptions configures a Glance v2 endpoint connection.
type GlanceOptions struct {
	// ImageURL is the Glance service endpoint, e.g. http://host:9292/v2.
	// When empty the endpoint is discovered from the Keystone catalog.
	ImageURL string
	// AuthURL is the Keystone endpoint, e.g. http://host:5000/v3.
	AuthURL    string
	Username   string
	Password   string
	Tenant     string
	DomainName string
	Region     string
}

// GlanceClient talks to one OpenStack image service endpoint.
type GlanceClient struct {
	name string
	svc  *gophercloud.ServiceClient
}

// NewGlanceClient authenticates against Keystone and binds a Glance v2
// service client. An authentication or endpoint discovery failure is
// returned as an AuthError.
func NewGlanceClient(ctx context.Context, name string, opts GlanceOptions) (*GlanceClient, error) {
	slog.Info("glance_client_init", "endpoint", name, "auth_url", opts.AuthURL)

	domain := opts.DomainName
	if domain == "" {
		domain = "Default"
	}
	provider, err := openstack.AuthenticatedClient(ctx, gophercloud.AuthOptions{
		IdentityEndpoint: opts.AuthURL,
		Username:         opts.Username,
		Password:         opts.Password,
		TenantName:       opts.Tenant,
		DomainName:       domain,
		AllowReauth:      true,
	})
	if err != nil {
		slog.Error("glance_auth_failed", "endpoint", name, "error", err)
		return nil, &AuthError{Endpoint: name, Err: err}
	}

	var svc *gophercloud.ServiceClient
	if opts.ImageURL != "" {
		// Explicitly configured service URL wins over catalog discovery.
		endpoint := opts.ImageURL
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		svc = &gophercloud.ServiceClient{
			ProviderClient: provider,
			Endpoint:       endpoint,
		}
	} else {
		svc, err = openstack.NewImageV2(provider, gophercloud.EndpointOpts{Region: opts.Region})
		if err != nil {
			slog.Error("glance_endpoint_discovery_failed", "endpoint", name, "error", err)
			return nil, &AuthError{Endpoint: name, Err: err}
		}
	}

	slog.Info("glance_client_ready", "endpoint", name, "image_url", svc.Endpoint)
	return &GlanceClient{name: name, svc: svc}, nil
}

// ListImages returns the endpoint's catalog in service order.
func (c *GlanceClient) ListImages(ctx context.Context) ([]ImageRecord, error) {
	slog.Debug("glance_list_start", "endpoint", c.name)

	pages, err := images.List(c.svc, images.ListOpts{}).AllPages(ctx)
	if err != nil {
		slog.Error("glance_list_failed", "endpoint", c.name, "error", err)
		return nil, &CatalogListError{Endpoint: c.name, Err: err}
	}
	imgs, err := images.ExtractImages(pages)
	if err != nil {
		slog.Error("glance_list_extract_failed", "endpoint", c.name, "error", err)
		return nil, &CatalogListError{Endpoint: c.name, Err: err}
	}

	records := make([]ImageRecord, 0, len(imgs))
	for _, img := range imgs {
		records = append(records, ImageRecord{
			ID:              img.ID,
			Name:            img.Name,
			Checksum:        img.Checksum,
			SizeBytes:       img.SizeBytes,
			DiskFormat:      img.DiskFormat,
			ContainerFormat: img.ContainerFormat,
			MinDiskGB:       img.MinDiskGigabytes,
			MinRAMMB:        img.MinRAMMegabytes,
			Visibility:      string(img.Visibility),
			Protected:       img.Protected,
			Tags:            img.Tags,
		})
	}

	slog.Debug("glance_list_complete", "endpoint", c.name, "image_count", len(records))
	return records, nil
}

// Download opens the payload stream for an image id.
func (c *GlanceClient) Download(ctx context.Context, imageID string) (io.ReadCloser, error) {
	slog.Debug("glance_download_start", "endpoint", c.name, "image_id", imageID)

	rc, err := imagedata.Download(ctx, c.svc, imageID).Extract()
	if err != nil {
		slog.Error("glance_download_failed", "endpoint", c.name, "image_id", imageID, "error", err)
		return nil, &DownloadError{ImageID: imageID, Err: err}
	}
	return rc, nil
}

// Upload creates an image with rec's name and metadata, then streams the
// payload into it. The half-created image is removed when the payload
// upload fails so the endpoint is not left with an empty shell.
func (c *GlanceClient) Upload(ctx context.Context, rec ImageRecord, payload io.Reader) (ImageRecord, error) {
	slog.Info("glance_upload_start", "endpoint", c.name, "image", rec.Name)

	createOpts := images.CreateOpts{
		Name:            rec.Name,
		DiskFormat:      rec.DiskFormat,
		ContainerFormat: rec.ContainerFormat,
		MinDisk:         rec.MinDiskGB,
		MinRAM:          rec.MinRAMMB,
		Protected:       &rec.Protected,
		Tags:            rec.Tags,
	}
	if rec.Visibility != "" {
		visibility := images.ImageVisibility(rec.Visibility)
		createOpts.Visibility = &visibility
	}

	created, err := images.Create(ctx, c.svc, createOpts).Extract()
	if err != nil {
		slog.Error("glance_create_failed", "endpoint", c.name, "image", rec.Name, "error", err)
		return ImageRecord{}, &UploadError{Endpoint: c.name, Image: rec.Name, Err: errors.Wrap(err, "create")}
	}

	if err := imagedata.Upload(ctx, c.svc, created.ID, payload).ExtractErr(); err != nil {
		slog.Error("glance_payload_upload_failed", "endpoint", c.name, "image", rec.Name, "image_id", created.ID, "error", err)
		if delErr := images.Delete(ctx, c.svc, created.ID).ExtractErr(); delErr != nil {
			slog.Warn("glance_cleanup_failed", "endpoint", c.name, "image_id", created.ID, "error", delErr)
		}
		return ImageRecord{}, &UploadError{Endpoint: c.name, Image: rec.Name, Err: errors.Wrap(err, "upload payload")}
	}

	slog.Info("glance_upload_complete", "endpoint", c.name, "image", rec.Name, "image_id", created.ID)

	out := rec
	out.ID = created.ID
	return out, nil
}

// Rename changes an image's name in place. Glance ids are stable across
// renames, so the returned ID is the one passed in.
func (c *GlanceClient) Rename(ctx context.Context, imageID, newName string) (string, error) {
	slog.Info("glance_rename", "endpoint", c.name, "image_id", imageID, "new_name", newName)

	_, err := images.Update(ctx, c.svc, imageID, images.UpdateOpts{
		images.ReplaceImageName{NewName: newName},
	}).Extract()
	if err != nil {
		slog.Error("glance_rename_failed", "endpoint", c.name, "image_id", imageID, "error", err)
		return "", errors.Wrapf(err, "rename image %s", imageID)
	}
	return imageID, nil
}

// Delete removes an image.
func (c *GlanceClient) Delete(ctx context.Context, imageID string) error {
	slog.Info("glance_delete", "endpoint", c.name, "image_id", imageID)

	err := images.Delete(ctx, c.svc, imageID).ExtractErr()
	if err != nil {
		slog.Error("glance_delete_failed", "endpoint", c.name, "image_id", imageID, "error", err)
	}
	return errors.Wrapf(err, "delete image %s", imageID)
}
