// Package imageservice defines the endpoint client adapter: the catalog
// record type, the operations every image endpoint must expose, and the
// error kinds the sync core recovers from.
package imageservice

import (
	"context"
	"fmt"
	"io"
)

// ImageRecord is an immutable catalog snapshot of one image on one
// endpoint. IDs are endpoint-local: the master's copy and a slave's copy
// of the same image carry different IDs and correlate only by name and
// checksum.
type ImageRecord struct {
	ID              string
	Name            string
	Checksum        string
	SizeBytes       int64
	DiskFormat      string
	ContainerFormat string
	MinDiskGB       int
	MinRAMMB        int
	Visibility      string
	Protected       bool
	Tags            []string
}

// Client is the adapter for a single authenticated image endpoint.
type Client interface {
	// ListImages returns the endpoint's full catalog in service order.
	ListImages(ctx context.Context) ([]ImageRecord, error)

	// Download opens the payload stream for an image id.
	Download(ctx context.Context, imageID string) (io.ReadCloser, error)

	// Upload creates an image carrying rec's name and metadata, streams
	// the payload into it, and returns the created record.
	Upload(ctx context.Context, rec ImageRecord, payload io.Reader) (ImageRecord, error)

	// Rename changes an image's name and returns the renamed image's ID.
	// The ID may differ from imageID on endpoints where the ID is derived
	// from the name, such as a key-addressed object store.
	Rename(ctx context.Context, imageID, newName string) (string, error)

	// Delete removes an image.
	Delete(ctx context.Context, imageID string) error
}

// AuthError reports a failed authentication against an endpoint.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for endpoint %q: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CatalogListError reports a failed catalog listing on an endpoint.
type CatalogListError struct {
	Endpoint string
	Err      error
}

func (e *CatalogListError) Error() string {
	return fmt.Sprintf("listing images on endpoint %q failed: %v", e.Endpoint, e.Err)
}

func (e *CatalogListError) Unwrap() error { return e.Err }

// DownloadError reports a failed or corrupt payload download. It fails
// the image for every slave still waiting on it, not the whole run.
type DownloadError struct {
	ImageID string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of image %s failed: %v", e.ImageID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UploadError reports a failed upload of one image to one endpoint. It
// fails only that (image, endpoint) pair.
type UploadError struct {
	Endpoint string
	Image    string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of image %q to endpoint %q failed: %v", e.Image, e.Endpoint, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
