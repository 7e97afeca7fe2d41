package imageservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object metadata keys carrying the image attributes an object store has
// no native notion of. Checksum falls back to the ETag for objects that
// were not written by this tool.
const (
	metaChecksum        = "sync-checksum"
	metaDiskFormat      = "sync-disk-format"
	metaContainerFormat = "sync-container-format"
	metaMinDisk         = "sync-min-disk"
	metaMinRAM          = "sync-min-ram"
	metaVisibility      = "sync-visibility"
	metaProtected       = "sync-protected"
	metaTags            = "sync-tags"
)

// S3Client exposes an S3 bucket as an image endpoint: one object per
// image, keyed by image name under an optional prefix.
type S3Client struct {
	name   string
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Client builds an S3-backed endpoint adapter using the default AWS
// credential chain.
func NewS3Client(ctx context.Context, name, bucket, region, prefix string) (*S3Client, error) {
	slog.Info("s3_client_init", "endpoint", name, "bucket", bucket, "region", region)

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		slog.Error("s3_config_load_failed", "endpoint", name, "error", err)
		return nil, &AuthError{Endpoint: name, Err: err}
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Client{
		name:   name,
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// ListImages lists the bucket under the prefix and reads each object's
// metadata to reconstruct catalog records.
func (c *S3Client) ListImages(ctx context.Context) ([]ImageRecord, error) {
	slog.Debug("s3_list_start", "endpoint", c.name, "bucket", c.bucket, "prefix", c.prefix)

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})

	var records []ImageRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "endpoint", c.name, "error", err)
			return nil, &CatalogListError{Endpoint: c.name, Err: err}
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rec, err := c.statObject(ctx, *obj.Key)
			if err != nil {
				return nil, &CatalogListError{Endpoint: c.name, Err: err}
			}
			records = append(records, rec)
		}
	}

	slog.Debug("s3_list_complete", "endpoint", c.name, "image_count", len(records))
	return records, nil
}

func (c *S3Client) statObject(ctx context.Context, key string) (ImageRecord, error) {
	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ImageRecord{}, fmt.Errorf("head object %s: %w", key, err)
	}

	rec := ImageRecord{
		ID:              key,
		Name:            strings.TrimPrefix(key, c.prefix),
		SizeBytes:       aws.ToInt64(head.ContentLength),
		Checksum:        head.Metadata[metaChecksum],
		DiskFormat:      head.Metadata[metaDiskFormat],
		ContainerFormat: head.Metadata[metaContainerFormat],
		Visibility:      head.Metadata[metaVisibility],
	}
	if rec.Checksum == "" {
		rec.Checksum = strings.Trim(aws.ToString(head.ETag), `"`)
	}
	if v := head.Metadata[metaMinDisk]; v != "" {
		rec.MinDiskGB, _ = strconv.Atoi(v)
	}
	if v := head.Metadata[metaMinRAM]; v != "" {
		rec.MinRAMMB, _ = strconv.Atoi(v)
	}
	if v := head.Metadata[metaProtected]; v != "" {
		rec.Protected, _ = strconv.ParseBool(v)
	}
	if v := head.Metadata[metaTags]; v != "" {
		rec.Tags = strings.Split(v, ",")
	}
	return rec, nil
}

// Download opens the payload stream for an object key.
func (c *S3Client) Download(ctx context.Context, imageID string) (io.ReadCloser, error) {
	slog.Debug("s3_download_start", "endpoint", c.name, "key", imageID)

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(imageID),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "endpoint", c.name, "key", imageID, "error", err)
		return nil, &DownloadError{ImageID: imageID, Err: err}
	}
	return out.Body, nil
}

// Upload writes the payload as one object named after the image, with the
// catalog attributes carried in object metadata.
func (c *S3Client) Upload(ctx context.Context, rec ImageRecord, payload io.Reader) (ImageRecord, error) {
	key := c.prefix + rec.Name
	slog.Info("s3_upload_start", "endpoint", c.name, "key", key)

	metadata := map[string]string{
		metaChecksum:        rec.Checksum,
		metaDiskFormat:      rec.DiskFormat,
		metaContainerFormat: rec.ContainerFormat,
		metaMinDisk:         strconv.Itoa(rec.MinDiskGB),
		metaMinRAM:          strconv.Itoa(rec.MinRAMMB),
		metaVisibility:      rec.Visibility,
		metaProtected:       strconv.FormatBool(rec.Protected),
	}
	if len(rec.Tags) > 0 {
		metadata[metaTags] = strings.Join(rec.Tags, ",")
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Body:     payload,
		Metadata: metadata,
	}
	if size, ok := payloadSize(payload, rec.SizeBytes); ok {
		input.ContentLength = aws.Int64(size)
	}

	_, err := c.client.PutObject(ctx, input)
	if err != nil {
		slog.Error("s3_put_object_failed", "endpoint", c.name, "key", key, "error", err)
		return ImageRecord{}, &UploadError{Endpoint: c.name, Image: rec.Name, Err: err}
	}

	slog.Info("s3_upload_complete", "endpoint", c.name, "key", key)

	out := rec
	out.ID = key
	return out, nil
}

// payloadSize resolves the byte count to declare for an upload. The
// staged file's actual size wins over the catalog record, which some
// sources report as zero or unknown; with neither available the length
// is left for the SDK to work out.
func payloadSize(payload io.Reader, recorded int64) (int64, bool) {
	if f, ok := payload.(interface{ Stat() (os.FileInfo, error) }); ok {
		if info, err := f.Stat(); err == nil {
			return info.Size(), true
		}
	}
	if recorded > 0 {
		return recorded, true
	}
	return 0, false
}

// Rename copies the object to the new key and deletes the old one; S3 has
// no in-place rename. The object's ID is its key, so the renamed image
// lives under the returned new key, not under imageID.
func (c *S3Client) Rename(ctx context.Context, imageID, newName string) (string, error) {
	newKey := c.prefix + newName
	slog.Info("s3_rename", "endpoint", c.name, "key", imageID, "new_key", newKey)

	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(c.bucket),
		Key:               aws.String(newKey),
		CopySource:        aws.String(c.bucket + "/" + imageID),
		MetadataDirective: s3types.MetadataDirectiveCopy,
	})
	if err != nil {
		slog.Error("s3_copy_object_failed", "endpoint", c.name, "key", imageID, "error", err)
		return "", fmt.Errorf("rename object %s: %w", imageID, err)
	}
	if err := c.Delete(ctx, imageID); err != nil {
		return "", err
	}
	return newKey, nil
}

// Delete removes an object.
func (c *S3Client) Delete(ctx context.Context, imageID string) error {
	slog.Info("s3_delete", "endpoint", c.name, "key", imageID)

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(imageID),
	})
	if err != nil {
		slog.Error("s3_delete_object_failed", "endpoint", c.name, "key", imageID, "error", err)
		return fmt.Errorf("delete object %s: %w", imageID, err)
	}
	return nil
}
