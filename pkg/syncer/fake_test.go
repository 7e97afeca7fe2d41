package syncer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/osinfra/glance-sync/pkg/imageservice"
)

// fakeClient is an in-memory image endpoint for exercising the sync core
// without a network.
type fakeClient struct {
	name string

	mu        sync.Mutex
	catalog   []imageservice.ImageRecord
	payloads  map[string][]byte
	nextID    int
	downloads map[string]int
	uploads   int

	failList   error
	failUpload map[string]error // keyed by image name
}

func newFakeClient(name string) *fakeClient {
	return &fakeClient{
		name:       name,
		payloads:   make(map[string][]byte),
		downloads:  make(map[string]int),
		failUpload: make(map[string]error),
	}
}

func md5hex(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// addImage puts an image with a consistent checksum and size into the
// endpoint's catalog and returns its record.
func (c *fakeClient) addImage(name string, payload []byte) imageservice.ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	rec := imageservice.ImageRecord{
		ID:              fmt.Sprintf("%s-img-%d", c.name, c.nextID),
		Name:            name,
		Checksum:        md5hex(payload),
		SizeBytes:       int64(len(payload)),
		DiskFormat:      "qcow2",
		ContainerFormat: "bare",
		Visibility:      "private",
	}
	c.catalog = append(c.catalog, rec)
	c.payloads[rec.ID] = payload
	return rec
}

// corruptPayload replaces an image's stored payload without touching its
// catalog record, so downloads fail checksum verification.
func (c *fakeClient) corruptPayload(imageID string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads[imageID] = payload
}

func (c *fakeClient) totalDownloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.downloads {
		total += n
	}
	return total
}

func (c *fakeClient) totalUploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

func (c *fakeClient) findByName(name string) []imageservice.ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []imageservice.ImageRecord
	for _, rec := range c.catalog {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	return out
}

func (c *fakeClient) ListImages(ctx context.Context) ([]imageservice.ImageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failList != nil {
		return nil, &imageservice.CatalogListError{Endpoint: c.name, Err: c.failList}
	}
	out := make([]imageservice.ImageRecord, len(c.catalog))
	copy(out, c.catalog)
	return out, nil
}

func (c *fakeClient) Download(ctx context.Context, imageID string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.payloads[imageID]
	if !ok {
		return nil, &imageservice.DownloadError{ImageID: imageID, Err: fmt.Errorf("no such image")}
	}
	c.downloads[imageID]++
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (c *fakeClient) Upload(ctx context.Context, rec imageservice.ImageRecord, payload io.Reader) (imageservice.ImageRecord, error) {
	data, err := io.ReadAll(payload)
	if err != nil {
		return imageservice.ImageRecord{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if failErr, ok := c.failUpload[rec.Name]; ok {
		return imageservice.ImageRecord{}, &imageservice.UploadError{Endpoint: c.name, Image: rec.Name, Err: failErr}
	}

	c.nextID++
	created := rec
	created.ID = fmt.Sprintf("%s-img-%d", c.name, c.nextID)
	c.catalog = append(c.catalog, created)
	c.payloads[created.ID] = data
	c.uploads++
	return created, nil
}

func (c *fakeClient) Rename(ctx context.Context, imageID, newName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.catalog {
		if c.catalog[i].ID == imageID {
			c.catalog[i].Name = newName
			return imageID, nil
		}
	}
	return "", fmt.Errorf("rename: no image %s", imageID)
}

func (c *fakeClient) Delete(ctx context.Context, imageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.catalog {
		if c.catalog[i].ID == imageID {
			c.catalog = append(c.catalog[:i], c.catalog[i+1:]...)
			delete(c.payloads, imageID)
			return nil
		}
	}
	return fmt.Errorf("delete: no image %s", imageID)
}

// objectStoreClient is an in-memory key-addressed endpoint with object
// store semantics: an image's ID is its key, an upload writes at the key
// derived from the image name, and a rename is a copy to the new key
// followed by a delete of the old one, which changes the ID.
type objectStoreClient struct {
	name string

	mu      sync.Mutex
	objects map[string][]byte

	failUpload error
}

func newObjectStoreClient(name string) *objectStoreClient {
	return &objectStoreClient{name: name, objects: make(map[string][]byte)}
}

func (c *objectStoreClient) put(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = payload
}

// object returns the payload stored under a key, or nil.
func (c *objectStoreClient) object(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[key]
}

func (c *objectStoreClient) ListImages(ctx context.Context) ([]imageservice.ImageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.objects))
	for key := range c.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]imageservice.ImageRecord, 0, len(keys))
	for _, key := range keys {
		payload := c.objects[key]
		records = append(records, imageservice.ImageRecord{
			ID:        key,
			Name:      key,
			Checksum:  md5hex(payload),
			SizeBytes: int64(len(payload)),
		})
	}
	return records, nil
}

func (c *objectStoreClient) Download(ctx context.Context, imageID string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.objects[imageID]
	if !ok {
		return nil, &imageservice.DownloadError{ImageID: imageID, Err: fmt.Errorf("no such key")}
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (c *objectStoreClient) Upload(ctx context.Context, rec imageservice.ImageRecord, payload io.Reader) (imageservice.ImageRecord, error) {
	data, err := io.ReadAll(payload)
	if err != nil {
		return imageservice.ImageRecord{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUpload != nil {
		return imageservice.ImageRecord{}, &imageservice.UploadError{Endpoint: c.name, Image: rec.Name, Err: c.failUpload}
	}
	c.objects[rec.Name] = data

	created := rec
	created.ID = rec.Name
	return created, nil
}

func (c *objectStoreClient) Rename(ctx context.Context, imageID, newName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.objects[imageID]
	if !ok {
		return "", fmt.Errorf("rename: no key %s", imageID)
	}
	c.objects[newName] = payload
	delete(c.objects, imageID)
	return newName, nil
}

func (c *objectStoreClient) Delete(ctx context.Context, imageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[imageID]; !ok {
		return fmt.Errorf("delete: no key %s", imageID)
	}
	delete(c.objects, imageID)
	return nil
}
