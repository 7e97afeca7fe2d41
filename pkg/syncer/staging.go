package syncer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/osinfra/glance-sync/pkg/errors"
	"github.com/osinfra/glance-sync/pkg/imageservice"
)

// Staging owns the local directory of downloaded image payloads for one
// run. Each image id is downloaded at most once: the first caller
// triggers the download and every later caller for the same id waits on
// the same result, including a failed one, so a broken download is not
// retried within the run.
type Staging struct {
	dir    string
	clean  bool
	source imageservice.Client

	mu      sync.Mutex
	entries map[string]*stagingEntry
}

type stagingEntry struct {
	ready chan struct{}
	path  string
	err   error
}

// NewStaging creates the staging directory and binds it to the master's
// client adapter.
func NewStaging(dir string, clean bool, source imageservice.Client) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create staging directory %s", dir)
	}
	slog.Info("staging_ready", "dir", dir, "clean_on_exit", clean)
	return &Staging{
		dir:     dir,
		clean:   clean,
		source:  source,
		entries: make(map[string]*stagingEntry),
	}, nil
}

// EnsureStaged returns the local path of the image's payload, downloading
// it from the master if this run has not staged it yet.
func (s *Staging) EnsureStaged(ctx context.Context, rec imageservice.ImageRecord) (string, error) {
	s.mu.Lock()
	if e, ok := s.entries[rec.ID]; ok {
		s.mu.Unlock()
		select {
		case <-e.ready:
			return e.path, e.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	e := &stagingEntry{ready: make(chan struct{})}
	s.entries[rec.ID] = e
	s.mu.Unlock()

	e.path, e.err = s.stage(ctx, rec)
	close(e.ready)
	return e.path, e.err
}

func (s *Staging) stage(ctx context.Context, rec imageservice.ImageRecord) (string, error) {
	path := filepath.Join(s.dir, stagedFileName(rec.ID))

	// A leftover from an earlier run is reused when it still matches the
	// catalog record; anything else is thrown away and re-downloaded.
	if _, err := os.Stat(path); err == nil {
		if err := verifyStaged(path, rec); err == nil {
			slog.Info("staging_reuse", "image", rec.Name, "image_id", rec.ID, "path", path)
			return path, nil
		}
		slog.Warn("staging_stale_file_discarded", "image", rec.Name, "path", path)
		if err := os.Remove(path); err != nil {
			return "", &imageservice.DownloadError{ImageID: rec.ID, Err: errors.Wrap(err, "remove stale staged file")}
		}
	}

	slog.Info("staging_download_start", "image", rec.Name, "image_id", rec.ID, "size_bytes", rec.SizeBytes)

	body, err := s.source.Download(ctx, rec.ID)
	if err != nil {
		return "", asDownloadError(rec.ID, err)
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return "", &imageservice.DownloadError{ImageID: rec.ID, Err: errors.Wrap(err, "create staged file")}
	}

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(f, hash), body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", &imageservice.DownloadError{ImageID: rec.ID, Err: errors.Wrap(err, "write staged file")}
	}

	if err := verifyAgainstRecord(rec, size, hex.EncodeToString(hash.Sum(nil))); err != nil {
		os.Remove(path)
		slog.Error("staging_verification_failed", "image", rec.Name, "image_id", rec.ID, "error", err)
		return "", &imageservice.DownloadError{ImageID: rec.ID, Err: err}
	}

	slog.Info("staging_download_complete", "image", rec.Name, "image_id", rec.ID, "size_bytes", size, "path", path)
	return path, nil
}

// Cleanup removes the staging directory and everything in it when
// clean-on-exit is enabled; otherwise staged payloads are retained for
// inspection and reuse. It must run on every exit path of a sync run.
func (s *Staging) Cleanup() error {
	if !s.clean {
		slog.Info("staging_retained", "dir", s.dir)
		return nil
	}
	slog.Info("staging_cleanup", "dir", s.dir)
	return errors.Wrapf(os.RemoveAll(s.dir), "failed to remove staging directory %s", s.dir)
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string { return s.dir }

// stagedFileName flattens an image id into a single path element. The
// escaping is reversible, so two distinct ids can never share a staging
// file; S3 image ids are object keys and may contain slashes.
func stagedFileName(id string) string {
	return url.PathEscape(id)
}

func verifyStaged(path string, rec imageservice.ImageRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hash := md5.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return err
	}
	return verifyAgainstRecord(rec, size, hex.EncodeToString(hash.Sum(nil)))
}

func verifyAgainstRecord(rec imageservice.ImageRecord, size int64, checksum string) error {
	if rec.SizeBytes > 0 && size != rec.SizeBytes {
		return fmt.Errorf("size mismatch: got %d bytes, catalog says %d", size, rec.SizeBytes)
	}
	if rec.Checksum != "" && checksum != rec.Checksum {
		return fmt.Errorf("checksum mismatch: got %s, catalog says %s", checksum, rec.Checksum)
	}
	return nil
}

func asDownloadError(imageID string, err error) error {
	var de *imageservice.DownloadError
	if stderrors.As(err, &de) {
		return err
	}
	return &imageservice.DownloadError{ImageID: imageID, Err: err}
}
