package syncer

import (
	"context"
	"log/slog"
	"os"

	"github.com/osinfra/glance-sync/pkg/errors"
	"github.com/osinfra/glance-sync/pkg/imageservice"
)

// backupSuffix is appended to a stale slave copy's name while it is being
// replaced, so a failed upload never loses the old payload.
const backupSuffix = "_sync_bak"

// Role distinguishes the authoritative endpoint from its mirrors.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// Endpoint is one configured image service taking part in a run. A slave
// whose connection or authentication failed carries the failure in Err;
// the orchestrator fails all of its pairs instead of aborting the run.
type Endpoint struct {
	Name   string
	Role   Role
	Client imageservice.Client
	Err    error
}

// Orchestrator drives one sync run: per eligible master image it decides
// which slaves are missing it, stages the payload once, and pushes it to
// each of them. Failures are contained at the smallest scope: a pair, an
// image, or a slave, never the whole run.
type Orchestrator struct {
	staging *Staging
}

// NewOrchestrator builds an orchestrator around a staging area.
func NewOrchestrator(staging *Staging) *Orchestrator {
	return &Orchestrator{staging: staging}
}

// Run processes the eligible images in order against every slave and
// returns the aggregated report. Slave catalogs are listed once up front.
func (o *Orchestrator) Run(ctx context.Context, master *Endpoint, slaves []*Endpoint, eligible []imageservice.ImageRecord) *Report {
	report := NewReport()

	slog.Info("sync_run_start",
		"master", master.Name,
		"slaves", len(slaves),
		"eligible_images", len(eligible))

	// One catalog listing per slave for the whole run. A slave that
	// cannot authenticate or list fails every pair targeting it.
	catalogs := make(map[string][]imageservice.ImageRecord)
	var live []*Endpoint
	for _, slave := range slaves {
		if slave.Err != nil {
			slog.Error("slave_unavailable", "slave", slave.Name, "error", slave.Err)
			failAll(report, eligible, slave.Name, slave.Err)
			continue
		}
		catalog, err := slave.Client.ListImages(ctx)
		if err != nil {
			slog.Error("slave_catalog_failed", "slave", slave.Name, "error", err)
			failAll(report, eligible, slave.Name, err)
			continue
		}
		catalogs[slave.Name] = catalog
		live = append(live, slave)
	}

	for _, img := range eligible {
		o.syncImage(ctx, report, img, live, catalogs)
	}

	summary := report.Summary()
	slog.Info("sync_run_complete",
		"images", summary.TotalImages,
		"synced", summary.Synced,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return report
}

// syncImage resolves one master image against every live slave.
func (o *Orchestrator) syncImage(ctx context.Context, report *Report, img imageservice.ImageRecord, slaves []*Endpoint, catalogs map[string][]imageservice.ImageRecord) {
	type pendingSlave struct {
		endpoint *Endpoint
		stale    *imageservice.ImageRecord
	}

	var pending []pendingSlave
	for _, slave := range slaves {
		catalog := catalogs[slave.Name]
		if hasSameImage(catalog, img) {
			slog.Debug("sync_pair_skipped", "image", img.Name, "slave", slave.Name)
			report.Record(img.Name, slave.Name, StatusSkipped, "already present")
			continue
		}
		pending = append(pending, pendingSlave{
			endpoint: slave,
			stale:    findStaleCopy(catalog, img),
		})
	}
	if len(pending) == 0 {
		return
	}

	// Download once, no matter how many slaves need the image.
	path, err := o.staging.EnsureStaged(ctx, img)
	if err != nil {
		slog.Error("sync_image_staging_failed", "image", img.Name, "error", err)
		for _, p := range pending {
			report.Record(img.Name, p.endpoint.Name, StatusFailed, err.Error())
		}
		return
	}

	for _, p := range pending {
		if err := o.push(ctx, p.endpoint, img, path, p.stale); err != nil {
			slog.Error("sync_pair_failed", "image", img.Name, "slave", p.endpoint.Name, "error", err)
			report.Record(img.Name, p.endpoint.Name, StatusFailed, err.Error())
			continue
		}
		slog.Info("sync_pair_synced", "image", img.Name, "slave", p.endpoint.Name)
		report.Record(img.Name, p.endpoint.Name, StatusSynced, "")
	}
}

// push uploads the staged payload to one slave. When the slave holds a
// stale copy under the same name it is renamed aside first, deleted after
// a successful upload, and restored when the upload fails. The backup is
// addressed by the ID Rename returned: on a key-addressed endpoint the
// rename moves the image to a new ID and the old one may be reused by the
// upload itself.
func (o *Orchestrator) push(ctx context.Context, slave *Endpoint, img imageservice.ImageRecord, path string, stale *imageservice.ImageRecord) error {
	payload, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open staged payload")
	}
	defer payload.Close()

	var backupID string
	if stale != nil {
		slog.Info("sync_replacing_stale_copy", "image", img.Name, "slave", slave.Name, "stale_id", stale.ID)
		backupID, err = slave.Client.Rename(ctx, stale.ID, img.Name+backupSuffix)
		if err != nil {
			return errors.Wrap(err, "back up stale copy")
		}
	}

	if _, err := slave.Client.Upload(ctx, img, payload); err != nil {
		if stale != nil {
			if _, restoreErr := slave.Client.Rename(ctx, backupID, stale.Name); restoreErr != nil {
				slog.Warn("sync_backup_restore_failed",
					"image", img.Name, "slave", slave.Name, "backup_id", backupID, "error", restoreErr)
			}
		}
		return err
	}

	if stale != nil {
		if err := slave.Client.Delete(ctx, backupID); err != nil {
			// The new copy is in place; the leftover backup is only noise.
			slog.Warn("sync_backup_delete_failed",
				"image", img.Name, "slave", slave.Name, "backup_id", backupID, "error", err)
		}
	}
	return nil
}

func failAll(report *Report, eligible []imageservice.ImageRecord, slave string, err error) {
	for _, img := range eligible {
		report.Record(img.Name, slave, StatusFailed, err.Error())
	}
}

func hasSameImage(catalog []imageservice.ImageRecord, img imageservice.ImageRecord) bool {
	for _, rec := range catalog {
		if SameImage(rec, img) {
			return true
		}
	}
	return false
}

// findStaleCopy returns the slave's copy that shares the image's name but
// not its content, if any.
func findStaleCopy(catalog []imageservice.ImageRecord, img imageservice.ImageRecord) *imageservice.ImageRecord {
	for i := range catalog {
		if catalog[i].Name == img.Name && !SameImage(catalog[i], img) {
			return &catalog[i]
		}
	}
	return nil
}
