package syncer

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Status is the resolved state of one (image, slave) pair.
type Status string

const (
	// StatusSkipped means the slave already held a matching copy.
	StatusSkipped Status = "skipped"
	// StatusSynced means the payload was transferred to the slave.
	StatusSynced Status = "synced"
	// StatusFailed means the transfer for this pair did not complete.
	StatusFailed Status = "failed"
)

// Outcome is one pair's resolution; Reason is set for failures.
type Outcome struct {
	Status Status
	Reason string
}

// Summary aggregates a run's outcomes.
type Summary struct {
	TotalImages int
	Synced      int
	Skipped     int
	Failed      int
}

type pairKey struct {
	image string
	slave string
}

// Report collects the outcome of every (image, slave) pair of a run.
// Recording is safe for concurrent use; rendering groups by image in
// processing order, then by slave in configured order.
type Report struct {
	mu         sync.Mutex
	startedAt  time.Time
	outcomes   map[pairKey]Outcome
	imageOrder []string
	slaveOrder []string
	warnings   []string
}

// NewReport returns an empty report stamped with the run's start time.
func NewReport() *Report {
	return &Report{
		startedAt: time.Now(),
		outcomes:  make(map[pairKey]Outcome),
	}
}

// Record stores the outcome for one (image, slave) pair.
func (r *Report) Record(image, slave string, status Status, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{image: image, slave: slave}
	if _, ok := r.outcomes[key]; !ok {
		if !contains(r.imageOrder, image) {
			r.imageOrder = append(r.imageOrder, image)
		}
		if !contains(r.slaveOrder, slave) {
			r.slaveOrder = append(r.slaveOrder, slave)
		}
	}
	r.outcomes[key] = Outcome{Status: status, Reason: reason}
}

// Warn attaches a non-fatal warning to the report, e.g. a sync-spec name
// that matched nothing.
func (r *Report) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

// Warnings returns the attached warnings in order.
func (r *Report) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Outcome returns the recorded outcome for a pair, if any.
func (r *Report) Outcome(image, slave string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	oc, ok := r.outcomes[pairKey{image: image, slave: slave}]
	return oc, ok
}

// StartedAt returns the run's start time.
func (r *Report) StartedAt() time.Time { return r.startedAt }

// Summary returns the aggregated counts.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{TotalImages: len(r.imageOrder)}
	for _, oc := range r.outcomes {
		switch oc.Status {
		case StatusSynced:
			s.Synced++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// HasFailures reports whether any pair failed; it decides the run's exit
// status. Warnings do not count as failures.
func (r *Report) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, oc := range r.outcomes {
		if oc.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Each visits every recorded pair grouped by image then slave.
func (r *Report) Each(fn func(image, slave string, oc Outcome)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, image := range r.imageOrder {
		for _, slave := range r.slaveOrder {
			if oc, ok := r.outcomes[pairKey{image: image, slave: slave}]; ok {
				fn(image, slave, oc)
			}
		}
	}
}

// Render writes the human-readable report: pairs grouped by image, then
// warnings, then the summary line.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "%-30s %-20s %-8s %s\n", "IMAGE", "SLAVE", "STATUS", "REASON")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------")
	r.Each(func(image, slave string, oc Outcome) {
		reason := oc.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%-30s %-20s %-8s %s\n", image, slave, oc.Status, reason)
	})

	for _, warning := range r.Warnings() {
		fmt.Fprintf(w, "WARNING: %s\n", warning)
	}

	s := r.Summary()
	fmt.Fprintf(w, "\n%d images: %d synced, %d skipped, %d failed\n",
		s.TotalImages, s.Synced, s.Skipped, s.Failed)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
