// Package syncer implements the synchronization core: selecting which
// master images are eligible, staging their payloads locally, pushing
// them to the slaves that lack them, and aggregating the outcomes.
package syncer

import (
	"fmt"
	"regexp"

	"github.com/osinfra/glance-sync/pkg/errors"
	"github.com/osinfra/glance-sync/pkg/imageservice"
)

// Spec describes which master images should be synchronized: an explicit
// name list, a name pattern, or both. An empty spec selects everything.
type Spec struct {
	Names   []string
	pattern *regexp.Regexp
}

// NewSpec builds a Spec from a name list and an optional pattern. The
// pattern must match the whole image name, not a prefix of it.
func NewSpec(names []string, pattern string) (Spec, error) {
	spec := Spec{Names: names}
	if pattern != "" {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return Spec{}, errors.Wrapf(err, "invalid image pattern %q", pattern)
		}
		spec.pattern = re
	}
	return spec, nil
}

// IsEmpty reports whether the spec selects the full catalog.
func (s Spec) IsEmpty() bool {
	return len(s.Names) == 0 && s.pattern == nil
}

// Select filters the master catalog down to the images the spec asks for.
// Name-list matches come first in list order, then pattern matches not
// already included in catalog order; the result never repeats an image id.
// The second return value carries one warning per requested name that
// matched nothing, plus one if the pattern matched nothing.
func Select(catalog []imageservice.ImageRecord, spec Spec) ([]imageservice.ImageRecord, []string) {
	if spec.IsEmpty() {
		out := make([]imageservice.ImageRecord, len(catalog))
		copy(out, catalog)
		return out, nil
	}

	var (
		selected []imageservice.ImageRecord
		warnings []string
		seen     = make(map[string]bool)
	)

	for _, name := range spec.Names {
		matched := false
		for _, rec := range catalog {
			if rec.Name != name {
				continue
			}
			matched = true
			if !seen[rec.ID] {
				seen[rec.ID] = true
				selected = append(selected, rec)
			}
		}
		if !matched {
			warnings = append(warnings, fmt.Sprintf("requested image %q matched nothing in the catalog", name))
		}
	}

	if spec.pattern != nil {
		matched := false
		for _, rec := range catalog {
			if !spec.pattern.MatchString(rec.Name) {
				continue
			}
			matched = true
			if !seen[rec.ID] {
				seen[rec.ID] = true
				selected = append(selected, rec)
			}
		}
		if !matched {
			warnings = append(warnings, fmt.Sprintf("pattern %q matched nothing in the catalog", spec.pattern.String()))
		}
	}

	return selected, warnings
}

// SameImage is the cross-endpoint identity predicate. Image ids are
// endpoint-local, so two records describe the same image when their names
// and checksums agree; when either side is missing a checksum the
// comparison falls back to size.
func SameImage(a, b imageservice.ImageRecord) bool {
	if a.Name != b.Name {
		return false
	}
	if a.Checksum == "" || b.Checksum == "" {
		return a.SizeBytes == b.SizeBytes
	}
	return a.Checksum == b.Checksum
}
