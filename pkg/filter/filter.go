// pkg/filter/filter.go - operator-supplied target filtering.
//
// The --target flag narrows a run to named items, for testing a pattern or
// cleaning up a single app without a full pass.

package filter

import (
	"strings"

	"github.com/windowsadmins/reclaim/pkg/match"
)

// Filter restricts matched records to a set of requested item names.
// A nil or empty filter passes everything.
type Filter struct {
	targets []string
}

// Parse builds a Filter from a comma-separated target list. Empty entries
// are dropped.
func Parse(spec string) *Filter {
	var targets []string
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			targets = append(targets, part)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return &Filter{targets: targets}
}

// Empty reports whether the filter passes everything.
func (f *Filter) Empty() bool {
	return f == nil || len(f.targets) == 0
}

// Matches reports whether any identifier of the record's item equals or
// contains a target, case-insensitively.
func (f *Filter) Matches(record match.Record) bool {
	if f.Empty() {
		return true
	}
	for _, id := range record.Item.Identifiers() {
		lower := strings.ToLower(id)
		for _, target := range f.targets {
			t := strings.ToLower(target)
			if lower == t || strings.Contains(lower, t) {
				return true
			}
		}
	}
	return false
}

// Apply returns the records accepted by the filter, preserving order.
func (f *Filter) Apply(records []match.Record) []match.Record {
	if f.Empty() {
		return records
	}
	var kept []match.Record
	for _, record := range records {
		if f.Matches(record) {
			kept = append(kept, record)
		}
	}
	return kept
}
