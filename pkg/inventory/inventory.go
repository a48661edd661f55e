// pkg/inventory/inventory.go - installed-software inventory model.
//
// Inventory is collected from several independent origins (package managers,
// AppX registries, the registry Uninstall hive, services, scheduled tasks,
// shortcuts and startup entries). Records from different origins that happen
// to describe the same application are deliberately not merged; downstream
// diffing and matching operate over the union of identifiers, which avoids
// false merges across heterogeneous sources.

package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/windowsadmins/reclaim/pkg/logging"
)

// Origin identifies the source an inventory record was observed in.
type Origin string

const (
	OriginWinget      Origin = "winget"
	OriginChoco       Origin = "choco"
	OriginAppx        Origin = "appx"
	OriginProvisioned Origin = "provisioned"
	OriginRegistry    Origin = "registry"
	OriginFeature     Origin = "feature"
	OriginService     Origin = "service"
	OriginTask        Origin = "task"
	OriginShortcut    Origin = "shortcut"
	OriginStartup     Origin = "startup"
)

// RawRecord is one record as returned by a Source, with origin-specific
// field names preserved in Fields.
type RawRecord struct {
	Origin Origin
	Fields map[string]string
}

// Item is one normalized installed entity. Items are created fresh on every
// collection pass and never mutated afterwards.
type Item struct {
	PrimaryName          string
	AlternateIdentifiers []string
	Origin               Origin
	Metadata             map[string]string
}

// Identifiers returns every non-empty identifier usable to recognize this
// item, primary name first.
func (it Item) Identifiers() []string {
	ids := make([]string, 0, 1+len(it.AlternateIdentifiers))
	if it.PrimaryName != "" {
		ids = append(ids, it.PrimaryName)
	}
	for _, alt := range it.AlternateIdentifiers {
		if alt != "" {
			ids = append(ids, alt)
		}
	}
	return ids
}

// String implements fmt.Stringer for log output.
func (it Item) String() string {
	return fmt.Sprintf("%s (%s)", it.PrimaryName, it.Origin)
}

// Source is one read-only inventory provider. Collect must not fail for
// "source unavailable"; it should return an empty list and let the caller
// log a warning.
type Source interface {
	Name() string
	Origin() Origin
	Collect(ctx context.Context) ([]RawRecord, error)
}

// CollectAll runs every source and returns the per-source raw record lists.
// A failing source contributes an empty list. It returns an error only when
// every source failed, since then no work can be verified.
func CollectAll(ctx context.Context, sources []Source) ([][]RawRecord, error) {
	collected := make([][]RawRecord, 0, len(sources))
	failures := 0

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := src.Collect(ctx)
		if err != nil {
			logging.Warn("Inventory source unavailable",
				"source", src.Name(), "origin", string(src.Origin()), "error", err.Error())
			failures++
			records = nil
		} else {
			logging.Debug("Inventory source collected",
				"source", src.Name(), "records", len(records))
		}
		collected = append(collected, records)
	}

	if len(sources) > 0 && failures == len(sources) {
		return nil, fmt.Errorf("all %d inventory sources failed", len(sources))
	}
	return collected, nil
}

// identityFields maps each origin to its identifying raw fields, most
// specific display name first. The first populated field becomes the
// primary name; the remaining populated fields become alternate identifiers.
var identityFields = map[Origin][]string{
	OriginWinget:      {"Name", "Id"},
	OriginChoco:       {"Name"},
	OriginAppx:        {"Name", "PackageFullName", "PackageFamilyName"},
	OriginProvisioned: {"DisplayName", "PackageName"},
	OriginRegistry:    {"DisplayName", "KeyName"},
	OriginFeature:     {"FeatureName"},
	OriginService:     {"DisplayName", "Name"},
	OriginTask:        {"TaskName", "TaskPath"},
	OriginShortcut:    {"Name", "Path"},
	OriginStartup:     {"Name", "Command"},
}

// Normalize merges per-adapter raw records into the canonical item list.
// Records with no usable identifier are dropped; the second return value is
// the number of dropped records.
func Normalize(collected [][]RawRecord) ([]Item, int) {
	var items []Item
	skipped := 0

	for _, records := range collected {
		for _, record := range records {
			item, ok := normalizeRecord(record)
			if !ok {
				skipped++
				logging.Debug("Skipping record with no usable identifier",
					"origin", string(record.Origin))
				continue
			}
			items = append(items, item)
		}
	}

	if skipped > 0 {
		logging.Warn("Dropped inventory records with no usable identifier", "count", skipped)
	}
	return items, skipped
}

func normalizeRecord(record RawRecord) (Item, bool) {
	fields := identityFields[record.Origin]

	item := Item{Origin: record.Origin}
	used := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		value := strings.TrimSpace(record.Fields[field])
		if value == "" {
			continue
		}
		used[field] = struct{}{}
		if item.PrimaryName == "" {
			item.PrimaryName = value
			continue
		}
		if !containsFold(item.AlternateIdentifiers, value) && !strings.EqualFold(item.PrimaryName, value) {
			item.AlternateIdentifiers = append(item.AlternateIdentifiers, value)
		}
	}

	if item.PrimaryName == "" && len(item.AlternateIdentifiers) == 0 {
		return Item{}, false
	}

	// Everything that is not an identity field is origin metadata the
	// executor may need later (uninstall strings, task paths, versions).
	for key, value := range record.Fields {
		if _, ok := used[key]; ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		if item.Metadata == nil {
			item.Metadata = make(map[string]string)
		}
		item.Metadata[key] = value
	}

	return item, true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
