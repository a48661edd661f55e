// pkg/match/match.go - matching inventory items against target pattern lists.
//
// Patterns come from two universes: bloatware signatures (removal targets)
// and essential-app identifiers (requirement targets). Matching runs three
// strategies per item-pattern pair, in order, first hit wins:
//
//  1. Exact: case-insensitive equality against any identifier.
//  2. Normalized: separators (". - _" and whitespace) stripped and
//     lowercased on both sides, then compared.
//  3. PartialPublisher: for "publisher.appname" patterns, an identifier
//     containing both parts as substrings.

package match

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/windowsadmins/reclaim/pkg/inventory"
)

// Strategy names the matching strategy that produced a Record.
type Strategy string

const (
	StrategyExact            Strategy = "exact"
	StrategyNormalized       Strategy = "normalized"
	StrategyPartialPublisher Strategy = "partial-publisher"
)

// Pattern is one parsed entry of a pattern list. Requirement entries may
// carry a minimum version constraint written as "Name >= 1.2.3".
type Pattern struct {
	Raw        string
	Name       string
	MinVersion *goversion.Version
}

// ParsePatterns parses a configured pattern list, preserving order. Entries
// with an unparseable version constraint keep the full raw string as the
// pattern name.
func ParsePatterns(entries []string) []Pattern {
	patterns := make([]Pattern, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pattern := Pattern{Raw: entry, Name: entry}
		if idx := strings.Index(entry, ">="); idx > 0 {
			name := strings.TrimSpace(entry[:idx])
			verStr := strings.TrimSpace(entry[idx+2:])
			if ver, err := goversion.NewVersion(verStr); err == nil && name != "" {
				pattern.Name = name
				pattern.MinVersion = ver
			}
		}
		patterns = append(patterns, pattern)
	}
	return patterns
}

// Record ties one matched item to the pattern and strategy that matched it.
type Record struct {
	Pattern    Pattern
	Item       inventory.Item
	Strategy   Strategy
	Identifier string // the identifier that matched
}

// Match evaluates every item against the pattern list. An item produces at
// most one Record: matching stops at the first pattern that matches via any
// strategy. Items with no identifiers are skipped.
func Match(items []inventory.Item, patterns []Pattern) []Record {
	if len(items) == 0 || len(patterns) == 0 {
		return nil
	}

	// Normalized forms are precomputed once per pass so the normalized
	// strategy stays O(items + patterns) instead of O(items * patterns).
	normalizedPatterns := make([]string, len(patterns))
	for i, p := range patterns {
		normalizedPatterns[i] = normalizeIdentifier(p.Name)
	}

	var records []Record
	for _, item := range items {
		ids := item.Identifiers()
		if len(ids) == 0 {
			continue
		}
		normalizedIDs := make([]string, len(ids))
		for i, id := range ids {
			normalizedIDs[i] = normalizeIdentifier(id)
		}

		if record, ok := matchItem(item, ids, normalizedIDs, patterns, normalizedPatterns); ok {
			records = append(records, record)
		}
	}
	return records
}

func matchItem(item inventory.Item, ids, normalizedIDs []string, patterns []Pattern, normalizedPatterns []string) (Record, bool) {
	for pi, pattern := range patterns {
		// Exact
		for _, id := range ids {
			if strings.EqualFold(id, pattern.Name) {
				return Record{Pattern: pattern, Item: item, Strategy: StrategyExact, Identifier: id}, true
			}
		}

		// Normalized
		for i, norm := range normalizedIDs {
			if norm != "" && norm == normalizedPatterns[pi] {
				return Record{Pattern: pattern, Item: item, Strategy: StrategyNormalized, Identifier: ids[i]}, true
			}
		}

		// PartialPublisher
		if publisher, app, ok := splitPublisherPattern(pattern.Name); ok {
			for _, id := range ids {
				lower := strings.ToLower(id)
				if strings.Contains(lower, publisher) && strings.Contains(lower, app) {
					return Record{Pattern: pattern, Item: item, Strategy: StrategyPartialPublisher, Identifier: id}, true
				}
			}
		}
	}
	return Record{}, false
}

// splitPublisherPattern splits a "publisher.appname" pattern into its
// lowercased parts. Patterns without a dot, or with an empty side, do not
// participate in partial matching.
func splitPublisherPattern(name string) (publisher, app string, ok bool) {
	idx := strings.Index(name, ".")
	if idx <= 0 || idx >= len(name)-1 {
		return "", "", false
	}
	return strings.ToLower(name[:idx]), strings.ToLower(name[idx+1:]), true
}

// normalizeIdentifier lowercases and strips separator characters so that
// "Google Chrome" and "Google.Chrome" compare equal.
func normalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case '.', '-', '_', ' ', '\t':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MeetsMinVersion reports whether the matched item satisfies the pattern's
// minimum version constraint. Patterns without a constraint are always
// satisfied; items without a parseable version are treated as satisfied to
// avoid repeated reinstall attempts on unparseable vendor versions.
func (r Record) MeetsMinVersion() bool {
	if r.Pattern.MinVersion == nil {
		return true
	}
	verStr := r.Item.Metadata["Version"]
	if verStr == "" {
		return true
	}
	installed, err := goversion.NewVersion(verStr)
	if err != nil {
		return true
	}
	return installed.GreaterThanOrEqual(r.Pattern.MinVersion)
}

// MissingPatterns returns the patterns with no matching record, preserving
// list order. The engine uses this to decide which essential apps need to
// be installed.
func MissingPatterns(patterns []Pattern, records []Record) []Pattern {
	matched := make(map[string]struct{}, len(records))
	for _, record := range records {
		matched[strings.ToLower(record.Pattern.Raw)] = struct{}{}
	}
	var missing []Pattern
	for _, pattern := range patterns {
		if _, ok := matched[strings.ToLower(pattern.Raw)]; !ok {
			missing = append(missing, pattern)
		}
	}
	return missing
}
