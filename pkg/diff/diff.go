// pkg/diff/diff.go - canonical identifier sets and run-over-run diffing.

package diff

import (
	"sort"
	"strings"

	"github.com/windowsadmins/reclaim/pkg/inventory"
)

// Set is a case-insensitive, deduplicated set of canonical identifiers.
// The original casing of the first insertion is preserved for output.
type Set struct {
	members map[string]string // folded key -> original form
}

// NewSet builds a set from the given identifiers.
func NewSet(ids ...string) *Set {
	s := &Set{members: make(map[string]string, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// FromItems builds the canonical identifier set of one inventory pass:
// every primary name and alternate identifier of every item.
func FromItems(items []inventory.Item) *Set {
	s := NewSet()
	for _, item := range items {
		for _, id := range item.Identifiers() {
			s.Add(id)
		}
	}
	return s
}

// Add inserts an identifier. Empty strings are ignored.
func (s *Set) Add(id string) {
	if id == "" {
		return
	}
	key := strings.ToLower(id)
	if _, ok := s.members[key]; !ok {
		s.members[key] = id
	}
}

// Contains reports membership, case-insensitively.
func (s *Set) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[strings.ToLower(id)]
	return ok
}

// Len returns the number of distinct identifiers.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Values returns the identifiers in sorted order, original casing preserved.
func (s *Set) Values() []string {
	if s == nil {
		return nil
	}
	values := make([]string, 0, len(s.members))
	for _, original := range s.members {
		values = append(values, original)
	}
	sort.Strings(values)
	return values
}

// Equal reports set equality, case-insensitively.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for key := range s.members {
		if _, ok := other.members[key]; !ok {
			return false
		}
	}
	return true
}

// Result is the outcome of diffing the current identifier set against the
// previous run's snapshot.
type Result struct {
	New       *Set // in current, not in previous
	Unchanged *Set // in both
	Removed   *Set // in previous, not in current
	FirstRun  bool // no usable previous snapshot existed
}

// Compute diffs current against previous. A nil previous means first run:
// everything is new. The computation is O(|current| + |previous|).
func Compute(current, previous *Set) Result {
	if previous == nil {
		return Result{
			New:       cloneSet(current),
			Unchanged: NewSet(),
			Removed:   NewSet(),
			FirstRun:  true,
		}
	}

	result := Result{
		New:       NewSet(),
		Unchanged: NewSet(),
		Removed:   NewSet(),
	}
	for key, original := range current.members {
		if _, ok := previous.members[key]; ok {
			result.Unchanged.Add(original)
		} else {
			result.New.Add(original)
		}
	}
	for key, original := range previous.members {
		if _, ok := current.members[key]; !ok {
			result.Removed.Add(original)
		}
	}
	return result
}

func cloneSet(s *Set) *Set {
	clone := NewSet()
	if s == nil {
		return clone
	}
	for key, original := range s.members {
		clone.members[key] = original
	}
	return clone
}

// FilterItems returns only the items that carry at least one identifier in
// keep. This is the explicit optimization boundary between diffing and
// matching: the matcher only ever sees the filtered subset unless the
// caller forces a full scan.
func FilterItems(items []inventory.Item, keep *Set) []inventory.Item {
	if keep == nil {
		return nil
	}
	var filtered []inventory.Item
	for _, item := range items {
		for _, id := range item.Identifiers() {
			if keep.Contains(id) {
				filtered = append(filtered, item)
				break
			}
		}
	}
	return filtered
}
