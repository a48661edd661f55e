package diff

import (
	"reflect"
	"testing"

	"github.com/windowsadmins/reclaim/pkg/inventory"
)

func TestSetCaseInsensitive(t *testing.T) {
	s := NewSet("Microsoft.XboxApp", "microsoft.xboxapp", "Candy Crush")
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if !s.Contains("MICROSOFT.XBOXAPP") {
		t.Error("Contains should ignore case")
	}
	// First insertion's casing survives.
	want := []string{"Candy Crush", "Microsoft.XboxApp"}
	if got := s.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
}

func TestSetIgnoresEmpty(t *testing.T) {
	s := NewSet("", "a", "")
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestComputeFirstRun(t *testing.T) {
	current := NewSet("a", "b", "c")
	result := Compute(current, nil)

	if !result.FirstRun {
		t.Error("FirstRun should be true with nil previous")
	}
	if !result.New.Equal(current) {
		t.Errorf("New = %v, want all of current", result.New.Values())
	}
	if result.Unchanged.Len() != 0 || result.Removed.Len() != 0 {
		t.Errorf("Unchanged/Removed should be empty on first run, got %v / %v",
			result.Unchanged.Values(), result.Removed.Values())
	}
}

func TestComputePartition(t *testing.T) {
	tests := []struct {
		name          string
		current       []string
		previous      []string
		wantNew       []string
		wantUnchanged []string
		wantRemoved   []string
	}{
		{
			name:          "mixed",
			current:       []string{"a", "b", "d"},
			previous:      []string{"a", "b", "c"},
			wantNew:       []string{"d"},
			wantUnchanged: []string{"a", "b"},
			wantRemoved:   []string{"c"},
		},
		{
			name:          "identical",
			current:       []string{"a", "b"},
			previous:      []string{"a", "b"},
			wantUnchanged: []string{"a", "b"},
		},
		{
			name:        "everything gone",
			previous:    []string{"a"},
			wantRemoved: []string{"a"},
		},
		{
			name:          "case change is unchanged",
			current:       []string{"Microsoft.XboxApp"},
			previous:      []string{"microsoft.xboxapp"},
			wantUnchanged: []string{"Microsoft.XboxApp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Compute(NewSet(tt.current...), NewSet(tt.previous...))
			if result.FirstRun {
				t.Error("FirstRun should be false with a previous set")
			}
			checkValues(t, "New", result.New, tt.wantNew)
			checkValues(t, "Unchanged", result.Unchanged, tt.wantUnchanged)
			checkValues(t, "Removed", result.Removed, tt.wantRemoved)
		})
	}
}

func checkValues(t *testing.T, label string, s *Set, want []string) {
	t.Helper()
	got := s.Values()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

// Every current identifier lands in exactly one of New or Unchanged.
func TestComputeIsPartition(t *testing.T) {
	current := NewSet("a", "b", "c", "d", "e")
	previous := NewSet("c", "d", "e", "f")
	result := Compute(current, previous)

	if result.New.Len()+result.Unchanged.Len() != current.Len() {
		t.Errorf("New (%d) + Unchanged (%d) != current (%d)",
			result.New.Len(), result.Unchanged.Len(), current.Len())
	}
	for _, id := range result.New.Values() {
		if result.Unchanged.Contains(id) {
			t.Errorf("%q is in both New and Unchanged", id)
		}
		if previous.Contains(id) {
			t.Errorf("%q is New but was in previous", id)
		}
	}
	for _, id := range result.Removed.Values() {
		if current.Contains(id) {
			t.Errorf("%q is Removed but still in current", id)
		}
	}
}

func TestFromItems(t *testing.T) {
	items := []inventory.Item{
		{PrimaryName: "Xbox", AlternateIdentifiers: []string{"Microsoft.XboxApp"}},
		{PrimaryName: "Xbox"}, // duplicate identifier across items
	}
	s := FromItems(items)
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestFilterItems(t *testing.T) {
	items := []inventory.Item{
		{PrimaryName: "Xbox", AlternateIdentifiers: []string{"Microsoft.XboxApp"}},
		{PrimaryName: "Calculator"},
		{PrimaryName: "Notepad"},
	}

	keep := NewSet("microsoft.xboxapp", "Notepad")
	filtered := FilterItems(items, keep)
	if len(filtered) != 2 {
		t.Fatalf("got %d items, want 2", len(filtered))
	}
	if filtered[0].PrimaryName != "Xbox" || filtered[1].PrimaryName != "Notepad" {
		t.Errorf("unexpected filtered items: %v", filtered)
	}

	if got := FilterItems(items, nil); got != nil {
		t.Errorf("nil keep set should filter everything, got %v", got)
	}
}
