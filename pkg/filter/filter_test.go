package filter

import (
	"testing"

	"github.com/windowsadmins/reclaim/pkg/inventory"
	"github.com/windowsadmins/reclaim/pkg/match"
)

func record(name string) match.Record {
	return match.Record{Item: inventory.Item{PrimaryName: name}}
}

func TestParseEmpty(t *testing.T) {
	for _, spec := range []string{"", " ", ",,"} {
		if f := Parse(spec); !f.Empty() {
			t.Errorf("Parse(%q) should be empty", spec)
		}
	}
}

func TestNilFilterPassesEverything(t *testing.T) {
	var f *Filter
	records := []match.Record{record("a"), record("b")}
	if got := f.Apply(records); len(got) != 2 {
		t.Errorf("nil filter kept %d records, want 2", len(got))
	}
}

func TestApply(t *testing.T) {
	f := Parse("xbox, candycrush")
	records := []match.Record{
		record("Microsoft.XboxApp"),
		record("king.com.CandyCrushSaga"),
		record("Notepad"),
	}
	got := f.Apply(records)
	if len(got) != 2 {
		t.Fatalf("kept %d records, want 2", len(got))
	}
	if got[0].Item.PrimaryName != "Microsoft.XboxApp" {
		t.Errorf("order not preserved: %+v", got)
	}
}

func TestMatchesAlternateIdentifiers(t *testing.T) {
	f := Parse("Microsoft.XboxApp")
	r := match.Record{Item: inventory.Item{
		PrimaryName:          "Xbox",
		AlternateIdentifiers: []string{"Microsoft.XboxApp"},
	}}
	if !f.Matches(r) {
		t.Error("filter should match alternate identifiers")
	}
}
