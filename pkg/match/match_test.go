package match

import (
	"testing"

	"github.com/windowsadmins/reclaim/pkg/inventory"
)

func item(name string, alts ...string) inventory.Item {
	return inventory.Item{PrimaryName: name, AlternateIdentifiers: alts}
}

func TestMatchStrategies(t *testing.T) {
	tests := []struct {
		name         string
		item         inventory.Item
		pattern      string
		wantStrategy Strategy
		wantMatch    bool
	}{
		{
			name:         "exact on primary name",
			item:         item("Google.Chrome"),
			pattern:      "Google.Chrome",
			wantStrategy: StrategyExact,
			wantMatch:    true,
		},
		{
			name:         "exact is case insensitive",
			item:         item("google.chrome"),
			pattern:      "Google.Chrome",
			wantStrategy: StrategyExact,
			wantMatch:    true,
		},
		{
			name:         "exact on alternate identifier",
			item:         item("Xbox", "Microsoft.XboxApp"),
			pattern:      "Microsoft.XboxApp",
			wantStrategy: StrategyExact,
			wantMatch:    true,
		},
		{
			name:         "normalized strips separators",
			item:         item("Google Chrome"),
			pattern:      "Google.Chrome",
			wantStrategy: StrategyNormalized,
			wantMatch:    true,
		},
		{
			name:         "partial publisher substring",
			item:         item("Mozilla Firefox ESR"),
			pattern:      "Mozilla.Firefox",
			wantStrategy: StrategyPartialPublisher,
			wantMatch:    true,
		},
		{
			name:      "no partial without a dot",
			item:      item("Mozilla Firefox ESR"),
			pattern:   "Firefox",
			wantMatch: false,
		},
		{
			name:      "partial requires both parts",
			item:      item("Mozilla Thunderbird"),
			pattern:   "Mozilla.Firefox",
			wantMatch: false,
		},
		{
			name:      "unrelated item",
			item:      item("Notepad"),
			pattern:   "Google.Chrome",
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := Match([]inventory.Item{tt.item}, ParsePatterns([]string{tt.pattern}))
			if !tt.wantMatch {
				if len(records) != 0 {
					t.Fatalf("unexpected match: %+v", records)
				}
				return
			}
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			if records[0].Strategy != tt.wantStrategy {
				t.Errorf("Strategy = %s, want %s", records[0].Strategy, tt.wantStrategy)
			}
		})
	}
}

// An item matched by several patterns yields one record for the first
// pattern in list order.
func TestFirstPatternWins(t *testing.T) {
	patterns := ParsePatterns([]string{"Microsoft.XboxApp", "Microsoft.Xbox"})
	records := Match([]inventory.Item{item("Microsoft.XboxApp")}, patterns)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Pattern.Raw != "Microsoft.XboxApp" {
		t.Errorf("matched %q, want the first pattern", records[0].Pattern.Raw)
	}
}

func TestParsePatternsMinVersion(t *testing.T) {
	patterns := ParsePatterns([]string{
		"Mozilla.Firefox >= 100.0",
		"Google.Chrome",
		"",
		"Broken >= notaversion",
	})
	if len(patterns) != 3 {
		t.Fatalf("got %d patterns, want 3", len(patterns))
	}
	if patterns[0].Name != "Mozilla.Firefox" || patterns[0].MinVersion == nil {
		t.Errorf("version constraint not parsed: %+v", patterns[0])
	}
	if patterns[1].MinVersion != nil {
		t.Errorf("unexpected constraint on %q", patterns[1].Raw)
	}
	// An unparseable constraint degrades to a plain name pattern.
	if patterns[2].Name != "Broken >= notaversion" || patterns[2].MinVersion != nil {
		t.Errorf("broken constraint should keep raw name: %+v", patterns[2])
	}
}

func TestMeetsMinVersion(t *testing.T) {
	patterns := ParsePatterns([]string{"Mozilla.Firefox >= 100.0"})

	tests := []struct {
		name    string
		version string
		want    bool
	}{
		{"above", "102.1", true},
		{"equal", "100.0", true},
		{"below", "99.0", false},
		{"missing version treated as satisfied", "", true},
		{"unparseable version treated as satisfied", "not-a-version", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := item("Mozilla.Firefox")
			if tt.version != "" {
				it.Metadata = map[string]string{"Version": tt.version}
			}
			records := Match([]inventory.Item{it}, patterns)
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			if got := records[0].MeetsMinVersion(); got != tt.want {
				t.Errorf("MeetsMinVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMissingPatterns(t *testing.T) {
	patterns := ParsePatterns([]string{"Mozilla.Firefox", "Google.Chrome", "7zip.7zip"})
	records := Match([]inventory.Item{item("Google.Chrome")}, patterns)

	missing := MissingPatterns(patterns, records)
	if len(missing) != 2 {
		t.Fatalf("got %d missing, want 2", len(missing))
	}
	if missing[0].Raw != "Mozilla.Firefox" || missing[1].Raw != "7zip.7zip" {
		t.Errorf("missing = %v, want list order preserved", missing)
	}
}

func TestMatchSkipsItemsWithoutIdentifiers(t *testing.T) {
	records := Match([]inventory.Item{{}}, ParsePatterns([]string{"Google.Chrome"}))
	if len(records) != 0 {
		t.Errorf("item without identifiers must not match, got %+v", records)
	}
}
