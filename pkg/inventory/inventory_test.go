package inventory

import (
	"context"
	"errors"
	"testing"
)

type fakeSource struct {
	name    string
	origin  Origin
	records []RawRecord
	err     error
}

func (s *fakeSource) Name() string   { return s.name }
func (s *fakeSource) Origin() Origin { return s.origin }
func (s *fakeSource) Collect(ctx context.Context) ([]RawRecord, error) {
	return s.records, s.err
}

func TestCollectAllToleratesPartialFailure(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "ok", origin: OriginWinget, records: []RawRecord{
			{Origin: OriginWinget, Fields: map[string]string{"Name": "Chrome"}},
		}},
		&fakeSource{name: "broken", origin: OriginChoco, err: errors.New("tool missing")},
	}

	collected, err := CollectAll(context.Background(), sources)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if len(collected) != 2 {
		t.Fatalf("got %d source lists, want 2", len(collected))
	}
	if len(collected[0]) != 1 || len(collected[1]) != 0 {
		t.Errorf("unexpected record counts: %d, %d", len(collected[0]), len(collected[1]))
	}
}

func TestCollectAllFailsWhenEverySourceFails(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "a", origin: OriginWinget, err: errors.New("down")},
		&fakeSource{name: "b", origin: OriginChoco, err: errors.New("down")},
	}
	if _, err := CollectAll(context.Background(), sources); err == nil {
		t.Fatal("expected an error when all sources fail")
	}
}

func TestCollectAllHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CollectAll(ctx, []Source{&fakeSource{name: "a", origin: OriginWinget}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNormalize(t *testing.T) {
	collected := [][]RawRecord{
		{
			{Origin: OriginWinget, Fields: map[string]string{
				"Name": "Google Chrome", "Id": "Google.Chrome", "Version": "120.0",
			}},
			// No identity fields at all: dropped.
			{Origin: OriginWinget, Fields: map[string]string{"Version": "1.0"}},
		},
		{
			{Origin: OriginRegistry, Fields: map[string]string{
				"DisplayName":     "7-Zip",
				"KeyName":         "7-Zip",
				"UninstallString": `C:\Program Files\7-Zip\Uninstall.exe`,
			}},
		},
	}

	items, skipped := Normalize(collected)
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	chrome := items[0]
	if chrome.PrimaryName != "Google Chrome" {
		t.Errorf("PrimaryName = %q", chrome.PrimaryName)
	}
	if len(chrome.AlternateIdentifiers) != 1 || chrome.AlternateIdentifiers[0] != "Google.Chrome" {
		t.Errorf("AlternateIdentifiers = %v", chrome.AlternateIdentifiers)
	}
	if chrome.Metadata["Version"] != "120.0" {
		t.Errorf("non-identity field should land in metadata: %v", chrome.Metadata)
	}

	// An alternate equal to the primary (7-Zip key name) is not duplicated.
	sevenZip := items[1]
	if len(sevenZip.AlternateIdentifiers) != 0 {
		t.Errorf("duplicate identifier not collapsed: %v", sevenZip.AlternateIdentifiers)
	}
	if sevenZip.Metadata["UninstallString"] == "" {
		t.Error("UninstallString should be preserved in metadata")
	}
}

func TestIdentifiers(t *testing.T) {
	it := Item{
		PrimaryName:          "Xbox",
		AlternateIdentifiers: []string{"Microsoft.XboxApp", ""},
	}
	ids := it.Identifiers()
	if len(ids) != 2 || ids[0] != "Xbox" || ids[1] != "Microsoft.XboxApp" {
		t.Errorf("Identifiers() = %v", ids)
	}
}
