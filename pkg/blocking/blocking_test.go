package blocking

import (
	"context"
	"testing"

	"github.com/windowsadmins/reclaim/pkg/inventory"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Notepad.exe", "notepad"},
		{"NOTEPAD", "notepad"},
		{" chrome.EXE ", "chrome"},
		{"svc", "svc"},
	}
	for _, tt := range tests {
		if got := canonical(tt.in); got != tt.want {
			t.Errorf("canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTerminateForSkipsPathlikeIdentifiers(t *testing.T) {
	// Identifiers that cannot be process names must never match anything.
	item := inventory.Item{
		PrimaryName: `\Microsoft\XblGameSave\XblGameSaveTask`,
		AlternateIdentifiers: []string{
			"Microsoft.XboxApp_48.49.31001.0_x64__8wekyb3d8bbwe",
		},
	}
	if n := TerminateFor(context.Background(), item); n != 0 {
		t.Errorf("terminated %d processes for path-like identifiers", n)
	}
}

func TestIsProcessRunningUnknownName(t *testing.T) {
	if IsProcessRunning("definitely-not-a-real-process-name-12345") {
		t.Error("nonexistent process reported as running")
	}
}
