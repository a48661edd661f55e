// pkg/snapshot/snapshot.go - persisted identifier snapshots for run-over-run
// diffing.
//
// Two independent snapshots exist side by side: one for bloatware-removal
// identifiers and one for essential-app requirement identifiers. They are
// never conflated because their pattern universes differ.

package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/windowsadmins/reclaim/pkg/diff"
	"github.com/windowsadmins/reclaim/pkg/logging"
)

// Purpose selects which logical snapshot a load or save refers to.
type Purpose string

const (
	PurposeRemoval  Purpose = "removal"
	PurposeRequired Purpose = "required"
)

// Metadata describes the run a snapshot was captured by. It is informational
// only; diffing uses just the identifier list.
type Metadata struct {
	CapturedAt time.Time `json:"captured_at"`
	Hostname   string    `json:"hostname,omitempty"`
	Version    string    `json:"version,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
}

// fileFormat is the on-disk JSON shape.
type fileFormat struct {
	Metadata    Metadata `json:"metadata"`
	Identifiers []string `json:"identifiers"`
}

// Store reads and writes snapshot files under one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(p Purpose) string {
	return filepath.Join(s.dir, string(p)+".json")
}

// Load reads the snapshot for the given purpose. A missing or unparseable
// file is treated as "no previous snapshot" and returns (nil, nil): the
// caller falls back to first-run semantics rather than failing.
func (s *Store) Load(p Purpose) (*diff.Set, error) {
	data, err := os.ReadFile(s.path(p))
	if os.IsNotExist(err) {
		logging.Debug("No prior snapshot", "purpose", string(p))
		return nil, nil
	}
	if err != nil {
		logging.Warn("Snapshot unreadable, treating as first run",
			"purpose", string(p), "error", err.Error())
		return nil, nil
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		logging.Warn("Snapshot corrupt, treating as first run",
			"purpose", string(p), "error", err.Error())
		return nil, nil
	}

	return diff.NewSet(file.Identifiers...), nil
}

// Save writes the snapshot atomically: the content goes to a temporary file
// in the same directory first and is then renamed into place, so a crash
// mid-write never corrupts the previous snapshot.
func (s *Store) Save(p Purpose, set *diff.Set, meta Metadata) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	file := fileFormat{
		Metadata:    meta,
		Identifiers: set.Values(),
	}
	if file.Metadata.CapturedAt.IsZero() {
		file.Metadata.CapturedAt = time.Now()
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, string(p)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary snapshot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path(p)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	logging.Debug("Snapshot saved", "purpose", string(p), "identifiers", set.Len())
	return nil
}
