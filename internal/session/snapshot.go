package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joelkehle/lucidra-engine/internal/assessment"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
)

// snapshotFile is the on-disk shape. Content is a shorthand that fills
// sections from plain lines when no full sections are given.
type snapshotFile struct {
	assessment.Snapshot
	Content map[canvas.SectionID][]string `json:"content,omitempty"`
}

// LoadSnapshotFile reads a JSON snapshot. A file with only a content map
// gets a default canvas built from it.
func LoadSnapshotFile(path string) (assessment.Snapshot, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return assessment.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var f snapshotFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return assessment.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snap := f.Snapshot
	if len(snap.Sections) > 0 {
		if len(f.Content) > 0 {
			return assessment.Snapshot{}, fmt.Errorf("snapshot %s: sections and content are mutually exclusive", path)
		}
		return snap, nil
	}
	c, err := canvas.NewDefault()
	if err != nil {
		return assessment.Snapshot{}, err
	}
	for _, id := range canvas.Order() {
		lines, ok := f.Content[id]
		if !ok {
			continue
		}
		if _, err := c.ReplaceContent(id, lines, ""); err != nil {
			return assessment.Snapshot{}, err
		}
		delete(f.Content, id)
	}
	for id := range f.Content {
		return assessment.Snapshot{}, fmt.Errorf("snapshot %s: unknown section %q", path, id)
	}
	snap.Sections = c.Sections()
	return snap, nil
}

func SaveSnapshotFile(path string, snap assessment.Snapshot) error {
	blob, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, blob)
}

// WriteFileAtomic writes through a temporary sibling so readers never see
// a partial file.
func WriteFileAtomic(path string, blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
