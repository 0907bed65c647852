package stage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/artifreight/src/artifact"
)

// MarkerFile is written last into every complete staged root.
const MarkerFile = ".artifreight-stage.json"

// Marker records which artifact produced a staged root.
type Marker struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	DownloadURL string    `json:"download_url"`
	Checksum    string    `json:"checksum"`
	Entrypoints []string  `json:"entrypoints"`
	StagedAt    time.Time `json:"staged_at"`
}

// Matches reports whether the marker was produced by spec. When spec pins a
// checksum the recorded digest must match it too.
func (m Marker) Matches(spec artifact.Spec) bool {
	if m.Name != spec.Name || m.Version != spec.Version {
		return false
	}
	if spec.ExpectedChecksum == "" {
		return true
	}
	return strings.EqualFold(m.Checksum, spec.ExpectedChecksum)
}

// ReadMarker loads the marker from root.
func ReadMarker(root string) (Marker, error) {
	var m Marker
	data, err := os.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing marker in %s: %w", root, err)
	}
	if m.Key == "" || m.Version == "" {
		return m, fmt.Errorf("marker in %s is incomplete", root)
	}
	return m, nil
}

func writeMarker(root string, m Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(root, MarkerFile), append(data, '\n'), 0o644)
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader sees either the old file or the complete new one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
