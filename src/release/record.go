package release

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one confirmed push. Records are only ever appended.
type Record struct {
	ID              string    `json:"id"`
	ImageTag        string    `json:"image_tag"`
	ExtraTags       []string  `json:"extra_tags,omitempty"`
	ArtifactName    string    `json:"artifact_name"`
	ArtifactVersion string    `json:"artifact_version"`
	Checksum        string    `json:"checksum,omitempty"`
	Digest          string    `json:"digest,omitempty"`
	PushedAt        time.Time `json:"pushed_at"`
	Success         bool      `json:"success"`
}

// Store is a JSON-lines release log.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path. The file is created on first
// append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Append writes rec as one line and fsyncs it before returning.
func (s *Store) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating records dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening records: %w", err)
	}
	// start on a fresh line if a previous append was cut short
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			line = append([]byte{'\n'}, line...)
		}
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("appending record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing records: %w", err)
	}
	return f.Close()
}

// List returns all records in append order and the number of lines that
// could not be decoded, such as a torn write from an interrupted append.
func (s *Store) List() ([]Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var out []Record
	skipped := 0
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped, nil
}

// Has reports whether a successful record exists for version and tag.
func (s *Store) Has(version, imageTag string) (bool, error) {
	recs, _, err := s.List()
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Success && r.ArtifactVersion == version && r.ImageTag == imageTag {
			return true, nil
		}
	}
	return false, nil
}
