// Package secrets scans a staged root for credentials before it is baked
// into an image.
package secrets

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"golang.org/x/sync/semaphore"
)

// Finding is one detected secret. The matched value is never kept.
type Finding struct {
	File        string
	Line        int
	RuleID      string
	Description string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.File, f.Line, f.Description, f.RuleID)
}

// Scanner runs the gitleaks default rule set over files.
type Scanner struct {
	MaxFileSize int64
	Skip        map[string]bool // paths relative to the root

	detector *detect.Detector
}

// NewScanner builds a Scanner with the gitleaks default config.
func NewScanner(maxFileSize int64) (*Scanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &Scanner{MaxFileSize: maxFileSize, Skip: map[string]bool{}, detector: d}, nil
}

// Scan walks root and returns findings sorted by file and line. Binary files
// and files above MaxFileSize are skipped.
func (s *Scanner) Scan(ctx context.Context, root string) ([]Finding, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		findings []Finding
		errs     []error
	)
	sem := semaphore.NewWeighted(int64(runtime.NumCPU() * 2))

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if s.Skip[rel] {
			return nil
		}
		if s.MaxFileSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > s.MaxFileSize {
				return nil
			}
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			got, err := s.scanFile(path, rel)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			findings = append(findings, got...)
		}()
		return nil
	})
	wg.Wait()

	if walkErr != nil {
		return nil, walkErr
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Line < findings[j].Line
	})
	return findings, nil
}

func (s *Scanner) scanFile(path, rel string) ([]Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}

	hits := s.detector.DetectBytes(data)
	out := make([]Finding, 0, len(hits))
	for _, h := range hits {
		out = append(out, Finding{
			File:        rel,
			Line:        h.StartLine + 1, // gitleaks is 0-indexed
			RuleID:      h.RuleID,
			Description: h.Description,
		})
	}
	return out, nil
}

// isBinary treats a NUL in the first 8KB as binary, like git does.
func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}
