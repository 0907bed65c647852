package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sofmeright/artifreight/src/logger"
)

// Recover removes everything under destRoot that is not a complete staged
// root: leftover work directories, partial downloads, and roots whose marker
// is missing or does not name them. It waits for in-flight Stage calls to
// finish first and returns the removed paths.
func (s *Stager) Recover(ctx context.Context, destRoot string) ([]string, error) {
	destRoot, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(destRoot); os.IsNotExist(err) {
		return nil, nil
	}

	unlock, err := acquireLock(ctx, filepath.Join(destRoot, locksDir, rootLockName), true)
	if err != nil {
		return nil, fmt.Errorf("locking cache dir: %w", err)
	}
	defer unlock()

	entries, err := os.ReadDir(destRoot)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join(destRoot, name)

		switch {
		case name == locksDir:
			continue
		case strings.HasPrefix(name, tmpPrefix), strings.HasPrefix(name, downloadPrefix):
		case !e.IsDir():
			continue
		default:
			m, err := ReadMarker(p)
			if err == nil && m.Key == name {
				continue
			}
		}

		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("removing %s: %w", p, err)
		}
		logger.WarnKV(ctx, "removed incomplete staging state", "path", p)
		removed = append(removed, p)
	}
	return removed, nil
}
