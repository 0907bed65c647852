//go:build !unix

package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"
)

const lockPoll = 100 * time.Millisecond

// acquireLock falls back to an O_EXCL lock file. Shared and exclusive
// requests are treated alike.
func acquireLock(ctx context.Context, path string, _ bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	for {
		f, err := os.OpenFile(path+".excl", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { _ = os.Remove(path + ".excl") }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}
