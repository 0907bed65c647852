package stage

import (
	"fmt"
	"strings"
)

// DownloadError wraps a failed fetch after retries are exhausted or when the
// failure is not worth retrying.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IntegrityError means the downloaded bytes do not match the pinned digest.
// The artifact may have been tampered with; it is never retried.
type IntegrityError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("INTEGRITY CHECK FAILED for %s: expected %s, got %s; refusing to use this artifact", e.URL, e.Expected, e.Actual)
}

// PathTraversalError means an archive entry would land outside the staging
// directory. The archive is treated as hostile.
type PathTraversalError struct {
	Entry  string
	Target string
}

func (e *PathTraversalError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("archive entry %q links outside the staging root (%s)", e.Entry, e.Target)
	}
	return fmt.Sprintf("archive entry %q escapes the staging root", e.Entry)
}

// EntrypointNotFoundError means none of the configured entrypoint
// candidates exist in the extracted tree.
type EntrypointNotFoundError struct {
	Candidates []string
}

func (e *EntrypointNotFoundError) Error() string {
	return "no entrypoint found in archive (looked for: " + strings.Join(e.Candidates, ", ") + ")"
}
