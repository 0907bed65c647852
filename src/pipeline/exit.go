package pipeline

import (
	"errors"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/release"
	"github.com/sofmeright/artifreight/src/stage"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitUsage      = 1
	ExitResolution = 2
	ExitStaging    = 3
	ExitPublish    = 4
)

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		unresolved *artifact.UnresolvedVersionError
		download   *stage.DownloadError
		integrity  *stage.IntegrityError
		traversal  *stage.PathTraversalError
		entrypoint *stage.EntrypointNotFoundError
		publish    *release.PublishError
		records    *RecordsError
	)
	switch {
	case errors.As(err, &unresolved):
		return ExitResolution
	case errors.As(err, &download),
		errors.As(err, &integrity),
		errors.As(err, &traversal),
		errors.As(err, &entrypoint),
		errors.As(err, new(*StageError)):
		return ExitStaging
	case errors.As(err, &publish),
		errors.As(err, &records):
		return ExitPublish
	default:
		return ExitUsage
	}
}

// StageError wraps staging failures that carry no typed cause (locking,
// disk errors) so they still map to the staging exit code.
type StageError struct {
	Err error
}

func (e *StageError) Error() string { return "staging: " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// RecordsError is a failure to read the release log before publishing.
// The log belongs to the publish step, so it exits with ExitPublish.
type RecordsError struct {
	Err error
}

func (e *RecordsError) Error() string { return "reading release records: " + e.Err.Error() }

func (e *RecordsError) Unwrap() error { return e.Err }
