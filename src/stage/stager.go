// Package stage downloads, verifies, and unpacks upstream artifacts into
// cached staging roots. A root is complete only once its marker file exists;
// anything else found under the cache directory is debris from an
// interrupted run and is removed by Recover.
package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/transport"
)

const (
	tmpPrefix      = ".tmp-"
	downloadPrefix = ".download-"
	locksDir       = ".locks"
	rootLockName   = ".root.lock"
)

// Root is a complete staged artifact.
type Root struct {
	Path   string
	Marker Marker

	// CacheHit is true when an existing root was reused.
	CacheHit bool
	// Attempts counts download attempts; zero on a cache hit.
	Attempts int
}

// Stager turns an artifact.Spec into a Root.
type Stager struct {
	client      *transport.Client
	entrypoints []string
	attempts    int
	backoff     time.Duration
	timeout     time.Duration
	maxBytes    int64

	group singleflight.Group
}

// New builds a Stager. A nil hc means http.DefaultClient.
func New(cfg config.StageConfig, headers map[string]string, hc *http.Client) *Stager {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Stager{
		client:      transport.New(hc, headers),
		entrypoints: cfg.Entrypoints,
		attempts:    attempts,
		backoff:     cfg.Backoff.Std(),
		timeout:     cfg.Timeout.Std(),
		maxBytes:    cfg.MaxDownloadBytes,
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key is the cache key for spec: "<name>@<version>". Characters outside
// [A-Za-z0-9._-] are replaced, and when that changes either part a short
// digest of the original pair is appended so distinct specs never share a
// key.
func Key(spec artifact.Spec) string {
	name := unsafeKeyChars.ReplaceAllString(spec.Name, "_")
	ver := unsafeKeyChars.ReplaceAllString(spec.Version, "_")
	k := strings.TrimLeft(name+"@"+ver, ".")
	if name != spec.Name || ver != spec.Version || k != name+"@"+ver {
		sum := sha256.Sum256([]byte(spec.Name + "\x00" + spec.Version))
		k += "-" + hex.EncodeToString(sum[:4])
	}
	return k
}

// Stage returns the staged root for spec under destRoot, downloading and
// extracting only when no valid root exists. Concurrent callers for the same
// key, in this process or another, are serialized; the later ones observe
// the cache hit.
func (s *Stager) Stage(ctx context.Context, spec artifact.Spec, destRoot string) (*Root, error) {
	destRoot, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, err
	}
	key := Key(spec)

	v, err, _ := s.group.Do(destRoot+"|"+key, func() (any, error) {
		return s.stage(ctx, spec, destRoot, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Root), nil
}

func (s *Stager) stage(ctx context.Context, spec artifact.Spec, destRoot, key string) (*Root, error) {
	ctx = logger.WithKV(ctx, "artifact", spec.String())

	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	unlockRoot, err := acquireLock(ctx, filepath.Join(destRoot, locksDir, rootLockName), false)
	if err != nil {
		return nil, fmt.Errorf("locking cache dir: %w", err)
	}
	defer unlockRoot()

	unlock, err := acquireLock(ctx, filepath.Join(destRoot, locksDir, key+".lock"), true)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", key, err)
	}
	defer unlock()

	final := filepath.Join(destRoot, key)
	if m, err := ReadMarker(final); err == nil {
		if m.Matches(spec) {
			logger.InfoKV(ctx, "staged root is current, skipping download", "root", final)
			return &Root{Path: final, Marker: m, CacheHit: true}, nil
		}
		logger.WarnKV(ctx, "staged root was produced by a different artifact, restaging",
			"root", final, "marker_version", m.Version)
	}
	if _, err := os.Lstat(final); err == nil {
		if err := os.RemoveAll(final); err != nil {
			return nil, fmt.Errorf("removing stale root %s: %w", final, err)
		}
	}

	archive, err := os.CreateTemp(destRoot, downloadPrefix+key+"-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		archive.Close()
		_ = os.Remove(archive.Name())
	}()

	logger.InfoKV(ctx, "downloading artifact", "url", spec.DownloadURL)
	sum, attempts, err := s.fetch(ctx, spec, archive)
	if err != nil {
		return nil, err
	}
	if err := verify(spec.DownloadURL, spec.ExpectedChecksum, sum); err != nil {
		return nil, err
	}
	if spec.ExpectedChecksum == "" {
		logger.WarnKV(ctx, "no checksum pinned; artifact accepted unverified", "computed", sum)
	}

	work := filepath.Join(destRoot, tmpPrefix+key+"-"+uuid.NewString())
	if err := os.Mkdir(work, 0o755); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(work)
		}
	}()

	if err := extract(ctx, archive, archiveName(spec.DownloadURL), work); err != nil {
		var pt *PathTraversalError
		if errors.As(err, &pt) {
			return nil, err
		}
		return nil, fmt.Errorf("extracting %s: %w", spec.DownloadURL, err)
	}

	found, err := markExecutable(work, s.entrypoints)
	if err != nil {
		return nil, err
	}

	m := Marker{
		Key:         key,
		Name:        spec.Name,
		Version:     spec.Version,
		DownloadURL: spec.DownloadURL,
		Checksum:    sum,
		Entrypoints: found,
		StagedAt:    time.Now().UTC(),
	}
	if err := writeMarker(work, m); err != nil {
		return nil, fmt.Errorf("writing marker: %w", err)
	}
	if err := os.Rename(work, final); err != nil {
		return nil, fmt.Errorf("publishing staged root: %w", err)
	}
	committed = true
	if err := syncDir(destRoot); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "artifact staged", "root", final, "checksum", sum, "entrypoints", found)
	return &Root{Path: final, Marker: m, Attempts: attempts}, nil
}

// markExecutable adds the exec bits to every candidate that resolves to a
// regular file inside dir and returns the ones found. A candidate whose path
// leads out of dir through a symlink is a PathTraversalError.
func markExecutable(dir string, candidates []string) ([]string, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	var found []string
	for _, c := range candidates {
		rel, err := entryPath(c)
		if err != nil {
			return nil, err
		}
		resolved, ok := resolveLinks(root, "", rel, 0)
		if !ok {
			return nil, &PathTraversalError{Entry: c}
		}
		info, err := root.Lstat(resolved)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := root.Chmod(resolved, info.Mode().Perm()|0o111); err != nil {
			return nil, fmt.Errorf("chmod %s: %w", c, err)
		}
		found = append(found, c)
	}
	if len(found) == 0 {
		return nil, &EntrypointNotFoundError{Candidates: candidates}
	}
	return found, nil
}

// archiveName is the last URL path element, used as a format hint.
func archiveName(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Base(p)
}
