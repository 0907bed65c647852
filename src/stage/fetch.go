package stage

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/transport"
)

var errTooLarge = errors.New("artifact exceeds stage.max_download_bytes")

// fetch downloads spec.DownloadURL into f, retrying transient failures, and
// returns the "<algo>:<hex>" digest of the bytes written plus the number of
// attempts made.
func (s *Stager) fetch(ctx context.Context, spec artifact.Spec, f *os.File) (string, int, error) {
	algo := checksumAlgo(spec.ExpectedChecksum)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.backoff
	b.MaxInterval = 30 * time.Second

	attempts := 0
	op := func() (string, error) {
		attempts++
		sum, err := s.fetchOnce(ctx, spec.DownloadURL, f, algo)
		if err == nil {
			return sum, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		// a per-attempt timeout is worth another try; cancellation is not
		if errors.Is(err, context.DeadlineExceeded) || transport.Transient(err) {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	sum, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WarnKV(ctx, "download attempt failed, retrying",
				"url", spec.DownloadURL, "attempt", attempts, "next", next, "error", err)
		}),
	)
	if err != nil {
		return "", attempts, &DownloadError{URL: spec.DownloadURL, Attempts: attempts, Err: err}
	}
	return sum, attempts, nil
}

// fetchOnce truncates f and streams one response body into it while hashing.
func (s *Stager) fetchOnce(ctx context.Context, url string, f *os.File, algo string) (string, error) {
	if err := f.Truncate(0); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.Open(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		if resp.ContentLength > s.maxBytes {
			return "", errTooLarge
		}
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}

	h := newHash(algo)
	n, err := io.Copy(io.MultiWriter(f, h), body)
	if err != nil {
		return "", fmt.Errorf("reading body of %s: %w", url, err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", errTooLarge
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return "", fmt.Errorf("reading body of %s: got %d of %d bytes: %w", url, n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	return algo + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// verify compares the computed digest against the pinned one.
func verify(url, expected, actual string) error {
	if expected == "" {
		return nil
	}
	if !strings.EqualFold(expected, actual) {
		return &IntegrityError{URL: url, Expected: expected, Actual: actual}
	}
	return nil
}

func checksumAlgo(expected string) string {
	if strings.HasPrefix(strings.ToLower(expected), "sha512:") {
		return "sha512"
	}
	return "sha256"
}

func newHash(algo string) hash.Hash {
	if algo == "sha512" {
		return sha512.New()
	}
	return sha256.New()
}
