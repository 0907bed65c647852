package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/sofmeright/artifreight/src/credentials"
	"github.com/sofmeright/artifreight/src/logger"
)

// Registry is an authenticated push session.
type Registry interface {
	Push(ctx context.Context, ref string) (string, error)
	Logout(ctx context.Context) error
}

// Docker wraps the docker CLI.
type Docker struct {
	Binary  string
	Verbose bool
	Stderr  io.Writer // verbose command echo and output
}

// NewDocker creates a Docker runner that echoes to stderr when verbose.
func NewDocker(verbose bool) *Docker {
	return &Docker{
		Binary:  "docker",
		Verbose: verbose,
		Stderr:  os.Stderr,
	}
}

// CommandError is a failed docker invocation. Output holds combined
// stdout/stderr; it never contains credentials because secrets only travel
// on stdin.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if i := strings.LastIndex(out, "\n"); i >= 0 {
		out = out[i+1:]
	}
	return fmt.Sprintf("docker %s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error { return e.Err }

// transientMarkers are docker/registry messages that indicate a network or
// server-side hiccup rather than a rejected request.
var transientMarkers = []string{
	"i/o timeout",
	"timeout exceeded",
	"tls handshake timeout",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"no such host",
	"toomanyrequests",
	"too many requests",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway timeout",
	"received unexpected http status: 5",
}

// Transient reports whether the failure looks like a network problem worth
// retrying. Authentication and manifest errors are not.
func (e *CommandError) Transient() bool {
	out := strings.ToLower(e.Output)
	for _, m := range []string{"denied", "unauthorized", "authentication required", "manifest invalid"} {
		if strings.Contains(out, m) {
			return false
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a transient CommandError.
func IsTransient(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Transient()
}

// run executes docker with args, optionally feeding stdin, and returns the
// combined output. Output is also streamed to Stderr when Verbose.
func (d *Docker) run(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	if d.Verbose {
		fmt.Fprintf(d.Stderr, "exec: %s %s\n", d.Binary, strings.Join(args, " "))
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if d.Verbose {
		w = io.MultiWriter(&buf, d.Stderr)
	}

	cmd := exec.CommandContext(ctx, d.Binary, args...)
	cmd.Stdin = stdin
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return buf.String(), &CommandError{Args: args, Output: buf.String(), Err: err}
	}
	return buf.String(), nil
}

// Build runs docker buildx build --load for step.
func (d *Docker) Build(ctx context.Context, step BuildStep) (*StepResult, error) {
	start := time.Now()
	result := &StepResult{Name: step.Name}

	out, err := d.run(ctx, nil, d.buildArgs(step)...)
	result.Layers = ParseBuildxOutput(out)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = "failed"
		result.Error = err
		return result, err
	}

	result.Status = "success"
	result.Images = step.Tags
	return result, nil
}

// buildArgs constructs the docker buildx build argument list.
func (d *Docker) buildArgs(step BuildStep) []string {
	args := []string{"buildx", "build", "--progress=plain", "--load"}

	if step.Dockerfile != "" {
		args = append(args, "--file", step.Dockerfile)
	}
	if step.Platform != "" {
		args = append(args, "--platform", step.Platform)
	}

	// sorted so the command line is stable
	for _, k := range sortedKeys(step.BuildArgs) {
		args = append(args, "--build-arg", k+"="+step.BuildArgs[k])
	}
	for _, k := range sortedKeys(step.Labels) {
		args = append(args, "--label", k+"="+step.Labels[k])
	}
	for _, tag := range step.Tags {
		args = append(args, "--tag", tag)
	}

	ctxDir := step.Context
	if ctxDir == "" {
		ctxDir = "."
	}
	return append(args, ctxDir)
}

// Login authenticates against server in a private docker config directory
// and returns a session that pushes with it. A nil cred skips login and
// pushes with the ambient docker config. The password goes over stdin.
func (d *Docker) Login(ctx context.Context, server string, cred *credentials.Credential) (Registry, error) {
	if cred == nil {
		return &session{d: d, server: server}, nil
	}

	dir, err := os.MkdirTemp("", "artifreight-docker-")
	if err != nil {
		return nil, fmt.Errorf("creating docker config dir: %w", err)
	}
	s := &session{d: d, server: server, configDir: dir}

	args := []string{"--config", dir, "login", "--username", cred.Username, "--password-stdin"}
	if server != "" && server != "docker.io" {
		args = append(args, server)
	}
	if _, err := d.run(ctx, bytes.NewReader(cred.Secret), args...); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("docker login %s: %w", server, err)
	}
	logger.InfoKV(ctx, "logged in to registry", "server", server, "user", cred.Username)
	return s, nil
}

type session struct {
	d         *Docker
	server    string
	configDir string
}

// Push pushes ref and returns the manifest digest reported by docker.
func (s *session) Push(ctx context.Context, ref string) (string, error) {
	args := []string{"push", ref}
	if s.configDir != "" {
		args = append([]string{"--config", s.configDir}, args...)
	}
	out, err := s.d.run(ctx, nil, args...)
	if err != nil {
		return "", err
	}
	return ParseDigest(out), nil
}

// Logout ends the session and removes its config directory. It is safe to
// call more than once.
func (s *session) Logout(ctx context.Context) error {
	if s.configDir == "" {
		return nil
	}
	args := []string{"--config", s.configDir, "logout"}
	if s.server != "" && s.server != "docker.io" {
		args = append(args, s.server)
	}
	// a cancelled run still has to clear the stored auth
	_, err := s.d.run(context.WithoutCancel(ctx), nil, args...)
	if rmErr := os.RemoveAll(s.configDir); rmErr != nil && err == nil {
		err = rmErr
	}
	s.configDir = ""
	return err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
