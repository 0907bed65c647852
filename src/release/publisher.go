// Package release turns a staged root into a pushed image and records the
// push. A record is appended only after every tag has been pushed.
package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/build"
	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/credentials"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/secrets"
	"github.com/sofmeright/artifreight/src/stage"
)

// Engine builds images and opens registry sessions.
type Engine interface {
	Build(ctx context.Context, step build.BuildStep) (*build.StepResult, error)
	Login(ctx context.Context, server string, cred *credentials.Credential) (build.Registry, error)
}

// Recorder runs after a record is appended. Its failures never undo the
// record.
type Recorder interface {
	Record(ctx context.Context, rec Record) (*GitResult, error)
}

// Options wires a Publisher.
type Options struct {
	Engine       Engine
	Store        *Store
	Image        config.ImageConfig
	Server       string // login host override
	PushAttempts int
	PushBackoff  time.Duration
	Scanner      *secrets.Scanner // nil disables the secret gate
	Git          Recorder         // nil disables the VCS step
}

// Publisher is the build, push, record step.
type Publisher struct {
	opts Options
	now  func() time.Time
}

// NewPublisher validates opts and returns a Publisher.
func NewPublisher(opts Options) *Publisher {
	if opts.PushAttempts < 1 {
		opts.PushAttempts = 1
	}
	if opts.PushBackoff <= 0 {
		opts.PushBackoff = 2 * time.Second
	}
	return &Publisher{opts: opts, now: time.Now}
}

// Result is everything a successful publish produced.
type Result struct {
	Record Record
	Build  *build.StepResult
	Pushes []build.PushResult
	Git    *GitResult
	GitErr error
}

// Publish builds root into an image tagged tag (plus any configured extra
// tags), pushes it with credentials acquired from creds for this call only,
// and appends a Record. Nothing is recorded unless every push succeeded.
func (p *Publisher) Publish(ctx context.Context, root *stage.Root, spec artifact.Spec, tag string, creds credentials.Provider) (*Result, error) {
	ctx = logger.WithKV(ctx, "tag", tag)

	m, err := stage.ReadMarker(root.Path)
	if err != nil {
		return nil, &PublishError{Op: "validate", Err: err}
	}
	if !m.Matches(spec) {
		return nil, &PublishError{Op: "validate", Err: fmt.Errorf("staged root holds %s %s, expected %s", m.Name, m.Version, spec)}
	}

	if err := p.scan(ctx, root.Path); err != nil {
		return nil, err
	}

	repo, _ := build.SplitRef(tag)
	refs := append([]string{tag}, build.ResolveTags(p.opts.Image.Tags, repo, tag, spec)...)

	res := &Result{}
	if res.Build, err = p.build(ctx, root, spec, m, refs); err != nil {
		return nil, err
	}

	if res.Pushes, err = p.push(ctx, tag, refs, creds); err != nil {
		return nil, err
	}

	rec := Record{
		ID:              uuid.NewString(),
		ImageTag:        tag,
		ExtraTags:       refs[1:],
		ArtifactName:    spec.Name,
		ArtifactVersion: spec.Version,
		Checksum:        m.Checksum,
		Digest:          res.Pushes[0].Digest,
		PushedAt:        p.now().UTC(),
		Success:         true,
	}
	if err := p.opts.Store.Append(rec); err != nil {
		return nil, &PublishError{Op: "record", Ref: tag, Err: err}
	}
	res.Record = rec
	logger.InfoKV(ctx, "release recorded", "id", rec.ID, "digest", rec.Digest, "records", p.opts.Store.Path())

	if p.opts.Git != nil {
		res.Git, res.GitErr = p.opts.Git.Record(ctx, rec)
		if res.GitErr != nil {
			logger.WarnKV(ctx, "git step failed; the release record stands", "error", res.GitErr)
		}
	}
	return res, nil
}

func (p *Publisher) scan(ctx context.Context, root string) error {
	if p.opts.Scanner == nil {
		return nil
	}
	p.opts.Scanner.Skip[stage.MarkerFile] = true

	findings, err := p.opts.Scanner.Scan(ctx, root)
	if err != nil {
		return &PublishError{Op: "scan", Err: err}
	}
	if len(findings) == 0 {
		return nil
	}
	for _, f := range findings {
		logger.ErrorKV(ctx, "secret found in staged artifact", "finding", f.String())
	}
	return &PublishError{Op: "scan", Err: fmt.Errorf("%d secret(s) found in %s", len(findings), root)}
}

func (p *Publisher) build(ctx context.Context, root *stage.Root, spec artifact.Spec, m stage.Marker, refs []string) (*build.StepResult, error) {
	// the Dockerfile lives outside the staged root so the root stays as
	// extracted and can be reused by later runs
	dir, err := os.MkdirTemp("", "artifreight-build-")
	if err != nil {
		return nil, &PublishError{Op: "render", Err: err}
	}
	defer os.RemoveAll(dir)

	dockerfile, args, err := build.WriteDockerfile(dir, p.opts.Image, spec, []string{stage.MarkerFile}, p.now())
	if err != nil {
		return nil, &PublishError{Op: "render", Err: err}
	}

	step := build.BuildStep{
		Name:       spec.String(),
		Dockerfile: dockerfile,
		Context:    root.Path,
		Platform:   p.opts.Image.Platform,
		BuildArgs:  args,
		Tags:       refs,
		Labels: map[string]string{
			"io.artifreight.artifact": spec.Name,
			"io.artifreight.version":  spec.Version,
			"io.artifreight.checksum": m.Checksum,
		},
	}

	logger.InfoKV(ctx, "building image", "refs", refs)
	res, err := p.opts.Engine.Build(ctx, step)
	if err != nil {
		return res, &PublishError{Op: "build", Ref: refs[0], Err: err}
	}
	return res, nil
}

// push acquires credentials, logs in, pushes every ref, and logs out. The
// credential is wiped before push returns on every path.
func (p *Publisher) push(ctx context.Context, tag string, refs []string, creds credentials.Provider) ([]build.PushResult, error) {
	if creds == nil {
		creds = credentials.None{}
	}
	cred, err := creds.Acquire(ctx)
	if err != nil {
		return nil, &PublishError{Op: "credentials", Err: err}
	}
	defer cred.Wipe()

	server := p.opts.Server
	if server == "" {
		server = build.RegistryHost(tag)
	}

	reg, _, err := retry(ctx, p, func() (build.Registry, error) {
		return p.opts.Engine.Login(ctx, server, cred)
	})
	cred.Wipe()
	if err != nil {
		return nil, &PublishError{Op: "login", Ref: server, Transient: build.IsTransient(err), Err: err}
	}
	defer func() {
		if err := reg.Logout(ctx); err != nil {
			logger.WarnKV(ctx, "registry logout failed", "server", server, "error", err)
		}
	}()

	results := make([]build.PushResult, 0, len(refs))
	for _, ref := range refs {
		start := time.Now()
		digest, attempts, err := retry(ctx, p, func() (string, error) {
			return reg.Push(ctx, ref)
		})
		if err != nil {
			return nil, &PublishError{Op: "push", Ref: ref, Transient: build.IsTransient(err), Err: err}
		}
		logger.InfoKV(ctx, "pushed", "ref", ref, "digest", digest, "attempts", attempts)
		results = append(results, build.PushResult{Ref: ref, Digest: digest, Attempts: attempts, Duration: time.Since(start)})
	}
	return results, nil
}

// retry runs op up to PushAttempts times, retrying only transient docker
// failures.
func retry[T any](ctx context.Context, p *Publisher, op func() (T, error)) (T, int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.PushBackoff

	attempts := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op()
		if err != nil && (!build.IsTransient(err) || errors.Is(err, context.Canceled)) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.PushAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WarnKV(ctx, "transient registry failure, retrying", "attempt", attempts, "next", next, "error", err)
		}),
	)
	return v, attempts, err
}
