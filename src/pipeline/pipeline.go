// Package pipeline drives one release run: recover, resolve, guard, stage,
// publish. Components are injected so the driver can be exercised with
// fakes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/credentials"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/metrics"
	"github.com/sofmeright/artifreight/src/output"
	"github.com/sofmeright/artifreight/src/release"
	"github.com/sofmeright/artifreight/src/stage"
)

// ErrNoTag is returned when neither --tag nor registry.image names the
// target image.
var ErrNoTag = errors.New("no image tag: pass --tag or set registry.image")

// Resolver produces an artifact.Spec.
type Resolver interface {
	Resolve(requested, checksum string) (artifact.Spec, error)
}

// Stager materializes a spec into a staged root.
type Stager interface {
	Stage(ctx context.Context, spec artifact.Spec, destRoot string) (*stage.Root, error)
	Recover(ctx context.Context, destRoot string) ([]string, error)
}

// Publisher builds, pushes, and records.
type Publisher interface {
	Publish(ctx context.Context, root *stage.Root, spec artifact.Spec, tag string, creds credentials.Provider) (*release.Result, error)
}

// History answers whether a release already happened.
type History interface {
	Has(version, imageTag string) (bool, error)
}

// Pipeline is one configured release driver.
type Pipeline struct {
	Resolver  Resolver
	Stager    Stager
	Publisher Publisher
	History   History
	Creds     credentials.Provider
	Metrics   *metrics.Recorder

	// Image is the repository used when Request.Tag is empty.
	Image    string
	CacheDir string
	Textfile string

	Out   io.Writer // nil disables the framed summary
	Color bool
}

// Request is the operator's input for one run.
type Request struct {
	Version  string
	Checksum string
	Tag      string
	Force    bool
	Dest     string // overrides CacheDir
}

// Outcome is what a run produced. Skipped is set when the version guard
// found an existing release.
type Outcome struct {
	Spec    artifact.Spec
	Tag     string
	Root    *stage.Root
	Publish *release.Result
	Skipped bool
}

// Run executes the release. Failures are counted, summarized, and returned
// with their typed cause intact for ExitCode.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	r := &run{p: p, ctx: ctx}

	out, err := r.release(req)
	if err != nil {
		p.Metrics.Failed(r.current)
		r.add(r.current, "failed", err.Error(), 0)
	} else if out.Publish != nil {
		p.Metrics.Published(out.Publish.Record.PushedAt)
	}

	if p.Out != nil {
		output.Summary(p.Out, r.phases, time.Since(start), p.Color)
	}
	if werr := p.Metrics.WriteTextfile(p.Textfile); werr != nil {
		logger.WarnKV(ctx, "writing metrics textfile", "path", p.Textfile, "error", werr)
	}
	return out, err
}

// Stage runs recovery, resolution, and staging without publishing.
func (p *Pipeline) Stage(ctx context.Context, req Request) (*Outcome, error) {
	r := &run{p: p, ctx: ctx}
	dest := p.dest(req)
	if err := r.recover(dest); err != nil {
		return nil, err
	}
	spec, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	root, err := r.stage(spec, dest)
	if err != nil {
		p.Metrics.Failed("stage")
		return &Outcome{Spec: spec}, err
	}
	return &Outcome{Spec: spec, Root: root}, nil
}

func (p *Pipeline) dest(req Request) string {
	if req.Dest != "" {
		return req.Dest
	}
	return p.CacheDir
}

// run carries per-invocation state.
type run struct {
	p       *Pipeline
	ctx     context.Context
	current string
	phases  []output.Phase
}

func (r *run) add(name, status, detail string, elapsed time.Duration) {
	r.phases = append(r.phases, output.Phase{Name: name, Status: status, Detail: detail, Elapsed: elapsed})
}

func (r *run) release(req Request) (*Outcome, error) {
	ctx, p := r.ctx, r.p
	dest := p.dest(req)

	if err := r.recover(dest); err != nil {
		return nil, err
	}

	spec, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Spec: spec}

	r.current = "resolve"
	out.Tag = req.Tag
	if out.Tag == "" {
		if p.Image == "" {
			return out, ErrNoTag
		}
		out.Tag = p.Image + ":" + spec.Version
	}

	if !req.Force && p.History != nil {
		r.current = "guard"
		done, err := p.History.Has(spec.Version, out.Tag)
		if err != nil {
			return out, &RecordsError{Err: err}
		}
		if done {
			logger.InfoKV(ctx, "already released; skipping (use --force to rebuild)", "version", spec.Version, "tag", out.Tag)
			r.add("guard", "skipped", "already released "+out.Tag, 0)
			out.Skipped = true
			return out, nil
		}
	}

	if out.Root, err = r.stage(spec, dest); err != nil {
		return out, err
	}

	r.current = "publish"
	start := time.Now()
	output.SectionStart(p.sink(), "publish", "Publish", true)
	out.Publish, err = p.Publisher.Publish(ctx, out.Root, spec, out.Tag, p.Creds)
	output.SectionEnd(p.sink(), "publish")
	elapsed := time.Since(start)
	p.Metrics.Observe("publish", elapsed)
	if err != nil {
		logger.ErrorKV(ctx, "publish failed; nothing recorded", "tag", out.Tag, "error", err)
		return out, err
	}

	if p.Out != nil {
		res := out.Publish
		output.BuildSection(p.Out, res.Build, p.Color)
		output.PushSection(p.Out, res.Pushes, elapsed, p.Color)
		output.RecordSection(p.Out, recordsPath(p.History), res.Record, res.Git, res.GitErr, p.Color)
	}
	r.add("publish", "success", fmt.Sprintf("%s (%d tags)", out.Tag, len(out.Publish.Pushes)), elapsed)
	return out, nil
}

func (r *run) recover(dest string) error {
	r.current = "recover"
	removed, err := r.p.Stager.Recover(r.ctx, dest)
	if err != nil {
		return &StageError{Err: fmt.Errorf("recovering %s: %w", dest, err)}
	}
	for _, path := range removed {
		logger.WarnKV(r.ctx, "discarded incomplete staged state", "path", path)
	}
	return nil
}

func (r *run) resolve(req Request) (artifact.Spec, error) {
	r.current = "resolve"
	start := time.Now()
	spec, err := r.p.Resolver.Resolve(req.Version, req.Checksum)
	if err != nil {
		logger.ErrorKV(r.ctx, "cannot resolve version", "error", err)
		return spec, err
	}
	if spec.ExpectedChecksum == "" {
		logger.WarnKV(r.ctx, "no checksum pinned; the download will not be verified", "version", spec.Version)
	}
	if r.p.Out != nil {
		output.ResolveSection(r.p.Out, spec, time.Since(start), r.p.Color)
	}
	r.add("resolve", "success", spec.String(), time.Since(start))
	return spec, nil
}

func (r *run) stage(spec artifact.Spec, dest string) (*stage.Root, error) {
	r.current = "stage"
	ctx, p := logger.WithKV(r.ctx, "artifact", spec.String()), r.p
	start := time.Now()

	output.SectionStart(p.sink(), "stage", "Stage "+spec.String(), true)
	root, err := p.Stager.Stage(ctx, spec, dest)
	output.SectionEnd(p.sink(), "stage")
	elapsed := time.Since(start)
	p.Metrics.Observe("stage", elapsed)

	if err != nil {
		var traversal *stage.PathTraversalError
		var integrity *stage.IntegrityError
		switch {
		case errors.As(err, &traversal):
			logger.ErrorKV(logger.WithName(ctx, "security"), "archive rejected: entry escapes the staging root",
				"entry", traversal.Entry, "target", traversal.Target)
		case errors.As(err, &integrity):
			logger.ErrorKV(ctx, "artifact integrity check failed; refusing to stage", "expected", integrity.Expected, "actual", integrity.Actual)
		default:
			logger.ErrorKV(ctx, "staging failed", "error", err)
		}
		if !isTyped(err) {
			err = &StageError{Err: err}
		}
		return nil, err
	}

	p.Metrics.Staged(root.CacheHit, root.Attempts)
	if p.Out != nil {
		output.StageSection(p.Out, root, elapsed, p.Color)
	}
	detail := "downloaded"
	if root.CacheHit {
		detail = "cache hit"
	}
	r.add("stage", "success", detail, elapsed)
	return root, nil
}

// sink is where CI section markers go.
func (p *Pipeline) sink() io.Writer {
	if p.Out == nil {
		return io.Discard
	}
	return p.Out
}

func isTyped(err error) bool {
	return ExitCode(err) == ExitStaging
}

func recordsPath(h History) string {
	if s, ok := h.(*release.Store); ok {
		return s.Path()
	}
	return ""
}
