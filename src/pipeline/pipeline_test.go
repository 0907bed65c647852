package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/credentials"
	"github.com/sofmeright/artifreight/src/metrics"
	"github.com/sofmeright/artifreight/src/release"
	"github.com/sofmeright/artifreight/src/stage"
)

type fakeStager struct {
	err       error
	staged    int
	recovered []string
	dest      string
}

func (s *fakeStager) Stage(_ context.Context, spec artifact.Spec, dest string) (*stage.Root, error) {
	s.staged++
	s.dest = dest
	if s.err != nil {
		return nil, s.err
	}
	return &stage.Root{Path: filepath.Join(dest, stage.Key(spec)), Attempts: 1}, nil
}

func (s *fakeStager) Recover(context.Context, string) ([]string, error) {
	return s.recovered, nil
}

type fakePublisher struct {
	err   error
	calls int
	tag   string
	store *release.Store
}

func (p *fakePublisher) Publish(_ context.Context, _ *stage.Root, spec artifact.Spec, tag string, _ credentials.Provider) (*release.Result, error) {
	p.calls++
	p.tag = tag
	if p.err != nil {
		return nil, p.err
	}
	rec := release.Record{ID: "r", ImageTag: tag, ArtifactVersion: spec.Version, PushedAt: time.Unix(1700000000, 0), Success: true}
	if p.store != nil {
		if err := p.store.Append(rec); err != nil {
			return nil, err
		}
	}
	return &release.Result{Record: rec}, nil
}

func newPipeline(t *testing.T) (*Pipeline, *fakeStager, *fakePublisher) {
	t.Helper()

	resolver, err := artifact.NewResolver(config.DefaultArtifactConfig())
	require.NoError(t, err)
	store := release.NewStore(filepath.Join(t.TempDir(), "releases.jsonl"))
	st := &fakeStager{}
	pub := &fakePublisher{store: store}
	return &Pipeline{
		Resolver:  resolver,
		Stager:    st,
		Publisher: pub,
		History:   store,
		Metrics:   metrics.New(),
		Image:     "example/bedrockserver",
		CacheDir:  "/cache",
	}, st, pub
}

func TestRunDefaultsTagToVersion(t *testing.T) {
	p, st, pub := newPipeline(t)

	out, err := p.Run(context.Background(), Request{Version: "1.21.20.03"})
	require.NoError(t, err)
	assert.Equal(t, "example/bedrockserver:1.21.20.03", out.Tag)
	assert.Equal(t, out.Tag, pub.tag)
	assert.Equal(t, "/cache", st.dest)
	assert.False(t, out.Skipped)
}

func TestRunSkipsAlreadyReleased(t *testing.T) {
	p, st, pub := newPipeline(t)
	req := Request{Version: "1.21.20.03", Tag: "example/bedrockserver:1.21.20.03"}

	_, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	out, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 1, st.staged)
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, ExitOK, ExitCode(err))

	req.Force = true
	out, err = p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 2, pub.calls)
}

func TestRunUnresolvedVersionNeverStages(t *testing.T) {
	p, st, _ := newPipeline(t)

	_, err := p.Run(context.Background(), Request{Version: "not-a-version"})
	var unresolved *artifact.UnresolvedVersionError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, ExitResolution, ExitCode(err))
	assert.Zero(t, st.staged)
}

func TestRunNoTag(t *testing.T) {
	p, st, _ := newPipeline(t)
	p.Image = ""

	_, err := p.Run(context.Background(), Request{Version: "1.21.20.03"})
	require.ErrorIs(t, err, ErrNoTag)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.Zero(t, st.staged)
}

func TestRunStagingFailures(t *testing.T) {
	for _, cause := range []error{
		&stage.PathTraversalError{Entry: "../../evil", Target: "/evil"},
		&stage.IntegrityError{URL: "u", Expected: "sha256:aa", Actual: "sha256:bb"},
		&stage.DownloadError{URL: "u", Attempts: 3, Err: errors.New("reset")},
		&stage.EntrypointNotFoundError{Candidates: []string{"bedrock_server"}},
		errors.New("disk full"),
	} {
		t.Run(fmt.Sprintf("%T", cause), func(t *testing.T) {
			p, st, pub := newPipeline(t)
			st.err = cause

			_, err := p.Run(context.Background(), Request{Version: "1.21.20.03"})
			require.Error(t, err)
			assert.Equal(t, ExitStaging, ExitCode(err))
			assert.Zero(t, pub.calls)
			expected := `
# HELP artifreight_pipeline_failures_total Pipeline failures by stage of the run.
# TYPE artifreight_pipeline_failures_total counter
artifreight_pipeline_failures_total{stage="stage"} 1
`
			assert.NoError(t, testutil.GatherAndCompare(p.Metrics.Registry(), strings.NewReader(expected), "artifreight_pipeline_failures_total"))
		})
	}
}

func TestRunPublishFailureRecordsNothing(t *testing.T) {
	p, _, pub := newPipeline(t)
	pub.err = &release.PublishError{Op: "push", Ref: "x", Err: errors.New("denied")}

	_, err := p.Run(context.Background(), Request{Version: "1.21.20.03"})
	assert.Equal(t, ExitPublish, ExitCode(err))

	done, herr := p.History.Has("1.21.20.03", "example/bedrockserver:1.21.20.03")
	require.NoError(t, herr)
	assert.False(t, done)
}

type brokenHistory struct{ err error }

func (h brokenHistory) Has(string, string) (bool, error) { return false, h.err }

func TestRunUnreadableRecordsNeverStages(t *testing.T) {
	p, st, pub := newPipeline(t)
	p.History = brokenHistory{err: errors.New("releases.jsonl: permission denied")}

	_, err := p.Run(context.Background(), Request{Version: "1.21.20.03"})
	var records *RecordsError
	require.ErrorAs(t, err, &records)
	assert.Equal(t, ExitPublish, ExitCode(err))
	assert.NotEqual(t, ExitUsage, ExitCode(err))
	assert.Zero(t, st.staged)
	assert.Zero(t, pub.calls)

	// --force skips the lookup entirely
	_, err = p.Run(context.Background(), Request{Version: "1.21.20.03", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
}

func TestRunWritesSummaryAndTextfile(t *testing.T) {
	p, st, _ := newPipeline(t)
	st.recovered = []string{"/cache/.tmp-x"}
	var buf bytes.Buffer
	p.Out = &buf
	p.Textfile = filepath.Join(t.TempDir(), "artifreight.prom")

	_, err := p.Run(context.Background(), Request{Version: "1.21.20.03"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "── Summary")
	assert.Contains(t, buf.String(), "bedrock-server@1.21.20.03")
	assert.FileExists(t, p.Textfile)
}

func TestStageOnlyUsesDest(t *testing.T) {
	p, st, pub := newPipeline(t)

	out, err := p.Stage(context.Background(), Request{Version: "1.21.20.03", Dest: "/elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", st.dest)
	assert.Equal(t, "/elsewhere/bedrock-server@1.21.20.03", out.Root.Path)
	assert.Zero(t, pub.calls)
}

func TestExitCodeWrapped(t *testing.T) {
	err := fmt.Errorf("run: %w", &stage.IntegrityError{})
	assert.Equal(t, ExitStaging, ExitCode(err))
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(errors.New("bad flag")))
	assert.Equal(t, ExitPublish, ExitCode(fmt.Errorf("run: %w", &RecordsError{Err: errors.New("io")})))
}
