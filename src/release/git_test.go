package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/artifreight/src/config"
)

func TestGitRecorderCommitsAndTags(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	records := filepath.Join(dir, "releases.jsonl")
	require.NoError(t, os.WriteFile(records, []byte(`{"id":"1"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	cfg := config.DefaultReleaseConfig().Git
	cfg.Enabled = true
	cfg.Dir = dir
	g := NewGitRecorder(cfg, []string{records}, nil)
	g.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }

	rec := Record{ImageTag: tag, ArtifactName: "bedrock-server", ArtifactVersion: "1.21.20.03"}
	res, err := g.Record(context.Background(), rec)
	require.NoError(t, err)
	require.NotEmpty(t, res.Commit)
	require.Equal(t, "bedrock-server-1.21.20.03", res.Tag)
	require.False(t, res.Pushed)

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	require.Equal(t, "Auto-build 1.21.20.03 2026-10-19_08-30-00", commit.Message)
	require.Equal(t, "artifreight", commit.Author.Name)

	files, err := commit.Files()
	require.NoError(t, err)
	var names []string
	require.NoError(t, files.ForEach(func(f *object.File) error {
		names = append(names, f.Name)
		return nil
	}))
	require.Equal(t, []string{"releases.jsonl"}, names, "only the configured paths are committed")

	_, err = repo.Tag("bedrock-server-1.21.20.03")
	require.NoError(t, err)

	// nothing new staged: no second commit, no tag collision
	res, err = g.Record(context.Background(), rec)
	require.NoError(t, err)
	require.Empty(t, res.Commit)
}

func TestGitRecorderAddAll(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	cfg := config.DefaultReleaseConfig().Git
	cfg.Dir = dir
	cfg.AddAll = true
	cfg.Tag = ""

	res, err := NewGitRecorder(cfg, nil, nil).Record(context.Background(), Record{ArtifactVersion: "1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Commit)
	require.Empty(t, res.Tag)
}

func TestGitRecorderNotARepo(t *testing.T) {
	cfg := config.DefaultReleaseConfig().Git
	cfg.Dir = t.TempDir()

	_, err := NewGitRecorder(cfg, nil, nil).Record(context.Background(), Record{})
	require.Error(t, err)
}
