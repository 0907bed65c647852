package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/credentials"
	"github.com/sofmeright/artifreight/src/logger"
)

// GitRecorder commits, tags, and optionally pushes after a release.
type GitRecorder struct {
	cfg   config.GitConfig
	paths []string
	creds credentials.Provider
	now   func() time.Time
}

// GitResult describes what the recorder did.
type GitResult struct {
	Commit string // empty when there was nothing to commit
	Tag    string
	Pushed bool
}

// NewGitRecorder builds a recorder. paths are staged when cfg.Paths is
// empty and cfg.AddAll is false.
func NewGitRecorder(cfg config.GitConfig, defaultPaths []string, creds credentials.Provider) *GitRecorder {
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = defaultPaths
	}
	return &GitRecorder{cfg: cfg, paths: paths, creds: creds, now: time.Now}
}

// Record stages, commits, tags, and pushes for rec. Nothing staged means no
// commit and no tag.
func (g *GitRecorder) Record(ctx context.Context, rec Record) (*GitResult, error) {
	repo, err := git.PlainOpenWithOptions(g.cfg.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", g.cfg.Dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	if err := g.stage(wt); err != nil {
		return nil, err
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	if !hasStaged(status) {
		logger.Info(ctx, "no staged changes; skipping git commit")
		return &GitResult{}, nil
	}

	now := g.now()
	sig := &object.Signature{Name: g.cfg.AuthorName, Email: g.cfg.AuthorEmail, When: now}
	msg := expand(g.cfg.Message, rec, now)

	hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return nil, fmt.Errorf("git commit: %w", err)
	}
	res := &GitResult{Commit: hash.String()}
	logger.InfoKV(ctx, "committed release", "commit", hash.String()[:7], "message", msg)

	if g.cfg.Tag != "" {
		name := expand(g.cfg.Tag, rec, now)
		if _, err := repo.CreateTag(name, hash, &git.CreateTagOptions{Tagger: sig, Message: msg}); err != nil {
			return res, fmt.Errorf("git tag %s: %w", name, err)
		}
		res.Tag = name
	}

	if g.cfg.Push {
		if err := g.push(ctx, repo, res.Tag); err != nil {
			return res, err
		}
		res.Pushed = true
	}
	return res, nil
}

func (g *GitRecorder) stage(wt *git.Worktree) error {
	if g.cfg.AddAll {
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return fmt.Errorf("git add -A: %w", err)
		}
		return nil
	}

	root := wt.Filesystem.Root()
	for _, p := range g.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("git add %s: path is outside the worktree %s", p, root)
		}
		if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("git add %s: %w", rel, err)
		}
	}
	return nil
}

func (g *GitRecorder) push(ctx context.Context, repo *git.Repository, tag string) error {
	head, err := repo.Head()
	if err != nil {
		return err
	}
	specs := []gitconfig.RefSpec{gitconfig.RefSpec(head.Name().String() + ":" + head.Name().String())}
	if tag != "" {
		ref := plumbing.NewTagReferenceName(tag).String()
		specs = append(specs, gitconfig.RefSpec(ref+":"+ref))
	}

	opts := &git.PushOptions{RemoteName: g.cfg.Remote, RefSpecs: specs}
	if g.creds != nil {
		cred, err := g.creds.Acquire(ctx)
		if err != nil {
			return err
		}
		defer cred.Wipe()
		if cred != nil {
			opts.Auth = &githttp.BasicAuth{Username: cred.Username, Password: string(cred.Secret)}
		}
	}

	err = repo.PushContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("git push %s: %w", g.cfg.Remote, err)
	}
	return nil
}

func hasStaged(st git.Status) bool {
	for _, s := range st {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true
		}
	}
	return false
}

func expand(tmpl string, rec Record, now time.Time) string {
	r := strings.NewReplacer(
		"{name}", rec.ArtifactName,
		"{version}", rec.ArtifactVersion,
		"{tag}", rec.ImageTag,
		"{timestamp}", now.Format("2006-01-02_15-04-05"),
	)
	return r.Replace(tmpl)
}
