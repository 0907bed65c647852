package pipeline

import (
	"fmt"
	"io"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/build"
	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/credentials"
	"github.com/sofmeright/artifreight/src/metrics"
	"github.com/sofmeright/artifreight/src/release"
	"github.com/sofmeright/artifreight/src/secrets"
	"github.com/sofmeright/artifreight/src/stage"
)

// Options are the process-level knobs that do not live in the config file.
type Options struct {
	Verbose bool
	Out     io.Writer
	Color   bool
}

// New wires the production components from cfg.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	resolver, err := artifact.NewResolver(cfg.Artifact)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.FromConfig(cfg.Registry.Credentials)
	if err != nil {
		return nil, fmt.Errorf("registry credentials: %w", err)
	}

	var scanner *secrets.Scanner
	if cfg.Secrets.Scan {
		if scanner, err = secrets.NewScanner(cfg.Secrets.MaxFileSize); err != nil {
			return nil, err
		}
	}

	store := release.NewStore(cfg.Release.Records)

	var git release.Recorder
	if g := cfg.Release.Git; g.Enabled {
		var gitCreds credentials.Provider
		if g.Push {
			if gitCreds, err = credentials.FromConfig(g.Credentials); err != nil {
				return nil, fmt.Errorf("git credentials: %w", err)
			}
		}
		git = release.NewGitRecorder(g, []string{cfg.Release.Records}, gitCreds)
	}

	docker := build.NewDocker(opts.Verbose)
	publisher := release.NewPublisher(release.Options{
		Engine:       docker,
		Store:        store,
		Image:        cfg.Image,
		Server:       cfg.Registry.Server,
		PushAttempts: cfg.Registry.PushAttempts,
		PushBackoff:  cfg.Stage.Backoff.Std(),
		Scanner:      scanner,
		Git:          git,
	})

	return &Pipeline{
		Resolver:  resolver,
		Stager:    stage.New(cfg.Stage, cfg.Artifact.Headers, nil),
		Publisher: publisher,
		History:   store,
		Creds:     creds,
		Metrics:   metrics.New(),
		Image:     cfg.Registry.Image,
		CacheDir:  cfg.Stage.CacheDir,
		Textfile:  cfg.Metrics.Textfile,
		Out:       opts.Out,
		Color:     opts.Color,
	}, nil
}
