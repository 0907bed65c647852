package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/output"
	"github.com/sofmeright/artifreight/src/pipeline"
	"github.com/sofmeright/artifreight/src/version"
)

var (
	relVersion  string
	relChecksum string
	relTag      string
	relForce    bool
	relDest     string
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Resolve, stage, build, push, and record one artifact version",
	Long: `Resolve the artifact version (or artifact.latest_known), download and verify
it, stage it, build the runtime image, push it, and append a release record.

A version already recorded for the same image tag is skipped unless --force
or ARTIFREIGHT_FORCE is set.`,
	Example: `  artifreight release --version 1.21.20.03 --checksum sha256:9f2c... --tag example/bedrockserver:1.21.20.03`,
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&relVersion, "version", "", "artifact version (default: artifact.latest_known)")
	releaseCmd.Flags().StringVar(&relChecksum, "checksum", "", "expected sha256/sha512 digest, overrides a pinned value")
	releaseCmd.Flags().StringVar(&relTag, "tag", "", "image reference to push (default: registry.image:<version>)")
	releaseCmd.Flags().BoolVar(&relForce, "force", false, "rebuild even if this version was already released")
	releaseCmd.Flags().StringVar(&relDest, "dest", "", "staging directory (default: stage.cache_dir)")

	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := newPipeline()
	if err != nil {
		return err
	}

	if p.Out != nil {
		output.ContextBlock(os.Stdout, append([]output.KV{
			{Key: "artifreight", Value: version.Version},
			{Key: "config", Value: orDefault(cfg.Path, "defaults")},
		}, output.CIContext()...))
	}

	out, err := p.Run(ctx, pipeline.Request{
		Version:  relVersion,
		Checksum: relChecksum,
		Tag:      relTag,
		Force:    relForce || config.Truthy(os.Getenv(config.EnvForce)),
		Dest:     relDest,
	})
	if err != nil {
		return err
	}
	if out.Skipped {
		return nil
	}
	logger.InfoKV(ctx, "release complete", "tag", out.Tag, "digest", out.Publish.Record.Digest)
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
