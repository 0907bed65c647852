package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/transport"
)

var discoverWrite bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Query the upstream links API for the current version",
	Long: `Query artifact.discovery.url and print the version and download URL of the
entry matching artifact.discovery.download_type.

The result is never used implicitly; pin it with --write, which sets
artifact.latest_known in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d := cfg.Artifact.Discovery
		if d.URL == "" {
			return fmt.Errorf("artifact.discovery.url is not set")
		}

		found, err := artifact.Discover(ctx, transport.New(nil, cfg.Artifact.Headers), d.URL, d.DownloadType)
		if err != nil {
			return err
		}

		r, err := artifact.NewResolver(cfg.Artifact)
		if err != nil {
			return err
		}
		if err := r.Validate(found.Version); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", found.Version, found.DownloadURL)
		if found.DownloadURL != r.URL(found.Version) {
			logger.WarnKV(ctx, "upstream URL differs from artifact.url_template", "upstream", found.DownloadURL, "template", r.URL(found.Version))
		}

		if !discoverWrite {
			return nil
		}
		if err := config.SetLatestKnown(cfg.Path, found.Version); err != nil {
			return err
		}
		logger.InfoKV(ctx, "pinned latest_known", "version", found.Version, "config", orDefault(cfg.Path, ".artifreight.yml"))
		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverWrite, "write", false, "pin the discovered version as artifact.latest_known")
	rootCmd.AddCommand(discoverCmd)
}
