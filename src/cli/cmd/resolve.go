package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sofmeright/artifreight/src/artifact"
)

var resolveVersion string

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the artifact spec a version resolves to",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := artifact.NewResolver(cfg.Artifact)
		if err != nil {
			return err
		}
		spec, err := r.Resolve(resolveVersion, "")
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(spec)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveVersion, "version", "", "artifact version (default: artifact.latest_known)")
	rootCmd.AddCommand(resolveCmd)
}
