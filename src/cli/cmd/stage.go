package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofmeright/artifreight/src/pipeline"
)

var (
	stageVersion  string
	stageChecksum string
	stageDest     string
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Download, verify, and extract an artifact without publishing",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		out, err := p.Stage(cmd.Context(), pipeline.Request{
			Version:  stageVersion,
			Checksum: stageChecksum,
			Dest:     stageDest,
		})
		if err != nil {
			return err
		}
		if werr := p.Metrics.WriteTextfile(p.Textfile); werr != nil {
			return werr
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Root.Path)
		return nil
	},
}

func init() {
	stageCmd.Flags().StringVar(&stageVersion, "version", "", "artifact version (default: artifact.latest_known)")
	stageCmd.Flags().StringVar(&stageChecksum, "checksum", "", "expected sha256/sha512 digest")
	stageCmd.Flags().StringVar(&stageDest, "dest", "", "staging directory (default: stage.cache_dir)")
	rootCmd.AddCommand(stageCmd)
}
