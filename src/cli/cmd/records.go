package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/release"
)

var recordsJSON bool

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the release log",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := release.NewStore(cfg.Release.Records)
		recs, skipped, err := store.List()
		if err != nil {
			return err
		}
		if skipped > 0 {
			logger.WarnKV(cmd.Context(), "skipped unreadable release log lines", "count", skipped, "path", store.Path())
		}

		w := cmd.OutOrStdout()
		if recordsJSON {
			enc := json.NewEncoder(w)
			for _, r := range recs {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PUSHED\tVERSION\tTAG\tDIGEST\tOK")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.PushedAt.Format(time.RFC3339), r.ArtifactVersion, r.ImageTag, shortDigest(r.Digest), r.Success)
		}
		return tw.Flush()
	},
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON lines")
	rootCmd.AddCommand(recordsCmd)
}

func shortDigest(d string) string {
	if len(d) > 19 {
		return d[:19]
	}
	return d
}
