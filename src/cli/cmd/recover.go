package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofmeright/artifreight/src/stage"
)

var recoverDest string

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Discard incomplete or unmarked staged roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := recoverDest
		if dest == "" {
			dest = cfg.Stage.CacheDir
		}
		removed, err := stage.New(cfg.Stage, nil, nil).Recover(cmd.Context(), dest)
		if err != nil {
			return err
		}
		for _, p := range removed {
			fmt.Fprintln(cmd.OutOrStdout(), "removed", p)
		}
		return nil
	},
}

func init() {
	recoverCmd.Flags().StringVar(&recoverDest, "dest", "", "staging directory (default: stage.cache_dir)")
	rootCmd.AddCommand(recoverCmd)
}
