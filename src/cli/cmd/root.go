package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/logger"
	"github.com/sofmeright/artifreight/src/output"
	"github.com/sofmeright/artifreight/src/pipeline"
)

var (
	cfgFile  string
	verbose  bool
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "artifreight",
	Short: "Versioned artifact release pipeline",
	Long: `artifreight resolves an upstream artifact version, downloads and verifies it,
stages it into a reusable root, and publishes it as a container image with an
append-only release record.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version needs neither config nor logging.
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		lvl, ok := logger.ParseLevel(level)
		if !ok {
			return fmt.Errorf("unknown log level %q", level)
		}
		if verbose {
			lvl = zapcore.DebugLevel
		}
		logger.SetLevel(lvl)

		ctx := logger.WithName(logger.ToContext(cmd.Context(), logger.New(os.Stderr)), "artifreight")
		cmd.SetContext(ctx)

		warnings, err := config.Validate(cfg)
		for _, w := range warnings {
			logger.WarnKV(ctx, "config", "warning", w)
		}
		if err != nil {
			return fmt.Errorf("invalid config %s: %w", cfg.Path, err)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .artifreight.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and docker output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error (default from config)")
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// newPipeline wires the production pipeline for the loaded config.
func newPipeline() (*pipeline.Pipeline, error) {
	return pipeline.New(cfg, pipeline.Options{
		Verbose: verbose,
		Out:     os.Stdout,
		Color:   output.UseColor(),
	})
}
