// Package cmd defines and implements the CLI commands for the fipecrawler
// executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/config"
	"github.com/fipeops/fipecrawler/internal/logging"
)

var cfgFile string

// runtimeKeyType is the key for storing the command runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime holds the dependencies every subcommand needs.
type runtime struct {
	cfg config.Config
	log *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fipecrawler",
		Short: "Crawls the FIPE vehicle price catalog into a local cache",
		Long: `fipecrawler walks the FIPE vehicle price reference tables, caching
brands, models, model-year variants and price quotes locally, and keeps a
remote Postgres mirror in sync with the local cache.`,
		SilenceUsage: true,

		// Runs after flags are parsed but before the subcommand's RunE,
		// so every subcommand finds config and logger in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, log: logger})
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				_ = rt.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus FIPE_* env)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newPricesCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// resolveRuntime fetches the runtime stored by PersistentPreRunE.
func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("command runtime not initialized")
	}
	return rt, nil
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
