package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/api"
	"github.com/fipeops/fipecrawler/internal/orchestrator"
	"github.com/fipeops/fipecrawler/internal/processor"
	"github.com/fipeops/fipecrawler/internal/stats"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one full catalog
// discovery pass over the configured vehicle classes.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Discovers brands, models and model years into the local cache",
		Long: `Refreshes the pricing reference tables, then walks every brand of the
configured vehicle classes, caching models, model-year variants and the links
between them. Brands whose cached catalog already covers the upstream model
listing are skipped after that single listing request.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	client, err := buildClient(rt)
	if err != nil {
		return fmt.Errorf("build api client: %w", err)
	}
	db, err := openCache(rt)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			rt.log.Warn("failed to close cache", zap.Error(cerr))
		}
	}()

	tracker := stats.NewTracker()
	client.SetRecorder(tracker)
	db.SetRecorder(tracker)
	proc := processor.New(client, db, tracker, rt.log)
	orch := orchestrator.New(client, db, proc, tracker,
		rt.cfg.Crawler.Workers, rt.cfg.Classes(), rt.log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if rt.cfg.Server.Enabled {
		srv := api.NewServer(tracker, rt.cfg.Server.Port, rt.log)
		go func() {
			if serr := srv.Run(ctx); serr != nil {
				rt.log.Warn("metrics server stopped", zap.Error(serr))
			}
		}()
	}

	snap, err := orch.Run(ctx)
	snap.Render(os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}
	return nil
}
