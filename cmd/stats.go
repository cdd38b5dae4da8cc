package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/cache"
	"github.com/fipeops/fipecrawler/internal/remote"
	"github.com/fipeops/fipecrawler/internal/stats"
	"github.com/fipeops/fipecrawler/internal/syncer"
)

// newStatsCmd creates the 'stats' subcommand, which prints per-table row
// counts for the local cache and, when a remote DSN is configured, the
// remote store next to it.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints per-table row counts for the local cache",
		RunE:  runStatsCommand,
	}
}

func runStatsCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
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

	if rt.cfg.Remote.DSN == "" {
		counts := make([]stats.TableCount, 0, len(cache.SyncTables()))
		for _, spec := range cache.SyncTables() {
			n, cerr := db.CountFor(cmd.Context(), spec.Name)
			if cerr != nil {
				return fmt.Errorf("count %s: %w", spec.Name, cerr)
			}
			counts = append(counts, stats.TableCount{Table: spec.Name, Local: n})
		}
		stats.RenderCounts(os.Stdout, counts, false)
		return nil
	}

	store, err := remote.New(cmd.Context(), remote.Config{
		DSN:      rt.cfg.Remote.DSN,
		MaxConns: rt.cfg.Remote.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect remote store: %w", err)
	}
	defer store.Close()

	counts, err := syncer.New(db, store, rt.log).Counts(cmd.Context())
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	stats.RenderCounts(os.Stdout, counts, true)
	return nil
}
