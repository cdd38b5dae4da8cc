package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/remote"
	"github.com/fipeops/fipecrawler/internal/stats"
	"github.com/fipeops/fipecrawler/internal/syncer"
)

// newSyncCmd creates the 'sync' subcommand, which mirrors the local cache
// into the remote Postgres store.
func newSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Uploads the local cache to Postgres and prunes remote orphans",
		Long: `Uploads cached rows the remote store is missing, in dependency order, then
deletes remote rows whose local counterpart is gone. Only tables safe to
prune are reconciled. With --force every local row is re-uploaded, which
also refreshes non-key columns such as renamed brands and models.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncCommand(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-upload rows the remote store already has")
	return cmd
}

func runSyncCommand(cmd *cobra.Command, force bool) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if rt.cfg.Remote.DSN == "" {
		return fmt.Errorf("remote.dsn must be configured for sync")
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

	store, err := remote.New(cmd.Context(), remote.Config{
		DSN:      rt.cfg.Remote.DSN,
		MaxConns: rt.cfg.Remote.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect remote store: %w", err)
	}
	defer store.Close()

	s := syncer.New(db, store, rt.log,
		syncer.WithBatchSize(rt.cfg.Remote.BatchSize),
		syncer.WithForce(force))

	rep, err := s.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	counts, err := s.Counts(cmd.Context())
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	stats.RenderCounts(os.Stdout, counts, true)
	fmt.Fprintf(os.Stdout, "uploaded %d, deleted %d, failed batches %d, skipped links %d\n",
		rep.Uploaded, rep.Deleted, rep.FailedBatches, rep.SkippedLinks)
	return nil
}
