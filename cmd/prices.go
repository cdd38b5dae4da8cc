package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/catalog"
	"github.com/fipeops/fipecrawler/internal/pricing"
	"github.com/fipeops/fipecrawler/internal/stats"
)

// newPricesCmd creates the 'prices' subcommand, which fetches quotes for the
// newest pricing edition.
func newPricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Fetches price quotes for the newest pricing edition",
		Long: `Resolves the newest pricing edition and fetches one quote per cached
model-year variant that does not have a quote for that month yet. Quotes
commit in small batches, so an interrupted run can resume where it stopped.`,
		RunE: runPricesCommand,
	}
}

func runPricesCommand(cmd *cobra.Command, _ []string) error {
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
	refresher := pricing.New(client, db, tracker, rt.log)
	rep, runErr := refresher.Run(cmd.Context())

	fmt.Fprintf(os.Stdout, "edition %d (%s): %d already cached, %d fetched, %d unquoted, %d errors\n",
		rep.ReferenceCode, catalog.FormatReferenceMonth(rep.Month),
		rep.Already, rep.Fetched, rep.Missing, rep.Errors)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("refresh prices: %w", runErr)
	}
	return nil
}
