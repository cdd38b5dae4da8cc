// Package pricing refreshes price quotes for the newest pricing edition.
// The walk is resumable: quotes commit in small batches, so an interrupted
// run loses at most one batch and the next run picks up where it stopped.
package pricing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/cache"
	"github.com/fipeops/fipecrawler/internal/catalog"
	"github.com/fipeops/fipecrawler/internal/fipe"
	"github.com/fipeops/fipecrawler/internal/stats"
)

// commitEvery is how many fetched quotes accumulate before a commit.
const commitEvery = 10

// Fetcher is the slice of the retrieval client the refresher needs.
type Fetcher interface {
	CurrentReference(ctx context.Context) (catalog.ReferenceTable, error)
	Price(ctx context.Context, class catalog.VehicleClass, brandCode, modelCode string, year, fuel, refCode int) (catalog.PriceQuote, bool, error)
}

// Store is the slice of the local cache the refresher uses.
type Store interface {
	PendingPriceTargets(ctx context.Context, referenceMonth string) ([]cache.PriceTarget, error)
	QuoteCountForMonth(ctx context.Context, referenceMonth string) (int64, error)
	UpsertPriceQuotes(ctx context.Context, quotes []catalog.PriceQuote) error
}

// Report summarizes one price refresh run.
type Report struct {
	ReferenceCode int
	Month         string
	Already       int64
	Fetched       int64
	Missing       int64
	Errors        int64
}

// Refresher walks the pending price targets of the newest edition,
// sequentially so the last write for a (vehicle, month) key always wins.
type Refresher struct {
	fetcher Fetcher
	store   Store
	tracker *stats.Tracker
	log     *zap.Logger
}

// New builds a Refresher.
func New(fetcher Fetcher, store Store, tracker *stats.Tracker, log *zap.Logger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		log:     log.Named("pricing"),
	}
}

// Run fetches a quote for every pending target of the newest edition,
// newest model year first. Per-target failures are contained; cancellation
// flushes the buffered batch before returning.
func (r *Refresher) Run(ctx context.Context) (Report, error) {
	ref, err := r.fetcher.CurrentReference(ctx)
	r.tracker.AddRequests(1)
	if err != nil {
		return Report{}, fmt.Errorf("resolve current edition: %w", err)
	}
	month, err := catalog.ParseReferenceMonth(ref.MonthLabel)
	if err != nil {
		return Report{}, fmt.Errorf("normalize edition month %q: %w", ref.MonthLabel, err)
	}
	rep := Report{ReferenceCode: ref.Code, Month: month}

	rep.Already, err = r.store.QuoteCountForMonth(ctx, month)
	if err != nil {
		return rep, err
	}
	targets, err := r.store.PendingPriceTargets(ctx, month)
	if err != nil {
		return rep, err
	}
	r.log.Info("starting price refresh",
		zap.Int("reference_code", ref.Code),
		zap.String("month", catalog.FormatReferenceMonth(month)),
		zap.Int64("already_quoted", rep.Already),
		zap.Int("pending", len(targets)))

	var batch []catalog.PriceQuote
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.store.UpsertPriceQuotes(context.WithoutCancel(ctx), batch); err != nil {
			return fmt.Errorf("commit quote batch: %w", err)
		}
		r.tracker.AddQuotes(int64(len(batch)))
		rep.Fetched += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			if ferr := flush(); ferr != nil {
				return rep, ferr
			}
			r.log.Warn("price refresh interrupted",
				zap.Int64("fetched", rep.Fetched),
				zap.Int("pending_left", len(targets)-int(rep.Fetched+rep.Missing+rep.Errors)))
			return rep, ctx.Err()
		}

		quote, found, err := r.fetcher.Price(ctx, target.Class,
			target.BrandCode, target.ModelCode, target.Year, target.FuelCode, ref.Code)
		r.tracker.AddRequests(1)
		switch {
		case err != nil && ctx.Err() != nil:
			// Loop head flushes and reports the interruption.
			continue
		case err != nil:
			if fipe.IsRateLimited(err) {
				r.log.Warn("rate limited, skipping target",
					zap.String("brand", target.BrandCode),
					zap.String("model", target.ModelCode),
					zap.String("code", target.YearFuelCode))
			} else {
				r.log.Warn("price fetch failed, skipping target",
					zap.String("brand", target.BrandCode),
					zap.String("model", target.ModelCode),
					zap.String("code", target.YearFuelCode),
					zap.Error(err))
			}
			rep.Errors++
			r.tracker.AddError()
			continue
		case !found:
			// The edition simply does not quote this vehicle.
			rep.Missing++
			r.tracker.AddSkipped()
			continue
		}

		batch = append(batch, quote)
		if len(batch) >= commitEvery {
			if err := flush(); err != nil {
				return rep, err
			}
		}
	}

	if err := flush(); err != nil {
		return rep, err
	}
	r.log.Info("price refresh finished",
		zap.Int64("fetched", rep.Fetched),
		zap.Int64("missing", rep.Missing),
		zap.Int64("errors", rep.Errors))
	return rep, nil
}
