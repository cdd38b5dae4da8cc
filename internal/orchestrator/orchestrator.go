// Package orchestrator drives brand processing across vehicle classes under
// a bounded concurrency limit. Brands are independent; one brand's failure
// or panic never cancels its siblings.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fipeops/fipecrawler/internal/catalog"
	"github.com/fipeops/fipecrawler/internal/processor"
	"github.com/fipeops/fipecrawler/internal/stats"
)

// Lister is the slice of the retrieval client the orchestrator needs.
type Lister interface {
	ReferenceTables(ctx context.Context) ([]catalog.ReferenceTable, error)
	Brands(ctx context.Context, class catalog.VehicleClass) ([]catalog.Brand, error)
}

// Store is the slice of the local cache the orchestrator writes through.
type Store interface {
	UpsertReferenceTables(ctx context.Context, tables []catalog.ReferenceTable) error
	UpsertBrands(ctx context.Context, brands []catalog.Brand) error
}

// BrandProcessor processes a single brand.
type BrandProcessor interface {
	Process(ctx context.Context, brand catalog.Brand) (processor.Result, error)
}

// Orchestrator runs one full discovery pass.
type Orchestrator struct {
	lister    Lister
	store     Store
	processor BrandProcessor
	tracker   *stats.Tracker
	log       *zap.Logger
	workers   int
	classes   []catalog.VehicleClass
}

// New builds an Orchestrator. workers caps concurrent brand processors.
func New(lister Lister, store Store, proc BrandProcessor, tracker *stats.Tracker, workers int, classes []catalog.VehicleClass, log *zap.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 5
	}
	if len(classes) == 0 {
		classes = []catalog.VehicleClass{catalog.Cars, catalog.Motorcycles, catalog.Trucks}
	}
	return &Orchestrator{
		lister:    lister,
		store:     store,
		processor: proc,
		tracker:   tracker,
		workers:   workers,
		classes:   classes,
		log:       log.Named("orchestrator"),
	}
}

// Run refreshes the reference tables, then processes every brand of every
// configured vehicle class. It always returns a stats snapshot, also on
// cancellation; the error then reports the partial completion.
func (o *Orchestrator) Run(ctx context.Context) (stats.Snapshot, error) {
	runID := uuid.NewString()
	log := o.log.With(zap.String("run_id", runID))
	log.Info("starting discovery run",
		zap.Int("workers", o.workers),
		zap.Int("classes", len(o.classes)))

	if err := o.refreshReferenceTables(ctx); err != nil {
		return o.tracker.Snapshot(), err
	}

	for _, class := range o.classes {
		if err := o.runClass(ctx, class, log); err != nil {
			return o.tracker.Snapshot(), err
		}
	}

	snap := o.tracker.Snapshot()
	log.Info("discovery run finished",
		zap.Int64("brands", snap.Brands),
		zap.Int64("models", snap.Models),
		zap.Int64("links", snap.Links),
		zap.Int64("errors", snap.Errors),
		zap.Duration("elapsed", snap.Elapsed))
	return snap, nil
}

// refreshReferenceTables upserts every known pricing edition. Editions are
// never deleted.
func (o *Orchestrator) refreshReferenceTables(ctx context.Context) error {
	tables, err := o.lister.ReferenceTables(ctx)
	o.tracker.AddRequests(1)
	if err != nil {
		return fmt.Errorf("refresh reference tables: %w", err)
	}
	if err := o.store.UpsertReferenceTables(ctx, tables); err != nil {
		return fmt.Errorf("write reference tables: %w", err)
	}
	o.log.Info("reference tables refreshed", zap.Int("count", len(tables)))
	return nil
}

func (o *Orchestrator) runClass(ctx context.Context, class catalog.VehicleClass, log *zap.Logger) error {
	brands, err := o.lister.Brands(ctx, class)
	o.tracker.AddRequests(1)
	if err != nil {
		return fmt.Errorf("list %s brands: %w", class, err)
	}
	if err := o.store.UpsertBrands(ctx, brands); err != nil {
		return fmt.Errorf("write %s brands: %w", class, err)
	}
	o.tracker.AddBrands(int64(len(brands)))
	log.Info("processing vehicle class",
		zap.String("class", class.String()),
		zap.Int("brands", len(brands)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, brand := range brands {
		// Stop scheduling once cancelled; in-flight brands finish their
		// current write on their own.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.processBrand(gctx, brand, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processBrand contains every failure mode of a single brand, including a
// panic inside the processor.
func (o *Orchestrator) processBrand(ctx context.Context, brand catalog.Brand, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("brand processing panicked",
				zap.String("brand", brand.Code),
				zap.String("class", brand.Class.String()),
				zap.Any("panic", r))
			o.tracker.AddError()
		}
	}()

	o.tracker.WorkerStarted()
	defer o.tracker.WorkerDone()

	res, err := o.processor.Process(ctx, brand)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("brand processing failed",
			zap.String("brand", brand.Code),
			zap.String("class", brand.Class.String()),
			zap.Error(err))
		o.tracker.AddError()
		return
	}
	log.Debug("brand processed",
		zap.String("brand", brand.Code),
		zap.String("status", res.Status.String()),
		zap.Int("models", res.Models),
		zap.Int("links", res.Links),
		zap.Int("errors", res.Errors))
}
