// Package processor executes the chosen traversal strategy for one brand:
// discover models, discover year/fuel variants, and persist the results to
// the local cache. One processor instance is safe for concurrent use; each
// Process call is independent.
package processor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/catalog"
	"github.com/fipeops/fipecrawler/internal/fipe"
	"github.com/fipeops/fipecrawler/internal/stats"
)

// Fetcher is the slice of the retrieval client the processor needs.
type Fetcher interface {
	Models(ctx context.Context, class catalog.VehicleClass, brandCode string) ([]catalog.Model, []catalog.YearFuelVariant, error)
	ModelYears(ctx context.Context, class catalog.VehicleClass, brandCode, modelCode string) ([]catalog.YearFuelVariant, error)
	ModelsByYear(ctx context.Context, class catalog.VehicleClass, brandCode, yearFuelCode string) ([]catalog.Model, error)
}

// Store is the slice of the local cache the processor writes through.
type Store interface {
	ModelsForBrand(ctx context.Context, class catalog.VehicleClass, brandCode string) ([]catalog.Model, error)
	ModelsWithoutYearLinks(ctx context.Context, class catalog.VehicleClass, brandCode string) ([]catalog.Model, error)
	UpsertModels(ctx context.Context, models []catalog.Model) error
	UpsertYearFuelVariants(ctx context.Context, variants []catalog.YearFuelVariant) error
	UpsertModelYearLinks(ctx context.Context, links []catalog.ModelYearLink) error
}

// BrandStatus classifies a brand before processing.
type BrandStatus int

const (
	// BrandNew has no cached models at all.
	BrandNew BrandStatus = iota
	// BrandIncomplete has at least one cached model without variant links.
	BrandIncomplete
	// BrandComplete has models and every one of them is linked.
	BrandComplete
)

// String implements fmt.Stringer.
func (s BrandStatus) String() string {
	switch s {
	case BrandNew:
		return "new"
	case BrandIncomplete:
		return "incomplete"
	default:
		return "complete"
	}
}

// Result summarizes one brand's processing.
type Result struct {
	Status   BrandStatus
	Strategy catalog.Strategy
	Models   int
	Variants int
	Links    int
	Errors   int
}

// Processor drives discovery for single brands.
type Processor struct {
	fetcher Fetcher
	store   Store
	tracker *stats.Tracker
	log     *zap.Logger
}

// New builds a Processor.
func New(fetcher Fetcher, store Store, tracker *stats.Tracker, log *zap.Logger) *Processor {
	return &Processor{
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		log:     log.Named("processor"),
	}
}

// Process classifies the brand and runs the cheaper traversal. The model
// discovery call is always issued, so brands gain new upstream models even
// when every cached model is linked; a brand whose cache covers the upstream
// listing stops right after that single call. Per-item failures are
// contained and counted; only cache write failures and cancellation
// propagate.
func (p *Processor) Process(ctx context.Context, brand catalog.Brand) (Result, error) {
	log := p.log.With(
		zap.String("brand", brand.Code),
		zap.String("class", brand.Class.String()),
		zap.String("name", brand.Name))

	cached, err := p.store.ModelsForBrand(ctx, brand.Class, brand.Code)
	if err != nil {
		return Result{}, fmt.Errorf("brand %s: read cached models: %w", brand.Code, err)
	}
	unlinked, err := p.store.ModelsWithoutYearLinks(ctx, brand.Class, brand.Code)
	if err != nil {
		return Result{}, fmt.Errorf("brand %s: read unlinked models: %w", brand.Code, err)
	}

	status := BrandNew
	if len(cached) > 0 {
		status = BrandIncomplete
	}

	upstream, combos, err := p.fetcher.Models(ctx, brand.Class, brand.Code)
	p.tracker.AddRequests(1)
	if err != nil {
		if fipe.IsRateLimited(err) {
			log.Warn("rate limited on model discovery, skipping brand")
			p.tracker.AddError()
			return Result{Status: status, Errors: 1}, nil
		}
		return Result{Status: status}, fmt.Errorf("brand %s: discover models: %w", brand.Code, err)
	}

	if status == BrandIncomplete && len(unlinked) == 0 && len(cached) >= len(upstream) {
		log.Debug("cached models cover upstream listing, skipping",
			zap.Int("cached", len(cached)),
			zap.Int("upstream", len(upstream)))
		p.tracker.AddSkipped()
		return Result{Status: BrandComplete}, nil
	}
	if len(upstream) == 0 {
		log.Info("upstream reports no models")
		return Result{Status: status}, nil
	}

	targets := upstream
	if status == BrandIncomplete {
		targets = pendingModels(upstream, cached, unlinked)
		if len(targets) == 0 {
			// The unlinked models no longer appear upstream, usually a
			// rename. Reprocess the whole brand.
			log.Warn("unlinked models not found upstream, reprocessing all",
				zap.Int("unlinked", len(unlinked)))
			targets = upstream
		}
	}

	if len(combos) == 0 {
		combos = fallbackCombinations()
		log.Warn("discovery reported no year combinations, using fallback grid",
			zap.Int("combinations", len(combos)))
	}

	strategy := catalog.ChooseStrategy(len(targets), len(combos))
	log.Info("processing brand",
		zap.String("status", status.String()),
		zap.String("strategy", strategy.String()),
		zap.Int("targets", len(targets)),
		zap.Int("combinations", len(combos)))

	res := Result{Status: status, Strategy: strategy}
	if strategy == catalog.PerModel {
		err = p.perModel(ctx, brand, upstream, combos, targets, &res)
	} else {
		err = p.perCombination(ctx, brand, combos, &res)
	}
	return res, err
}

// perModel upserts the brand's models once, then walks each target model's
// variant listing.
func (p *Processor) perModel(ctx context.Context, brand catalog.Brand, upstream []catalog.Model, combos []catalog.YearFuelVariant, targets []catalog.Model, res *Result) error {
	if err := p.store.UpsertModels(ctx, upstream); err != nil {
		return fmt.Errorf("brand %s: write models: %w", brand.Code, err)
	}
	res.Models = len(upstream)
	p.tracker.AddModels(int64(len(upstream)))

	if err := p.store.UpsertYearFuelVariants(ctx, combos); err != nil {
		return fmt.Errorf("brand %s: write variants: %w", brand.Code, err)
	}

	for _, m := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		variants, err := p.fetcher.ModelYears(ctx, brand.Class, brand.Code, m.Code)
		p.tracker.AddRequests(1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("variant listing failed, skipping model",
				zap.String("brand", brand.Code),
				zap.String("model", m.Code),
				zap.Error(err))
			res.Errors++
			p.tracker.AddError()
			continue
		}
		if len(variants) == 0 {
			continue
		}

		if err := p.store.UpsertYearFuelVariants(ctx, variants); err != nil {
			return fmt.Errorf("model %s: write variants: %w", m.Code, err)
		}
		links := make([]catalog.ModelYearLink, 0, len(variants))
		for _, v := range variants {
			links = append(links, catalog.ModelYearLink{
				BrandCode:    brand.Code,
				ModelCode:    m.Code,
				Class:        brand.Class,
				YearFuelCode: v.Code,
			})
		}
		if err := p.store.UpsertModelYearLinks(ctx, links); err != nil {
			return fmt.Errorf("model %s: write links: %w", m.Code, err)
		}
		res.Variants += len(variants)
		res.Links += len(links)
		p.tracker.AddVariants(int64(len(variants)))
		p.tracker.AddLinks(int64(len(links)))
	}
	return nil
}

// perCombination walks each year/fuel combination's model listing,
// accumulates a deduplicated model set, and defers all writes to the end so
// partial combination failures never leave a half-written brand.
func (p *Processor) perCombination(ctx context.Context, brand catalog.Brand, combos []catalog.YearFuelVariant, res *Result) error {
	seen := make(map[string]catalog.Model)
	var links []catalog.ModelYearLink
	usedCombos := make(map[string]catalog.YearFuelVariant)

	for _, combo := range combos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if combo.FuelCode == 0 {
			// The listing endpoint requires a fuel suffix.
			continue
		}
		models, err := p.fetcher.ModelsByYear(ctx, brand.Class, brand.Code, combo.Code)
		p.tracker.AddRequests(1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("combination listing failed, skipping",
				zap.String("brand", brand.Code),
				zap.String("combination", combo.Code),
				zap.Error(err))
			res.Errors++
			p.tracker.AddError()
			continue
		}
		for _, m := range models {
			if _, ok := seen[m.Code]; !ok {
				seen[m.Code] = m
			}
			links = append(links, catalog.ModelYearLink{
				BrandCode:    brand.Code,
				ModelCode:    m.Code,
				Class:        brand.Class,
				YearFuelCode: combo.Code,
			})
		}
		if len(models) > 0 {
			usedCombos[combo.Code] = combo
		}
	}

	if len(seen) == 0 {
		return nil
	}

	models := make([]catalog.Model, 0, len(seen))
	for _, m := range seen {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Code < models[j].Code })

	variants := make([]catalog.YearFuelVariant, 0, len(usedCombos))
	for _, v := range usedCombos {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Code < variants[j].Code })

	if err := p.store.UpsertModels(ctx, models); err != nil {
		return fmt.Errorf("brand %s: write models: %w", brand.Code, err)
	}
	if err := p.store.UpsertYearFuelVariants(ctx, variants); err != nil {
		return fmt.Errorf("brand %s: write variants: %w", brand.Code, err)
	}
	if err := p.store.UpsertModelYearLinks(ctx, links); err != nil {
		return fmt.Errorf("brand %s: write links: %w", brand.Code, err)
	}
	res.Models = len(models)
	res.Variants = len(variants)
	res.Links = len(links)
	p.tracker.AddModels(int64(len(models)))
	p.tracker.AddVariants(int64(len(variants)))
	p.tracker.AddLinks(int64(len(links)))
	return nil
}

// pendingModels keeps the upstream models that still need a variant walk:
// models the cache has never seen, plus cached models without year links.
func pendingModels(upstream, cached, unlinked []catalog.Model) []catalog.Model {
	have := make(map[string]struct{}, len(cached))
	for _, m := range cached {
		have[m.Code] = struct{}{}
	}
	want := make(map[string]struct{}, len(unlinked))
	for _, m := range unlinked {
		want[m.Code] = struct{}{}
	}
	var out []catalog.Model
	for _, m := range upstream {
		_, inCache := have[m.Code]
		_, isUnlinked := want[m.Code]
		if !inCache || isUnlinked {
			out = append(out, m)
		}
	}
	return out
}

// fallbackCombinations is the grid probed when discovery reports no
// combinations: zero-km plus the current calendar year, across the common
// fuel codes.
func fallbackCombinations() []catalog.YearFuelVariant {
	years := []int{catalog.SentinelYear, time.Now().Year()}
	var combos []catalog.YearFuelVariant
	for _, year := range years {
		for fuel := 1; fuel <= 6; fuel++ {
			code := catalog.YearFuelCode(year, fuel)
			combos = append(combos, catalog.YearFuelVariant{
				Code:     code,
				Label:    catalog.YearDisplay(year) + " " + catalog.FuelName(fuel),
				Year:     year,
				FuelCode: fuel,
				FuelName: catalog.FuelName(fuel),
			})
		}
	}
	return combos
}
