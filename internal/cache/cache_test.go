package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/catalog"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seedBrandAndModel(t *testing.T, c *Cache) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.UpsertBrands(ctx, []catalog.Brand{
		{Code: "6", Class: catalog.Cars, Name: "Audi"},
	}))
	require.NoError(t, c.UpsertModels(ctx, []catalog.Model{
		{Code: "5496", BrandCode: "6", Class: catalog.Cars, Name: "A1 1.4"},
	}))
}

func TestUpsertBrandsRefreshesName(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertBrands(ctx, []catalog.Brand{
		{Code: "6", Class: catalog.Cars, Name: "Audii"},
	}))
	require.NoError(t, c.UpsertBrands(ctx, []catalog.Brand{
		{Code: "6", Class: catalog.Cars, Name: "Audi"},
	}))

	brands, err := c.Brands(ctx, catalog.Cars)
	require.NoError(t, err)
	require.Len(t, brands, 1)
	assert.Equal(t, "Audi", brands[0].Name)
}

func TestBrandCodeScopedByClass(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertBrands(ctx, []catalog.Brand{
		{Code: "6", Class: catalog.Cars, Name: "Audi"},
		{Code: "6", Class: catalog.Motorcycles, Name: "Harley"},
	}))

	cars, err := c.Brands(ctx, catalog.Cars)
	require.NoError(t, err)
	motos, err := c.Brands(ctx, catalog.Motorcycles)
	require.NoError(t, err)
	require.Len(t, cars, 1)
	require.Len(t, motos, 1)
	assert.Equal(t, "Audi", cars[0].Name)
	assert.Equal(t, "Harley", motos[0].Name)
}

func TestModelsWithoutYearLinks(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	seedBrandAndModel(t, c)
	require.NoError(t, c.UpsertModels(ctx, []catalog.Model{
		{Code: "5497", BrandCode: "6", Class: catalog.Cars, Name: "A1 1.8"},
	}))
	require.NoError(t, c.UpsertYearFuelVariants(ctx, []catalog.YearFuelVariant{
		{Code: "2014-1", Label: "2014 Gasolina", Year: 2014, FuelCode: 1, FuelName: "Gasolina"},
	}))
	require.NoError(t, c.UpsertModelYearLinks(ctx, []catalog.ModelYearLink{
		{BrandCode: "6", ModelCode: "5496", Class: catalog.Cars, YearFuelCode: "2014-1"},
	}))

	unlinked, err := c.ModelsWithoutYearLinks(ctx, catalog.Cars, "6")
	require.NoError(t, err)
	require.Len(t, unlinked, 1)
	assert.Equal(t, "5497", unlinked[0].Code)
}

func TestBrandsWithoutModels(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	seedBrandAndModel(t, c)
	require.NoError(t, c.UpsertBrands(ctx, []catalog.Brand{
		{Code: "7", Class: catalog.Cars, Name: "BMW"},
	}))

	empty, err := c.BrandsWithoutModels(ctx, catalog.Cars)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Equal(t, "7", empty[0].Code)
}

func TestLinkUpsertIsIdempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	seedBrandAndModel(t, c)
	require.NoError(t, c.UpsertYearFuelVariants(ctx, []catalog.YearFuelVariant{
		{Code: "2014-1", Label: "2014 Gasolina", Year: 2014, FuelCode: 1, FuelName: "Gasolina"},
	}))

	link := catalog.ModelYearLink{BrandCode: "6", ModelCode: "5496", Class: catalog.Cars, YearFuelCode: "2014-1"}
	require.NoError(t, c.UpsertModelYearLinks(ctx, []catalog.ModelYearLink{link}))
	require.NoError(t, c.UpsertModelYearLinks(ctx, []catalog.ModelYearLink{link}))

	n, err := c.CountFor(ctx, "model_year_links")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestVariantUpsertKeepsFirstWrite(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertYearFuelVariants(ctx, []catalog.YearFuelVariant{
		{Code: "2014-1", Label: "2014 Gasolina", Year: 2014, FuelCode: 1, FuelName: "Gasolina"},
	}))
	require.NoError(t, c.UpsertYearFuelVariants(ctx, []catalog.YearFuelVariant{
		{Code: "2014-1", Label: "changed", Year: 2014, FuelCode: 1, FuelName: "Gasolina"},
	}))

	spec := SyncTables()[3]
	require.Equal(t, "year_fuel_variants", spec.Name)
	rows, err := c.TableRows(ctx, spec)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2014 Gasolina", rows[0][1])
}

func quoteFor(year, fuel int, month, value string) catalog.PriceQuote {
	return catalog.PriceQuote{
		BrandCode: "6", ModelCode: "5496", Class: catalog.Cars,
		Year: year, FuelCode: fuel, ReferenceMonth: month,
		RawValue: value, NumericValue: 1, FipeCode: "008153-2",
		ReferenceCode: 330, BrandName: "Audi", ModelName: "A1 1.4",
		FuelName: "Gasolina", QueriedAt: time.Now().UTC(),
	}
}

func TestQuoteUpsertReplacesWithinMonth(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	seedBrandAndModel(t, c)

	require.NoError(t, c.UpsertPriceQuotes(ctx, []catalog.PriceQuote{
		quoteFor(2014, 1, "202601", "R$ 1,00"),
	}))
	require.NoError(t, c.UpsertPriceQuotes(ctx, []catalog.PriceQuote{
		quoteFor(2014, 1, "202601", "R$ 2,00"),
	}))
	require.NoError(t, c.UpsertPriceQuotes(ctx, []catalog.PriceQuote{
		quoteFor(2014, 1, "202602", "R$ 3,00"),
	}))

	n, err := c.CountFor(ctx, "price_quotes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := c.QuoteCountForMonth(ctx, "202601")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPendingPriceTargetsNewestYearFirst(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	seedBrandAndModel(t, c)

	require.NoError(t, c.UpsertYearFuelVariants(ctx, []catalog.YearFuelVariant{
		{Code: "2014-1", Label: "2014 Gasolina", Year: 2014, FuelCode: 1, FuelName: "Gasolina"},
		{Code: "32000-1", Label: "32000 Gasolina", Year: catalog.SentinelYear, FuelCode: 1, FuelName: "Gasolina"},
		{Code: "2010", Label: "2010", Year: 2010, FuelCode: 0},
	}))
	require.NoError(t, c.UpsertModelYearLinks(ctx, []catalog.ModelYearLink{
		{BrandCode: "6", ModelCode: "5496", Class: catalog.Cars, YearFuelCode: "2014-1"},
		{BrandCode: "6", ModelCode: "5496", Class: catalog.Cars, YearFuelCode: "32000-1"},
		{BrandCode: "6", ModelCode: "5496", Class: catalog.Cars, YearFuelCode: "2010"},
	}))

	targets, err := c.PendingPriceTargets(ctx, "202601")
	require.NoError(t, err)
	// The fuel-less 2010 link is not priceable and must be skipped.
	require.Len(t, targets, 2)
	assert.Equal(t, catalog.SentinelYear, targets[0].Year)
	assert.Equal(t, 2014, targets[1].Year)

	// Quoting one target removes it from the pending set.
	require.NoError(t, c.UpsertPriceQuotes(ctx, []catalog.PriceQuote{
		quoteFor(catalog.SentinelYear, 1, "202601", "R$ 1,00"),
	}))
	targets, err = c.PendingPriceTargets(ctx, "202601")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 2014, targets[0].Year)
}

func TestTableKeysMatchesRowCount(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	seedBrandAndModel(t, c)

	var modelSpec TableSpec
	for _, s := range SyncTables() {
		if s.Name == "models" {
			modelSpec = s
		}
	}
	keys, err := c.TableKeys(ctx, modelSpec)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	_, ok := keys[KeyJoin([]string{"5496", "6", "1"})]
	assert.True(t, ok)
}

func TestKeyStringRendersTimestampLikePostgres(t *testing.T) {
	ts := time.Date(2026, 1, 5, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, "2026-01-05 12:30:45+00", KeyString(ts))
	assert.Equal(t, "42", KeyString(int64(42)))
	assert.Equal(t, "38279", KeyString(38279.0))
}

type dbTimeRecorder struct {
	mu    sync.Mutex
	total time.Duration
	calls int
}

func (r *dbTimeRecorder) AddDBTime(d time.Duration) {
	r.mu.Lock()
	r.total += d
	r.calls++
	r.mu.Unlock()
}

func TestRecorderObservesWriteTransactions(t *testing.T) {
	c := openTestCache(t)
	rec := &dbTimeRecorder{}
	c.SetRecorder(rec)

	require.NoError(t, c.UpsertBrands(context.Background(), []catalog.Brand{
		{Code: "6", Class: catalog.Cars, Name: "Audi"},
	}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.calls)
	assert.Greater(t, rec.total, time.Duration(0))
}

func TestCountForRejectsUnknownTable(t *testing.T) {
	c := openTestCache(t)
	_, err := c.CountFor(context.Background(), "sqlite_master")
	assert.Error(t, err)
}

func TestReconcileTablesChildrenFirst(t *testing.T) {
	names := make([]string, 0, 3)
	for _, s := range ReconcileTables() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"price_quotes", "model_year_links", "models"}, names)
}

func TestUpsertReferenceTables(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertReferenceTables(ctx, []catalog.ReferenceTable{
		{Code: 330, MonthLabel: "janeiro/2026 "},
		{Code: 329, MonthLabel: "dezembro/2025 "},
	}))
	require.NoError(t, c.UpsertReferenceTables(ctx, []catalog.ReferenceTable{
		{Code: 330, MonthLabel: "janeiro/2026"},
	}))

	n, err := c.CountFor(ctx, "reference_tables")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
