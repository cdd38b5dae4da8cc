package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/cache"
	"github.com/fipeops/fipecrawler/internal/catalog"
	"github.com/fipeops/fipecrawler/internal/fipe"
	"github.com/fipeops/fipecrawler/internal/stats"
)

type fakeFetcher struct {
	ref        catalog.ReferenceTable
	rateLimit  map[string]bool
	unquoted   map[string]bool
	priceCalls int
	cancelAt   int
	cancel     context.CancelFunc
}

func (f *fakeFetcher) CurrentReference(ctx context.Context) (catalog.ReferenceTable, error) {
	return f.ref, nil
}

func (f *fakeFetcher) Price(ctx context.Context, class catalog.VehicleClass, brandCode, modelCode string, year, fuel, refCode int) (catalog.PriceQuote, bool, error) {
	f.priceCalls++
	if f.cancel != nil && f.priceCalls == f.cancelAt {
		f.cancel()
	}
	key := catalog.YearFuelCode(year, fuel)
	if f.rateLimit[key] {
		return catalog.PriceQuote{}, false, &fipe.RateLimitedError{Operation: "ConsultarValorComTodosParametros", Attempts: 3}
	}
	if f.unquoted[key] {
		return catalog.PriceQuote{}, false, nil
	}
	return catalog.PriceQuote{
		BrandCode: brandCode, ModelCode: modelCode, Class: class,
		Year: year, FuelCode: fuel, ReferenceMonth: "202601",
		RawValue: "R$ 1,00", NumericValue: 1, ReferenceCode: refCode,
	}, true, nil
}

type fakeStore struct {
	targets []cache.PriceTarget
	already int64
	commits [][]catalog.PriceQuote
	quotes  []catalog.PriceQuote
}

func (s *fakeStore) PendingPriceTargets(ctx context.Context, month string) ([]cache.PriceTarget, error) {
	return s.targets, nil
}

func (s *fakeStore) QuoteCountForMonth(ctx context.Context, month string) (int64, error) {
	return s.already, nil
}

func (s *fakeStore) UpsertPriceQuotes(ctx context.Context, quotes []catalog.PriceQuote) error {
	batch := append([]catalog.PriceQuote(nil), quotes...)
	s.commits = append(s.commits, batch)
	s.quotes = append(s.quotes, batch...)
	return nil
}

func targetsFor(years ...int) []cache.PriceTarget {
	var out []cache.PriceTarget
	for _, y := range years {
		out = append(out, cache.PriceTarget{
			BrandCode: "6", ModelCode: "5496", Class: catalog.Cars,
			Year: y, FuelCode: 1, YearFuelCode: catalog.YearFuelCode(y, 1),
		})
	}
	return out
}

func newRefresher(f *fakeFetcher, s *fakeStore) *Refresher {
	f.ref = catalog.ReferenceTable{Code: 330, MonthLabel: "janeiro/2026 "}
	return New(f, s, stats.NewTracker(), zap.NewNop())
}

func TestRunFetchesAllPendingTargets(t *testing.T) {
	f := &fakeFetcher{}
	s := &fakeStore{targets: targetsFor(2014, 2015, 2016), already: 7}

	rep, err := newRefresher(f, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 330, rep.ReferenceCode)
	assert.Equal(t, "202601", rep.Month)
	assert.Equal(t, int64(7), rep.Already)
	assert.Equal(t, int64(3), rep.Fetched)
	assert.Len(t, s.quotes, 3)
}

func TestRunCommitsInBatches(t *testing.T) {
	f := &fakeFetcher{}
	s := &fakeStore{targets: targetsFor(sequentialYears(25)...)}

	rep, err := newRefresher(f, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(25), rep.Fetched)
	// 10 + 10 + 5
	require.Len(t, s.commits, 3)
	assert.Len(t, s.commits[0], 10)
	assert.Len(t, s.commits[2], 5)
}

func TestRateLimitedTargetIsCountedAndSkipped(t *testing.T) {
	f := &fakeFetcher{rateLimit: map[string]bool{"2015-1": true}}
	s := &fakeStore{targets: targetsFor(2014, 2015, 2016)}

	rep, err := newRefresher(f, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Fetched)
	assert.Equal(t, int64(1), rep.Errors)
}

func TestUnquotedVehicleIsMissingNotError(t *testing.T) {
	f := &fakeFetcher{unquoted: map[string]bool{"2014-1": true}}
	s := &fakeStore{targets: targetsFor(2014, 2015)}

	rep, err := newRefresher(f, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Fetched)
	assert.Equal(t, int64(1), rep.Missing)
	assert.Zero(t, rep.Errors)
}

func TestCancellationFlushesBufferedBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{cancelAt: 5, cancel: cancel}
	s := &fakeStore{targets: targetsFor(sequentialYears(25)...)}

	rep, err := newRefresher(f, s).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(5), rep.Fetched)
	assert.Len(t, s.quotes, 5)
}

func sequentialYears(n int) []int {
	years := make([]int, n)
	for i := range years {
		years[i] = 1990 + i
	}
	return years
}
