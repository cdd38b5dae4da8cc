package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/catalog"
	"github.com/fipeops/fipecrawler/internal/processor"
	"github.com/fipeops/fipecrawler/internal/stats"
)

type fakeLister struct {
	tables    []catalog.ReferenceTable
	brands    map[catalog.VehicleClass][]catalog.Brand
	tablesErr error
}

func (f *fakeLister) ReferenceTables(ctx context.Context) ([]catalog.ReferenceTable, error) {
	return f.tables, f.tablesErr
}

func (f *fakeLister) Brands(ctx context.Context, class catalog.VehicleClass) ([]catalog.Brand, error) {
	return f.brands[class], nil
}

type fakeStore struct {
	mu     sync.Mutex
	tables []catalog.ReferenceTable
	brands []catalog.Brand
}

func (s *fakeStore) UpsertReferenceTables(ctx context.Context, tables []catalog.ReferenceTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = append(s.tables, tables...)
	return nil
}

func (s *fakeStore) UpsertBrands(ctx context.Context, brands []catalog.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brands = append(s.brands, brands...)
	return nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	active    atomic.Int32
	maxActive atomic.Int32
	panicOn   string
	errOn     string
}

func (p *fakeProcessor) Process(ctx context.Context, brand catalog.Brand) (processor.Result, error) {
	cur := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		prev := p.maxActive.Load()
		if cur <= prev || p.maxActive.CompareAndSwap(prev, cur) {
			break
		}
	}

	if brand.Code == p.panicOn {
		panic("boom")
	}
	if brand.Code == p.errOn {
		return processor.Result{}, errors.New("processing failed")
	}

	p.mu.Lock()
	p.processed = append(p.processed, brand.Code)
	p.mu.Unlock()
	return processor.Result{Status: processor.BrandNew}, nil
}

func carBrands(codes ...string) map[catalog.VehicleClass][]catalog.Brand {
	brands := make([]catalog.Brand, 0, len(codes))
	for _, c := range codes {
		brands = append(brands, catalog.Brand{Code: c, Class: catalog.Cars, Name: "B" + c})
	}
	return map[catalog.VehicleClass][]catalog.Brand{catalog.Cars: brands}
}

func TestRunProcessesAllBrands(t *testing.T) {
	lister := &fakeLister{
		tables: []catalog.ReferenceTable{{Code: 330, MonthLabel: "janeiro/2026"}},
		brands: carBrands("1", "2", "3", "4", "5"),
	}
	store := &fakeStore{}
	proc := &fakeProcessor{}
	o := New(lister, store, proc, stats.NewTracker(), 2,
		[]catalog.VehicleClass{catalog.Cars}, zap.NewNop())

	snap, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, proc.processed, 5)
	assert.Len(t, store.tables, 1)
	assert.Len(t, store.brands, 5)
	assert.Equal(t, int64(5), snap.Brands)
	assert.LessOrEqual(t, proc.maxActive.Load(), int32(2))
}

func TestWorkerPanicIsContained(t *testing.T) {
	lister := &fakeLister{brands: carBrands("1", "2", "3")}
	store := &fakeStore{}
	proc := &fakeProcessor{panicOn: "2"}
	o := New(lister, store, proc, stats.NewTracker(), 2,
		[]catalog.VehicleClass{catalog.Cars}, zap.NewNop())

	snap, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, proc.processed, 2)
	assert.Equal(t, int64(1), snap.Errors)
}

func TestWorkerErrorDoesNotCancelSiblings(t *testing.T) {
	lister := &fakeLister{brands: carBrands("1", "2", "3")}
	store := &fakeStore{}
	proc := &fakeProcessor{errOn: "1"}
	o := New(lister, store, proc, stats.NewTracker(), 1,
		[]catalog.VehicleClass{catalog.Cars}, zap.NewNop())

	snap, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, proc.processed, 2)
	assert.Equal(t, int64(1), snap.Errors)
}

func TestReferenceTableFailureAborts(t *testing.T) {
	lister := &fakeLister{tablesErr: errors.New("down")}
	o := New(lister, &fakeStore{}, &fakeProcessor{}, stats.NewTracker(), 2,
		[]catalog.VehicleClass{catalog.Cars}, zap.NewNop())

	_, err := o.Run(context.Background())
	assert.Error(t, err)
}

func TestCancelledRunReturnsPartialSnapshot(t *testing.T) {
	lister := &fakeLister{brands: carBrands("1", "2", "3")}
	o := New(lister, &fakeStore{}, &fakeProcessor{}, stats.NewTracker(), 1,
		[]catalog.VehicleClass{catalog.Cars}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
