// Package syncer makes the remote store match the local cache: upload in
// dependency order, then delete remote orphans in reverse order. The local
// cache is authoritative.
package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/internal/cache"
	"github.com/fipeops/fipecrawler/internal/remote"
	"github.com/fipeops/fipecrawler/internal/stats"
)

// Local is the slice of the local cache the syncer reads from.
type Local interface {
	TableRows(ctx context.Context, spec cache.TableSpec) ([][]any, error)
	TableKeys(ctx context.Context, spec cache.TableSpec) (map[string]struct{}, error)
	CountFor(ctx context.Context, table string) (int64, error)
}

// Report summarizes one sync run.
type Report struct {
	Uploaded      int64
	Deleted       int64
	FailedBatches int64
	SkippedLinks  int64
}

// Syncer uploads and reconciles the six catalog tables.
type Syncer struct {
	local     Local
	store     remote.Store
	batchSize int
	// force re-uploads rows whose keys already exist remotely, refreshing
	// non-key columns like names.
	force bool
	log   *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithBatchSize overrides the upload batch size (default 1000).
func WithBatchSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithForce uploads every local row even when its key already exists
// remotely. The default delta upload only sends rows missing remotely.
func WithForce(force bool) Option {
	return func(s *Syncer) { s.force = force }
}

// New builds a Syncer.
func New(local Local, store remote.Store, log *zap.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		local:     local,
		store:     store,
		batchSize: 1000,
		log:       log.Named("syncer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs the upload phase then the reconciliation phase. Batch failures
// are logged and counted, not fatal; only cancellation and key-set read
// failures abort.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var rep Report
	if err := s.upload(ctx, &rep); err != nil {
		return rep, err
	}
	if err := s.reconcile(ctx, &rep); err != nil {
		return rep, err
	}
	s.log.Info("sync finished",
		zap.Int64("uploaded", rep.Uploaded),
		zap.Int64("deleted", rep.Deleted),
		zap.Int64("failed_batches", rep.FailedBatches),
		zap.Int64("skipped_links", rep.SkippedLinks))
	return rep, nil
}

// upload pushes local rows table by table, parents before children.
func (s *Syncer) upload(ctx context.Context, rep *Report) error {
	var remoteModelKeys map[string]struct{}

	for _, spec := range cache.SyncTables() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rows, err := s.local.TableRows(ctx, spec)
		if err != nil {
			return fmt.Errorf("sync %s: %w", spec.Name, err)
		}

		remoteKeys, err := s.remoteKeySet(ctx, spec)
		if err != nil {
			return fmt.Errorf("sync %s: %w", spec.Name, err)
		}

		if !s.force {
			rows = filterRowsMissingRemotely(spec, rows, remoteKeys)
		}
		if spec.Name == "model_year_links" {
			// Links may only reference models that made it upstream.
			rows, rep.SkippedLinks = filterLinksByModel(spec, rows, s.modelKeySet(ctx, remoteModelKeys))
		}

		uploaded := s.uploadBatches(ctx, spec, rows, rep)
		rep.Uploaded += uploaded
		s.log.Info("table uploaded",
			zap.String("table", spec.Name),
			zap.Int("candidates", len(rows)),
			zap.Int64("uploaded", uploaded))

		if spec.Name == "models" {
			// Snapshot the remote model keys after the model upload so the
			// link filter sees freshly uploaded models too.
			remoteModelKeys, err = s.fetchModelKeys(ctx)
			if err != nil {
				return fmt.Errorf("sync models: %w", err)
			}
		}
	}
	return nil
}

func (s *Syncer) uploadBatches(ctx context.Context, spec cache.TableSpec, rows [][]any, rep *Report) int64 {
	var uploaded int64
	for start := 0; start < len(rows); start += s.batchSize {
		if ctx.Err() != nil {
			return uploaded
		}
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := s.store.Upsert(ctx, spec.Name, spec.Columns, spec.KeyColumns, rows[start:end])
		if err != nil {
			s.log.Warn("batch upload failed, continuing",
				zap.String("table", spec.Name),
				zap.Int("batch_start", start),
				zap.Error(err))
			rep.FailedBatches++
			continue
		}
		uploaded += n
	}
	return uploaded
}

// reconcile deletes remote rows whose keys vanished locally, children first.
func (s *Syncer) reconcile(ctx context.Context, rep *Report) error {
	for _, spec := range cache.ReconcileTables() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		localKeys, err := s.local.TableKeys(ctx, spec)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", spec.Name, err)
		}
		remoteKeys, err := s.store.SelectKeys(ctx, spec.Name, spec.KeyColumns)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", spec.Name, err)
		}

		var deleted int64
		for _, key := range remoteKeys {
			if _, ok := localKeys[cache.KeyJoin(key)]; ok {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			vals := make([]any, len(key))
			for i, v := range key {
				vals[i] = v
			}
			if err := s.store.DeleteWhere(ctx, spec.Name, spec.KeyColumns, vals); err != nil {
				s.log.Warn("orphan delete failed, continuing",
					zap.String("table", spec.Name),
					zap.Strings("key", key),
					zap.Error(err))
				rep.FailedBatches++
				continue
			}
			deleted++
		}
		rep.Deleted += deleted
		if deleted > 0 {
			s.log.Info("orphans deleted",
				zap.String("table", spec.Name),
				zap.Int64("deleted", deleted))
		}
	}
	return nil
}

// Counts compares per-table row counts between the local cache and the
// remote store.
func (s *Syncer) Counts(ctx context.Context) ([]stats.TableCount, error) {
	var counts []stats.TableCount
	for _, spec := range cache.SyncTables() {
		local, err := s.local.CountFor(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		rem, err := s.store.Count(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		counts = append(counts, stats.TableCount{Table: spec.Name, Local: local, Remote: rem})
	}
	return counts, nil
}

func (s *Syncer) remoteKeySet(ctx context.Context, spec cache.TableSpec) (map[string]struct{}, error) {
	keys, err := s.store.SelectKeys(ctx, spec.Name, spec.KeyColumns)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[cache.KeyJoin(k)] = struct{}{}
	}
	return set, nil
}

func (s *Syncer) fetchModelKeys(ctx context.Context) (map[string]struct{}, error) {
	var modelSpec cache.TableSpec
	for _, spec := range cache.SyncTables() {
		if spec.Name == "models" {
			modelSpec = spec
		}
	}
	return s.remoteKeySet(ctx, modelSpec)
}

func (s *Syncer) modelKeySet(ctx context.Context, cached map[string]struct{}) map[string]struct{} {
	if cached != nil {
		return cached
	}
	keys, err := s.fetchModelKeys(ctx)
	if err != nil {
		s.log.Warn("reading remote model keys failed, links will be skipped", zap.Error(err))
		return map[string]struct{}{}
	}
	return keys
}

// filterRowsMissingRemotely keeps the rows whose natural key is absent from
// the remote key set.
func filterRowsMissingRemotely(spec cache.TableSpec, rows [][]any, remoteKeys map[string]struct{}) [][]any {
	keyIdx := columnIndexes(spec.Columns, spec.KeyColumns)
	var out [][]any
	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for i, idx := range keyIdx {
			parts[i] = cache.KeyString(row[idx])
		}
		if _, ok := remoteKeys[cache.KeyJoin(parts)]; !ok {
			out = append(out, row)
		}
	}
	return out
}

// filterLinksByModel keeps the links whose model key exists remotely and
// returns how many were skipped.
func filterLinksByModel(spec cache.TableSpec, rows [][]any, modelKeys map[string]struct{}) ([][]any, int64) {
	// Model keys are (code, brand_code, vehicle_class); link columns carry
	// them as (brand_code, model_code, vehicle_class).
	idx := columnIndexes(spec.Columns, []string{"model_code", "brand_code", "vehicle_class"})
	var out [][]any
	var skipped int64
	for _, row := range rows {
		parts := []string{
			cache.KeyString(row[idx[0]]),
			cache.KeyString(row[idx[1]]),
			cache.KeyString(row[idx[2]]),
		}
		if _, ok := modelKeys[cache.KeyJoin(parts)]; ok {
			out = append(out, row)
		} else {
			skipped++
		}
	}
	return out, skipped
}

func columnIndexes(columns, wanted []string) []int {
	idx := make([]int, len(wanted))
	for i, w := range wanted {
		for j, c := range columns {
			if c == w {
				idx[i] = j
				break
			}
		}
	}
	return idx
}
