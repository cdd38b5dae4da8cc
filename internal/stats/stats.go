// Package stats tracks crawl run counters and exposes them both as a
// point-in-time snapshot and as Prometheus collectors.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal      prometheus.Counter
	brandsTotal        prometheus.Counter
	modelsTotal        prometheus.Counter
	variantsTotal      prometheus.Counter
	linksTotal         prometheus.Counter
	quotesTotal        prometheus.Counter
	errorsTotal        prometheus.Counter
	skippedTotal       prometheus.Counter
	backoffSecondsSum  prometheus.Counter
	apiSecondsSum      prometheus.Counter
	dbSecondsSum       prometheus.Counter
	activeBrandWorkers prometheus.Gauge

	once sync.Once
)

// initMetrics registers the Prometheus collectors.
// It is safe to call multiple times.
func initMetrics() {
	once.Do(func() {
		requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_requests_total",
			Help: "Total number of upstream API requests issued.",
		})
		brandsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_brands_total",
			Help: "Total number of brands written to the local cache.",
		})
		modelsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_models_total",
			Help: "Total number of models written to the local cache.",
		})
		variantsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_variants_total",
			Help: "Total number of year/fuel variants written to the local cache.",
		})
		linksTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_links_total",
			Help: "Total number of model/variant links written to the local cache.",
		})
		quotesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_quotes_total",
			Help: "Total number of price quotes written to the local cache.",
		})
		errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_errors_total",
			Help: "Total number of contained per-item errors.",
		})
		skippedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_skipped_total",
			Help: "Total number of skipped items (rate limited or already complete).",
		})
		backoffSecondsSum = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_backoff_seconds_total",
			Help: "Total seconds spent waiting out upstream throttling.",
		})
		apiSecondsSum = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_api_seconds_total",
			Help: "Total seconds spent on upstream API round trips.",
		})
		dbSecondsSum = promauto.NewCounter(prometheus.CounterOpts{
			Name: "fipe_db_seconds_total",
			Help: "Total seconds spent in local cache write transactions.",
		})
		activeBrandWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fipe_active_brand_workers",
			Help: "Number of brand workers currently running.",
		})
	})
}

// Snapshot is a copy of the tracker counters at one instant.
type Snapshot struct {
	Requests int64
	Brands   int64
	Models   int64
	Variants int64
	Links    int64
	Quotes   int64
	Errors   int64
	Skipped  int64
	APITime  time.Duration
	DBTime   time.Duration
	Backoff  time.Duration
	Elapsed  time.Duration
}

// Tracker accumulates run counters. All methods are goroutine safe.
type Tracker struct {
	mu       sync.Mutex
	started  time.Time
	requests int64
	brands   int64
	models   int64
	variants int64
	links    int64
	quotes   int64
	errors   int64
	skipped  int64
	apiTime  time.Duration
	dbTime   time.Duration
	backoff  time.Duration
}

// NewTracker builds a Tracker and registers the Prometheus collectors.
func NewTracker() *Tracker {
	initMetrics()
	return &Tracker{started: time.Now()}
}

// AddRequests records n upstream API requests.
func (t *Tracker) AddRequests(n int64) {
	t.mu.Lock()
	t.requests += n
	t.mu.Unlock()
	requestsTotal.Add(float64(n))
}

// AddBrands records n brands written.
func (t *Tracker) AddBrands(n int64) {
	t.mu.Lock()
	t.brands += n
	t.mu.Unlock()
	brandsTotal.Add(float64(n))
}

// AddModels records n models written.
func (t *Tracker) AddModels(n int64) {
	t.mu.Lock()
	t.models += n
	t.mu.Unlock()
	modelsTotal.Add(float64(n))
}

// AddVariants records n year/fuel variants written.
func (t *Tracker) AddVariants(n int64) {
	t.mu.Lock()
	t.variants += n
	t.mu.Unlock()
	variantsTotal.Add(float64(n))
}

// AddLinks records n model/variant links written.
func (t *Tracker) AddLinks(n int64) {
	t.mu.Lock()
	t.links += n
	t.mu.Unlock()
	linksTotal.Add(float64(n))
}

// AddQuotes records n price quotes written.
func (t *Tracker) AddQuotes(n int64) {
	t.mu.Lock()
	t.quotes += n
	t.mu.Unlock()
	quotesTotal.Add(float64(n))
}

// AddError records one contained per-item failure.
func (t *Tracker) AddError() {
	t.mu.Lock()
	t.errors++
	t.mu.Unlock()
	errorsTotal.Inc()
}

// AddSkipped records one skipped item.
func (t *Tracker) AddSkipped() {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()
	skippedTotal.Inc()
}

// AddBackoff records time spent waiting out throttling.
func (t *Tracker) AddBackoff(d time.Duration) {
	t.mu.Lock()
	t.backoff += d
	t.mu.Unlock()
	backoffSecondsSum.Add(d.Seconds())
}

// AddAPITime records time spent on upstream round trips.
func (t *Tracker) AddAPITime(d time.Duration) {
	t.mu.Lock()
	t.apiTime += d
	t.mu.Unlock()
	apiSecondsSum.Add(d.Seconds())
}

// AddDBTime records time spent in local cache write transactions.
func (t *Tracker) AddDBTime(d time.Duration) {
	t.mu.Lock()
	t.dbTime += d
	t.mu.Unlock()
	dbSecondsSum.Add(d.Seconds())
}

// WorkerStarted marks one brand worker as running.
func (t *Tracker) WorkerStarted() {
	activeBrandWorkers.Inc()
}

// WorkerDone marks one brand worker as finished.
func (t *Tracker) WorkerDone() {
	activeBrandWorkers.Dec()
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Requests: t.requests,
		Brands:   t.brands,
		Models:   t.models,
		Variants: t.variants,
		Links:    t.links,
		Quotes:   t.quotes,
		Errors:   t.errors,
		Skipped:  t.skipped,
		APITime:  t.apiTime,
		DBTime:   t.dbTime,
		Backoff:  t.backoff,
		Elapsed:  time.Since(t.started),
	}
}
