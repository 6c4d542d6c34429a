// Package metrics tracks running batch counters and attempt latencies.
// Counters are shared by every worker and read by the gate tuner; an
// optional embedded HTTP listener exposes them in Prometheus format.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch holds the shared run counters. All mutation goes through Record*
// methods under the internal mutex.
type Batch struct {
	mu sync.Mutex

	totalAttempts int
	successCount  int
	failureCount  int
	byOutcome     map[string]int

	// latency ring window
	latSamples []time.Duration
	latIdx     int
	latCount   int

	start time.Time

	registry       *prometheus.Registry
	attemptCounter *prometheus.CounterVec
	latencyHist    prometheus.Histogram
	inflightGauge  prometheus.Gauge
	limitGauge     prometheus.Gauge
}

// NewBatch creates batch metrics with a latency window of win samples.
func NewBatch(win int) *Batch {
	if win < 16 {
		win = 16
	}
	b := &Batch{
		byOutcome:  make(map[string]int, 8),
		latSamples: make([]time.Duration, win),
		start:      time.Now(),
		registry:   prometheus.NewRegistry(),
	}
	b.attemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batchreg_attempts_total",
		Help: "Submission attempts by outcome.",
	}, []string{"outcome"})
	b.latencyHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchreg_attempt_duration_seconds",
		Help:    "Attempt latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	b.inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batchreg_inflight_records",
		Help: "Records currently in active processing.",
	})
	b.limitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batchreg_gate_limit",
		Help: "Current concurrency gate limit.",
	})
	b.registry.MustRegister(b.attemptCounter, b.latencyHist, b.inflightGauge, b.limitGauge)
	return b
}

// RecordAttempt records one completed attempt. success means the attempt
// outcome was a confirmed registration.
func (b *Batch) RecordAttempt(outcome string, success bool, latency time.Duration) {
	b.mu.Lock()
	b.totalAttempts++
	if success {
		b.successCount++
	} else {
		b.failureCount++
	}
	b.byOutcome[outcome]++
	b.latSamples[b.latIdx] = latency
	b.latIdx = (b.latIdx + 1) % len(b.latSamples)
	if b.latCount < len(b.latSamples) {
		b.latCount++
	}
	b.mu.Unlock()

	b.attemptCounter.WithLabelValues(outcome).Inc()
	b.latencyHist.Observe(latency.Seconds())
}

// SetInflight publishes the current in-flight record count.
func (b *Batch) SetInflight(n int) {
	b.inflightGauge.Set(float64(n))
}

// SetGateLimit publishes the current gate limit.
func (b *Batch) SetGateLimit(n int) {
	b.limitGauge.Set(float64(n))
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalAttempts int
	SuccessCount  int
	FailureCount  int
	ByOutcome     map[string]int
	Elapsed       time.Duration
}

// Snapshot returns a copy of the counters.
func (b *Batch) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	by := make(map[string]int, len(b.byOutcome))
	for k, v := range b.byOutcome {
		by[k] = v
	}
	return Snapshot{
		TotalAttempts: b.totalAttempts,
		SuccessCount:  b.successCount,
		FailureCount:  b.failureCount,
		ByOutcome:     by,
		Elapsed:       time.Since(b.start),
	}
}

// LatencyQuantiles returns the p50 and p95 of the latency window.
func (b *Batch) LatencyQuantiles() (p50, p95 time.Duration) {
	b.mu.Lock()
	n := b.latCount
	if n == 0 {
		b.mu.Unlock()
		return 0, 0
	}
	buf := make([]time.Duration, n)
	copy(buf, b.latSamples[:n])
	b.mu.Unlock()

	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	return quantile(buf, 0.50), quantile(buf, 0.95)
}

func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := q * float64(len(sorted)-1)
	i := int(idx)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(i)
	return time.Duration(float64(sorted[i])*(1-frac) + float64(sorted[i+1])*frac)
}

// Handler returns the Prometheus exposition handler for this batch.
func (b *Batch) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics listener on addr. The returned server should be
// shut down by the caller; ListenAndServe errors other than closure are
// reported on the returned channel.
func (b *Batch) Serve(addr string) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", b.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	return srv, errc
}
