// Package stats implements the metrics registry (C7): named counters in the
// shape of syzkaller's pkg/stat Val/New/registry pattern, rendered either to
// the terminal status line or, when enabled, served as Prometheus gauges
// over HTTP.
package stats

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Val is a single named atomic counter, registered once and updated from
// the engine's single worker goroutine. Unlike the teacher's pkg/stat.Val,
// there is no Level/Link/Graph machinery here — this run has one consumer
// (the status line) and one optional exporter (Prometheus), not a
// multi-surface web UI.
type Val struct {
	name string
	desc string
	val  atomic.Int64
	pg   prometheus.Collector
}

func (v *Val) Add(delta int64) { v.val.Add(delta) }
func (v *Val) Set(n int64)     { v.val.Store(n) }
func (v *Val) Value() int64    { return v.val.Load() }

// Set is the registry: a process-wide collection of named Vals plus a
// histogram of per-execution durations, grounded on pkg/stat.set but
// trimmed to what the engine's status line and /metrics endpoint need.
type Set struct {
	mu   sync.Mutex
	vals map[string]*Val
	reg  *prometheus.Registry

	durations *gohistogram.NumericHistogram
}

const histogramBuckets = 64

// NewSet creates an empty registry. Every Set has its own Prometheus
// registry so tests can construct one without touching process-global
// default-registry state.
func NewSet() *Set {
	return &Set{
		vals:      make(map[string]*Val),
		reg:       prometheus.NewRegistry(),
		durations: gohistogram.NewHistogram(histogramBuckets),
	}
}

// New registers and returns a new counter under name, also exporting it as
// a Prometheus gauge.
func (s *Set) New(name, desc string) *Val {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &Val{name: name, desc: desc}
	v.pg = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coverfuzz_" + name,
		Help: desc,
	}, func() float64 { return float64(v.Value()) })
	s.reg.MustRegister(v.pg)
	s.vals[name] = v
	return v
}

// ObserveDuration records one execution's wall-clock duration (seconds)
// into the distribution histogram, mirroring stat.Distribution.
func (s *Set) ObserveDuration(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations.Add(seconds)
}

// MeanDuration returns the running mean of observed execution durations.
func (s *Set) MeanDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.durations.Count() == 0 {
		return 0
	}
	return s.durations.Mean()
}

// Snapshot returns every registered value, sorted by name, for rendering.
func (s *Set) Snapshot() []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]UI, 0, len(s.vals))
	for _, v := range s.vals {
		res = append(res, UI{Name: v.name, Desc: v.desc, Value: v.Value()})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// UI is one rendered metric: name, description and current value.
type UI struct {
	Name  string
	Desc  string
	Value int64
}

// ServeHTTP exposes the registry in Prometheus exposition format, used by
// cmd/afl-fuzz when RunConfig.MetricsAddr is set.
func (s *Set) ServeHTTP(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stats: listen %s: %w", addr, err)
	}
	go srv.Serve(ln)
	return srv, nil
}

// FormatElapsed renders a duration the way the teacher's status lines do:
// whole seconds for short runs ("5s"), "XmYs" ("1m5s") once a minute has
// passed.
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := d / time.Minute
	s := d % time.Minute / time.Second
	return fmt.Sprintf("%dm%ds", m, s)
}
