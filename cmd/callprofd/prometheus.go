package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/getsentry/callprof/internal/profiler"
)

const namespace = "callprof"

// profilerCollector exports the engine's counters on every scrape.
type profilerCollector struct {
	p *profiler.Profiler

	errors    *prometheus.Desc
	functions *prometheus.Desc
	contexts  *prometheus.Desc
	capacity  *prometheus.Desc
	running   *prometheus.Desc
}

func newProfilerCollector(p *profiler.Profiler) *profilerCollector {
	return &profilerCollector{
		p: p,
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "internal_errors_total"),
			"Internal accounting errors by reason.",
			[]string{"reason"}, nil,
		),
		functions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "function_records"),
			"Function records in use.",
			nil, nil,
		),
		contexts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "context_records"),
			"Context records in use.",
			nil, nil,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "pool_capacity"),
			"Records the pools can hand out before growing.",
			[]string{"pool"}, nil,
		),
		running: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "running"),
			"1 while the profiling session runs.",
			nil, nil,
		),
	}
}

func (c *profilerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.errors
	ch <- c.functions
	ch <- c.contexts
	ch <- c.capacity
	ch <- c.running
}

func (c *profilerCollector) Collect(ch chan<- prometheus.Metric) {
	for code, n := range c.p.ErrorCounts() {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(n), code.String())
	}
	u := c.p.Usage()
	ch <- prometheus.MustNewConstMetric(c.functions, prometheus.GaugeValue, float64(u.Functions))
	ch <- prometheus.MustNewConstMetric(c.contexts, prometheus.GaugeValue, float64(u.Contexts))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(u.FunctionCapacity), "functions")
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(u.ContextCapacity), "contexts")
	var running float64
	if c.p.IsRunning() {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
}
