// Package metrics provides Prometheus metrics for go-stan-swarm.
//
// Chain counts are small (typically 4 to 32), so per-chain labelled
// metrics are always enabled.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Run overview ---
var (
	stanSwarmInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stan_swarm_info",
			Help: "Information about the run (value always 1)",
		},
		[]string{"version", "model", "run_name"},
	)

	stanTargetChains = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stan_swarm_target_chains",
			Help: "Number of chains requested",
		},
	)

	stanActiveChains = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stan_swarm_active_chains",
			Help: "Chains currently running",
		},
	)

	stanElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stan_swarm_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)
)

// --- Chain lifecycle ---
var (
	stanChainStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stan_swarm_chain_starts_total",
			Help: "Total chain process starts",
		},
	)

	stanChainsSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stan_swarm_chains_settled_total",
			Help: "Chains that reached a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	stanChainExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stan_swarm_chain_exits_total",
			Help: "Chain process exits by exit code",
		},
		[]string{"exit_code"},
	)

	stanChainDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stan_swarm_chain_duration_seconds",
			Help:    "Chain wall time from start to exit",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms .. ~13m
		},
	)
)

// --- Progress ---
var (
	stanChainIteration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stan_swarm_chain_iteration",
			Help: "Latest reported iteration per chain",
		},
		[]string{"chain"},
	)

	stanChainProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stan_swarm_chain_progress_ratio",
			Help: "Latest reported progress per chain (0.0 to 1.0)",
		},
		[]string{"chain"},
	)
)

// --- Console pipeline health ---
var (
	stanConsoleLinesReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stan_swarm_console_lines_read_total",
			Help: "Console lines read from chain processes",
		},
	)

	stanConsoleLinesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stan_swarm_console_lines_dropped_total",
			Help: "Console lines dropped by the lossy progress pipeline",
		},
	)
)

// --- Sample assembly ---
var (
	stanDrawsParsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stan_swarm_draws_parsed_total",
			Help: "Draw rows parsed from chain output files",
		},
	)
)

// Collector manages all Prometheus metrics for the swarm.
type Collector struct {
	startTime time.Time

	// Delta tracking for the cumulative pipeline counters.
	mu          sync.Mutex
	prevRead    int64
	prevDropped int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Model   string
	RunName string
	Chains  int
}

// NewCollector creates a collector registered with the default
// registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime: time.Now(),
	}

	registry.MustRegister(
		stanSwarmInfo,
		stanTargetChains,
		stanActiveChains,
		stanElapsedSeconds,

		stanChainStartsTotal,
		stanChainsSettledTotal,
		stanChainExitsTotal,
		stanChainDurationSeconds,

		stanChainIteration,
		stanChainProgress,

		stanConsoleLinesReadTotal,
		stanConsoleLinesDroppedTotal,

		stanDrawsParsedTotal,
	)

	stanSwarmInfo.WithLabelValues(cfg.Version, cfg.Model, cfg.RunName).Set(1)
	stanTargetChains.Set(float64(cfg.Chains))

	return c
}

// ChainStarted records a chain process start.
func (c *Collector) ChainStarted() {
	stanChainStartsTotal.Inc()
	stanActiveChains.Inc()
}

// ChainSettled records a chain reaching a terminal state. outcome is
// the lowercase state name (succeeded, failed, cancelled).
func (c *Collector) ChainSettled(outcome string, exitCode int, hasExit bool, d time.Duration) {
	stanActiveChains.Dec()
	stanChainsSettledTotal.WithLabelValues(outcome).Inc()
	if hasExit {
		stanChainExitsTotal.WithLabelValues(strconv.Itoa(exitCode)).Inc()
		stanChainDurationSeconds.Observe(d.Seconds())
	}
}

// RecordIteration records a chain's latest progress report.
func (c *Collector) RecordIteration(chainID, current, total int) {
	chain := strconv.Itoa(chainID)
	stanChainIteration.WithLabelValues(chain).Set(float64(current))
	if total > 0 {
		stanChainProgress.WithLabelValues(chain).Set(float64(current) / float64(total))
	}
}

// RecordPipelineStats updates the cumulative console pipeline
// counters from the given totals.
func (c *Collector) RecordPipelineStats(read, dropped int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := read - c.prevRead; d > 0 {
		stanConsoleLinesReadTotal.Add(float64(d))
		c.prevRead = read
	}
	if d := dropped - c.prevDropped; d > 0 {
		stanConsoleLinesDroppedTotal.Add(float64(d))
		c.prevDropped = dropped
	}
}

// RecordDrawsParsed records draw rows parsed during sample assembly.
func (c *Collector) RecordDrawsParsed(n int) {
	stanDrawsParsedTotal.Add(float64(n))
}

// Tick refreshes the elapsed time gauge.
func (c *Collector) Tick() {
	stanElapsedSeconds.Set(time.Since(c.startTime).Seconds())
}
