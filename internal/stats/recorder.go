// Package stats tracks per-run timing statistics and formats the exit
// summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// Percentiles holds the chain duration distribution at the usual
// quantiles.
type Percentiles struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Recorder accumulates chain wall times across a run set.
//
// Thread-safe: supervisor exit callbacks fire from per-chain
// goroutines.
type Recorder struct {
	startTime time.Time

	mu        sync.Mutex
	digest    *tdigest.TDigest // not thread-safe, guarded by mu
	durations map[int]time.Duration
	exitCodes map[int]int
	min, max  time.Duration
	sum       time.Duration
	count     int
}

// NewRecorder creates a Recorder with the run clock started.
func NewRecorder() *Recorder {
	return &Recorder{
		startTime: time.Now(),
		digest:    tdigest.NewWithCompression(100),
		durations: make(map[int]time.Duration),
		exitCodes: make(map[int]int),
	}
}

// RecordChainExit records one chain's wall time and exit code.
func (r *Recorder) RecordChainExit(chainID int, exitCode int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.digest.Add(float64(d.Nanoseconds()), 1)
	r.durations[chainID] = d
	r.exitCodes[exitCode]++
	r.sum += d
	r.count++
	if r.count == 1 || d < r.min {
		r.min = d
	}
	if d > r.max {
		r.max = d
	}
}

// Elapsed returns the wall time since the Recorder was created.
func (r *Recorder) Elapsed() time.Duration {
	return time.Since(r.startTime)
}

// Count returns how many chain exits have been recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// ChainDuration returns the recorded wall time for one chain.
func (r *Recorder) ChainDuration(chainID int) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.durations[chainID]
	return d, ok
}

// ExitCodes returns a copy of the exit code histogram.
func (r *Recorder) ExitCodes() map[int]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]int, len(r.exitCodes))
	for code, n := range r.exitCodes {
		out[code] = n
	}
	return out
}

// DurationPercentiles returns the chain duration distribution. Zero
// values when nothing has been recorded.
func (r *Recorder) DurationPercentiles() Percentiles {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return Percentiles{}
	}
	return Percentiles{
		P50: time.Duration(r.digest.Quantile(0.50)),
		P95: time.Duration(r.digest.Quantile(0.95)),
		P99: time.Duration(r.digest.Quantile(0.99)),
	}
}

// MinMaxMean returns the extremes and mean of the recorded durations.
func (r *Recorder) MinMaxMean() (min, max, mean time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return 0, 0, 0
	}
	return r.min, r.max, r.sum / time.Duration(r.count)
}
