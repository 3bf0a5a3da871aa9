// This file implements the IterationParser, which reads the progress
// lines CmdStan prints to its console while sampling.
//
// Tested CmdStan version: 2.33. Example console output:
//
//	Iteration:    1 / 2000 [  0%]  (Warmup)
//	Iteration:  200 / 2000 [ 10%]  (Warmup)
//	Iteration: 1001 / 2000 [ 50%]  (Sampling)
//	Iteration: 2000 / 2000 [100%]  (Sampling)
//
// If parsing breaks after a CmdStan upgrade, the console format may
// have changed; the output CSV is unaffected either way.
package parser

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Phase is the sampling phase an iteration belongs to.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseWarmup
	PhaseSampling
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWarmup:
		return "warmup"
	case PhaseSampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// IterationUpdate represents one progress line from a chain's console.
type IterationUpdate struct {
	// Current iteration (warmup + sampling, 1-based)
	Current int

	// Total iterations the chain will run
	Total int

	// Phase the chain is currently in
	Phase Phase

	// Timestamp when this update was parsed
	ReceivedAt time.Time
}

// Fraction returns progress as a fraction (0.0 to 1.0).
func (u *IterationUpdate) Fraction() float64 {
	if u.Total <= 0 {
		return 0
	}
	return float64(u.Current) / float64(u.Total)
}

// IterationCallback is called for each parsed progress line.
// The callback receives a copy of the update, so it's safe to store.
type IterationCallback func(IterationUpdate)

// IterationParser parses CmdStan console progress lines.
//
// It implements the LineParser interface for use with Pipeline.
// Thread-safe: can be called from multiple goroutines.
type IterationParser struct {
	callback IterationCallback

	mu     sync.Mutex
	latest IterationUpdate

	linesProcessed int64
	updatesParsed  int64
}

// NewIterationParser creates a parser with the given callback.
// Pass nil for callback if you only want Latest().
func NewIterationParser(cb IterationCallback) *IterationParser {
	return &IterationParser{callback: cb}
}

// ParseLine implements the LineParser interface.
func (p *IterationParser) ParseLine(line string) {
	p.mu.Lock()
	p.linesProcessed++
	p.mu.Unlock()

	update, ok := parseIterationLine(line)
	if !ok {
		return
	}
	update.ReceivedAt = time.Now()

	p.mu.Lock()
	p.latest = update
	p.updatesParsed++
	p.mu.Unlock()

	if p.callback != nil {
		p.callback(update)
	}
}

// Latest returns the most recent parsed update.
func (p *IterationParser) Latest() IterationUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Stats returns parser statistics.
func (p *IterationParser) Stats() (updatesParsed, linesProcessed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updatesParsed, p.linesProcessed
}

// parseIterationLine parses one "Iteration: N / M [ P%]  (Phase)" line.
func parseIterationLine(line string) (IterationUpdate, bool) {
	var u IterationUpdate

	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Iteration:")
	if !ok {
		return u, false
	}

	current, rest, ok := cutInt(rest)
	if !ok {
		return u, false
	}

	rest, ok = strings.CutPrefix(strings.TrimSpace(rest), "/")
	if !ok {
		return u, false
	}

	total, rest, ok := cutInt(rest)
	if !ok || total <= 0 || current < 0 {
		return u, false
	}

	u.Current = current
	u.Total = total

	switch {
	case strings.Contains(rest, "(Warmup)"):
		u.Phase = PhaseWarmup
	case strings.Contains(rest, "(Sampling)"):
		u.Phase = PhaseSampling
	default:
		u.Phase = PhaseUnknown
	}

	return u, true
}

// cutInt parses a leading integer after whitespace, returning the rest.
func cutInt(s string) (int, string, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, s, false
	}
	return n, s[end:], true
}
