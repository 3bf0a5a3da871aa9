// Package parser provides lossy-by-design parsing of chain console output.
//
// Console parsing exists only to drive live progress display; it must
// never slow the chain processes down. Lines flow through a bounded
// channel and are dropped when the parser cannot keep up, because the
// authoritative data is the output CSV, not the console stream.
//
// Two-layer architecture:
//
//	Layer 1 (Reader): reads lines fast, drops if channel full - never blocks
//	Layer 2 (Parser): consumes from channel at its own pace
package parser

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// LineParser consumes one console line at a time.
type LineParser interface {
	ParseLine(line string)
}

// Pipeline implements two-layer lossy-by-design parsing.
//
// It reads lines from an io.Reader into a bounded channel. If the
// parser cannot keep up, lines are dropped rather than blocking the
// writer (the chain process).
type Pipeline struct {
	chainID    int
	streamType string
	bufferSize int

	lineChan  chan string
	closeOnce sync.Once

	// Pipeline health metrics (atomic for concurrent access)
	linesRead    int64
	linesDropped int64
	linesParsed  int64

	// Configurable threshold for degradation detection
	dropThreshold float64
}

// NewPipeline creates a lossy parsing pipeline.
//
// Parameters:
//   - chainID: chain identifier for logging
//   - streamType: stream label, e.g. "console"
//   - bufferSize: channel buffer size (lines)
//   - dropThreshold: fraction (0.0-1.0) above which parsing is degraded
func NewPipeline(chainID int, streamType string, bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	if dropThreshold <= 0 {
		dropThreshold = 0.01
	}

	return &Pipeline{
		chainID:       chainID,
		streamType:    streamType,
		bufferSize:    bufferSize,
		lineChan:      make(chan string, bufferSize),
		dropThreshold: dropThreshold,
	}
}

// RunReader is Layer 1: reads lines fast, drops if channel full.
//
// MUST run in a dedicated goroutine. Never blocks on channel send.
// Closes the line channel at EOF, which terminates RunParser.
func (p *Pipeline) RunReader(r io.Reader) {
	defer p.CloseChannel()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		atomic.AddInt64(&p.linesRead, 1)

		select {
		case p.lineChan <- line:
		default:
			// Channel full - drop intentionally to avoid blocking the chain
			atomic.AddInt64(&p.linesDropped, 1)
		}
	}
}

// CloseChannel closes the line channel, signaling the parser to stop.
// Safe to call multiple times.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunParser is Layer 2: consumes lines at its own pace.
//
// MUST run in a dedicated goroutine. Blocks until the channel closes.
func (p *Pipeline) RunParser(parser LineParser) {
	for line := range p.lineChan {
		parser.ParseLine(line)
		atomic.AddInt64(&p.linesParsed, 1)
	}
}

// Stats returns pipeline health metrics.
func (p *Pipeline) Stats() (read, dropped, parsed int64) {
	return atomic.LoadInt64(&p.linesRead),
		atomic.LoadInt64(&p.linesDropped),
		atomic.LoadInt64(&p.linesParsed)
}

// DropRate returns the current drop rate as a fraction (0.0 to 1.0).
func (p *Pipeline) DropRate() float64 {
	read := atomic.LoadInt64(&p.linesRead)
	if read == 0 {
		return 0
	}
	dropped := atomic.LoadInt64(&p.linesDropped)
	return float64(dropped) / float64(read)
}

// IsDegraded returns true if the drop rate exceeds the threshold.
func (p *Pipeline) IsDegraded() bool {
	return p.DropRate() > p.dropThreshold
}

// ChainID returns the chain id for this pipeline.
func (p *Pipeline) ChainID() int {
	return p.chainID
}

// StreamType returns the stream label.
func (p *Pipeline) StreamType() string {
	return p.streamType
}

// NoopParser is a parser that does nothing (for testing/placeholder use).
type NoopParser struct{}

// ParseLine does nothing.
func (NoopParser) ParseLine(string) {}
