package logging

import (
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single captured line.
	MaxLineLength = 4096

	// DefaultTailLines is the number of recent lines kept per chain.
	DefaultTailLines = 20
)

// Tail is a fixed-size ring of the most recent lines written to it.
// The orchestrator attaches one per chain so that a failure report can
// carry the end of that chain's console output without holding the
// whole log in memory.
//
// Tail also implements io.Writer so it can sit behind an io.MultiWriter
// next to the console log file.
type Tail struct {
	mu    sync.Mutex
	lines []string
	idx   int
	count int

	// partial holds an unterminated line across Write calls
	partial strings.Builder
}

// NewTail creates a Tail keeping up to n recent lines.
func NewTail(n int) *Tail {
	if n <= 0 {
		n = DefaultTailLines
	}
	return &Tail{lines: make([]string, n)}
}

// Write implements io.Writer. Input is split on newlines; the trailing
// fragment is buffered until its newline arrives or Flush is called.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			t.addLine(t.partial.String())
			t.partial.Reset()
			continue
		}
		// Keep one byte past the limit so addLine can tell a
		// truncated line from one that is exactly at the limit.
		if t.partial.Len() <= MaxLineLength {
			t.partial.WriteByte(b)
		}
	}
	return len(p), nil
}

// Flush records any buffered partial line. Call after the producing
// process has exited.
func (t *Tail) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.partial.Len() > 0 {
		t.addLine(t.partial.String())
		t.partial.Reset()
	}
}

// addLine appends to the ring. Caller holds t.mu.
func (t *Tail) addLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	t.lines[t.idx] = line
	t.idx = (t.idx + 1) % len(t.lines)
	if t.count < len(t.lines) {
		t.count++
	}
}

// Lines returns the captured lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, t.count)
	start := t.idx - t.count
	if start < 0 {
		start += len(t.lines)
	}
	for i := 0; i < t.count; i++ {
		out = append(out, t.lines[(start+i)%len(t.lines)])
	}
	return out
}

// String joins the captured lines with newlines.
func (t *Tail) String() string {
	return strings.Join(t.Lines(), "\n")
}
