package orchestrator

import (
	"fmt"
	"strings"
)

// ChainFailure describes one failed chain in a settled run set.
type ChainFailure struct {
	ChainID    int
	ExitCode   int
	HasExit    bool
	Err        error
	StderrTail string

	// ConsolePath points at the full captured console log.
	ConsolePath string
}

// RunFailureError aggregates every chain failure of a run set. It is
// raised only after all chains have settled, so the caller sees the
// complete picture in one error.
type RunFailureError struct {
	Total    int
	Failures []ChainFailure
}

// Error summarizes the failures, one line per chain, with the stderr
// tail of the first failure attached.
func (e *RunFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d chains failed", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		b.WriteString("\n  chain ")
		fmt.Fprintf(&b, "%d: ", f.ChainID)
		switch {
		case f.Err != nil:
			b.WriteString(f.Err.Error())
		case f.HasExit:
			fmt.Fprintf(&b, "exited with code %d", f.ExitCode)
		default:
			b.WriteString("failed before exit")
		}
		if f.ConsolePath != "" {
			fmt.Fprintf(&b, " (console: %s)", f.ConsolePath)
		}
	}
	if len(e.Failures) > 0 && e.Failures[0].StderrTail != "" {
		fmt.Fprintf(&b, "\nchain %d stderr:\n%s",
			e.Failures[0].ChainID, indent(e.Failures[0].StderrTail))
	}
	return b.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
