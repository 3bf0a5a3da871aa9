package stancsv

import "fmt"

// ParseError reports a malformed header, data row, or adaptation block.
// It always names the file, and the line (and field column when it
// applies) where parsing stopped.
type ParseError struct {
	File   string
	Line   int // 1-based line number, 0 when unknown
	Column int // 1-based field index, 0 when not field-specific
	Msg    string
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d: column %d: %s", e.File, e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
}

// ConsistencyError reports a cross-chain mismatch: column layout,
// variable shape, row count, or warmup settings differing between the
// files of one run set.
type ConsistencyError struct {
	File string // offending file, may be empty for set-level mismatches
	Msg  string
}

func (e *ConsistencyError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
	return e.Msg
}
