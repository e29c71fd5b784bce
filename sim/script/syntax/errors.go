package syntax

import (
	"errors"
	"fmt"
)

// MaxNesting bounds how deeply expressions and blocks may nest.
const MaxNesting = 500

// ErrTooDeep is returned when the source nests deeper than MaxNesting.
var ErrTooDeep = errors.New("maximum nesting depth exceeded")

// Error is a syntax error. Line and Col are both 1-based.
type Error struct {
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Line %d, Col %d: SyntaxError - %s", e.Line, e.Col, e.Msg)
}

func errorAt(p Pos, format string, args ...any) *Error {
	return &Error{Line: p.Line, Col: p.Col + 1, Msg: fmt.Sprintf(format, args...)}
}
