package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/netsandbox/netsandbox/sim"
)

// SourceName is the file name shown in tracebacks.
const SourceName = "<exec>"

var (
	excBaseException     = newBuiltinClass("BaseException")
	excException         = newBuiltinClass("Exception", excBaseException)
	excArithmeticError   = newBuiltinClass("ArithmeticError", excException)
	excZeroDivisionError = newBuiltinClass("ZeroDivisionError", excArithmeticError)
	excOverflowError     = newBuiltinClass("OverflowError", excArithmeticError)
	excLookupError       = newBuiltinClass("LookupError", excException)
	excKeyError          = newBuiltinClass("KeyError", excLookupError)
	excIndexError        = newBuiltinClass("IndexError", excLookupError)
	excNameError         = newBuiltinClass("NameError", excException)
	excAttributeError    = newBuiltinClass("AttributeError", excException)
	excTypeError         = newBuiltinClass("TypeError", excException)
	excValueError        = newBuiltinClass("ValueError", excException)
	excRuntimeError      = newBuiltinClass("RuntimeError", excException)
	excRecursionError    = newBuiltinClass("RecursionError", excRuntimeError)
	excNotImplemented    = newBuiltinClass("NotImplementedError", excRuntimeError)
	excAssertionError    = newBuiltinClass("AssertionError", excException)
	excImportError       = newBuiltinClass("ImportError", excException)
	excModuleNotFound    = newBuiltinClass("ModuleNotFoundError", excImportError)
	excStopIteration     = newBuiltinClass("StopIteration", excException)
	excOSError           = newBuiltinClass("OSError", excException)
	excConnectionError   = newBuiltinClass("ConnectionError", excOSError)
	excTimeoutError      = newBuiltinClass("TimeoutError", excOSError)
)

var exceptionClasses = []*Class{
	excBaseException, excException, excArithmeticError, excZeroDivisionError,
	excOverflowError, excLookupError, excKeyError, excIndexError, excNameError, excAttributeError,
	excTypeError, excValueError, excRuntimeError, excRecursionError,
	excNotImplemented, excAssertionError, excImportError, excModuleNotFound,
	excStopIteration, excOSError, excConnectionError, excTimeoutError,
}

// Frame is one entry of a script traceback.
type Frame struct {
	Name string
	Line int
}

// Exception is a raised script exception. It is the error type that carries
// script failures through Go code and implements sim.Traceback.
type Exception struct {
	Value  *Instance
	Frames []Frame
	fatal  bool // not catchable by except clauses
}

func newError(cls *Class, format string, args ...any) *Exception {
	inst := newInstance(cls)
	inst.Attrs["args"] = Tuple{fmt.Sprintf(format, args...)}
	return &Exception{Value: inst}
}

// ClassName returns the name of the exception's class.
func (e *Exception) ClassName() string { return e.Value.Class.Name }

// Message returns str() of the exception value.
func (e *Exception) Message() string { return exceptionMessage(e.Value) }

func (e *Exception) Error() string {
	msg := e.Message()
	if msg == "" {
		return e.ClassName()
	}
	return e.ClassName() + ": " + msg
}

// Traceback renders the full trace and the one-line summary.
func (e *Exception) Traceback() (full, short string) {
	var sb strings.Builder
	sb.WriteString("Traceback (most recent call last):\n")
	for _, f := range e.Frames {
		fmt.Fprintf(&sb, "  File \"%s\", line %d, in %s\n", SourceName, f.Line, f.Name)
	}
	sb.WriteString(e.Error())
	sb.WriteString("\n")
	return sb.String(), e.Error()
}

var _ sim.Traceback = (*Exception)(nil)

func exceptionMessage(inst *Instance) string {
	args, _ := inst.Attrs["args"].(Tuple)
	switch len(args) {
	case 0:
		return ""
	case 1:
		if inst.Class.IsSubclass(excKeyError) {
			return repr(args[0])
		}
		return str(args[0])
	}
	return repr(args)
}

func isExceptionClass(c *Class) bool {
	return c.IsSubclass(excBaseException)
}

// toException converts a Go error raised by the runtime into a script
// exception. Cancellation is returned unchanged so that no except clause can
// swallow it.
func toException(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sim.ErrCancelled) {
		return err
	}
	var exc *Exception
	if errors.As(err, &exc) {
		return exc
	}
	switch {
	case errors.Is(err, sim.ErrNotConnected):
		return newError(excConnectionError, "%s", stripSentinel(err, sim.ErrNotConnected))
	case errors.Is(err, sim.ErrTimeout):
		return newError(excTimeoutError, "%s", stripSentinel(err, sim.ErrTimeout))
	case errors.Is(err, sim.ErrInvalidArgument):
		return newError(excRuntimeError, "%s", stripSentinel(err, sim.ErrInvalidArgument))
	}
	return newError(excRuntimeError, "%s", err.Error())
}

// stripSentinel drops the "sentinel: " prefix that fmt.Errorf wrapping adds.
func stripSentinel(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
