package sim

import (
	"errors"
	"fmt"
)

// Runtime error taxonomy. Behavior code may catch NotConnected, Timeout and
// InvalidArgument; Cancelled only unwinds a task and is never reported as a fault.
var (
	// ErrNotConnected is returned by Send when the target is not a neighbor.
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout is returned by Receive and Timeout when the deadline wins.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidArgument is returned by Parallel and Timeout for operands that are
	// neither awaitable nor a zero-argument async factory.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCancelled is returned from every suspension point of a cancelled task.
	ErrCancelled = errors.New("task cancelled")
	// ErrUnknownNode is returned by control operations addressing an unregistered id.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNotRunning is returned by Wait before Start.
	ErrNotRunning = errors.New("session not running")
	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrNoCompiler is returned when source is submitted to a session without a compiler.
	ErrNoCompiler = errors.New("no compiler attached")
)

// Traceback is implemented by errors that carry a rendered call trace, such as
// exceptions raised by script behaviors.
type Traceback interface {
	error
	Traceback() (full, short string)
}

// BehaviorFault wraps an uncaught error raised by a bound behavior. It is
// produced at the task boundary and reported through the host bridge; it never
// propagates to other endpoints.
type BehaviorFault struct {
	NodeID  string
	Err     error
	Trace   string // full rendered trace
	Summary string // one-line summary
}

func (f *BehaviorFault) Error() string {
	return fmt.Sprintf("behavior of node %q failed: %s", f.NodeID, f.Summary)
}

func (f *BehaviorFault) Unwrap() error {
	return f.Err
}

// newBehaviorFault renders err for the exception bridge.
func newBehaviorFault(nodeID string, err error) *BehaviorFault {
	fault := &BehaviorFault{NodeID: nodeID, Err: err}
	var tb Traceback
	if errors.As(err, &tb) {
		fault.Trace, fault.Summary = tb.Traceback()
	} else {
		fault.Summary = err.Error()
		fault.Trace = fmt.Sprintf("error in node %s: %v", nodeID, err)
	}
	return fault
}

// CheckError is returned by BindBehavior and CompileSource when the submitted
// source does not pass the safety checker.
type CheckError struct {
	Kind    string
	Comment string
	Type    string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s source rejected (%s): %s", e.Kind, e.Type, e.Comment)
}
