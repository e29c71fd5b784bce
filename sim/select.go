package sim

import (
	"errors"
	"fmt"
)

// Awaitable is an asynchronous computation that can be driven to completion on
// a given task.
type Awaitable interface {
	Await(t *Task) (any, error)
}

// AsyncFactory produces a fresh Awaitable when invoked with no arguments.
type AsyncFactory interface {
	NewAwaitable() (Awaitable, error)
}

// ResolveOperation turns op into a TaskFunc. Accepted operands are TaskFunc
// values, Awaitables and AsyncFactories; anything else is ErrInvalidArgument.
func ResolveOperation(op any) (TaskFunc, error) {
	switch v := op.(type) {
	case TaskFunc:
		if v != nil {
			return v, nil
		}
	case func(*Task) (any, error):
		if v != nil {
			return v, nil
		}
	case Awaitable:
		return v.Await, nil
	case AsyncFactory:
		return func(t *Task) (any, error) {
			a, err := v.NewAwaitable()
			if err != nil {
				return nil, err
			}
			return a.Await(t)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s is neither awaitable nor a coroutine function", ErrInvalidArgument, describe(op))
}

func describe(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}

// FirstOf runs every branch as a child task of t and returns the index and
// outcome of the first branch to finish. The remaining branches are cancelled
// at the moment the winner finishes, before any of them can resume again, so a
// losing branch never observes a later wakeup. If t itself is cancelled while
// waiting, every branch is cancelled and ErrCancelled is returned.
func FirstOf(t *Task, branches ...TaskFunc) (int, any, error) {
	if len(branches) == 0 {
		return -1, nil, fmt.Errorf("%w: FirstOf needs at least one branch", ErrInvalidArgument)
	}
	s := t.sched
	winner := -1
	var (
		res any
		err error
	)
	children := make([]*Task, len(branches))
	for i, b := range branches {
		children[i] = s.Spawn(fmt.Sprintf("%s/first-%d", t.name, i), t.owner, b)
	}
	for i, c := range children {
		c.OnDone(func(c *Task) {
			if winner >= 0 {
				return
			}
			winner, res, err = i, c.result, c.err
			for j, other := range children {
				if j != i {
					s.Cancel(other)
				}
			}
			s.Wake(t)
		})
	}
	for winner < 0 {
		if perr := t.Park(); perr != nil {
			for _, c := range children {
				s.Cancel(c)
			}
			return -1, nil, perr
		}
	}
	return winner, res, err
}

// Gather runs every op as a child task of t and waits for all of them. Every op
// is attempted; the returned error joins all individual failures.
func Gather(t *Task, ops ...TaskFunc) ([]any, error) {
	results := make([]any, len(ops))
	if len(ops) == 0 {
		return results, nil
	}
	s := t.sched
	errs := make([]error, len(ops))
	children := make([]*Task, len(ops))
	remaining := len(ops)
	for i, op := range ops {
		children[i] = s.Spawn(fmt.Sprintf("%s/gather-%d", t.name, i), t.owner, op)
	}
	for i, c := range children {
		c.OnDone(func(c *Task) {
			results[i], errs[i] = c.result, c.err
			remaining--
			if remaining == 0 {
				s.Wake(t)
			}
		})
	}
	for remaining > 0 {
		if err := t.Park(); err != nil {
			for _, c := range children {
				s.Cancel(c)
			}
			return nil, err
		}
	}
	return results, errors.Join(errs...)
}
