// Implements the Mailbox, which holds messages delivered to an endpoint but not
// yet read by its behavior.

package sim

import (
	"fmt"
	"strings"
)

// Envelope is one mailbox entry: a delivered message and the id of its sender.
type Envelope struct {
	Message  *Message
	SenderID string
}

func (e Envelope) String() string {
	if e.Message == nil {
		return fmt.Sprintf("<nil from %s>", e.SenderID)
	}
	return fmt.Sprintf("%s from %s", e.Message.ClassName, e.SenderID)
}

// Mailbox is a FIFO queue of envelopes. Order is the order in which deliveries
// were routed into it. Tasks blocked in Dequeue are woken on every Enqueue.
type Mailbox struct {
	sched   *Scheduler
	queue   []Envelope
	waiters []*Task
}

// NewMailbox creates an empty mailbox whose waiters are woken through sched.
func NewMailbox(sched *Scheduler) *Mailbox {
	return &Mailbox{sched: sched}
}

// Enqueue adds an envelope to the back of the mailbox and wakes every waiter.
func (mb *Mailbox) Enqueue(env Envelope) {
	mb.queue = append(mb.queue, env)
	waiters := mb.waiters
	mb.waiters = nil
	for _, t := range waiters {
		mb.sched.Wake(t)
	}
}

func (mb *Mailbox) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, val := range mb.queue {
		sb.WriteString(val.String())
		if i < len(mb.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of queued envelopes.
func (mb *Mailbox) Len() int {
	return len(mb.queue)
}

// Peek returns the envelope at the front without removing it.
func (mb *Mailbox) Peek() (Envelope, bool) {
	if len(mb.queue) == 0 {
		return Envelope{}, false
	}
	return mb.queue[0], true
}

// TryDequeue removes the front envelope without blocking.
func (mb *Mailbox) TryDequeue() (Envelope, bool) {
	if len(mb.queue) == 0 {
		return Envelope{}, false
	}
	env := mb.queue[0]
	mb.queue[0] = Envelope{}
	mb.queue = mb.queue[1:]
	return env, true
}

// Dequeue removes the front envelope, parking t until one is available.
// A cancelled waiter leaves the mailbox untouched.
func (mb *Mailbox) Dequeue(t *Task) (Envelope, error) {
	for len(mb.queue) == 0 {
		mb.waiters = append(mb.waiters, t)
		if err := t.Park(); err != nil {
			mb.removeWaiter(t)
			return Envelope{}, err
		}
	}
	env, _ := mb.TryDequeue()
	return env, nil
}

func (mb *Mailbox) removeWaiter(t *Task) {
	for i, w := range mb.waiters {
		if w == t {
			mb.waiters = append(mb.waiters[:i], mb.waiters[i+1:]...)
			return
		}
	}
}

// Waiting returns the number of tasks blocked in Dequeue.
func (mb *Mailbox) Waiting() int {
	return len(mb.waiters)
}
