package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(class, sender string) Envelope {
	return Envelope{Message: &Message{ClassName: class, SenderID: sender}, SenderID: sender}
}

func TestMailbox_FIFO(t *testing.T) {
	// GIVEN a mailbox with three envelopes
	mb := NewMailbox(newTestScheduler(t))
	mb.Enqueue(envelope("A", "x"))
	mb.Enqueue(envelope("B", "y"))
	mb.Enqueue(envelope("C", "z"))
	assert.Equal(t, "[A from x B from y C from z]", mb.String())

	// WHEN peeking and draining
	head, ok := mb.Peek()
	require.True(t, ok)
	assert.Equal(t, "A", head.Message.ClassName)
	assert.Equal(t, 3, mb.Len())

	var got []string
	for {
		env, ok := mb.TryDequeue()
		if !ok {
			break
		}
		got = append(got, env.SenderID)
	}

	// THEN envelopes come out in delivery order
	assert.Equal(t, []string{"x", "y", "z"}, got)
	_, ok = mb.Peek()
	assert.False(t, ok)
}

func TestMailbox_Dequeue_BlocksUntilEnqueue(t *testing.T) {
	// GIVEN a task waiting on an empty mailbox
	s := newTestScheduler(t)
	mb := NewMailbox(s)
	task := s.Spawn("reader", "n1", func(t *Task) (any, error) { return mb.Dequeue(t) })
	s.RunUntilIdle()
	require.False(t, task.Done())
	require.Equal(t, 1, mb.Waiting())

	// WHEN an envelope arrives
	mb.Enqueue(envelope("Ping", "a"))
	assert.Equal(t, 0, mb.Waiting())
	s.RunUntilIdle()

	// THEN the waiter takes it
	require.True(t, task.Done())
	require.NoError(t, task.Err())
	assert.Equal(t, "a", task.Result().(Envelope).SenderID)
	assert.Equal(t, 0, mb.Len())
}

func TestMailbox_Dequeue_CancelledWaiterLeavesMailboxUntouched(t *testing.T) {
	// GIVEN a blocked reader
	s := newTestScheduler(t)
	mb := NewMailbox(s)
	task := s.Spawn("reader", "n1", func(t *Task) (any, error) { return mb.Dequeue(t) })
	s.RunUntilIdle()

	// WHEN it is cancelled and a message arrives afterwards
	s.Cancel(task)
	s.RunUntilIdle()
	mb.Enqueue(envelope("Ping", "a"))
	s.RunUntilIdle()

	// THEN the reader is gone and the message stays queued
	assert.ErrorIs(t, task.Err(), ErrCancelled)
	assert.Equal(t, 0, mb.Waiting())
	assert.Equal(t, 1, mb.Len())
}

func TestMailbox_Enqueue_WakesEveryWaiter(t *testing.T) {
	// GIVEN two readers on one mailbox
	s := newTestScheduler(t)
	mb := NewMailbox(s)
	first := s.Spawn("r1", "n1", func(t *Task) (any, error) { return mb.Dequeue(t) })
	second := s.Spawn("r2", "n1", func(t *Task) (any, error) { return mb.Dequeue(t) })
	s.RunUntilIdle()

	// WHEN one envelope arrives
	mb.Enqueue(envelope("Ping", "a"))
	s.RunUntilIdle()

	// THEN the first reader takes it and the second goes back to waiting
	assert.True(t, first.Done())
	assert.False(t, second.Done())
	assert.Equal(t, 1, mb.Waiting())
}
