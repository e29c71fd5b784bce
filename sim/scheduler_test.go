package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunUntilIdle_FIFO(t *testing.T) {
	// GIVEN three spawned tasks
	s := newTestScheduler(t)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Spawn(name, "owner", func(*Task) (any, error) {
			order = append(order, name)
			return nil, nil
		})
	}

	// WHEN the scheduler runs
	steps := s.RunUntilIdle()

	// THEN they ran in spawn order and all finished
	assert.Equal(t, 3, steps)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, s.Live())
}

func TestScheduler_ParkAndWake_Interleave(t *testing.T) {
	// GIVEN two tasks that requeue themselves after every step
	s := newTestScheduler(t)
	var order []string
	body := func(name string) TaskFunc {
		return func(t *Task) (any, error) {
			for i := 1; i <= 3; i++ {
				order = append(order, name)
				t.Scheduler().Wake(t)
				if err := t.Park(); err != nil {
					return nil, err
				}
			}
			return t.Yields(), nil
		}
	}
	a := s.Spawn("a", "x", body("a"))
	s.Spawn("b", "y", body("b"))

	// WHEN the scheduler runs
	s.RunUntilIdle()

	// THEN exactly one body ran at a time, alternating at every suspension
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
	assert.Equal(t, uint64(3), a.Result())
}

func TestScheduler_CancelParkedTask_ParkReturnsErrCancelled(t *testing.T) {
	// GIVEN a task parked with no waker
	s := newTestScheduler(t)
	var parkErr error
	task := s.Spawn("sleeper", "n1", func(t *Task) (any, error) {
		parkErr = t.Park()
		return "cleaned up", parkErr
	})
	s.RunUntilIdle()
	require.False(t, task.Done())

	// WHEN it is cancelled
	s.Cancel(task)
	s.RunUntilIdle()

	// THEN it resumes with ErrCancelled and finishes
	assert.ErrorIs(t, parkErr, ErrCancelled)
	assert.True(t, task.Done())
	assert.True(t, task.Cancelled())
	assert.Equal(t, "cleaned up", task.Result())
}

func TestScheduler_CancelBeforeStart_BodyNeverRuns(t *testing.T) {
	s := newTestScheduler(t)
	ran := false
	task := s.Spawn("never", "n1", func(*Task) (any, error) {
		ran = true
		return nil, nil
	})

	s.Cancel(task)
	s.RunUntilIdle()

	assert.False(t, ran)
	assert.True(t, task.Done())
	assert.ErrorIs(t, task.Err(), ErrCancelled)
}

func TestScheduler_NestedRunUntilIdle_ReturnsZero(t *testing.T) {
	// GIVEN a task that calls back into the scheduler loop
	s := newTestScheduler(t)
	nested := -1
	s.Spawn("outer", "n1", func(t *Task) (any, error) {
		t.Scheduler().Spawn("inner", "n1", func(*Task) (any, error) { return nil, nil })
		nested = t.Scheduler().RunUntilIdle()
		return nil, nil
	})

	// WHEN the outer loop runs
	steps := s.RunUntilIdle()

	// THEN the nested call is a no-op and the outer loop ran the new task
	assert.Equal(t, 0, nested)
	assert.Equal(t, 2, steps)
	assert.Equal(t, 0, s.Live())
}

func TestScheduler_Panic_BecomesTaskError(t *testing.T) {
	s := newTestScheduler(t)
	task := s.Spawn("boom-task", "n1", func(*Task) (any, error) {
		panic("kaboom")
	})

	s.RunUntilIdle()

	require.True(t, task.Done())
	assert.EqualError(t, task.Err(), "panic in task boom-task: kaboom")
}

func TestTask_OnDone(t *testing.T) {
	// GIVEN a task with a completion callback registered before it runs
	s := newTestScheduler(t)
	task := s.Spawn("worker", "n1", func(*Task) (any, error) { return 7, nil })
	var before any
	task.OnDone(func(t *Task) { before = t.Result() })

	// WHEN it finishes
	s.RunUntilIdle()

	// THEN the callback saw the result and a late callback runs immediately
	assert.Equal(t, 7, before)
	late := false
	task.OnDone(func(*Task) { late = true })
	assert.True(t, late)
}

func TestScheduler_CancelOwner_OnlyCancelsThatOwner(t *testing.T) {
	// GIVEN parked tasks of two owners
	s := newTestScheduler(t)
	a1 := s.Spawn("a1", "a", parkForever)
	a2 := s.Spawn("a2", "a", parkForever)
	b1 := s.Spawn("b1", "b", parkForever)
	s.RunUntilIdle()
	require.Equal(t, 3, s.Live())

	// WHEN the tasks of a are cancelled
	n := s.CancelOwner("a")
	s.RunUntilIdle()

	// THEN b keeps running
	assert.Equal(t, 2, n)
	assert.True(t, a1.Done())
	assert.True(t, a2.Done())
	assert.False(t, b1.Done())
	assert.Equal(t, 1, s.Live())
}

func TestScheduler_CancelAll_WakesLiveTasksInSpawnOrder(t *testing.T) {
	// GIVEN parked tasks spawned between many tasks that already finished
	s := newTestScheduler(t)
	var woken []string
	parkThenRecord := func(name string) TaskFunc {
		return func(t *Task) (any, error) {
			err := t.Park()
			woken = append(woken, name)
			return nil, err
		}
	}
	noop := func(*Task) (any, error) { return nil, nil }
	for _, name := range []string{"c", "a", "b"} {
		for i := 0; i < 500; i++ {
			s.Spawn("noop", "x", noop)
		}
		s.Spawn(name, "x", parkThenRecord(name))
		s.RunUntilIdle()
	}
	require.Equal(t, 3, s.Live())

	// WHEN everything is cancelled
	n := s.CancelAll()
	s.RunUntilIdle()

	// THEN only the live tasks were cancelled, in the order they were spawned
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"c", "a", "b"}, woken)
	assert.Equal(t, 0, s.Live())
}

func TestTask_Park_OutsideItsBody_Panics(t *testing.T) {
	s := newTestScheduler(t)
	task := s.Spawn("parked", "n1", parkForever)
	s.RunUntilIdle()

	assert.Panics(t, func() { _ = task.Park() })
}
