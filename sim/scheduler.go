package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// TaskFunc is the body of a task. It runs on the task's own goroutine but only
// while the scheduler has handed control to it.
type TaskFunc func(t *Task) (any, error)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskParked
	taskDone
)

// Task is one cooperatively scheduled computation: an endpoint behavior, a
// branch of a select, a gathered send, or detached parallel work.
type Task struct {
	id     uint64
	name   string
	owner  string // endpoint id the task belongs to
	sched  *Scheduler
	resume chan struct{}

	state     taskState
	queued    bool
	cancelled bool
	yields    uint64

	result any
	err    error
	onDone []func(*Task)
}

// ID returns the scheduler-unique task id.
func (t *Task) ID() uint64 { return t.id }

// Name returns the descriptive task name.
func (t *Task) Name() string { return t.name }

// Owner returns the id of the endpoint that owns the task.
func (t *Task) Owner() string { return t.owner }

// Done reports whether the task has finished.
func (t *Task) Done() bool { return t.state == taskDone }

// Cancelled reports whether cancellation was requested.
func (t *Task) Cancelled() bool { return t.cancelled }

// Result returns the task's return value once it is done.
func (t *Task) Result() any { return t.result }

// Err returns the task's error once it is done.
func (t *Task) Err() error { return t.err }

// Yields returns how many times the task has suspended so far.
func (t *Task) Yields() uint64 { return t.yields }

// Scheduler returns the scheduler running the task.
func (t *Task) Scheduler() *Scheduler { return t.sched }

// OnDone registers fn to run when the task finishes. If the task already
// finished, fn runs immediately.
func (t *Task) OnDone(fn func(*Task)) {
	if t.state == taskDone {
		fn(t)
		return
	}
	t.onDone = append(t.onDone, fn)
}

// Park suspends the calling task until it is woken. It must be called from the
// task's own body. Callers loop on their wake condition, so spurious wakeups are
// harmless. Park returns ErrCancelled once the task has been cancelled.
func (t *Task) Park() error {
	if t.sched.current != t {
		panic(fmt.Sprintf("Park: task %s is not the running task", t.name))
	}
	if t.cancelled {
		return ErrCancelled
	}
	t.state = taskParked
	t.yields++
	t.sched.yield <- struct{}{}
	<-t.resume
	t.state = taskRunning
	if t.cancelled {
		return ErrCancelled
	}
	return nil
}

func (t *Task) main(fn TaskFunc) {
	<-t.resume
	t.state = taskRunning
	var (
		res any
		err error
	)
	if t.cancelled {
		err = ErrCancelled
	} else {
		res, err = t.invoke(fn)
	}
	t.finish(res, err)
	t.sched.yield <- struct{}{}
}

func (t *Task) invoke(fn TaskFunc) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s: %v", t.name, r)
		}
	}()
	return fn(t)
}

func (t *Task) finish(res any, err error) {
	t.state = taskDone
	t.result, t.err = res, err
	delete(t.sched.live, t.id)
	logrus.Debugf("task %s finished (err=%v)", t.name, err)
	callbacks := t.onDone
	t.onDone = nil
	for _, fn := range callbacks {
		fn(t)
	}
}

// Scheduler runs tasks one at a time. Control passes to a task only from
// RunUntilIdle and comes back only when the task parks or finishes, so exactly
// one task body executes at any moment and no other synchronization is needed
// for state touched from task bodies.
type Scheduler struct {
	ready   []*Task
	yield   chan struct{}
	live    map[uint64]*Task
	nextID  uint64
	current *Task
	running bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		yield: make(chan struct{}),
		live:  make(map[uint64]*Task),
	}
}

// Spawn creates a task owned by owner and queues it. The body does not start
// until the next RunUntilIdle reaches it.
func (s *Scheduler) Spawn(name, owner string, fn TaskFunc) *Task {
	s.nextID++
	t := &Task{
		id:     s.nextID,
		name:   name,
		owner:  owner,
		sched:  s,
		resume: make(chan struct{}),
	}
	s.live[t.id] = t
	go t.main(fn)
	s.Wake(t)
	logrus.Debugf("spawned task %s (#%d)", name, t.id)
	return t
}

// Wake queues t to resume. Waking a finished or already queued task is a no-op.
func (s *Scheduler) Wake(t *Task) {
	if t == nil || t.state == taskDone || t.queued {
		return
	}
	t.queued = true
	s.ready = append(s.ready, t)
}

// Cancel requests cancellation of t. A parked task resumes with ErrCancelled; a
// task that never started finishes without running its body.
func (s *Scheduler) Cancel(t *Task) {
	if t == nil || t.state == taskDone || t.cancelled {
		return
	}
	t.cancelled = true
	s.Wake(t)
}

// CancelOwner cancels every live task owned by owner and returns how many.
func (s *Scheduler) CancelOwner(owner string) int {
	n := 0
	for _, t := range s.liveTasks() {
		if t.owner == owner && !t.cancelled {
			s.Cancel(t)
			n++
		}
	}
	return n
}

// CancelAll cancels every live task and returns how many.
func (s *Scheduler) CancelAll() int {
	n := 0
	for _, t := range s.liveTasks() {
		if !t.cancelled {
			s.Cancel(t)
			n++
		}
	}
	return n
}

// liveTasks returns live tasks in spawn order.
func (s *Scheduler) liveTasks() []*Task {
	tasks := make([]*Task, 0, len(s.live))
	for _, t := range s.live {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].id < tasks[j].id })
	return tasks
}

// Live returns the number of tasks that have not finished.
func (s *Scheduler) Live() int {
	return len(s.live)
}

// Current returns the task whose body is executing, or nil.
func (s *Scheduler) Current() *Task {
	return s.current
}

// RunUntilIdle resumes queued tasks in FIFO order until none is runnable and
// returns the number of resumptions. A nested call made while the loop is
// already running returns 0; the outer loop picks up any newly queued work.
func (s *Scheduler) RunUntilIdle() int {
	if s.running {
		return 0
	}
	s.running = true
	defer func() { s.running = false }()

	steps := 0
	for len(s.ready) > 0 {
		t := s.ready[0]
		s.ready[0] = nil
		s.ready = s.ready[1:]
		t.queued = false
		if t.state == taskDone {
			continue
		}
		s.current = t
		t.resume <- struct{}{}
		<-s.yield
		s.current = nil
		steps++
	}
	return steps
}
